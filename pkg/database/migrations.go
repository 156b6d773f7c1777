package database

import (
	"database/sql"
	"fmt"
	"log"
)

// CreateDocumentsTable creates the openapi_documents table with its indexes.
func CreateDocumentsTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS openapi_documents (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) UNIQUE NOT NULL,
		title VARCHAR(500),
		api_version VARCHAR(100),
		content TEXT NOT NULL,
		format VARCHAR(10) DEFAULT 'yaml',
		size INTEGER,
		is_active BOOLEAN DEFAULT true,
		created_at TIMESTAMP(6) DEFAULT NOW(),
		updated_at TIMESTAMP(6) DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_openapi_documents_name ON openapi_documents(name);
	CREATE INDEX IF NOT EXISTS idx_openapi_documents_is_active ON openapi_documents(is_active);
	`

	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create openapi_documents table: %w", err)
	}
	return nil
}

// DropDocumentsTable drops the openapi_documents table (useful for testing).
func DropDocumentsTable(db *sql.DB) error {
	if _, err := db.Exec(`DROP TABLE IF EXISTS openapi_documents CASCADE;`); err != nil {
		return fmt.Errorf("failed to drop openapi_documents table: %w", err)
	}
	return nil
}

// RunMigrations runs all database migrations.
func RunMigrations(db *sql.DB) error {
	log.Println("Running database migrations...")
	if err := CreateDocumentsTable(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Database migrations complete")
	return nil
}
