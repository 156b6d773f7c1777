// Package repository provides database access for stored OpenAPI documents.
package repository

import (
	"database/sql"
	"fmt"

	"github.com/jason-chang/openapi-mcp/pkg/models"
)

// DocumentRepository handles database operations for stored documents.
type DocumentRepository struct {
	db *sql.DB
}

// NewDocumentRepository creates a new repository instance.
func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, name, title, api_version, content, format, size, is_active, created_at, updated_at`

// Create inserts a new document into the store.
func (r *DocumentRepository) Create(doc *models.StoredDocument) (*models.StoredDocument, error) {
	query := `
		INSERT INTO openapi_documents (name, title, api_version, content, format, size, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(
		query,
		doc.Name,
		doc.Title,
		doc.APIVersion,
		doc.Content,
		doc.Format,
		doc.Size,
		doc.IsActive,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return doc, nil
}

// Upsert inserts the document or replaces its content when the name exists.
func (r *DocumentRepository) Upsert(doc *models.StoredDocument) (*models.StoredDocument, error) {
	query := `
		INSERT INTO openapi_documents (name, title, api_version, content, format, size, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			title = EXCLUDED.title,
			api_version = EXCLUDED.api_version,
			content = EXCLUDED.content,
			format = EXCLUDED.format,
			size = EXCLUDED.size,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(
		query,
		doc.Name,
		doc.Title,
		doc.APIVersion,
		doc.Content,
		doc.Format,
		doc.Size,
		doc.IsActive,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert document: %w", err)
	}
	return doc, nil
}

// GetByName retrieves a document by its unique name.
func (r *DocumentRepository) GetByName(name string) (*models.StoredDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM openapi_documents WHERE name = $1`
	doc := &models.StoredDocument{}
	err := r.scanRow(r.db.QueryRow(query, name), doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// GetAll retrieves every stored document ordered by name.
func (r *DocumentRepository) GetAll() ([]*models.StoredDocument, error) {
	return r.list(`SELECT ` + documentColumns + ` FROM openapi_documents ORDER BY name`)
}

// GetActive retrieves the documents flagged active, ordered by name.
func (r *DocumentRepository) GetActive() ([]*models.StoredDocument, error) {
	return r.list(`SELECT ` + documentColumns + ` FROM openapi_documents WHERE is_active = true ORDER BY name`)
}

// SetActive flips the active flag of a named document.
func (r *DocumentRepository) SetActive(name string, active bool) error {
	result, err := r.db.Exec(`UPDATE openapi_documents SET is_active = $2, updated_at = NOW() WHERE name = $1`, name, active)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("document %q not found", name)
	}
	return nil
}

// Delete removes a document by name.
func (r *DocumentRepository) Delete(name string) error {
	if _, err := r.db.Exec(`DELETE FROM openapi_documents WHERE name = $1`, name); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) list(query string) ([]*models.StoredDocument, error) {
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.StoredDocument
	for rows.Next() {
		doc := &models.StoredDocument{}
		if err := r.scanRows(rows, doc); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepository) scanRow(row *sql.Row, doc *models.StoredDocument) error {
	return row.Scan(
		&doc.ID, &doc.Name, &doc.Title, &doc.APIVersion, &doc.Content,
		&doc.Format, &doc.Size, &doc.IsActive, &doc.CreatedAt, &doc.UpdatedAt,
	)
}

func (r *DocumentRepository) scanRows(rows *sql.Rows, doc *models.StoredDocument) error {
	return rows.Scan(
		&doc.ID, &doc.Name, &doc.Title, &doc.APIVersion, &doc.Content,
		&doc.Format, &doc.Size, &doc.IsActive, &doc.CreatedAt, &doc.UpdatedAt,
	)
}
