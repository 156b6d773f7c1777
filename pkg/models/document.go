package models

import (
	"time"
)

// StoredDocument represents one row of the openapi_documents table: a raw
// OpenAPI document kept in the store for engine startup and refresh.
type StoredDocument struct {
	ID         int        `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	Title      *string    `json:"title,omitempty" db:"title"`
	APIVersion *string    `json:"api_version,omitempty" db:"api_version"`
	Content    string     `json:"content" db:"content"`
	Format     *string    `json:"format,omitempty" db:"format"`
	Size       *int       `json:"size,omitempty" db:"size"`
	IsActive   *bool      `json:"is_active,omitempty" db:"is_active"`
	CreatedAt  *time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// TableName returns the table name for the StoredDocument model.
func (StoredDocument) TableName() string {
	return "openapi_documents"
}

// NewStoredDocument creates a StoredDocument with default values.
func NewStoredDocument(name, content string) *StoredDocument {
	now := time.Now()
	active := true
	format := "yaml"
	size := len(content)

	return &StoredDocument{
		Name:      name,
		Content:   content,
		Format:    &format,
		Size:      &size,
		IsActive:  &active,
		CreatedAt: &now,
		UpdatedAt: &now,
	}
}

// Active reports whether the document should be served.
func (d *StoredDocument) Active() bool {
	return d.IsActive == nil || *d.IsActive
}
