// Command import-specs bulk-imports every OpenAPI document in a directory
// into the openapi_documents table.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/jason-chang/openapi-mcp/pkg/database"
	"github.com/jason-chang/openapi-mcp/pkg/loader"
	"github.com/jason-chang/openapi-mcp/pkg/models"
	"github.com/jason-chang/openapi-mcp/pkg/repository"
	"github.com/spf13/cast"
)

func main() {
	specsDir := "./specs"
	if len(os.Args) > 1 {
		specsDir = os.Args[1]
	}

	if _, err := os.Stat(specsDir); os.IsNotExist(err) {
		log.Fatalf("Specs directory does not exist: %s", specsDir)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	db, err := database.Initialize(databaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	repo := repository.NewDocumentRepository(db)

	files, err := os.ReadDir(specsDir)
	if err != nil {
		log.Fatalf("Failed to read specs directory: %v", err)
	}

	imported := 0
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		fileName := file.Name()
		ext := strings.ToLower(filepath.Ext(fileName))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}

		name := strings.TrimSuffix(fileName, ext)
		doc, err := importFile(repo, filepath.Join(specsDir, fileName), name, ext)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to import %s: %v\n", fileName, err)
			continue
		}

		fmt.Printf("Imported %s as %q (%s %s)\n", fileName, doc.Name, strValue(doc.Title), strValue(doc.APIVersion))
		imported++
	}

	fmt.Printf("\nImport completed: %d documents imported\n", imported)
	if imported > 0 {
		fmt.Println("\nTo view imported documents, run:")
		fmt.Println("  spec-manager list")
	}
}

func importFile(repo *repository.DocumentRepository, path, name, ext string) (*models.StoredDocument, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := loader.Parse(content)
	if err != nil {
		return nil, err
	}

	doc := models.NewStoredDocument(name, string(content))
	if ext == ".json" {
		format := "json"
		doc.Format = &format
	}
	info := cast.ToStringMap(raw["info"])
	if title := cast.ToString(info["title"]); title != "" {
		doc.Title = &title
	}
	if version := cast.ToString(info["version"]); version != "" {
		doc.APIVersion = &version
	}
	return repo.Upsert(doc)
}

func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
