package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jason-chang/openapi-mcp/pkg/database"
	"github.com/jason-chang/openapi-mcp/pkg/loader"
	"github.com/jason-chang/openapi-mcp/pkg/models"
	"github.com/jason-chang/openapi-mcp/pkg/repository"
	"github.com/spf13/cast"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}
	command := os.Args[1]

	if command == "help" {
		printHelp()
		return
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

	switch command {
	case "list":
		handleList(repo, false)
	case "active":
		handleList(repo, true)
	case "import":
		handleImport(repo)
	case "show":
		handleShow(repo)
	case "activate":
		handleSetActive(repo, true)
	case "deactivate":
		handleSetActive(repo, false)
	case "delete":
		handleDelete(repo)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("OpenAPI Document Manager")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                    List all documents in the database")
	fmt.Println("  active                  List only active documents")
	fmt.Println("  import <file> [name]    Import a document file into the database")
	fmt.Println("  show <name>             Print a document's content")
	fmt.Println("  activate <name>         Activate a document")
	fmt.Println("  deactivate <name>       Deactivate a document")
	fmt.Println("  delete <name>           Delete a document")
	fmt.Println("  help                    Show this help message")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  DATABASE_URL            PostgreSQL connection string")
}

func handleList(repo *repository.DocumentRepository, activeOnly bool) {
	var (
		docs []*models.StoredDocument
		err  error
	)
	if activeOnly {
		docs, err = repo.GetActive()
	} else {
		docs, err = repo.GetAll()
	}
	if err != nil {
		log.Fatalf("Failed to list documents: %v", err)
	}

	if len(docs) == 0 {
		fmt.Println("No documents found.")
		return
	}

	fmt.Printf("%-4s %-24s %-32s %-12s %-8s %-8s %s\n", "ID", "Name", "Title", "Version", "Active", "Format", "Size")
	fmt.Println(strings.Repeat("-", 100))
	for _, doc := range docs {
		fmt.Printf("%-4d %-24s %-32s %-12s %-8t %-8s %d\n",
			doc.ID,
			truncate(doc.Name, 22),
			truncate(deref(doc.Title), 30),
			truncate(deref(doc.APIVersion), 10),
			doc.Active(),
			deref(doc.Format),
			derefInt(doc.Size))
	}
}

func handleImport(repo *repository.DocumentRepository) {
	if len(os.Args) < 3 {
		log.Fatal("Usage: spec-manager import <file> [name]")
	}
	path := os.Args[2]
	name := documentName(path)
	if len(os.Args) > 3 {
		name = os.Args[3]
	}

	doc, err := importFile(repo, path, name)
	if err != nil {
		log.Fatalf("Failed to import %s: %v", path, err)
	}
	fmt.Printf("Imported %s as %q (%s %s)\n", path, doc.Name, deref(doc.Title), deref(doc.APIVersion))
}

func handleShow(repo *repository.DocumentRepository) {
	if len(os.Args) < 3 {
		log.Fatal("Usage: spec-manager show <name>")
	}
	doc, err := repo.GetByName(os.Args[2])
	if err != nil {
		log.Fatalf("Failed to load document: %v", err)
	}
	fmt.Println(doc.Content)
}

func handleSetActive(repo *repository.DocumentRepository, active bool) {
	if len(os.Args) < 3 {
		log.Fatal("Usage: spec-manager activate|deactivate <name>")
	}
	name := os.Args[2]
	if err := repo.SetActive(name, active); err != nil {
		log.Fatalf("Failed to update document: %v", err)
	}
	state := "deactivated"
	if active {
		state = "activated"
	}
	fmt.Printf("Document %q %s\n", name, state)
}

func handleDelete(repo *repository.DocumentRepository) {
	if len(os.Args) < 3 {
		log.Fatal("Usage: spec-manager delete <name>")
	}
	name := os.Args[2]
	if err := repo.Delete(name); err != nil {
		log.Fatalf("Failed to delete document: %v", err)
	}
	fmt.Printf("Document %q deleted\n", name)
}

// importFile parses the file to pull title and version before storing it,
// so a document that does not parse never reaches the table.
func importFile(repo *repository.DocumentRepository, path, name string) (*models.StoredDocument, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := loader.Parse(content)
	if err != nil {
		return nil, err
	}

	doc := models.NewStoredDocument(name, string(content))
	if strings.HasSuffix(strings.ToLower(path), ".json") {
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

func documentName(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + ".."
}
