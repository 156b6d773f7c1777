package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/jason-chang/openapi-mcp/pkg/database"
	"github.com/jason-chang/openapi-mcp/pkg/engine"
	"github.com/jason-chang/openapi-mcp/pkg/examples"
	"github.com/jason-chang/openapi-mcp/pkg/loader"
	"github.com/jason-chang/openapi-mcp/pkg/models"
	"github.com/jason-chang/openapi-mcp/pkg/repository"
	"github.com/jason-chang/openapi-mcp/pkg/resources"
	"github.com/jason-chang/openapi-mcp/pkg/search"
	"github.com/jason-chang/openapi-mcp/pkg/server"
)

func main() {
	config, err := server.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if err := config.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	config.LogConfiguration()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if config.DatabaseMode {
		db, err = database.Initialize(config.DatabaseURL)
		if err != nil {
			log.Fatalf("Database initialization failed: %v", err)
		}
		defer db.Close()
	}

	eng := engine.New(config.Engine)
	defer eng.Close()

	reload := reloadFunc(config, db, eng)
	if _, err := reload(ctx); err != nil {
		log.Fatalf("Initial document load failed: %v", err)
	}

	switch {
	case config.Interactive:
		if err := runInteractive(ctx, eng, reload); err != nil {
			log.Fatalf("Interactive session failed: %v", err)
		}
	case config.HTTPMode:
		if err := runHTTP(ctx, config.HTTPAddr, eng, reload); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	default:
		log.Println("Serving on stdio")
		srv := server.NewStdioServer(eng, reload)
		if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("Stdio server failed: %v", err)
		}
	}
}

// reloadFunc returns the closure that fetches the configured document and
// refreshes the engine. It is shared by startup, /reload and the REPL.
func reloadFunc(config *server.Config, db *sql.DB, eng *engine.Engine) server.ReloadFunc {
	return func(ctx context.Context) (map[string]any, error) {
		raw, source, err := loadDocument(ctx, config, db)
		if err != nil {
			return nil, err
		}
		if err := eng.Refresh(ctx, raw); err != nil {
			return nil, err
		}
		ix := eng.Index()
		return map[string]any{
			"source":    source,
			"title":     eng.Document().Title(),
			"version":   ix.SourceVersion,
			"endpoints": len(ix.Endpoints),
			"models":    len(ix.Models),
			"tags":      len(ix.Tags),
		}, nil
	}
}

func loadDocument(ctx context.Context, config *server.Config, db *sql.DB) (map[string]any, string, error) {
	if config.DatabaseMode {
		return loadFromDatabase(db, config.DocumentName)
	}
	if strings.HasPrefix(config.SpecSource, "http://") || strings.HasPrefix(config.SpecSource, "https://") {
		raw, err := loader.LoadURL(ctx, config.SpecSource)
		return raw, config.SpecSource, err
	}
	raw, err := loader.LoadFile(config.SpecSource)
	return raw, config.SpecSource, err
}

// loadFromDatabase loads the named document, or the first active one when no
// name is configured.
func loadFromDatabase(db *sql.DB, name string) (map[string]any, string, error) {
	repo := repository.NewDocumentRepository(db)

	var (
		doc *models.StoredDocument
		err error
	)
	if name != "" {
		doc, err = repo.GetByName(name)
		if err != nil {
			return nil, "", fmt.Errorf("loading document %q: %w", name, err)
		}
	} else {
		active, err := repo.GetActive()
		if err != nil {
			return nil, "", fmt.Errorf("listing active documents: %w", err)
		}
		if len(active) == 0 {
			return nil, "", fmt.Errorf("no active documents in the database")
		}
		doc = active[0]
		if len(active) > 1 {
			log.Printf("[WARN] %d active documents found, serving %s", len(active), doc.Name)
		}
	}

	raw, err := loader.Parse([]byte(doc.Content))
	if err != nil {
		return nil, "", fmt.Errorf("parsing document %q: %w", doc.Name, err)
	}
	return raw, "database:" + doc.Name, nil
}

func runHTTP(ctx context.Context, addr string, eng *engine.Engine, reload server.ReloadFunc) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewHandler(eng, reload),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP shutdown error: %v", err)
		}
	}()

	log.Printf("HTTP server listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runInteractive drives the engine from a readline prompt. Useful for
// exploring a document without wiring up a client.
func runInteractive(ctx context.Context, eng *engine.Engine, reload server.ReloadFunc) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "openapi> ",
		HistoryFile:     os.TempDir() + "/openapi-mcp-history",
		InterruptPrompt: "^C",
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("Type 'help' for commands, 'exit' to quit.")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "exit" || fields[0] == "quit" {
			return nil
		}
		runCommand(ctx, eng, reload, fields)
	}
}

func runCommand(ctx context.Context, eng *engine.Engine, reload server.ReloadFunc, fields []string) {
	var (
		result any
		err    error
	)
	switch cmd, args := fields[0], fields[1:]; cmd {
	case "help":
		fmt.Println(`Commands:
  resource <openapi://uri> [format] read a resource (json, markdown, plain)
  search <text...>                  search endpoints by text
  examples <model>                  generate examples for a model
  examples <path> <method>          generate examples for an endpoint
  reload                            re-fetch the document and rebuild
  invalidate [scope]                drop cached values (all, prefix*, key)
  stats                             cache and index statistics
  exit                              quit`)
		return
	case "resource":
		if len(args) < 1 || len(args) > 2 {
			err = fmt.Errorf("usage: resource <uri> [format]")
			break
		}
		var payload *resources.Payload
		if payload, err = eng.ResolveResource(ctx, args[0]); err != nil {
			break
		}
		if len(args) == 2 {
			var rendered *resources.Rendered
			if rendered, err = resources.Render(payload, args[1]); err == nil {
				fmt.Println(rendered.Content)
				return
			}
			break
		}
		result = payload
	case "search":
		result, err = eng.Search(ctx, search.Query{Text: strings.Join(args, " ")})
	case "examples":
		switch len(args) {
		case 1:
			result, err = eng.GenerateExamples(ctx, examples.Ref{Model: args[0]}, nil)
		case 2:
			result, err = eng.GenerateExamples(ctx, examples.Ref{Path: args[0], Method: args[1]}, nil)
		default:
			err = fmt.Errorf("usage: examples <model> | examples <path> <method>")
		}
	case "reload":
		result, err = reload(ctx)
	case "invalidate":
		scope := ""
		if len(args) > 0 {
			scope = args[0]
		}
		result = map[string]any{"dropped": eng.Invalidate(scope)}
	case "stats":
		result = map[string]any{"cache": eng.CacheStats()}
	default:
		err = fmt.Errorf("unknown command %q, try 'help'", cmd)
	}

	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	printResult(result)
}

func printResult(result any) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(string(data))
}
