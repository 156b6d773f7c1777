// Package server provides the process configuration and the HTTP/stdio
// transports around the engine. The engine itself never imports this
// package; it only consumes the engine.Config assembled here.
package server

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jason-chang/openapi-mcp/pkg/engine"
)

// Config holds process configuration assembled from environment variables
// and command line arguments.
type Config struct {
	DatabaseMode bool
	DatabaseURL  string
	DocumentName string

	HTTPMode    bool
	HTTPAddr    string
	Interactive bool

	SpecSource string // file path or URL in file mode

	Engine engine.Config
}

// LoadConfig loads configuration from environment variables and command
// line arguments.
func LoadConfig(args []string) (*Config, error) {
	config := &Config{Engine: engine.DefaultConfig()}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.DatabaseMode = true
		config.DatabaseURL = dbURL
	}

	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "--http":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--http requires an address")
			}
			config.HTTPMode = true
			config.HTTPAddr = args[i+1]
			i++
		case "--interactive", "-i":
			config.Interactive = true
		case "--doc":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--doc requires a document name")
			}
			config.DocumentName = args[i+1]
			i++
		default:
			if strings.HasPrefix(arg, "--") {
				return nil, fmt.Errorf("unknown flag %q", arg)
			}
			config.SpecSource = arg
		}
	}

	loadEngineEnv(&config.Engine)
	return config, nil
}

// loadEngineEnv overlays engine settings from OPENAPI_MCP_* variables.
func loadEngineEnv(cfg *engine.Config) {
	if v := os.Getenv("OPENAPI_MCP_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}
	if v := os.Getenv("OPENAPI_MCP_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CacheSize = n
		}
	}
	if v := os.Getenv("OPENAPI_MCP_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ConcurrencyLimit = n
		}
	}
	if v := os.Getenv("OPENAPI_MCP_QUEUE_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueDepth = n
		}
	}
	if v := os.Getenv("OPENAPI_MCP_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
		}
	}
	if v := os.Getenv("OPENAPI_MCP_SENSITIVE_FIELDS"); v != "" {
		cfg.SensitiveKeys = append(cfg.SensitiveKeys, strings.Split(v, ",")...)
	}
	if v := os.Getenv("OPENAPI_MCP_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("OPENAPI_MCP_AUDIT"); v == "1" || strings.EqualFold(v, "true") {
		cfg.AuditEnabled = true
	}
	if v := os.Getenv("OPENAPI_MCP_VALIDATE_EXAMPLES"); v == "1" || strings.EqualFold(v, "true") {
		cfg.ValidateExamples = true
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DatabaseMode && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for database mode")
	}
	if !c.DatabaseMode && c.SpecSource == "" {
		return fmt.Errorf("no OpenAPI document provided")
	}
	return nil
}

// LogConfiguration logs the current configuration.
func (c *Config) LogConfiguration() {
	if c.DatabaseMode {
		log.Println("Running in database mode")
		log.Printf("Database URL: %s", maskSensitive(c.DatabaseURL))
	} else {
		log.Printf("Running in file mode with document %s", c.SpecSource)
	}
	if c.HTTPMode {
		log.Printf("HTTP server will start on %s", c.HTTPAddr)
	}
}

// maskSensitive masks sensitive parts of URLs for logging.
func maskSensitive(url string) string {
	if len(url) > 20 {
		return url[:8] + "***" + url[len(url)-8:]
	}
	return "***"
}
