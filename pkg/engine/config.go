package engine

import (
	"io"
	"time"

	"github.com/jason-chang/openapi-mcp/pkg/security"
)

// Config is the engine's construction-time configuration. It is consumed,
// not owned: the process-level loader in pkg/server assembles it from the
// environment and hands it over.
type Config struct {
	// CacheTTL is the default lifetime of cached resource reads and query
	// results. Zero selects the default.
	CacheTTL time.Duration
	// CacheSize bounds the number of cached entries before LRU eviction.
	CacheSize int
	// SweepInterval is how often expired cache entries are evicted eagerly.
	SweepInterval time.Duration

	// ConcurrencyLimit caps simultaneous in-flight queries.
	ConcurrencyLimit int
	// QueueDepth bounds how many requests may wait for a slot before the
	// engine fails fast with a backpressure error.
	QueueDepth int
	// RequestTimeout bounds each search, resource and example call.
	RequestTimeout time.Duration

	// SensitiveKeys extends the default sensitive-field name set.
	SensitiveKeys []string
	// Visibility decides which endpoints appear in outward-facing results.
	Visibility security.VisibilityFunc
	// AuditWriter enables access logging when non-nil.
	AuditWriter io.Writer
	// AuditEnabled turns on access logging even without a custom writer.
	AuditEnabled bool

	// BaseURL seeds rendered example invocations when set.
	BaseURL string
	// SearchMaxLimit clamps caller-supplied search page sizes.
	SearchMaxLimit int
	// ValidateExamples runs a best-effort schema check over generated
	// examples and logs findings.
	ValidateExamples bool
}

// DefaultConfig returns the configuration used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		CacheTTL:         5 * time.Minute,
		CacheSize:        1000,
		SweepInterval:    time.Minute,
		ConcurrencyLimit: 16,
		QueueDepth:       64,
		RequestTimeout:   10 * time.Second,
		SearchMaxLimit:   50,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.CacheSize <= 0 {
		c.CacheSize = def.CacheSize
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.ConcurrencyLimit <= 0 {
		c.ConcurrencyLimit = def.ConcurrencyLimit
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = def.QueueDepth
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.SearchMaxLimit <= 0 {
		c.SearchMaxLimit = def.SearchMaxLimit
	}
	return c
}
