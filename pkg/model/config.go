package model

import "time"

// Source roles understood by the built-in backends
const (
	SourceCity = "city"
	SourceASN  = "asn"
	SourceDB   = "db"
	SourceV4   = "v4"
	SourceV6   = "v6"
)

// BackendConfig describes one configured lookup backend
type BackendConfig struct {
	Name        string            // Logical backend name used by rules and cache keys
	Type        string            // Registered constructor name; defaults to Name
	Enabled     bool              // Disabled backends are skipped in the default chain
	Priority    int               // Lower is tried first
	Description string            // Free-form
	Sources     map[string]string // Data-source locations keyed by role
	Locales     []string          // Preferred name locales, first wins
	Timeout     time.Duration     // Bounds source opening (including retries)
	MaxRetries  int               // Extra open attempts after the first
}

// Kind returns the constructor name for the backend
func (c BackendConfig) Kind() string {
	if c.Type != "" {
		return c.Type
	}
	return c.Name
}

// Source returns the configured location for role, or ""
func (c BackendConfig) Source(role string) string {
	if c.Sources == nil {
		return ""
	}
	return c.Sources[role]
}

// Locale returns the preferred name locale
func (c BackendConfig) Locale() string {
	if len(c.Locales) > 0 && c.Locales[0] != "" {
		return c.Locales[0]
	}
	return "en"
}

// Cache backend kinds
const (
	CacheLRU  = "lru"
	CacheNone = "none"
)

// CacheConfig configures the lookup cache
type CacheConfig struct {
	Enabled bool
	Backend string
	MaxSize int
	TTL     time.Duration
}

// DefaultCacheConfig returns the cache defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: true,
		Backend: CacheLRU,
		MaxSize: 10000,
		TTL:     time.Hour,
	}
}
