// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package config loads the resolver configuration from defaults, an
// optional YAML file, a .env file and GEOIP_ environment variables.
package config

import (
	"time"

	"georesolve/pkg/logging"
	"georesolve/pkg/matching"
	"georesolve/pkg/model"
)

// Provider defaults
const (
	DefaultPriority   = 100
	DefaultTimeout    = 30
	DefaultMaxRetries = 3
)

// Config is the full application configuration
type Config struct {
	DefaultProvider string                `koanf:"default_provider" validate:"required"`
	Locales         []string              `koanf:"locales"`
	Cache           CacheConfig           `koanf:"cache"`
	Logging         LoggingConfig         `koanf:"logging"`
	Providers       []ProviderConfig      `koanf:"providers,omitempty" validate:"dive"`
	MatchingRules   []matching.RuleConfig `koanf:"matching_rules,omitempty" validate:"dive"`
}

// CacheConfig configures the lookup cache; TTL is in seconds
type CacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	Backend string `koanf:"backend" validate:"oneof=lru none"`
	MaxSize int    `koanf:"max_size" validate:"min=1,max=1000000"`
	TTL     int    `koanf:"ttl" validate:"min=60,max=86400"`
}

// LoggingConfig mirrors logging.Config
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn warning error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	File   string `koanf:"file,omitempty"`
}

// ProviderConfig is one backend entry. Timeout is in seconds.
type ProviderConfig struct {
	Name             string            `koanf:"name" validate:"required"`
	Type             string            `koanf:"type,omitempty"`
	Enabled          *bool             `koanf:"enabled"`
	Priority         int               `koanf:"priority" validate:"min=1,max=999"`
	Description      string            `koanf:"description,omitempty"`
	Locales          []string          `koanf:"locales,omitempty"`
	DatabasePath     string            `koanf:"database_path,omitempty"`
	CityDatabasePath string            `koanf:"city_database_path,omitempty"`
	ASNDatabasePath  string            `koanf:"asn_database_path,omitempty"`
	IPv6DatabasePath string            `koanf:"ipv6_database_path,omitempty"`
	Sources          map[string]string `koanf:"sources,omitempty"`
	Timeout          int               `koanf:"timeout" validate:"min=1,max=300"`
	MaxRetries       *int              `koanf:"max_retries" validate:"omitempty,min=0,max=10"`
}

// IsEnabled reports the effective enabled flag
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// SourcePaths returns the configured data-source locations keyed by role
func (p ProviderConfig) SourcePaths() map[string]string {
	sources := make(map[string]string, len(p.Sources)+4)
	for role, path := range p.Sources {
		if path != "" {
			sources[role] = path
		}
	}
	for role, path := range map[string]string{
		model.SourceDB:   p.DatabasePath,
		model.SourceCity: p.CityDatabasePath,
		model.SourceASN:  p.ASNDatabasePath,
		model.SourceV6:   p.IPv6DatabasePath,
	} {
		if path != "" {
			sources[role] = path
		}
	}
	return sources
}

// Backend converts the entry to the registry's backend configuration
func (p ProviderConfig) Backend(defaultLocales []string) model.BackendConfig {
	locales := p.Locales
	if len(locales) == 0 {
		locales = defaultLocales
	}
	retries := DefaultMaxRetries
	if p.MaxRetries != nil {
		retries = *p.MaxRetries
	}
	return model.BackendConfig{
		Name:        p.Name,
		Type:        p.Type,
		Enabled:     p.IsEnabled(),
		Priority:    p.Priority,
		Description: p.Description,
		Sources:     p.SourcePaths(),
		Locales:     append([]string(nil), locales...),
		Timeout:     time.Duration(p.Timeout) * time.Second,
		MaxRetries:  retries,
	}
}

// Backends returns every provider as a backend configuration, in order
func (c *Config) Backends() []model.BackendConfig {
	out := make([]model.BackendConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		out = append(out, p.Backend(c.Locales))
	}
	return out
}

// Provider returns the provider entry named name
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// CacheSettings converts the cache section for the registry
func (c *Config) CacheSettings() model.CacheConfig {
	return model.CacheConfig{
		Enabled: c.Cache.Enabled,
		Backend: c.Cache.Backend,
		MaxSize: c.Cache.MaxSize,
		TTL:     time.Duration(c.Cache.TTL) * time.Second,
	}
}

// LoggingSettings converts the logging section
func (c *Config) LoggingSettings() logging.Config {
	cfg := logging.DefaultConfig()
	if c.Logging.Level != "" {
		cfg.Level = c.Logging.Level
	}
	if c.Logging.Format != "" {
		cfg.Format = c.Logging.Format
	}
	cfg.File = c.Logging.File
	return cfg
}

// applyDefaults fills provider and rule fields left unset
func (c *Config) applyDefaults() {
	if len(c.Locales) == 0 {
		c.Locales = []string{"en"}
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Priority == 0 {
			p.Priority = DefaultPriority
		}
		if p.Timeout == 0 {
			p.Timeout = DefaultTimeout
		}
	}
	for i := range c.MatchingRules {
		if c.MatchingRules[i].Priority == 0 {
			c.MatchingRules[i].Priority = DefaultPriority
		}
	}
}

// scalarDefaults returns the defaults for every non-list setting
func scalarDefaults() *Config {
	cache := model.DefaultCacheConfig()
	log := logging.DefaultConfig()
	return &Config{
		DefaultProvider: "geoip2",
		Locales:         []string{"en"},
		Cache: CacheConfig{
			Enabled: cache.Enabled,
			Backend: cache.Backend,
			MaxSize: cache.MaxSize,
			TTL:     int(cache.TTL / time.Second),
		},
		Logging: LoggingConfig{
			Level:  log.Level,
			Format: log.Format,
		},
	}
}

// Default returns the configuration written by "config init"
func Default() *Config {
	cfg := scalarDefaults()
	cfg.Providers = DefaultProviders()
	cfg.MatchingRules = DefaultRules()
	return cfg
}

// DefaultProviders returns the built-in provider entries
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			Name:             "geoip2",
			Enabled:          matching.Bool(true),
			Priority:         100,
			Description:      "MaxMind GeoIP2 / GeoLite2 City database",
			CityDatabasePath: "./data/GeoLite2-City.mmdb",
			Timeout:          DefaultTimeout,
			MaxRetries:       intPtr(DefaultMaxRetries),
		},
		{
			Name:             "geoip2-enriched",
			Enabled:          matching.Bool(false),
			Priority:         110,
			Description:      "MaxMind City database enriched with ASN data",
			CityDatabasePath: "./data/GeoLite2-City.mmdb",
			ASNDatabasePath:  "./data/GeoLite2-ASN.mmdb",
			Timeout:          DefaultTimeout,
			MaxRetries:       intPtr(DefaultMaxRetries),
		},
		{
			Name:         "ip2location",
			Enabled:      matching.Bool(true),
			Priority:     200,
			Description:  "IP2Location BIN database",
			DatabasePath: "./data/IP2LOCATION-LITE-DB11.BIN",
			Timeout:      DefaultTimeout,
			MaxRetries:   intPtr(DefaultMaxRetries),
		},
	}
}

// DefaultRules returns the built-in matching rules
func DefaultRules() []matching.RuleConfig {
	return []matching.RuleConfig{
		{
			Name:        "private_networks",
			Description: "Private and loopback ranges",
			Enabled:     matching.Bool(true),
			Priority:    10,
			MatchAll:    matching.Bool(false),
			Conditions: []matching.ConditionConfig{{
				Type:   matching.CondIPRange,
				Values: []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.0/8"},
			}},
			Provider: "geoip2",
		},
		{
			Name:        "ipv6_addresses",
			Description: "All IPv6 traffic",
			Enabled:     matching.Bool(true),
			Priority:    20,
			MatchAll:    matching.Bool(true),
			Conditions: []matching.ConditionConfig{{
				Type:   matching.CondIPVersion,
				Values: []string{"6"},
			}},
			Provider: "geoip2",
		},
		{
			Name:        "asian_countries",
			Description: "Asian countries prefer IP2Location",
			Enabled:     matching.Bool(true),
			Priority:    30,
			MatchAll:    matching.Bool(true),
			Conditions: []matching.ConditionConfig{{
				Type:   matching.CondCountry,
				Values: []string{"CN", "JP", "KR", "IN", "ID", "TH", "VN", "PH", "MY"},
			}},
			Provider: "ip2location",
			Fallback: "geoip2",
		},
		{
			Name:        "european_countries",
			Description: "European continent",
			Enabled:     matching.Bool(true),
			Priority:    40,
			MatchAll:    matching.Bool(true),
			Conditions: []matching.ConditionConfig{{
				Type:   matching.CondContinent,
				Values: []string{"EU"},
			}},
			Provider: "geoip2",
		},
	}
}

func intPtr(v int) *int {
	return &v
}
