package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys use "__",
// e.g. GEOIP_CACHE__MAX_SIZE sets cache.max_size.
const EnvPrefix = "GEOIP_"

// ConfigPathEnvVar overrides the config file search
const ConfigPathEnvVar = "GEOIP_CONFIG_FILE"

// DefaultConfigPaths are searched in order when no path is given
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"geoip.yaml",
	"/etc/georesolve/config.yaml",
}

// legacyEnv maps flat variable names kept for older deployments
var legacyEnv = map[string]string{
	"cache_enabled": "cache.enabled",
	"cache_ttl":     "cache.ttl",
	"log_level":     "logging.level",
}

// sliceConfigPaths accept comma-separated values from the environment
var sliceConfigPaths = []string{"locales"}

// Options controls where Load reads from
type Options struct {
	// Path is the YAML file; empty searches DefaultConfigPaths
	Path string
	// EnvFile is loaded into the process environment if present;
	// empty means ".env"
	EnvFile string
	// SkipEnv ignores the environment entirely
	SkipEnv bool
}

// Load layers defaults, the YAML file and the environment, then validates
// field ranges. Cross-references between rules and providers are checked
// by Validate.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(scalarDefaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if !opts.SkipEnv {
		if err := loadDotEnv(opts.EnvFile); err != nil {
			return nil, err
		}
	}

	path := opts.Path
	if path == "" && !opts.SkipEnv {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if !opts.SkipEnv {
		if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
			return nil, fmt.Errorf("failed to load environment variables: %w", err)
		}
		if err := processSliceFields(k); err != nil {
			return nil, fmt.Errorf("failed to process slice fields: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if !k.Exists("providers") {
		cfg.Providers = DefaultProviders()
	}
	if !k.Exists("matching_rules") {
		cfg.MatchingRules = DefaultRules()
	}
	cfg.applyDefaults()

	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads path without consulting the environment
func LoadFile(path string) (*Config, error) {
	return Load(Options{Path: path, SkipEnv: true})
}

func loadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func findConfigFile() string {
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps GEOIP_CACHE__MAX_SIZE to cache.max_size
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if mapped, ok := legacyEnv[key]; ok {
		return mapped
	}
	if key == "config_file" {
		return ""
	}
	return strings.ReplaceAll(key, "__", ".")
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
