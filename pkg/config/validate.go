package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"georesolve/pkg/matching"
	"georesolve/pkg/model"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their configuration key
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("koanf"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Check validates field ranges and required fields
func (c *Config) Check() error {
	msgs := c.fieldErrors()
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), model.ErrInvalidConfig)
}

func (c *Config) fieldErrors() []string {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []string{err.Error()}
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		msgs = append(msgs, translateError(fe))
	}
	return msgs
}

// translateError renders a field error using the dotted config key
func translateError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// Report is the outcome of Validate
type Report struct {
	Issues           []string `json:"issues"`
	Warnings         []string `json:"warnings"`
	EnabledProviders int      `json:"enabled_providers"`
	TotalProviders   int      `json:"total_providers"`
	MatchingRules    int      `json:"matching_rules"`
}

// Valid reports whether no blocking issue was found
func (r Report) Valid() bool {
	return len(r.Issues) == 0
}

func (r *Report) issue(format string, args ...any) {
	r.Issues = append(r.Issues, fmt.Sprintf(format, args...))
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks the configuration as a whole: field ranges, rule and
// provider cross-references, rule conditions and database files.
func Validate(c *Config) Report {
	var r Report
	r.Issues = append(r.Issues, c.fieldErrors()...)
	r.TotalProviders = len(c.Providers)

	var enabled []ProviderConfig
	seen := make(map[string]bool)
	for _, p := range c.Providers {
		if seen[p.Name] {
			r.issue("provider %q is configured more than once", p.Name)
		}
		seen[p.Name] = true
		if p.IsEnabled() {
			enabled = append(enabled, p)
		}
	}
	r.EnabledProviders = len(enabled)
	if len(enabled) == 0 {
		r.issue("no enabled providers found")
	}

	if p, ok := c.Provider(c.DefaultProvider); !ok {
		r.issue("default provider %q not found in providers", c.DefaultProvider)
	} else if !p.IsEnabled() {
		r.warn("default provider %q is disabled", c.DefaultProvider)
	}

	byPriority := make(map[int][]string)
	for _, p := range enabled {
		byPriority[p.Priority] = append(byPriority[p.Priority], p.Name)
	}
	priorities := make([]int, 0, len(byPriority))
	for prio := range byPriority {
		priorities = append(priorities, prio)
	}
	sort.Ints(priorities)
	for _, prio := range priorities {
		if names := byPriority[prio]; len(names) > 1 {
			r.warn("providers %s share priority %d", strings.Join(names, ", "), prio)
		}
	}

	for _, p := range enabled {
		sources := p.SourcePaths()
		if len(sources) == 0 {
			r.issue("provider %q: no database path configured", p.Name)
		}
		for _, role := range sortedRoles(sources) {
			if _, err := os.Stat(sources[role]); err != nil {
				r.issue("provider %q: %s database not found: %s", p.Name, role, sources[role])
			}
		}
	}

	for _, rule := range c.MatchingRules {
		if rule.IsEnabled() {
			r.MatchingRules++
		}
		r.checkReference(c, rule.Name, "provider", rule.Provider, true)
		if rule.Fallback != "" {
			r.checkReference(c, rule.Name, "fallback provider", rule.Fallback, false)
		}
	}

	engine, err := matching.NewEngine(c.MatchingRules)
	if err != nil {
		for _, e := range unjoin(err) {
			r.issue("%v", e)
		}
	} else {
		r.Warnings = append(r.Warnings, engine.Warnings()...)
	}

	return r
}

func (r *Report) checkReference(c *Config, rule, role, name string, required bool) {
	if name == "" {
		if required {
			r.issue("matching rule %q has no %s", rule, role)
		}
		return
	}
	p, ok := c.Provider(name)
	switch {
	case !ok:
		r.issue("matching rule %q references unknown %s %q", rule, role, name)
	case !p.IsEnabled():
		r.warn("matching rule %q references disabled %s %q", rule, role, name)
	}
}

func sortedRoles(sources map[string]string) []string {
	roles := make([]string, 0, len(sources))
	for role := range sources {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

func unjoin(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
