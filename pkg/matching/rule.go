// Package matching selects the backend that serves a query from an
// ordered list of configured rules.
package matching

import (
	"fmt"

	"georesolve/pkg/model"
)

// RuleConfig is a matching rule as written in configuration.
// Enabled and MatchAll default to true when unset.
type RuleConfig struct {
	Name        string            `koanf:"name" yaml:"name" json:"name" validate:"required"`
	Description string            `koanf:"description" yaml:"description,omitempty" json:"description,omitempty"`
	Enabled     *bool             `koanf:"enabled" yaml:"enabled" json:"enabled"`
	Priority    int               `koanf:"priority" yaml:"priority" json:"priority" validate:"min=1,max=999"`
	MatchAll    *bool             `koanf:"match_all" yaml:"match_all" json:"match_all"`
	Conditions  []ConditionConfig `koanf:"conditions" yaml:"conditions" json:"conditions" validate:"dive"`
	Provider    string            `koanf:"provider" yaml:"provider" json:"provider" validate:"required"`
	Fallback    string            `koanf:"fallback_provider" yaml:"fallback_provider,omitempty" json:"fallback_provider,omitempty"`
}

// IsEnabled reports the effective enabled flag
func (c RuleConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// IsMatchAll reports the effective combinator
func (c RuleConfig) IsMatchAll() bool {
	return c.MatchAll == nil || *c.MatchAll
}

// Bool returns a pointer to b for RuleConfig literals
func Bool(b bool) *bool {
	return &b
}

// Rule is a compiled, enabled matching rule
type Rule struct {
	Name        string
	Description string
	Priority    int
	MatchAll    bool
	Provider    string
	Fallback    string

	conditions []condition
}

// Compile builds a rule from its configuration
func Compile(cfg RuleConfig) (*Rule, error) {
	r := &Rule{
		Name:        cfg.Name,
		Description: cfg.Description,
		Priority:    cfg.Priority,
		MatchAll:    cfg.IsMatchAll(),
		Provider:    cfg.Provider,
		Fallback:    cfg.Fallback,
	}
	for i, cc := range cfg.Conditions {
		c, err := compileCondition(cc)
		if err != nil {
			return nil, fmt.Errorf("rule %q: condition %d: %w", cfg.Name, i, err)
		}
		r.conditions = append(r.conditions, c)
	}
	return r, nil
}

// Matches evaluates the rule against q. A rule without conditions never
// matches.
func (r *Rule) Matches(q *Query) bool {
	if len(r.conditions) == 0 {
		return false
	}

	if r.MatchAll {
		for _, c := range r.conditions {
			if !c.match(q) {
				return false
			}
		}
		return true
	}

	for _, c := range r.conditions {
		if c.match(q) {
			return true
		}
	}
	return false
}

// Targets returns the rule's backend followed by its fallback, if any
func (r *Rule) Targets() []string {
	if r.Fallback == "" || r.Fallback == r.Provider {
		return []string{r.Provider}
	}
	return []string{r.Provider, r.Fallback}
}

// Combinator returns "ALL" or "ANY"
func (r *Rule) Combinator() string {
	if r.MatchAll {
		return "ALL"
	}
	return "ANY"
}

func (r *Rule) String() string {
	return fmt.Sprintf("%s (priority %d, %s of %d conditions -> %s)", r.Name, r.Priority, r.Combinator(), len(r.conditions), r.Provider)
}

// validate checks the rule's backend references
func (r *Rule) validate(known func(string) bool) error {
	if r.Provider == "" || !known(r.Provider) {
		return fmt.Errorf("rule %q: provider %q: %w", r.Name, r.Provider, model.ErrUnknownBackend)
	}
	if r.Fallback != "" && !known(r.Fallback) {
		return fmt.Errorf("rule %q: fallback provider %q: %w", r.Name, r.Fallback, model.ErrUnknownBackend)
	}
	return nil
}
