package matching

import (
	"errors"
	"fmt"
	"iter"
	"sort"

	"github.com/rs/zerolog"

	"georesolve/pkg/logging"
	"georesolve/pkg/metrics"
)

// Engine evaluates enabled rules in priority order
type Engine struct {
	rules    []*Rule
	all      []*Rule
	warnings []string
	log      zerolog.Logger
}

// NewEngine compiles every configured rule, including disabled ones, so
// malformed conditions fail at load time. Only enabled rules are
// evaluated; equal priorities keep their configured order.
func NewEngine(cfgs []RuleConfig) (*Engine, error) {
	e := &Engine{log: logging.Component("matching")}

	var errs []error
	for _, cfg := range cfgs {
		r, err := Compile(cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e.all = append(e.all, r)
		if !cfg.IsEnabled() {
			continue
		}
		if len(r.conditions) == 0 {
			e.warn(fmt.Sprintf("rule %q has no conditions and never matches", r.Name))
		}
		e.rules = append(e.rules, r)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority < e.rules[j].Priority
	})

	for i := 1; i < len(e.rules); i++ {
		prev, cur := e.rules[i-1], e.rules[i]
		if prev.Priority == cur.Priority {
			e.warn(fmt.Sprintf("rules %q and %q share priority %d; %q is evaluated first",
				prev.Name, cur.Name, cur.Priority, prev.Name))
		}
	}

	return e, nil
}

func (e *Engine) warn(msg string) {
	e.warnings = append(e.warnings, msg)
	e.log.Warn().Msg(msg)
}

// Rules returns the enabled rules in evaluation order
func (e *Engine) Rules() []*Rule {
	return append([]*Rule(nil), e.rules...)
}

// Warnings returns configuration warnings found while compiling
func (e *Engine) Warnings() []string {
	return append([]string(nil), e.warnings...)
}

// Matching yields the enabled rules matching q in evaluation order.
// Rules are evaluated lazily, so stopping early leaves later rules and
// their characteristics lookup untouched.
func (e *Engine) Matching(q *Query) iter.Seq[*Rule] {
	return func(yield func(*Rule) bool) {
		for _, r := range e.rules {
			if !r.Matches(q) {
				continue
			}
			metrics.RuleMatchesTotal.WithLabelValues(r.Name).Inc()
			e.log.Debug().Str("rule", r.Name).Str("ip", q.IP.String()).Msg("rule matched")
			if !yield(r) {
				return
			}
		}
	}
}

// Match returns the first rule matching q, or nil
func (e *Engine) Match(q *Query) *Rule {
	for r := range e.Matching(q) {
		return r
	}
	return nil
}

// Validate checks that every configured rule, enabled or not, names
// known backends. Each failure names the rule and the missing backend.
func (e *Engine) Validate(known func(name string) bool) error {
	var errs []error
	for _, r := range e.all {
		if err := r.validate(known); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
