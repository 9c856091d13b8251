package matching

import (
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"georesolve/pkg/geo"
	"georesolve/pkg/model"
	"georesolve/pkg/util/ipcodec"
)

// Condition types
const (
	CondIPRange    = "ip_range"
	CondIPVersion  = "ip_version"
	CondCountry    = "country"
	CondContinent  = "continent"
	CondASN        = "asn"
	CondRegex      = "regex"
	CondExpression = "expression"
)

// ConditionTypes lists every condition type in the order they are documented
var ConditionTypes = []string{
	CondIPRange, CondIPVersion, CondCountry, CondContinent, CondASN, CondRegex, CondExpression,
}

// ConditionConfig is a condition as written in configuration
type ConditionConfig struct {
	Type   string   `koanf:"type" yaml:"type" json:"type" validate:"required"`
	Values []string `koanf:"values" yaml:"values" json:"values"`
	Negate bool     `koanf:"negate" yaml:"negate,omitempty" json:"negate,omitempty"`
}

type condition interface {
	match(q *Query) bool
}

func compileCondition(cfg ConditionConfig) (condition, error) {
	if len(cfg.Values) == 0 {
		return nil, fmt.Errorf("%s: no values: %w", cfg.Type, model.ErrInvalidCondition)
	}

	var (
		c   condition
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case CondIPRange:
		c, err = newIPRange(cfg.Values)
	case CondIPVersion:
		c, err = newIPVersion(cfg.Values)
	case CondCountry:
		c, err = newCountry(cfg.Values)
	case CondContinent:
		c, err = newContinent(cfg.Values)
	case CondASN:
		c, err = newASN(cfg.Values)
	case CondRegex:
		c, err = newRegex(cfg.Values)
	case CondExpression:
		c, err = newExpression(cfg.Values)
	default:
		return nil, fmt.Errorf("unknown condition type %q: %w", cfg.Type, model.ErrInvalidCondition)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", cfg.Type, err, model.ErrInvalidCondition)
	}

	if cfg.Negate {
		return negated{c}, nil
	}
	return c, nil
}

type negated struct{ condition }

func (n negated) match(q *Query) bool { return !n.condition.match(q) }

type ipRange struct {
	prefixes []netip.Prefix
}

func newIPRange(values []string) (*ipRange, error) {
	c := &ipRange{}
	for _, v := range values {
		p, err := netip.ParsePrefix(strings.TrimSpace(v))
		if err != nil {
			return nil, err
		}
		c.prefixes = append(c.prefixes, p.Masked())
	}
	return c, nil
}

func (c *ipRange) match(q *Query) bool {
	for _, p := range c.prefixes {
		if p.Contains(q.IP) {
			return true
		}
	}
	return false
}

type ipVersion struct {
	versions []int
}

func newIPVersion(values []string) (*ipVersion, error) {
	c := &ipVersion{}
	for _, v := range values {
		n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(v)), "ipv"))
		if err != nil || (n != 4 && n != 6) {
			return nil, fmt.Errorf("IP version must be 4 or 6, got %q", v)
		}
		c.versions = append(c.versions, n)
	}
	return c, nil
}

func (c *ipVersion) match(q *Query) bool {
	version := ipcodec.Version(q.IP)
	for _, v := range c.versions {
		if v == version {
			return true
		}
	}
	return false
}

// codeSet matches a characteristic against upper-cased codes
type codeSet struct {
	codes map[string]struct{}
	field func(Characteristics) string
}

func newCodeSet(values []string, field func(Characteristics) string, valid func(string) bool) (*codeSet, error) {
	c := &codeSet{codes: make(map[string]struct{}, len(values)), field: field}
	for _, v := range values {
		code := strings.ToUpper(strings.TrimSpace(v))
		if !valid(code) {
			return nil, fmt.Errorf("invalid code %q", v)
		}
		c.codes[code] = struct{}{}
	}
	return c, nil
}

func newCountry(values []string) (*codeSet, error) {
	return newCodeSet(values, func(c Characteristics) string { return c.Country }, func(code string) bool {
		return len(code) == 2
	})
}

func newContinent(values []string) (*codeSet, error) {
	return newCodeSet(values, func(c Characteristics) string { return c.Continent }, geo.IsContinent)
}

func (c *codeSet) match(q *Query) bool {
	chars, ok := q.Characteristics()
	if !ok {
		return false
	}
	_, found := c.codes[strings.ToUpper(c.field(chars))]
	return found
}

type asn struct {
	numbers map[uint]struct{}
}

func newASN(values []string) (*asn, error) {
	c := &asn{numbers: make(map[uint]struct{}, len(values))}
	for _, v := range values {
		s := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(v)), "AS")
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid ASN %q", v)
		}
		c.numbers[uint(n)] = struct{}{}
	}
	return c, nil
}

func (c *asn) match(q *Query) bool {
	chars, ok := q.Characteristics()
	if !ok || chars.ASN == 0 {
		return false
	}
	_, found := c.numbers[chars.ASN]
	return found
}

// regex matches from the start of the address string
type regex struct {
	patterns []*regexp.Regexp
}

func newRegex(values []string) (*regex, error) {
	c := &regex{}
	for _, v := range values {
		re, err := regexp.Compile("^(?:" + v + ")")
		if err != nil {
			return nil, err
		}
		c.patterns = append(c.patterns, re)
	}
	return c, nil
}

func (c *regex) match(q *Query) bool {
	s := q.IP.String()
	for _, re := range c.patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

