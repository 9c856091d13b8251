package matching

import (
	"net/netip"

	"georesolve/pkg/geo"
	"georesolve/pkg/model"
)

// Characteristics are the geo facts country, continent and ASN
// conditions are evaluated against
type Characteristics struct {
	Country   string `json:"country,omitempty"`
	Continent string `json:"continent,omitempty"`
	ASN       uint   `json:"asn,omitempty"`
}

// LookupFunc produces the record characteristics are derived from.
// A nil record means the address is unknown.
type LookupFunc func(ip netip.Addr) *model.Record

// Query is one address being matched. The characteristics lookup runs at
// most once per Query and only if a condition needs it.
type Query struct {
	IP netip.Addr

	lookup  LookupFunc
	done    bool
	chars   Characteristics
	known   bool
	lookups int
}

// NewQuery creates a query for ip; lookup may be nil
func NewQuery(ip netip.Addr, lookup LookupFunc) *Query {
	return &Query{IP: ip.Unmap(), lookup: lookup}
}

// Characteristics returns the memoized characteristics and whether the
// address was known to the characteristics backend
func (q *Query) Characteristics() (Characteristics, bool) {
	if q.done {
		return q.chars, q.known
	}
	q.done = true

	if q.lookup == nil {
		return q.chars, false
	}
	q.lookups++

	rec := q.lookup(q.IP)
	if rec == nil {
		return q.chars, false
	}

	q.chars = Characteristics{
		Country:   rec.CountryCode,
		Continent: rec.ContinentCode,
	}
	if q.chars.Continent == "" {
		q.chars.Continent = geo.ContinentOf(rec.CountryCode)
	}
	if rec.Network != nil {
		q.chars.ASN = rec.ASN
	}
	q.known = true
	return q.chars, true
}

// Lookups reports how many characteristics lookups the query performed
func (q *Query) Lookups() int {
	return q.lookups
}
