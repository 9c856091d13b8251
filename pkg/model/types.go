// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package model

import (
	"net/netip"
	"time"
)

// Record is the result of a single IP lookup. Records are never mutated
// once returned by a backend; use the With* helpers to derive copies.
type Record struct {
	GeonameID       uint     `json:"geoname_id,omitempty"`
	IP              string   `json:"ip_address"`
	CountryCode     string   `json:"country_code,omitempty"`
	CountryName     string   `json:"country_name,omitempty"`
	ContinentCode   string   `json:"continent_code,omitempty"`
	ContinentName   string   `json:"continent_name,omitempty"`
	City            string   `json:"city,omitempty"`
	PostalCode      string   `json:"postal_code,omitempty"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
	TimeZone        string   `json:"time_zone,omitempty"`
	Subdivision     string   `json:"subdivision,omitempty"`
	SubdivisionCode string   `json:"subdivision_code,omitempty"`
	AccuracyRadius  uint16   `json:"accuracy_radius,omitempty"`
	Backend         string   `json:"provider"`

	// Network is set only on enriched records.
	*Network
}

// Clone returns a deep copy of r
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Latitude != nil {
		lat := *r.Latitude
		out.Latitude = &lat
	}
	if r.Longitude != nil {
		lon := *r.Longitude
		out.Longitude = &lon
	}
	if r.Network != nil {
		n := *r.Network
		out.Network = &n
	}
	return &out
}

// Network holds the ASN half of an enriched record.
type Network struct {
	ASN          uint   `json:"asn"`
	Organization string `json:"asn_organization"`
	CIDR         string `json:"network"`
}

// NewNetwork returns nil unless all three network fields are populated
func NewNetwork(asn uint, org, cidr string) *Network {
	if asn == 0 || org == "" || cidr == "" {
		return nil
	}
	return &Network{ASN: asn, Organization: org, CIDR: cidr}
}

// Enriched reports whether the record carries network fields
func (r *Record) Enriched() bool {
	return r != nil && r.Network != nil
}

// IsEmpty reports whether the record has no identifying fields
func (r *Record) IsEmpty() bool {
	if r == nil {
		return true
	}
	return r.CountryCode == "" && r.City == "" && r.Latitude == nil && r.Longitude == nil
}

// WithNetwork returns a copy of the record carrying n
func (r *Record) WithNetwork(n *Network) *Record {
	out := *r
	out.Network = n
	return &out
}

// WithBackend returns a copy of the record attributed to backend
func (r *Record) WithBackend(backend string) *Record {
	out := *r
	out.Backend = backend
	return &out
}

// Coordinates returns the latitude/longitude pair, if both are present
func (r *Record) Coordinates() (lat, lon float64, ok bool) {
	if r.Latitude == nil || r.Longitude == nil {
		return 0, 0, false
	}
	return *r.Latitude, *r.Longitude, true
}

// Float returns a pointer to v, for populating optional coordinates
func Float(v float64) *float64 {
	return &v
}

// Range is a stored IP range with the geo data that applies to it
type Range struct {
	Start  netip.Addr // First IP of range
	End    netip.Addr // Last IP of range
	Prefix string     // Original CIDR, if the range came from one
	Geo    Record     // Geo data; IP and Backend are filled at lookup time
	Schema int        // Schema version for future migrations
}

// Stats represents range database statistics
type Stats struct {
	TotalRecords       int64
	IPv4Records        int64
	IPv6Records        int64
	RecordsByCountry   map[string]int64
	RecordsByContinent map[string]int64
	LastBuiltAt        time.Time
	SchemaVersion      int
	BuilderVersion     string
}
