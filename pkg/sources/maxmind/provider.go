package maxmind

import (
	"io"
	"net/netip"

	"github.com/rs/zerolog"

	"georesolve/pkg/logging"
	"georesolve/pkg/model"
)

// GeoSource answers location lookups
type GeoSource interface {
	Geo(ip netip.Addr, locale string) (*model.Record, error)
}

// NetworkSource answers ASN/network lookups
type NetworkSource interface {
	Network(ip netip.Addr) (*model.Network, error)
}

// Single is a backend over one City database
type Single struct {
	name   string
	locale string
	geo    GeoSource
	closer io.Closer
}

// NewSingle opens the City database named by the "city" source
// (or "db" as an alias)
func NewSingle(cfg model.BackendConfig) (*Single, error) {
	path := cfg.Source(model.SourceCity)
	if path == "" {
		path = cfg.Source(model.SourceDB)
	}
	city, err := OpenCity(path)
	if err != nil {
		return nil, err
	}
	readers := &Readers{City: city}
	return &Single{name: cfg.Name, locale: cfg.Locale(), geo: readers, closer: readers}, nil
}

// NewSingleFrom builds a Single backend over an arbitrary source
func NewSingleFrom(name, locale string, src GeoSource) *Single {
	return &Single{name: name, locale: locale, geo: src}
}

func (s *Single) Name() string { return s.name }

func (s *Single) Available() bool { return s.geo != nil }

// Lookup returns the location record for ip
func (s *Single) Lookup(ip netip.Addr) (*model.Record, error) {
	rec, err := s.geo.Geo(ip, s.locale)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, model.ErrNotFound
	}
	return rec.WithBackend(s.name), nil
}

func (s *Single) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Multi merges a City lookup with an optional ASN lookup
type Multi struct {
	name       string
	locale     string
	geo        GeoSource
	network    NetworkSource
	networkErr error
	closer     io.Closer
	log        zerolog.Logger
}

// NewMulti opens the City database (required) and the ASN database
// (optional). A configured ASN database that fails to open leaves the
// backend available but location-only.
func NewMulti(cfg model.BackendConfig) (*Multi, error) {
	path := cfg.Source(model.SourceCity)
	if path == "" {
		path = cfg.Source(model.SourceDB)
	}
	city, err := OpenCity(path)
	if err != nil {
		return nil, err
	}

	readers := &Readers{City: city}
	m := &Multi{
		name:   cfg.Name,
		locale: cfg.Locale(),
		geo:    readers,
		closer: readers,
		log:    logging.Component("maxmind").With().Str("backend", cfg.Name).Logger(),
	}

	if path := cfg.Source(model.SourceASN); path != "" {
		asn, err := OpenASN(path)
		if err != nil {
			m.networkErr = err
			m.log.Warn().Err(err).Str("path", path).Msg("ASN database unavailable, serving location only")
		} else {
			readers.ASN = asn
			m.network = readers
		}
	}

	return m, nil
}

// NewMultiFrom builds a Multi backend over arbitrary sources. A nil
// network source behaves like an ASN database that failed to open.
func NewMultiFrom(name, locale string, geo GeoSource, network NetworkSource) *Multi {
	return &Multi{name: name, locale: locale, geo: geo, network: network, log: logging.Nop()}
}

func (m *Multi) Name() string { return m.name }

// Available reports whether the location source is open
func (m *Multi) Available() bool { return m.geo != nil }

// Degraded reports whether the network half is missing
func (m *Multi) Degraded() bool { return m.network == nil }

// NetworkError returns why the ASN database could not be opened, if it was configured
func (m *Multi) NetworkError() error { return m.networkErr }

// Lookup returns the location record for ip, enriched with network
// fields when the ASN database has an entry
func (m *Multi) Lookup(ip netip.Addr) (*model.Record, error) {
	rec, err := m.geo.Geo(ip, m.locale)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, model.ErrNotFound
	}
	rec = rec.WithBackend(m.name)

	if m.network == nil {
		return rec, nil
	}

	network, err := m.network.Network(ip)
	if err != nil {
		m.log.Debug().Err(err).Str("ip", ip.String()).Msg("ASN lookup failed")
		return rec, nil
	}
	return merge(rec, network), nil
}

func (m *Multi) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer.Close()
}

// merge attaches network data to a location record. Network fields are
// copied verbatim and only as a complete set.
func merge(rec *model.Record, network *model.Network) *model.Record {
	if network == nil {
		return rec
	}
	complete := model.NewNetwork(network.ASN, network.Organization, network.CIDR)
	if complete == nil {
		return rec
	}
	return rec.WithNetwork(complete)
}
