package rangedb

import (
	"fmt"
	"net/netip"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"georesolve/pkg/model"
	"georesolve/pkg/util/ipcodec"
)

// familyRange returns the key range holding all ranges of ip's family
func familyRange(v4 bool) *util.Range {
	if v4 {
		return util.BytesPrefix([]byte(ipcodec.PrefixRangeV4))
	}
	return util.BytesPrefix([]byte(ipcodec.PrefixRangeV6))
}

// GetByIP returns the stored range containing ip. The candidate is the
// range with the greatest start at or below ip within ip's family.
func (d *DB) GetByIP(ip netip.Addr) (*model.Range, error) {
	if !ip.IsValid() {
		return nil, model.ErrInvalidIP
	}
	ip = ip.Unmap()

	var rng *model.Range
	err := d.view(func(ldb *leveldb.DB) error {
		family := familyRange(ip.Is4())
		// Limit is exclusive, so append a byte to include ip's own key
		family.Limit = append(ipcodec.EncodeRangeKey(ip), 0)

		iter := ldb.NewIterator(family, nil)
		defer iter.Release()
		if !iter.Last() {
			return iter.Error()
		}

		start, err := ipcodec.DecodeRangeKey(iter.Key())
		if err != nil {
			return fmt.Errorf("invalid key: %w", err)
		}
		rng, err = decodeRange(ipcodec.IPToBytes(start), iter.Value())
		if err != nil {
			return fmt.Errorf("failed to decode range: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rng == nil || !ipcodec.IsInRange(ip, rng.Start, rng.End) {
		return nil, model.ErrNotFound
	}
	return rng, nil
}

// Lookup returns the geo record for ip, stamped with the address
func (d *DB) Lookup(ip netip.Addr) (*model.Record, error) {
	rng, err := d.GetByIP(ip)
	if err != nil {
		return nil, err
	}
	rec := rng.Geo
	rec.IP = ip.String()
	return &rec, nil
}

// LookupString is a convenience method that parses an IP string and performs lookup
func (d *DB) LookupString(ipStr string) (*model.Record, error) {
	ip, err := ipcodec.ParseIP(ipStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidIP, err)
	}
	return d.Lookup(ip)
}
