package rangedb

import (
	"fmt"
	"net/netip"

	"georesolve/pkg/logging"
	"georesolve/pkg/model"
	"georesolve/pkg/util/ipcodec"
)

// PutRange stores a range. Overlaps are resolved in favour of the less
// specific range: a more specific range inside an existing one is
// rejected with ErrOverlap, while a less specific range replaces every
// range it covers.
func (d *DB) PutRange(r *model.Range) error {
	if !r.Start.IsValid() || !r.End.IsValid() {
		return model.ErrInvalidRange
	}
	r.Start, r.End = r.Start.Unmap(), r.End.Unmap()
	if r.Start.Is4() != r.End.Is4() {
		return fmt.Errorf("%w: mixed address families %v-%v", model.ErrInvalidRange, r.Start, r.End)
	}

	// Validate that start <= end
	if r.Start.Compare(r.End) > 0 {
		return fmt.Errorf("%w: start %v > end %v", model.ErrInvalidRange, r.Start, r.End)
	}

	if err := d.resolveOverlap(r); err != nil {
		return err
	}

	value, err := encodeRange(r)
	if err != nil {
		return fmt.Errorf("failed to encode range: %w", err)
	}

	if err := d.Put(ipcodec.EncodeRangeKey(r.Start), value); err != nil {
		return fmt.Errorf("failed to store range: %w", err)
	}

	return nil
}

// resolveOverlap checks existing ranges that intersect newRange
func (d *DB) resolveOverlap(newRange *model.Range) error {
	log := logging.Component("rangedb")

	var covered [][]byte

	iter := d.NewIterator(familyRange(newRange.Start.Is4()))
	defer iter.Release()

	// The range starting just before newRange may extend into it
	if iter.Seek(ipcodec.EncodeRangeKey(newRange.Start)) {
		iter.Prev()
	} else {
		iter.Last()
	}
	if !iter.Valid() {
		iter.First()
	}

	for ; iter.Valid(); iter.Next() {
		key := append([]byte(nil), iter.Key()...)

		start, err := ipcodec.DecodeRangeKey(key)
		if err != nil {
			continue
		}
		if start.Compare(newRange.End) > 0 {
			break
		}

		existing, err := decodeRange(ipcodec.IPToBytes(start), iter.Value())
		if err != nil {
			continue
		}

		// Ranges overlap if newStart <= existingEnd && existingStart <= newEnd
		if newRange.Start.Compare(existing.End) > 0 || existing.Start.Compare(newRange.End) > 0 {
			continue
		}

		switch {
		case existing.Start == newRange.Start && existing.End == newRange.End:
			// Exact match is an update
			log.Debug().Str("range", rangeLabel(newRange)).Msg("updating existing range")
			return nil
		case contains(existing, newRange):
			return fmt.Errorf("%w: %s is covered by %s",
				model.ErrOverlap, rangeLabel(newRange), rangeLabel(existing))
		case contains(newRange, existing):
			covered = append(covered, key)
		default:
			return fmt.Errorf("%w: %s overlaps with %s",
				model.ErrOverlap, rangeLabel(newRange), rangeLabel(existing))
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}

	for _, key := range covered {
		if err := d.Delete(key); err != nil {
			return fmt.Errorf("failed to delete covered range: %w", err)
		}
	}
	if len(covered) > 0 {
		log.Debug().Str("range", rangeLabel(newRange)).Int("replaced", len(covered)).
			Msg("less specific range replaces covered ranges")
	}

	return nil
}

func contains(outer, inner *model.Range) bool {
	return outer.Start.Compare(inner.Start) <= 0 && outer.End.Compare(inner.End) >= 0
}

func rangeLabel(r *model.Range) string {
	if r.Prefix != "" {
		return r.Prefix
	}
	return r.Start.String() + "-" + r.End.String()
}

// DeleteRange removes a range record by start IP
func (d *DB) DeleteRange(start netip.Addr) error {
	return d.Delete(ipcodec.EncodeRangeKey(start.Unmap()))
}

// IterateRanges iterates over all ranges of one address family
func (d *DB) IterateRanges(v4 bool, fn func(*model.Range) error) error {
	log := logging.Component("rangedb")

	iter := d.NewIterator(familyRange(v4))
	defer iter.Release()

	for iter.Next() {
		startIP, err := ipcodec.DecodeRangeKey(iter.Key())
		if err != nil {
			log.Warn().Err(err).Msg("failed to decode key")
			continue
		}

		rng, err := decodeRange(ipcodec.IPToBytes(startIP), iter.Value())
		if err != nil {
			log.Warn().Err(err).Str("start", startIP.String()).Msg("failed to decode range")
			continue
		}

		if err := fn(rng); err != nil {
			return err
		}
	}

	return iter.Error()
}

// CountRanges counts the range records per family
func (d *DB) CountRanges() (ipv4, ipv6 int64, err error) {
	for _, v4 := range []bool{true, false} {
		iter := d.NewIterator(familyRange(v4))
		var n int64
		for iter.Next() {
			n++
		}
		iter.Release()
		if err := iter.Error(); err != nil {
			return 0, 0, err
		}
		if v4 {
			ipv4 = n
		} else {
			ipv6 = n
		}
	}
	return ipv4, ipv6, nil
}
