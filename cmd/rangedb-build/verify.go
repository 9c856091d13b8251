package main

import (
	"fmt"
	"net/netip"

	"georesolve/pkg/model"
	"georesolve/pkg/rangedb"
)

// RunVerify performs consistency checks on the database
func RunVerify(dbPath string) error {
	db, err := rangedb.OpenWith(dbPath, rangedb.Options{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	issues, err := verifyRanges(db)
	if err != nil {
		return err
	}

	if err := checkMetadata(db); err != nil {
		log.Warn().Err(err).Msg("Metadata issues")
	}

	if issues > 0 {
		return fmt.Errorf("verification found %d issues", issues)
	}
	ipv4, ipv6, err := db.CountRanges()
	if err != nil {
		return err
	}
	log.Info().Int64("ipv4", ipv4).Int64("ipv6", ipv6).Msg("All verification checks passed")
	return nil
}

// verifyRanges counts overlapping, inverted and country-less ranges
func verifyRanges(db *rangedb.DB) (int, error) {
	issues := 0
	for _, v4 := range []bool{true, false} {
		var prev *model.Range
		err := db.IterateRanges(v4, func(r *model.Range) error {
			if r.Start.Compare(r.End) > 0 || r.Start.Is4() != r.End.Is4() {
				log.Error().Str("start", r.Start.String()).Str("end", r.End.String()).Msg("Invalid range")
				issues++
			}
			if r.Prefix != "" {
				if _, err := netip.ParsePrefix(r.Prefix); err != nil {
					log.Error().Str("prefix", r.Prefix).Err(err).Msg("Invalid prefix")
					issues++
				}
			}
			if r.Geo.CountryCode == "" {
				log.Warn().Str("start", r.Start.String()).Msg("Range has no country")
			}
			if prev != nil && r.Start.Compare(prev.End) <= 0 {
				log.Error().
					Str("range", r.Start.String()+"-"+r.End.String()).
					Str("previous", prev.Start.String()+"-"+prev.End.String()).
					Msg("Overlap detected")
				issues++
			}
			prev = r
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("range check failed: %w", err)
		}
	}
	return issues, nil
}

// checkMetadata verifies the build manifest
func checkMetadata(db *rangedb.DB) error {
	m, err := db.ReadManifest()
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	switch {
	case m.Schema == 0:
		return fmt.Errorf("schema version not set")
	case m.Schema > rangedb.CurrentSchema:
		return fmt.Errorf("schema version %d is newer than supported %d", m.Schema, rangedb.CurrentSchema)
	case m.BuiltAt.IsZero():
		return fmt.Errorf("build time not set")
	}
	return nil
}
