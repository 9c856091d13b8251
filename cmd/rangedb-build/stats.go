package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"georesolve/pkg/rangedb"
)

// RunStats prints database statistics to w
func RunStats(ctx context.Context, w io.Writer, dbPath string, verbose bool) error {
	db, err := rangedb.OpenWith(dbPath, rangedb.Options{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	stats, err := db.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "RANGE DATABASE STATISTICS")
	fmt.Fprintln(w, strings.Repeat("=", 60))

	if !stats.LastBuiltAt.IsZero() {
		fmt.Fprintf(w, "Built at:               %s\n", stats.LastBuiltAt.Format("2006-01-02 15:04:05 MST"))
	}
	if stats.BuilderVersion != "" {
		fmt.Fprintf(w, "Builder version:        %s\n", stats.BuilderVersion)
	}
	if stats.SchemaVersion > 0 {
		fmt.Fprintf(w, "Schema version:         %d\n", stats.SchemaVersion)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Total ranges:           %d\n", stats.TotalRecords)
	fmt.Fprintf(w, "  IPv4 ranges:          %d\n", stats.IPv4Records)
	fmt.Fprintf(w, "  IPv6 ranges:          %d\n", stats.IPv6Records)

	if len(stats.RecordsByContinent) > 0 {
		fmt.Fprintln(w, "\nRanges by continent:")
		printBreakdown(w, stats.RecordsByContinent, 0)
	}

	if len(stats.RecordsByCountry) > 0 {
		top := 20
		if verbose {
			top = 0
			fmt.Fprintln(w, "\nRanges by country:")
		} else {
			fmt.Fprintln(w, "\nRanges by country (top 20):")
		}
		printBreakdown(w, stats.RecordsByCountry, top)
	}

	fmt.Fprintln(w, strings.Repeat("=", 60))
	return nil
}

// printBreakdown prints counts in descending order; topN of 0 prints all
func printBreakdown(w io.Writer, breakdown map[string]int64, topN int) {
	keys := make([]string, 0, len(breakdown))
	for k := range breakdown {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if breakdown[keys[i]] != breakdown[keys[j]] {
			return breakdown[keys[i]] > breakdown[keys[j]]
		}
		return keys[i] < keys[j]
	})

	for i, k := range keys {
		if topN > 0 && i >= topN {
			fmt.Fprintf(w, "  ... and %d more\n", len(keys)-topN)
			break
		}
		fmt.Fprintf(w, "  %-20s %d\n", k, breakdown[k])
	}
}
