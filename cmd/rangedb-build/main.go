// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"georesolve/pkg/logging"
	"georesolve/pkg/rangedb"
)

const version = "1.0.0"

var log = logging.Component("rangedb-build")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "build":
		buildCmd()
	case "verify":
		verifyCmd()
	case "stats":
		statsCmd()
	case "version":
		fmt.Printf("rangedb-build version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`rangedb-build - Build a local range database for the rangedb provider

Usage:
  rangedb-build build [options]     Import CSV ranges into the database
  rangedb-build verify [options]    Verify database consistency
  rangedb-build stats [options]     Show database statistics
  rangedb-build version             Show version
  rangedb-build help                Show this help

Build Options:
  --csv string     CSV file to import (default: stdin)
  --db string      Path to LevelDB database (default: ./data/rangedb)
  --compact        Compact the database after import

CSV columns:
  %s

Examples:
  rangedb-build build --csv=internal-ranges.csv --db=./data/rangedb
  rangedb-build stats --db=./data/rangedb --verbose
`, strings.Join(rangedb.CSVColumns, ","))
}

func buildCmd() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	csvPath := fs.String("csv", "", "CSV file to import (default: stdin)")
	dbPath := fs.String("db", "./data/rangedb", "Path to LevelDB database")
	compact := fs.Bool("compact", false, "Compact the database after import")
	fs.Parse(os.Args[2:])

	var input io.Reader = os.Stdin
	if *csvPath != "" {
		f, err := os.Open(*csvPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open CSV file")
		}
		defer f.Close()
		input = f
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stats, err := RunBuild(ctx, *dbPath, input, *compact)
	if err != nil {
		log.Fatal().Err(err).Msg("Build failed")
	}

	log.Info().
		Int("rows", stats.Rows).
		Int("stored", stats.Stored).
		Int("skipped", stats.Skipped).
		Int("rejected", stats.Rejected).
		Msg("Build completed successfully")
}

// RunBuild imports CSV ranges into the database at dbPath and stamps
// its metadata
func RunBuild(ctx context.Context, dbPath string, r io.Reader, compact bool) (*rangedb.ImportStats, error) {
	db, err := rangedb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	stats, err := db.ImportCSV(ctx, r)
	if err != nil {
		return stats, err
	}
	if err := db.InitializeMetadata(version); err != nil {
		return stats, fmt.Errorf("failed to write metadata: %w", err)
	}
	if compact {
		log.Info().Msg("Compacting database")
		if err := db.CompactDB(ctx); err != nil {
			return stats, fmt.Errorf("compaction failed: %w", err)
		}
	}
	return stats, nil
}

func verifyCmd() {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	dbPath := fs.String("db", "./data/rangedb", "Path to LevelDB database")
	fs.Parse(os.Args[2:])

	if err := RunVerify(*dbPath); err != nil {
		log.Fatal().Err(err).Msg("Verification failed")
	}
}

func statsCmd() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dbPath := fs.String("db", "./data/rangedb", "Path to LevelDB database")
	verbose := fs.Bool("verbose", false, "Show all countries")
	fs.Parse(os.Args[2:])

	if err := RunStats(context.Background(), os.Stdout, *dbPath, *verbose); err != nil {
		log.Fatal().Err(err).Msg("Stats failed")
	}
}
