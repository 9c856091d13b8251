package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georesolve/pkg/rangedb"
)

const testCSV = `network,country_code,country_name,continent_code,subdivision_code,subdivision,city,postal_code,latitude,longitude,time_zone,asn,asn_organization
10.0.0.0/8,US,United States,NA,,,Intranet,,,,,,
10.1.0.0/16,DE,Germany,,,,Berlin,,,,,,
192.168.0.0/16,US,United States,,,,Lab,,,,,,
fd00::/8,NL,Netherlands,,,,Amsterdam,,,,,,
garbage
`

func buildTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rangedb")
	stats, err := RunBuild(context.Background(), path, strings.NewReader(testCSV), true)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Rows)
	assert.Equal(t, 3, stats.Stored)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Rejected)
	return path
}

func TestRunBuildAndVerify(t *testing.T) {
	path := buildTestDB(t)
	require.NoError(t, RunVerify(path))

	db, err := rangedb.OpenWith(path, rangedb.Options{ReadOnly: true})
	require.NoError(t, err)
	defer db.Close()

	rec, err := db.LookupString("10.1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "Intranet", rec.City)

	m, err := db.ReadManifest()
	require.NoError(t, err)
	assert.Equal(t, version, m.Builder)
	assert.Equal(t, rangedb.CurrentSchema, m.Schema)
}

func TestRunStats(t *testing.T) {
	path := buildTestDB(t)

	var buf bytes.Buffer
	require.NoError(t, RunStats(context.Background(), &buf, path, false))

	out := buf.String()
	assert.Contains(t, out, "Total ranges:           3")
	assert.Contains(t, out, "  IPv6 ranges:          1")
	assert.Contains(t, out, "Builder version:        "+version)
	assert.Contains(t, out, "Ranges by country (top 20):")
	assert.Contains(t, out, "US")
}

func TestRunVerifyMissing(t *testing.T) {
	err := RunVerify(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestPrintBreakdown(t *testing.T) {
	var buf bytes.Buffer
	printBreakdown(&buf, map[string]int64{"US": 5, "DE": 2, "FR": 2, "JP": 1}, 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "US")
	assert.Contains(t, lines[1], "DE")
	assert.Contains(t, lines[2], "FR")
	assert.Equal(t, "  ... and 1 more", lines[3])
}
