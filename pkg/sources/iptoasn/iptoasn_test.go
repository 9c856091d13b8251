package iptoasn

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georesolve/pkg/model"
)

const dump = `1.0.0.0	1.0.0.255	13335	US	CLOUDFLARENET
1.0.1.0	1.0.3.255	0	None	Not routed
8.8.8.0	8.8.8.255	15169	US	GOOGLE
81.2.69.0	81.2.69.255	20712	GB	ripencc	AS20712 Andrews & Arnold
2001:4860::	2001:4860:ffff:ffff:ffff:ffff:ffff:ffff	15169	US	GOOGLE
`

func TestParserParseNext(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantOK      bool
		wantASN     uint
		wantCountry string
		wantName    string
		wantErr     bool
	}{
		{name: "five fields", input: "1.0.0.0\t1.0.0.255\t13335\tUS\tCLOUDFLARENET", wantOK: true, wantASN: 13335, wantCountry: "US", wantName: "CLOUDFLARENET"},
		{name: "six fields", input: "81.2.69.0\t81.2.69.255\t20712\tGB\tripencc\tAndrews", wantOK: true, wantASN: 20712, wantCountry: "GB", wantName: "Andrews"},
		{name: "not routed", input: "1.0.1.0\t1.0.3.255\t0\tNone\tNot routed", wantOK: true},
		{name: "unknown country", input: "1.0.0.0\t1.0.0.255\t1\tZZ\tX", wantOK: true, wantASN: 1, wantName: "X"},
		{name: "comment", input: "# header"},
		{name: "too few fields", input: "1.0.0.0\t1.0.0.255\t1", wantErr: true},
		{name: "bad start", input: "nope\t1.0.0.255\t1\tUS\tX", wantErr: true},
		{name: "mixed families", input: "1.0.0.0\t::1\t1\tUS\tX", wantErr: true},
		{name: "inverted", input: "1.0.0.255\t1.0.0.0\t1\tUS\tX", wantErr: true},
		{name: "bad asn", input: "1.0.0.0\t1.0.0.255\tAS1\tUS\tX", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, ok, err := NewParser(strings.NewReader(tt.input)).ParseNext()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantASN, row.ASN)
			assert.Equal(t, tt.wantCountry, row.Country)
			assert.Equal(t, tt.wantName, row.ASName)
		})
	}
}

func TestParserEOF(t *testing.T) {
	_, _, err := NewParser(strings.NewReader("")).ParseNext()
	assert.Equal(t, io.EOF, err)
}

func TestLookup(t *testing.T) {
	b, err := NewFromReader("asn", strings.NewReader(dump))
	require.NoError(t, err)
	assert.True(t, b.Available())
	assert.Len(t, b.rows, 4)

	tests := []struct {
		ip        string
		country   string
		continent string
		asn       uint
		cidr      string
		notFound  bool
	}{
		{ip: "1.0.0.7", country: "US", continent: "NA", asn: 13335, cidr: "1.0.0.0/24"},
		{ip: "8.8.8.8", country: "US", continent: "NA", asn: 15169, cidr: "8.8.8.0/24"},
		{ip: "81.2.69.142", country: "GB", continent: "EU", asn: 20712, cidr: "81.2.69.0/24"},
		{ip: "2001:4860:4860::8888", country: "US", continent: "NA", asn: 15169, cidr: "2001:4860::/32"},
		{ip: "::ffff:8.8.8.8", country: "US", continent: "NA", asn: 15169, cidr: "8.8.8.0/24"},
		{ip: "1.0.2.1", notFound: true},
		{ip: "0.0.0.1", notFound: true},
		{ip: "9.9.9.9", notFound: true},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			rec, err := b.Lookup(netip.MustParseAddr(tt.ip))
			if tt.notFound {
				assert.ErrorIs(t, err, model.ErrNotFound)
				assert.Nil(t, rec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.country, rec.CountryCode)
			assert.Equal(t, tt.continent, rec.ContinentCode)
			require.True(t, rec.Enriched())
			assert.Equal(t, tt.asn, rec.ASN)
			assert.Equal(t, tt.cidr, rec.CIDR)
			assert.Equal(t, "asn", rec.Backend)
		})
	}
}

func TestEnclosingBlock(t *testing.T) {
	start := netip.MustParseAddr("10.0.0.0")
	end := netip.MustParseAddr("10.0.2.255")

	assert.Equal(t, "10.0.0.0/23", enclosingBlock(netip.MustParseAddr("10.0.1.9"), start, end))
	assert.Equal(t, "10.0.2.0/24", enclosingBlock(netip.MustParseAddr("10.0.2.9"), start, end))
}

func TestNewFromGzipFile(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(dump))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "ip2asn-combined.tsv.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	b, err := New(model.BackendConfig{Name: "asn", Sources: map[string]string{model.SourceDB: path}})
	require.NoError(t, err)
	defer b.Close()

	rec, err := b.Lookup(netip.MustParseAddr("8.8.4.4"))
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Nil(t, rec)

	rec, err = b.Lookup(netip.MustParseAddr("8.8.8.1"))
	require.NoError(t, err)
	assert.Equal(t, "GOOGLE", rec.Organization)
}

func TestNewMissingPath(t *testing.T) {
	_, err := New(model.BackendConfig{Name: "asn"})
	assert.Error(t, err)

	_, err = New(model.BackendConfig{Name: "asn", Sources: map[string]string{model.SourceDB: filepath.Join(t.TempDir(), "absent.tsv")}})
	assert.Error(t, err)
}
