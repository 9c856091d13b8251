// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package iptoasn

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"
)

// Row is one announced range from an iptoasn TSV dump
type Row struct {
	Start   netip.Addr // Inclusive start
	End     netip.Addr // Inclusive end
	ASN     uint       // Origin ASN; 0 means not routed
	Country string     // 2-letter code, empty when unknown
	ASName  string     // Organization name from the dataset
}

// Parser reads iptoasn TSV rows
type Parser struct {
	scanner *bufio.Scanner
	lineNum int
}

// NewParser creates a new parser for the given reader
func NewParser(r io.Reader) *Parser {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for long lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	return &Parser{scanner: scanner}
}

// ParseAll parses all rows from the input
func (p *Parser) ParseAll() ([]Row, error) {
	var rows []Row
	for {
		row, ok, err := p.ParseNext()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row)
		}
	}
}

// ParseNext parses the next line. ok is false for blank and comment
// lines.
//
// Two layouts are accepted:
//
//	start \t end \t asn \t country \t name
//	start \t end \t asn \t country \t registry \t name
func (p *Parser) ParseNext() (row Row, ok bool, err error) {
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return Row{}, false, fmt.Errorf("scanner error at line %d: %w", p.lineNum, err)
		}
		return Row{}, false, io.EOF
	}

	p.lineNum++
	line := strings.TrimSpace(p.scanner.Text())
	if line == "" || strings.HasPrefix(line, "#") {
		return Row{}, false, nil
	}

	fields := strings.Split(line, "\t")
	if len(fields) < 5 {
		return Row{}, false, fmt.Errorf("line %d: expected at least 5 fields, got %d", p.lineNum, len(fields))
	}

	start, err := netip.ParseAddr(strings.TrimSpace(fields[0]))
	if err != nil {
		return Row{}, false, fmt.Errorf("line %d: invalid start IP: %w", p.lineNum, err)
	}
	end, err := netip.ParseAddr(strings.TrimSpace(fields[1]))
	if err != nil {
		return Row{}, false, fmt.Errorf("line %d: invalid end IP: %w", p.lineNum, err)
	}
	start, end = start.Unmap(), end.Unmap()
	if start.Is4() != end.Is4() {
		return Row{}, false, fmt.Errorf("line %d: start and end IPs have different families", p.lineNum)
	}
	if start.Compare(end) > 0 {
		return Row{}, false, fmt.Errorf("line %d: start IP is greater than end IP", p.lineNum)
	}

	asn, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 32)
	if err != nil {
		return Row{}, false, fmt.Errorf("line %d: invalid ASN: %w", p.lineNum, err)
	}

	country := strings.ToUpper(strings.TrimSpace(fields[3]))
	if len(country) != 2 || country == "ZZ" {
		country = ""
	}

	name := fields[len(fields)-1]
	if len(fields) == 5 && strings.EqualFold(strings.TrimSpace(name), "Not routed") {
		name = ""
	}

	return Row{
		Start:   start,
		End:     end,
		ASN:     uint(asn),
		Country: country,
		ASName:  strings.TrimSpace(name),
	}, true, nil
}
