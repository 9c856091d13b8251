// Package ipcodec converts addresses and prefixes to the forms the range
// store and the lookup backends work with.
package ipcodec

import (
	"bytes"
	"fmt"
	"net/netip"
	"strings"
)

// LevelDB key prefixes
const (
	PrefixRangeV4 = "g4:"
	PrefixRangeV6 = "g6:"
	PrefixMeta    = "meta:"
)

// EncodeRangeKey builds the store key for a range starting at ip: the
// family prefix followed by the big-endian address bytes, so keys sort
// in address order within a family
func EncodeRangeKey(ip netip.Addr) []byte {
	ip = ip.Unmap()
	prefix := PrefixRangeV6
	if ip.Is4() {
		prefix = PrefixRangeV4
	}
	return append([]byte(prefix), ip.AsSlice()...)
}

// DecodeRangeKey extracts the start address from a range key
func DecodeRangeKey(key []byte) (netip.Addr, error) {
	var raw []byte
	var size int
	switch {
	case bytes.HasPrefix(key, []byte(PrefixRangeV4)):
		raw, size = key[len(PrefixRangeV4):], 4
	case bytes.HasPrefix(key, []byte(PrefixRangeV6)):
		raw, size = key[len(PrefixRangeV6):], 16
	default:
		return netip.Addr{}, fmt.Errorf("invalid range key prefix")
	}
	if len(raw) != size {
		return netip.Addr{}, fmt.Errorf("invalid range key length %d for %d-byte address", len(raw), size)
	}
	addr, _ := netip.AddrFromSlice(raw)
	return addr, nil
}

// LastAddr returns the highest address covered by p
func LastAddr(p netip.Prefix) netip.Addr {
	p = p.Masked()
	b := p.Addr().AsSlice()
	for i := p.Bits(); i < len(b)*8; i++ {
		b[i/8] |= 0x80 >> (i % 8)
	}
	addr, _ := netip.AddrFromSlice(b)
	return addr
}

// CIDRToRange returns the first and last address of a CIDR string
func CIDRToRange(cidr string) (start, end netip.Addr, err error) {
	prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	if err != nil {
		return netip.Addr{}, netip.Addr{}, fmt.Errorf("invalid CIDR: %w", err)
	}
	prefix = prefix.Masked()
	return prefix.Addr(), LastAddr(prefix), nil
}

// IPToBytes converts an IP address to big-endian bytes
func IPToBytes(ip netip.Addr) []byte {
	return ip.AsSlice()
}

// BytesToIP converts big-endian bytes to an IP address
func BytesToIP(b []byte) (netip.Addr, error) {
	addr, ok := netip.AddrFromSlice(b)
	if !ok {
		return netip.Addr{}, fmt.Errorf("invalid IP bytes")
	}
	return addr, nil
}

// IsInRange reports whether start <= ip <= end
func IsInRange(ip, start, end netip.Addr) bool {
	return ip.Compare(start) >= 0 && ip.Compare(end) <= 0
}

// MetaKey creates a metadata key
func MetaKey(suffix string) []byte {
	return []byte(PrefixMeta + suffix)
}

// NormalizePrefix masks the host bits of cidr
func NormalizePrefix(cidr string) (string, error) {
	prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	if err != nil {
		return "", err
	}
	return prefix.Masked().String(), nil
}

// ParseIP parses an IP address string. Zones are dropped and
// IPv4-mapped IPv6 addresses are unmapped.
func ParseIP(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid IP address: %w", err)
	}
	return addr.WithZone("").Unmap(), nil
}

// Version returns 4 or 6 for a valid address and 0 otherwise
func Version(ip netip.Addr) int {
	switch {
	case !ip.IsValid():
		return 0
	case ip.Unmap().Is4():
		return 4
	default:
		return 6
	}
}
