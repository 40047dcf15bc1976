/*
Package rd implements RFC 4364 route distinguishers.

A route distinguisher disambiguates otherwise-overlapping address spaces
across routing instances. The zero value is the default routing instance,
rendered as "0:0".
*/
package rd

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// ErrInvalidInput is returned when a string or wire encoding is not a valid
// route distinguisher.
var ErrInvalidInput = fmt.Errorf(`expecting a route distinguisher in one of the following formats:
Type0: "{2-byte ASN}:{4-byte value}" (example: 2222:1000000)
Type1: "{4-byte IP}:{2-byte value}" (example: "1.2.3.4:555")
Type2: "{4-byte ASN}:{2-byte value}" (example: "1000000:3232")`)

type kind uint8

const (
	kindDefault kind = iota
	kindType0
	kindType1
	kindType2
)

// RD is a route distinguisher. It is comparable and usable as a map key.
type RD struct {
	kind  kind
	asn   uint32
	ip    netip.Addr
	value uint32
}

// Default is the route distinguisher of the default routing instance.
var Default = RD{}

// Type0 returns a type 0 route distinguisher (2-byte ASN, 4-byte value).
func Type0(asn uint16, value uint32) RD {
	return RD{kind: kindType0, asn: uint32(asn), value: value}
}

// Type1 returns a type 1 route distinguisher (IPv4 address, 2-byte value).
func Type1(ip netip.Addr, value uint16) RD {
	return RD{kind: kindType1, ip: ip, value: uint32(value)}
}

// Type2 returns a type 2 route distinguisher (4-byte ASN, 2-byte value).
func Type2(asn uint32, value uint16) RD {
	return RD{kind: kindType2, asn: asn, value: uint32(value)}
}

// IsDefault reports whether rd denotes the default routing instance.
func (rd RD) IsDefault() bool {
	return rd == Default
}

// String returns the canonical "administrator:value" encoding.
func (rd RD) String() string {
	switch rd.kind {
	case kindType1:
		return fmt.Sprintf("%s:%d", rd.ip, rd.value)
	case kindType0, kindType2:
		return fmt.Sprintf("%d:%d", rd.asn, rd.value)
	default:
		return "0:0"
	}
}

// Parse parses the canonical string encoding. "0:0" yields the default
// routing instance.
func Parse(s string) (RD, error) {
	if s == "0:0" {
		return Default, nil
	}
	k, v, ok := strings.Cut(s, ":")
	if !ok {
		return RD{}, ErrInvalidInput
	}
	value, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return RD{}, ErrInvalidInput
	}
	if asn, err := strconv.ParseUint(k, 10, 32); err == nil {
		switch {
		case asn > 0xffff && value <= 0xffff:
			return Type2(uint32(asn), uint16(value)), nil
		case asn <= 0xffff:
			return Type0(uint16(asn), uint32(value)), nil
		default:
			return RD{}, ErrInvalidInput
		}
	}
	if ip, err := netip.ParseAddr(k); err == nil && ip.Is4() && value <= 0xffff {
		return Type1(ip, uint16(value)), nil
	}
	return RD{}, ErrInvalidInput
}

// FromWire decodes the 8-byte wire encoding used in BGP and BMP messages.
// The RD type is encoded in the two highest bytes, all zeroes denote the
// default routing instance.
func FromWire(b [8]byte) (RD, error) {
	if b == [8]byte{} {
		return Default, nil
	}
	switch uint16(b[0])<<8 | uint16(b[1]) {
	case 0:
		return Type0(uint16(b[2])<<8|uint16(b[3]),
			uint32(b[4])<<24|uint32(b[5])<<16|uint32(b[6])<<8|uint32(b[7])), nil
	case 1:
		return Type1(netip.AddrFrom4([4]byte{b[2], b[3], b[4], b[5]}),
			uint16(b[6])<<8|uint16(b[7])), nil
	case 2:
		return Type2(uint32(b[2])<<24|uint32(b[3])<<16|uint32(b[4])<<8|uint32(b[5]),
			uint16(b[6])<<8|uint16(b[7])), nil
	default:
		return RD{}, ErrInvalidInput
	}
}

// MarshalText implements encoding.TextMarshaler.
func (rd RD) MarshalText() ([]byte, error) {
	return []byte(rd.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (rd *RD) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*rd = parsed
	return nil
}
