package api

import (
	"fmt"
	"net"
)

// v4InV6Prefix is the 12-byte prefix of an IPv4-mapped IPv6 address
// ("::ffff:a.b.c.d").
var v4InV6Prefix = []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}

// Address is an IP (4 or 16 bytes) plus a 16-bit port.
type Address struct {
	ip   net.IP
	port uint16
}

// NewAddress validates ip's length and normalises an IPv4-mapped IPv6
// address back to its 4-byte form. A length other than 4 or 16 is a
// parse error (spec.md §9: never a fatal assertion).
func NewAddress(ip []byte, port uint16) (Address, error) {
	switch len(ip) {
	case 4:
		cp := make(net.IP, 4)
		copy(cp, ip)
		return Address{ip: cp, port: port}, nil
	case 16:
		cp := make(net.IP, 16)
		copy(cp, ip)
		if bytesHavePrefix(cp, v4InV6Prefix) {
			return Address{ip: net.IP(append([]byte{}, cp[12:16]...)), port: port}, nil
		}
		return Address{ip: cp, port: port}, nil
	default:
		return Address{}, ParseError("address must be 4 or 16 bytes, got %d", len(ip))
	}
}

func bytesHavePrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if b[i] != p {
			return false
		}
	}
	return true
}

// IP returns the (already-normalised) IP bytes, 4 or 16 long.
func (a Address) IP() net.IP { return a.ip }

// Port returns the 16-bit port number.
func (a Address) Port() uint16 { return a.port }

// Equal compares IP bytes and port.
func (a Address) Equal(other Address) bool {
	return a.ip.Equal(other.ip) && a.port == other.port
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.ip.String(), a.port)
}

// ParseAddress parses a "host:port" string, e.g. "[::ffff:1.2.3.4]:5"
// or "1.2.3.4:5", normalising per NewAddress.
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, ParseError("malformed address %q: %v", s, err)
	}
	var port uint16
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return Address{}, ParseError("malformed port in %q: %v", s, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return Address{}, ParseError("malformed IP in %q", s)
	}
	if v4 := ip.To4(); v4 != nil {
		return NewAddress(v4, port)
	}
	return NewAddress(ip.To16(), port)
}
