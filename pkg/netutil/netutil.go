// Package netutil picks the local bind Address and checks port
// availability, generalising the teacher's internal/utils/ports.go
// (net.Listen/net.DialTimeout probing) and the original project's
// LocalAddressParams interface-selection logic (originally backed by
// the pnet crate; here by stdlib net.Interfaces, since no
// third-party datalink-enumeration library appears anywhere in the
// retrieval pack).
package netutil

import (
	"net"
	"time"

	"github.com/pangea-net/kipa/pkg/api"
)

// DefaultPort is KIPA's conventional inter-node port, matching the
// original project's DEFAULT_PORT.
const DefaultPort uint16 = 10842

// LocalAddressParams selects which interface's address to bind,
// mirroring the original's LocalAddressParams fields.
type LocalAddressParams struct {
	Port          uint16
	InterfaceName string // empty means "any non-loopback interface"
	ForceIPv6     bool
}

// CreateAddress walks the host's network interfaces and returns the
// first IP matching the selection criteria as an api.Address.
func (p LocalAddressParams) CreateAddress() (api.Address, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return api.Address{}, api.Wrap(api.KindExternal, "failed to list network interfaces", err)
	}

	for _, iface := range ifaces {
		if p.InterfaceName == "" && iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if p.InterfaceName != "" && iface.Name != p.InterfaceName {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if len(addrs) == 0 {
			continue
		}

		ip := p.selectIP(addrs)
		if ip == nil {
			continue
		}
		return api.NewAddress(ip, p.Port)
	}

	return api.Address{}, api.ConfigurationError("could not find a matching network interface for %q", p.InterfaceName)
}

func (p LocalAddressParams) selectIP(addrs []net.Addr) net.IP {
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP
		if v4 := ip.To4(); v4 != nil {
			if p.ForceIPv6 {
				continue
			}
			return v4
		}
		if p.ForceIPv6 {
			return ip.To16()
		}
	}
	if p.ForceIPv6 {
		return nil
	}
	// No IPv4 found; fall back to the first IPv6 address if any.
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok {
			if v6 := ipNet.IP.To16(); v6 != nil {
				return v6
			}
		}
	}
	return nil
}

// CheckPortAvailable reports whether addr can currently be bound.
func CheckPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return api.Wrap(api.KindConfiguration, "port "+addr+" is not available", err)
	}
	return ln.Close()
}

// WaitForPort polls until addr becomes available or timeout elapses,
// used by tests that restart a daemon on the same port.
func WaitForPort(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := CheckPortAvailable(addr); err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return api.ConfigurationError("port %s did not become available within %s", addr, timeout)
}
