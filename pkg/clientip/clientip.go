package clientip

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

var ErrInvalidNetwork = errors.New("invalid IP network")

// FromRequest returns the client address of r. Forwarding headers
// (CF-Connecting-IP, X-Forwarded-For, X-Real-IP) are only honoured when
// trustProxy is set; otherwise RemoteAddr is used.
func FromRequest(r *http.Request, trustProxy bool) (netip.Addr, bool) {
	if trustProxy {
		if addr, ok := parse(r.Header.Get("CF-Connecting-IP")); ok {
			return addr, true
		}
		for part := range strings.SplitSeq(r.Header.Get("X-Forwarded-For"), ",") {
			if addr, ok := parse(part); ok {
				return addr, true
			}
		}
		if addr, ok := parse(r.Header.Get("X-Real-IP")); ok {
			return addr, true
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return parse(host)
}

// ParseNetworks parses CIDR prefixes; bare addresses become single-host prefixes.
func ParseNetworks(values []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, errors.Join(ErrInvalidNetwork, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, errors.Join(ErrInvalidNetwork, fmt.Errorf("%q: %w", v, err))
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func parse(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func contains(networks []netip.Prefix, addr netip.Addr) bool {
	for _, n := range networks {
		if n.Contains(addr) {
			return true
		}
	}
	return false
}
