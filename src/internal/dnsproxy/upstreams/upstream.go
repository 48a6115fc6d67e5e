// Package upstreams provides DNS upstream resolver implementations.
package upstreams

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/maksimkurb/keen-dns/src/internal/querylog"
)

const (
	defaultDNSPort = "53"

	// DefaultTimeout bounds a single upstream exchange.
	DefaultTimeout = 5 * time.Second
)

// Upstream represents a DNS upstream resolver.
type Upstream interface {
	// Query sends a DNS query to the upstream and returns the response.
	Query(ctx context.Context, req *dns.Msg) (*dns.Msg, error)
	// Identity is the server identity recorded in the query log,
	// e.g. "udp::1.1.1.1:53".
	Identity() string
	// String returns a human-readable representation of the upstream.
	String() string
	// Close closes any resources held by the upstream.
	Close() error
}

// ParseUpstream parses an upstream URL and returns the matching Upstream.
// Supported formats:
//   - udp://ip:port - plain DNS over UDP (port defaults to 53)
//   - tcp://ip:port - plain DNS over TCP (port defaults to 53)
func ParseUpstream(upstreamURL string, timeout time.Duration) (Upstream, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	u, err := url.Parse(upstreamURL)
	if err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", upstreamURL)
	}

	switch u.Scheme {
	case querylog.UpstreamUDP, querylog.UpstreamTCP:
		return NewDNSUpstream(u.Scheme, u.Host, timeout)
	default:
		return nil, fmt.Errorf("unsupported upstream scheme: %s", u.Scheme)
	}
}

// withDefaultPort appends port 53 to an address without a port.
func withDefaultPort(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(strings.Trim(address, "[]"), defaultDNSPort)
}
