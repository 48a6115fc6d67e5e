package upstreams

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/maksimkurb/keen-dns/src/internal/log"
	"github.com/maksimkurb/keen-dns/src/internal/querylog"
)

// DNSUpstream implements Upstream using plain DNS over UDP or TCP.
type DNSUpstream struct {
	network string
	address string
	client  *dns.Client
}

// NewDNSUpstream creates a plain DNS upstream. network is "udp" or "tcp".
func NewDNSUpstream(network, address string, timeout time.Duration) (*DNSUpstream, error) {
	if network != querylog.UpstreamUDP && network != querylog.UpstreamTCP {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}
	if address == "" {
		return nil, fmt.Errorf("empty %s upstream address", network)
	}

	host := withDefaultPort(address)
	if _, _, err := net.SplitHostPort(host); err != nil {
		return nil, fmt.Errorf("invalid %s address: %w", network, err)
	}

	return &DNSUpstream{
		network: network,
		address: host,
		client: &dns.Client{
			Net:     network,
			Timeout: timeout,
		},
	}, nil
}

// Query sends a DNS query to the upstream. UDP responses with the TC bit set
// are retried over TCP.
func (u *DNSUpstream) Query(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	resp, _, err := u.client.ExchangeContext(ctx, req, u.address)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			log.Debugf("[%04x] Upstream timeout (context): %s", req.Id, u)
		} else {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Debugf("[%04x] Upstream timeout (network): %s", req.Id, u)
			}
		}
		return nil, err
	}

	if resp.Truncated && u.network == querylog.UpstreamUDP {
		log.Debugf("[%04x] Truncated response from %s, retrying over TCP", req.Id, u)
		tcp := &dns.Client{Net: querylog.UpstreamTCP, Timeout: u.client.Timeout}
		if full, _, err := tcp.ExchangeContext(ctx, req, u.address); err == nil {
			return full, nil
		}
	}

	return resp, nil
}

// Identity returns e.g. "udp::1.1.1.1:53".
func (u *DNSUpstream) Identity() string {
	return querylog.ServerIdentity(u.network, u.address)
}

func (u *DNSUpstream) String() string {
	return fmt.Sprintf("%s://%s", u.network, u.address)
}

// Close closes any resources held by the upstream.
func (u *DNSUpstream) Close() error {
	return nil
}
