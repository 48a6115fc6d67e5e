package upstreams

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/maksimkurb/keen-dns/src/internal/log"
)

// Group tries its upstreams in order until one answers.
type Group struct {
	upstreams []Upstream
}

// NewGroup creates a failover group.
func NewGroup(upstreams []Upstream) *Group {
	return &Group{upstreams: upstreams}
}

// ParseGroup parses every URL into an upstream of a new group.
func ParseGroup(urls []string, timeout time.Duration) (*Group, error) {
	var list []Upstream
	for _, upstreamURL := range urls {
		u, err := ParseUpstream(upstreamURL, timeout)
		if err != nil {
			for _, parsed := range list {
				parsed.Close()
			}
			return nil, fmt.Errorf("failed to parse upstream %q: %w", upstreamURL, err)
		}
		list = append(list, u)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no upstreams configured")
	}
	return NewGroup(list), nil
}

// Upstreams returns the upstreams of the group in order.
func (g *Group) Upstreams() []Upstream {
	return g.upstreams
}

// Query sends req to each upstream in turn. before, if not nil, is called
// right before every attempt. The upstream that answered is returned with the
// response.
func (g *Group) Query(ctx context.Context, req *dns.Msg, before func(Upstream)) (*dns.Msg, Upstream, error) {
	if len(g.upstreams) == 0 {
		return nil, nil, fmt.Errorf("no upstreams configured")
	}

	var lastErr error
	for _, upstream := range g.upstreams {
		if ctx.Err() != nil {
			break
		}
		if before != nil {
			before(upstream)
		}

		resp, err := upstream.Query(ctx, req)
		if err != nil {
			lastErr = err
			log.Debugf("[%04x] Upstream %s failed: %v", req.Id, upstream, err)
			continue
		}
		return resp, upstream, nil
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return nil, nil, fmt.Errorf("all upstreams failed, last error: %w", lastErr)
}

// String returns a human-readable representation of all upstreams.
func (g *Group) String() string {
	var parts []string
	for _, upstream := range g.upstreams {
		parts = append(parts, upstream.String())
	}
	return strings.Join(parts, ", ")
}

// Close closes all upstreams.
func (g *Group) Close() error {
	for _, upstream := range g.upstreams {
		upstream.Close()
	}
	return nil
}
