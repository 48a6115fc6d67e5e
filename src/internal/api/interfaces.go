package api

import (
	"context"

	"github.com/miekg/dns"

	"github.com/maksimkurb/keen-dns/src/internal/dnsproxy"
	"github.com/maksimkurb/keen-dns/src/internal/models"
	"github.com/maksimkurb/keen-dns/src/internal/querylog"
	"github.com/maksimkurb/keen-dns/src/internal/redirect"
)

// QueryReader reads persisted query records.
type QueryReader interface {
	Recent(limit int) ([]*models.QueryRecord, error)
	Count() (int, error)
}

// QueryTracker exposes the in-memory state of the query tracker.
type QueryTracker interface {
	Stats() querylog.Stats
	LastResponse() *dns.Msg
}

// RedirectController reports and changes the traffic redirection mode.
type RedirectController interface {
	State() redirect.Mode
	Config() redirect.Config
	BeginForward(ctx context.Context) redirect.Mode
	EndForward(ctx context.Context) redirect.Mode
}

// DNSCheckSubscriber provides a stream of DNS check query names.
type DNSCheckSubscriber interface {
	Subscribe() chan string
	Unsubscribe(ch chan string)
}

// ProxyStatsProvider describes the running DNS proxy.
type ProxyStatsProvider interface {
	GetStats() dnsproxy.Stats
}

// Dependencies are the components served by the API. Any of them may be nil
// when the matching feature is disabled.
type Dependencies struct {
	Queries  QueryReader
	Tracker  QueryTracker
	Redirect RedirectController
	Checks   DNSCheckSubscriber
	Proxy    ProxyStatsProvider
}
