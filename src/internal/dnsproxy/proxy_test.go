package dnsproxy

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/maksimkurb/keen-dns/src/internal/config"
	"github.com/maksimkurb/keen-dns/src/internal/dnsproxy/upstreams"
	"github.com/maksimkurb/keen-dns/src/internal/mocks"
	"github.com/maksimkurb/keen-dns/src/internal/models"
	"github.com/maksimkurb/keen-dns/src/internal/querylog"
)

type trackerEvent struct {
	kind     string
	id       uint16
	upstream string
	source   models.ResponseSource
	rcode    int
}

// recordingTracker remembers every lifecycle event in order.
type recordingTracker struct {
	mu     sync.Mutex
	events []trackerEvent
}

func (r *recordingTracker) OnDeviceQuery(msg *dns.Msg) {
	r.add(trackerEvent{kind: "query", id: msg.Id})
}

func (r *recordingTracker) OnQueryForwarded(msg *dns.Msg, upstream string) {
	r.add(trackerEvent{kind: "forward", id: msg.Id, upstream: upstream})
}

func (r *recordingTracker) OnQueryResponse(msg *dns.Msg, source models.ResponseSource) {
	r.add(trackerEvent{kind: "response", id: msg.Id, source: source, rcode: msg.Rcode})
}

func (r *recordingTracker) add(e trackerEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingTracker) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []string
	for _, e := range r.events {
		kinds = append(kinds, e.kind)
	}
	return kinds
}

func (r *recordingTracker) last() trackerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type stubUpstream struct {
	id    string
	err   error
	calls int
}

func (s *stubUpstream) Query(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	resp := new(dns.Msg)
	resp.SetReply(req)
	// Upstream ids are not trusted.
	resp.Id = req.Id + 1
	rr, _ := dns.NewRR(req.Question[0].Name + " 60 IN A 93.184.216.34")
	resp.Answer = append(resp.Answer, rr)
	return resp, nil
}

func (s *stubUpstream) Identity() string { return s.id }
func (s *stubUpstream) String() string   { return s.id }
func (s *stubUpstream) Close() error     { return nil }

func newTestProxy(tracker QueryTracker, cacheEnabled bool, list ...upstreams.Upstream) *DNSProxy {
	ctx, cancel := context.WithCancel(context.Background())
	p := &DNSProxy{
		config:      ProxyConfig{Timeout: time.Second},
		upstream:    upstreams.NewGroup(list),
		tracker:     tracker,
		subscribers: make(map[chan string]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	if cacheEnabled {
		p.cache = newAnswerCache(time.Hour)
	}
	return p
}

func newRequest(id uint16, name string) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeA)
	m.Id = id
	return m
}

func equalKinds(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestResolve_Upstream(t *testing.T) {
	tracker := &recordingTracker{}
	up := &stubUpstream{id: "udp::1.1.1.1:53"}
	p := newTestProxy(tracker, false, up)

	resp, source := p.resolve(newRequest(7, "example.com."))
	if source != models.SourceUpstream {
		t.Errorf("Expected upstream source, got %s", source)
	}
	if resp.Id != 7 {
		t.Errorf("Expected response id 7, got %d", resp.Id)
	}

	if got := tracker.kinds(); !equalKinds(got, []string{"query", "forward", "response"}) {
		t.Fatalf("Unexpected events: %v", got)
	}
	if tracker.events[1].upstream != "udp::1.1.1.1:53" {
		t.Errorf("Unexpected upstream identity %q", tracker.events[1].upstream)
	}
	if tracker.last().id != 7 {
		t.Errorf("Response reported with id %d", tracker.last().id)
	}
}

func TestResolve_FailoverReportsEachAttempt(t *testing.T) {
	tracker := &recordingTracker{}
	bad := &stubUpstream{id: "udp::10.0.0.1:53", err: errors.New("timeout")}
	good := &stubUpstream{id: "udp::1.1.1.1:53"}
	p := newTestProxy(tracker, false, bad, good)

	p.resolve(newRequest(1, "example.com."))

	if got := tracker.kinds(); !equalKinds(got, []string{"query", "forward", "forward", "response"}) {
		t.Fatalf("Unexpected events: %v", got)
	}
	if tracker.events[2].upstream != "udp::1.1.1.1:53" {
		t.Errorf("Last forward should name the answering upstream, got %q", tracker.events[2].upstream)
	}
}

func TestResolve_AllUpstreamsFail(t *testing.T) {
	tracker := &recordingTracker{}
	p := newTestProxy(tracker, false, &stubUpstream{id: "a", err: errors.New("down")})

	resp, source := p.resolve(newRequest(3, "example.com."))
	if resp.Rcode != dns.RcodeServerFailure {
		t.Errorf("Expected SERVFAIL, got %s", dns.RcodeToString[resp.Rcode])
	}
	if source != models.SourceUpstream {
		t.Errorf("Expected upstream source, got %s", source)
	}
	last := tracker.last()
	if last.kind != "response" || last.rcode != dns.RcodeServerFailure {
		t.Errorf("Expected SERVFAIL response event, got %+v", last)
	}
}

func TestResolve_Cache(t *testing.T) {
	tracker := &recordingTracker{}
	up := &stubUpstream{id: "udp::1.1.1.1:53"}
	p := newTestProxy(tracker, true, up)

	p.resolve(newRequest(1, "example.com."))
	resp, source := p.resolve(newRequest(2, "example.com."))

	if source != models.SourceCache {
		t.Errorf("Expected cache source, got %s", source)
	}
	if resp.Id != 2 {
		t.Errorf("Expected id 2, got %d", resp.Id)
	}
	if up.calls != 1 {
		t.Errorf("Expected 1 upstream call, got %d", up.calls)
	}
	if got := tracker.kinds(); !equalKinds(got, []string{"query", "forward", "response", "query", "response"}) {
		t.Errorf("Unexpected events: %v", got)
	}

	p.FlushCache()
	p.resolve(newRequest(3, "example.com."))
	if up.calls != 2 {
		t.Errorf("Expected upstream call after flush, got %d calls", up.calls)
	}
}

func TestResolve_CheckDomain(t *testing.T) {
	tracker := &recordingTracker{}
	up := &stubUpstream{id: "a"}
	p := newTestProxy(tracker, false, up)
	ch := p.Subscribe()

	resp, source := p.resolve(newRequest(9, "probe."+CheckDomain+"."))
	if source != models.SourceLocalResolver {
		t.Errorf("Expected local resolver source, got %s", source)
	}
	if len(resp.Answer) != 1 {
		t.Errorf("Expected 1 answer, got %d", len(resp.Answer))
	}
	if up.calls != 0 {
		t.Error("Check queries must not reach upstreams")
	}

	select {
	case name := <-ch:
		if name != "probe."+CheckDomain {
			t.Errorf("Unexpected broadcast %q", name)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Check query was not broadcast")
	}
}

func TestResolve_NoQuestion(t *testing.T) {
	tracker := &recordingTracker{}
	p := newTestProxy(tracker, false, &stubUpstream{id: "a"})

	resp, _ := p.resolve(&dns.Msg{MsgHdr: dns.MsgHdr{Id: 5}})
	if resp.Rcode != dns.RcodeFormatError {
		t.Errorf("Expected FORMERR, got %s", dns.RcodeToString[resp.Rcode])
	}
}

func TestResolve_NilTracker(t *testing.T) {
	p := newTestProxy(nil, false, &stubUpstream{id: "a"})
	if resp, _ := p.resolve(newRequest(1, "example.com.")); len(resp.Answer) != 1 {
		t.Errorf("Expected 1 answer, got %d", len(resp.Answer))
	}
}

func TestUDPSize(t *testing.T) {
	req := newRequest(1, "example.com.")
	if got := udpSize(req); got != dns.MinMsgSize {
		t.Errorf("Expected %d without EDNS, got %d", dns.MinMsgSize, got)
	}
	req.SetEdns0(1232, false)
	if got := udpSize(req); got != 1232 {
		t.Errorf("Expected 1232 with EDNS, got %d", got)
	}
}

func TestProxyConfigFromAppConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Proxy.CacheEnabled = true
	cfg.Proxy.CacheMaxTTLSec = 60

	pc := ProxyConfigFromAppConfig(cfg)
	if pc.ListenAddress != "127.0.0.1:5353" {
		t.Errorf("Unexpected listen address %q", pc.ListenAddress)
	}
	if !pc.CacheEnabled || pc.CacheMaxTTL != time.Minute {
		t.Errorf("Unexpected cache settings: %v %v", pc.CacheEnabled, pc.CacheMaxTTL)
	}
	if len(pc.Upstreams) != 1 || pc.Upstreams[0] != "udp://1.1.1.1:53" {
		t.Errorf("Unexpected upstreams %v", pc.Upstreams)
	}
}

func TestNewDNSProxy_InvalidUpstream(t *testing.T) {
	_, err := NewDNSProxy(ProxyConfig{Upstreams: []string{"ftp://example.com"}}, nil, nil)
	if err == nil {
		t.Fatal("Expected error for unsupported upstream")
	}
}

// startUpstream runs a DNS server answering every A query with 93.184.216.34.
func startUpstream(t *testing.T) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			rr, _ := dns.NewRR(r.Question[0].Name + " 60 IN A 93.184.216.34")
			m.Answer = append(m.Answer, rr)
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = server.ActivateAndServe() }()
	t.Cleanup(func() { _ = server.Shutdown() })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Upstream did not start")
	}
	return pc.LocalAddr().String()
}

func TestDNSProxy_EndToEnd(t *testing.T) {
	upstreamAddr := startUpstream(t)

	store := mocks.NewMockQueryStore()
	tracker, err := querylog.NewTracker(querylog.Options{
		Persist:       true,
		Store:         store,
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	defer tracker.Cleanup()

	proxy, err := NewDNSProxy(ProxyConfig{
		ListenAddress: "127.0.0.1:0",
		Upstreams:     []string{"udp://" + upstreamAddr},
		Timeout:       2 * time.Second,
	}, tracker, nil)
	if err != nil {
		t.Fatalf("NewDNSProxy failed: %v", err)
	}
	if err := proxy.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer proxy.Stop()

	for i, network := range []string{"udp", "tcp"} {
		id := uint16(7 + i)
		t.Run(network, func(t *testing.T) {
			client := &dns.Client{Net: network, Timeout: 2 * time.Second}
			resp, _, err := client.Exchange(newRequest(id, "example.com."), proxy.Addr().String())
			if err != nil {
				t.Fatalf("Exchange failed: %v", err)
			}
			if resp.Id != id || len(resp.Answer) != 1 {
				t.Fatalf("Unexpected response: %v", resp)
			}
		})
	}

	result, err := tracker.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if result.Inserted != 2 {
		t.Errorf("Expected 2 inserted records, got %d", result.Inserted)
	}
	records, _ := store.Recent(0)
	for _, rec := range records {
		if rec.AskedServer != "udp::"+upstreamAddr {
			t.Errorf("Unexpected asked server %q", rec.AskedServer)
		}
		if len(rec.Responses) != 1 || rec.Responses[0].Value != "93.184.216.34" {
			t.Errorf("Unexpected responses %+v", rec.Responses)
		}
	}

	stats := proxy.GetStats()
	if stats.ListenAddress != proxy.Addr().String() || len(stats.Upstreams) != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}
