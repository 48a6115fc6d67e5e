package dnsproxy

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/maksimkurb/keen-dns/src/internal/config"
	"github.com/maksimkurb/keen-dns/src/internal/dnsproxy/upstreams"
	keenerrors "github.com/maksimkurb/keen-dns/src/internal/errors"
	"github.com/maksimkurb/keen-dns/src/internal/log"
	"github.com/maksimkurb/keen-dns/src/internal/metrics"
	"github.com/maksimkurb/keen-dns/src/internal/models"
)

const (
	networkUDP = "udp"
	networkTCP = "tcp"

	udpReadTimeout       = 1 * time.Second  // UDP read deadline for the accept loop
	tcpConnectionTimeout = 10 * time.Second // idle timeout of a TCP connection

	cacheCleanupInterval = 1 * time.Minute
)

// QueryTracker receives the lifecycle events of every query handled by the
// proxy. *querylog.Tracker implements it.
type QueryTracker interface {
	OnDeviceQuery(msg *dns.Msg)
	OnQueryForwarded(msg *dns.Msg, upstream string)
	OnQueryResponse(msg *dns.Msg, source models.ResponseSource)
}

// ProxyConfig contains configuration for the DNS proxy.
type ProxyConfig struct {
	// ListenAddress is the host:port to listen on over UDP and TCP.
	ListenAddress string
	// Upstreams is the list of upstream DNS URLs, tried in order.
	Upstreams []string
	// Timeout bounds the whole upstream resolution of one query.
	Timeout time.Duration
	// CacheEnabled answers repeated questions from memory.
	CacheEnabled bool
	// CacheMaxTTL caps the lifetime of cached answers.
	CacheMaxTTL time.Duration
}

// ProxyConfigFromAppConfig creates a ProxyConfig from the application config.
func ProxyConfigFromAppConfig(cfg *config.Config) ProxyConfig {
	return ProxyConfig{
		ListenAddress: cfg.Proxy.ListenAddress(),
		Upstreams:     cfg.Proxy.Upstreams,
		Timeout:       cfg.Proxy.Timeout(),
		CacheEnabled:  cfg.Proxy.CacheEnabled,
		CacheMaxTTL:   time.Duration(cfg.Proxy.CacheMaxTTLSec) * time.Second,
	}
}

// DNSProxy is the local DNS server. It forwards queries to upstream resolvers
// and reports every query to a QueryTracker.
type DNSProxy struct {
	config   ProxyConfig
	upstream *upstreams.Group
	cache    *answerCache
	tracker  QueryTracker
	metrics  *metrics.Metrics

	subscribersMu sync.RWMutex
	subscribers   map[chan string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	udpConn net.PacketConn
	tcpLn   net.Listener
}

// NewDNSProxy creates a new DNS proxy. tracker and m may be nil.
func NewDNSProxy(cfg ProxyConfig, tracker QueryTracker, m *metrics.Metrics) (*DNSProxy, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = upstreams.DefaultTimeout
	}

	group, err := upstreams.ParseGroup(cfg.Upstreams, cfg.Timeout)
	if err != nil {
		return nil, keenerrors.NewProxyError("invalid upstream configuration", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	proxy := &DNSProxy{
		config:      cfg,
		upstream:    group,
		tracker:     tracker,
		metrics:     m,
		subscribers: make(map[chan string]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	if cfg.CacheEnabled && cfg.CacheMaxTTL > 0 {
		proxy.cache = newAnswerCache(cfg.CacheMaxTTL)
	}

	return proxy, nil
}

// Start starts the UDP and TCP listeners.
func (p *DNSProxy) Start() error {
	var err error

	p.udpConn, err = net.ListenPacket(networkUDP, p.config.ListenAddress)
	if err != nil {
		return keenerrors.NewProxyError("failed to listen UDP", err)
	}

	// Bind TCP to the same port when the UDP port was picked by the system.
	tcpAddr := p.config.ListenAddress
	if host, port, err := net.SplitHostPort(tcpAddr); err == nil && port == "0" {
		tcpAddr = net.JoinHostPort(host, fmt.Sprint(p.udpConn.LocalAddr().(*net.UDPAddr).Port))
	}

	p.tcpLn, err = net.Listen(networkTCP, tcpAddr)
	if err != nil {
		p.udpConn.Close()
		return keenerrors.NewProxyError("failed to listen TCP", err)
	}

	log.Infof("DNS proxy started on %s (UDP/TCP), upstreams: %s", p.udpConn.LocalAddr(), p.upstream)

	p.wg.Add(2)
	go p.serveUDP(p.udpConn)
	go p.serveTCP(p.tcpLn)

	return nil
}

// Addr returns the UDP listen address, or nil before Start.
func (p *DNSProxy) Addr() net.Addr {
	if p.udpConn == nil {
		return nil
	}
	return p.udpConn.LocalAddr()
}

// Stop stops the DNS proxy and waits for the listeners to exit.
func (p *DNSProxy) Stop() error {
	log.Infof("Stopping DNS proxy...")
	p.cancel()

	if p.udpConn != nil {
		p.udpConn.Close()
	}
	if p.tcpLn != nil {
		p.tcpLn.Close()
	}

	p.wg.Wait()
	p.closeAllSubscribers()

	if p.upstream != nil {
		p.upstream.Close()
	}

	log.Infof("DNS proxy stopped")
	return nil
}

// FlushCache drops all cached answers.
func (p *DNSProxy) FlushCache() {
	if p.cache != nil {
		p.cache.flush()
	}
}

// serveUDP handles incoming UDP DNS queries.
func (p *DNSProxy) serveUDP(conn net.PacketConn) {
	defer p.wg.Done()

	buf := make([]byte, dns.MaxMsgSize)

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(udpReadTimeout))
		n, clientAddr, err := conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if p.ctx.Err() != nil {
				return
			}
			log.Debugf("UDP read error: %v", err)
			continue
		}

		req := make([]byte, n)
		copy(req, buf[:n])

		go func(clientAddr net.Addr, req []byte) {
			resp, err := p.processRequest(clientAddr, req, networkUDP)
			if err != nil {
				log.Debugf("UDP request processing error: %v", err)
				return
			}

			if _, err := conn.WriteTo(resp, clientAddr); err != nil {
				log.Debugf("UDP write error: %v", err)
			}
		}(clientAddr, req)
	}
}

// serveTCP handles incoming TCP DNS connections.
func (p *DNSProxy) serveTCP(ln net.Listener) {
	defer p.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			log.Debugf("TCP accept error: %v", err)
			continue
		}

		go p.handleTCPConnection(conn)
	}
}

// handleTCPConnection answers length-prefixed queries until the client closes
// the connection or stays idle for tcpConnectionTimeout.
func (p *DNSProxy) handleTCPConnection(conn net.Conn) {
	defer conn.Close()

	for p.ctx.Err() == nil {
		conn.SetDeadline(time.Now().Add(tcpConnectionTimeout))

		var length uint16
		if err := binary.Read(conn, binary.BigEndian, &length); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debugf("TCP read length error: %v", err)
			}
			return
		}

		req := make([]byte, length)
		if _, err := io.ReadFull(conn, req); err != nil {
			log.Debugf("TCP read message error: %v", err)
			return
		}

		resp, err := p.processRequest(conn.RemoteAddr(), req, networkTCP)
		if err != nil {
			log.Debugf("TCP request processing error: %v", err)
			return
		}

		out := make([]byte, 2+len(resp))
		binary.BigEndian.PutUint16(out, uint16(len(resp)))
		copy(out[2:], resp)
		if _, err := conn.Write(out); err != nil {
			log.Debugf("TCP write response error: %v", err)
			return
		}
	}
}

// processRequest answers one packed DNS request and returns the packed response.
func (p *DNSProxy) processRequest(clientAddr net.Addr, reqBytes []byte, network string) ([]byte, error) {
	var req dns.Msg
	if err := req.Unpack(reqBytes); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}

	if len(req.Question) > 0 {
		q := req.Question[0]
		log.Debugf("[%04x] DNS query: %s %s from %s via %s",
			req.Id, q.Name, dns.TypeToString[q.Qtype], clientAddr, network)
	}

	resp, source := p.resolve(&req)
	p.metrics.ProxyRequest(network, source.String())

	if network == networkUDP {
		resp.Truncate(udpSize(&req))
	}

	respBytes, err := resp.Pack()
	if err != nil {
		return nil, fmt.Errorf("failed to pack response: %w", err)
	}
	return respBytes, nil
}

// resolve produces the answer to req and reports the query lifecycle to the
// tracker.
func (p *DNSProxy) resolve(req *dns.Msg) (*dns.Msg, models.ResponseSource) {
	p.onDeviceQuery(req)

	if len(req.Question) == 0 {
		resp := new(dns.Msg)
		resp.SetRcode(req, dns.RcodeFormatError)
		p.onQueryResponse(resp, models.SourceLocalResolver)
		return resp, models.SourceLocalResolver
	}

	if isCheckDomain(req.Question[0].Name) {
		log.Debugf("[%04x] DNS check query intercepted: %s", req.Id, req.Question[0].Name)
		p.broadcastCheck(normalizeDomain(req.Question[0].Name))
		resp := checkResponse(req)
		p.onQueryResponse(resp, models.SourceLocalResolver)
		return resp, models.SourceLocalResolver
	}

	if p.cache != nil {
		if resp := p.cache.get(req); resp != nil {
			log.Debugf("[%04x] Answered from cache", req.Id)
			p.onQueryResponse(resp, models.SourceCache)
			return resp, models.SourceCache
		}
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.config.Timeout)
	defer cancel()

	resp, answered, err := p.upstream.Query(ctx, req, func(u upstreams.Upstream) {
		p.onQueryForwarded(req, u.Identity())
	})
	if err != nil {
		q := req.Question[0]
		log.Warnf("[%04x] Failed to resolve %s %s: %v", req.Id, q.Name, dns.TypeToString[q.Qtype], err)
		resp = new(dns.Msg)
		resp.SetRcode(req, dns.RcodeServerFailure)
		p.onQueryResponse(resp, models.SourceUpstream)
		return resp, models.SourceUpstream
	}

	resp.Id = req.Id
	log.Debugf("[%04x] Answered by %s: %s, %d answers", req.Id, answered, dns.RcodeToString[resp.Rcode], len(resp.Answer))

	if p.cache != nil {
		p.cache.put(req, resp)
	}
	p.onQueryResponse(resp, models.SourceUpstream)
	return resp, models.SourceUpstream
}

func (p *DNSProxy) onDeviceQuery(msg *dns.Msg) {
	if p.tracker != nil {
		p.tracker.OnDeviceQuery(msg)
	}
}

func (p *DNSProxy) onQueryForwarded(msg *dns.Msg, upstream string) {
	if p.tracker != nil {
		p.tracker.OnQueryForwarded(msg, upstream)
	}
}

func (p *DNSProxy) onQueryResponse(msg *dns.Msg, source models.ResponseSource) {
	if p.tracker != nil {
		p.tracker.OnQueryResponse(msg, source)
	}
}

// udpSize returns the largest UDP response the client accepts.
func udpSize(req *dns.Msg) int {
	if opt := req.IsEdns0(); opt != nil && opt.UDPSize() > dns.MinMsgSize {
		return int(opt.UDPSize())
	}
	return dns.MinMsgSize
}

// Stats describes the proxy for the API.
type Stats struct {
	ListenAddress string   `json:"listen_address"`
	Upstreams     []string `json:"upstreams"`
	CacheEnabled  bool     `json:"cache_enabled"`
	CachedAnswers int      `json:"cached_answers"`
}

// GetStats returns DNS proxy statistics.
func (p *DNSProxy) GetStats() Stats {
	stats := Stats{
		ListenAddress: p.config.ListenAddress,
		CacheEnabled:  p.cache != nil,
	}
	if addr := p.Addr(); addr != nil {
		stats.ListenAddress = addr.String()
	}
	for _, u := range p.upstream.Upstreams() {
		stats.Upstreams = append(stats.Upstreams, u.String())
	}
	if p.cache != nil {
		stats.CachedAnswers = p.cache.len()
	}
	return stats
}
