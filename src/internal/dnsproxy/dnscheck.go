package dnsproxy

import (
	"net"
	"strings"

	"github.com/miekg/dns"
)

// CheckDomain and its subdomains are answered by the proxy itself.
const CheckDomain = "dns-check.keen-dns.internal"

// checkResponseIP is the address returned for check queries.
var checkResponseIP = net.ParseIP("127.0.0.1")

// Subscribe adds a subscriber for check queries. The returned channel
// receives the name of every check query until Unsubscribe is called.
func (p *DNSProxy) Subscribe() chan string {
	ch := make(chan string, 10)
	p.subscribersMu.Lock()
	p.subscribers[ch] = struct{}{}
	p.subscribersMu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (p *DNSProxy) Unsubscribe(ch chan string) {
	p.subscribersMu.Lock()
	if _, exists := p.subscribers[ch]; exists {
		delete(p.subscribers, ch)
		close(ch)
	}
	p.subscribersMu.Unlock()
}

// closeAllSubscribers unblocks readers on shutdown.
func (p *DNSProxy) closeAllSubscribers() {
	p.subscribersMu.Lock()
	defer p.subscribersMu.Unlock()

	for ch := range p.subscribers {
		close(ch)
	}
	p.subscribers = make(map[chan string]struct{})
}

func (p *DNSProxy) broadcastCheck(domain string) {
	if p.ctx.Err() != nil {
		return
	}

	p.subscribersMu.RLock()
	defer p.subscribersMu.RUnlock()

	for ch := range p.subscribers {
		select {
		case ch <- domain:
		default:
			// Slow subscriber, drop.
		}
	}
}

// isCheckDomain reports whether domain is CheckDomain or one of its subdomains.
func isCheckDomain(domain string) bool {
	domain = strings.ToLower(normalizeDomain(domain))
	return domain == CheckDomain || strings.HasSuffix(domain, "."+CheckDomain)
}

// checkResponse answers a check query. Only A questions get an address.
func checkResponse(req *dns.Msg) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true

	q := req.Question[0]
	if q.Qtype == dns.TypeA {
		resp.Answer = append(resp.Answer, &dns.A{
			Hdr: dns.RR_Header{
				Name:   q.Name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    1,
			},
			A: checkResponseIP,
		})
	}
	return resp
}

// normalizeDomain removes the trailing dot from a domain name.
func normalizeDomain(domain string) string {
	return strings.TrimSuffix(domain, ".")
}
