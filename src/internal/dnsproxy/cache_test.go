package dnsproxy

import (
	"testing"
	"time"

	"github.com/miekg/dns"
)

func cacheQuery(name string, qtype uint16) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(name, qtype)
	return m
}

func cacheReply(req *dns.Msg, rcode int, records ...string) *dns.Msg {
	m := new(dns.Msg)
	m.SetRcode(req, rcode)
	for _, s := range records {
		rr, err := dns.NewRR(s)
		if err != nil {
			panic(err)
		}
		m.Answer = append(m.Answer, rr)
	}
	return m
}

func TestAnswerCache_PutGet(t *testing.T) {
	c := newAnswerCache(time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	req := cacheQuery("example.com.", dns.TypeA)
	c.put(req, cacheReply(req, dns.RcodeSuccess, "example.com. 300 IN A 93.184.216.34"))

	now = now.Add(100 * time.Second)

	again := cacheQuery("EXAMPLE.com.", dns.TypeA)
	again.Id = 4242
	resp := c.get(again)
	if resp == nil {
		t.Fatal("Expected cache hit")
	}
	if resp.Id != 4242 {
		t.Errorf("Expected id 4242, got %d", resp.Id)
	}
	if ttl := resp.Answer[0].Header().Ttl; ttl != 200 {
		t.Errorf("Expected TTL 200, got %d", ttl)
	}

	// The cached copy is not affected by the previous hit.
	now = now.Add(50 * time.Second)
	if ttl := c.get(again).Answer[0].Header().Ttl; ttl != 150 {
		t.Errorf("Expected TTL 150, got %d", ttl)
	}

	if c.get(cacheQuery("example.com.", dns.TypeAAAA)) != nil {
		t.Error("Different qtype must miss")
	}
	if c.len() != 1 {
		t.Errorf("Expected 1 entry, got %d", c.len())
	}

	c.flush()
	if c.get(again) != nil {
		t.Error("Expected miss after flush")
	}
}

func TestAnswerCache_NotCached(t *testing.T) {
	req := cacheQuery("example.com.", dns.TypeA)

	tests := []struct {
		name string
		resp *dns.Msg
	}{
		{"servfail", cacheReply(req, dns.RcodeServerFailure)},
		{"refused", cacheReply(req, dns.RcodeRefused)},
		{"no records", cacheReply(req, dns.RcodeSuccess)},
		{"zero ttl", cacheReply(req, dns.RcodeSuccess, "example.com. 0 IN A 1.2.3.4")},
		{"truncated", func() *dns.Msg {
			m := cacheReply(req, dns.RcodeSuccess, "example.com. 60 IN A 1.2.3.4")
			m.Truncated = true
			return m
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newAnswerCache(time.Hour)
			c.put(req, tt.resp)
			if c.len() != 0 {
				t.Errorf("Expected nothing cached, got %d entries", c.len())
			}
		})
	}
}

func TestAnswerCache_NXDomainCached(t *testing.T) {
	c := newAnswerCache(time.Hour)
	req := cacheQuery("missing.example.", dns.TypeA)
	resp := cacheReply(req, dns.RcodeNameError)
	soa, _ := dns.NewRR("example. 120 IN SOA ns.example. admin.example. 1 7200 3600 1209600 120")
	resp.Ns = append(resp.Ns, soa)

	c.put(req, resp)
	hit := c.get(req)
	if hit == nil || hit.Rcode != dns.RcodeNameError {
		t.Fatalf("Expected cached NXDOMAIN, got %v", hit)
	}
}

func TestMinTTL(t *testing.T) {
	req := cacheQuery("example.com.", dns.TypeA)
	resp := cacheReply(req, dns.RcodeSuccess,
		"example.com. 300 IN A 1.1.1.1",
		"example.com. 30 IN A 1.0.0.1",
	)
	ttl, ok := minTTL(resp)
	if !ok || ttl != 30 {
		t.Errorf("minTTL = %d, %v; want 30, true", ttl, ok)
	}

	if _, ok := minTTL(cacheReply(req, dns.RcodeSuccess)); ok {
		t.Error("Expected no TTL for empty response")
	}
}

func TestCacheKey(t *testing.T) {
	a, _ := cacheKey(cacheQuery("Example.COM.", dns.TypeA))
	b, _ := cacheKey(cacheQuery("example.com.", dns.TypeA))
	if a != b {
		t.Errorf("Keys differ by case: %q vs %q", a, b)
	}

	withDO := cacheQuery("example.com.", dns.TypeA)
	withDO.SetEdns0(4096, true)
	c, _ := cacheKey(withDO)
	if c == a {
		t.Error("DO bit must be part of the key")
	}

	if _, ok := cacheKey(new(dns.Msg)); ok {
		t.Error("Message without question has no key")
	}
}
