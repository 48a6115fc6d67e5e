package querylog

import (
	"testing"

	"github.com/miekg/dns"
)

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	if err != nil {
		t.Fatalf("Failed to parse RR %q: %v", s, err)
	}
	return rr
}

func TestIsBlockedAnswer(t *testing.T) {
	tests := []struct {
		name    string
		records []string
		want    bool
	}{
		{"null IPv4", []string{"ads.example. 60 IN A 0.0.0.0"}, true},
		{"loopback IPv6", []string{"ads.example. 60 IN AAAA ::1"}, true},
		{"unspecified IPv6", []string{"ads.example. 60 IN AAAA ::"}, true},
		{"expanded unspecified IPv6", []string{"ads.example. 60 IN AAAA 0:0:0:0:0:0:0:0"}, true},
		{"expanded loopback IPv6", []string{"ads.example. 60 IN AAAA 0:0:0:0:0:0:0:1"}, true},
		{"regular IPv4", []string{"example.com. 60 IN A 93.184.216.34"}, false},
		{"regular IPv6", []string{"example.com. 60 IN AAAA 2606:2800:220:1:248:1893:25c8:1946"}, false},
		{"IPv4 loopback is not blocked", []string{"example.com. 60 IN A 127.0.0.1"}, false},
		{"blocked among others", []string{
			"cdn.example. 60 IN CNAME ads.example.",
			"ads.example. 60 IN A 0.0.0.0",
		}, true},
		{"no answers", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rrs []dns.RR
			for _, s := range tt.records {
				rrs = append(rrs, mustRR(t, s))
			}
			if got := IsBlockedAnswer(rrs); got != tt.want {
				t.Errorf("IsBlockedAnswer() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServerIdentity(t *testing.T) {
	if got := ServerIdentity(UpstreamUDP, "1.1.1.1:53"); got != "udp::1.1.1.1:53" {
		t.Errorf("Unexpected identity: %s", got)
	}
	if got := ServerIdentity(UpstreamHTTPS, "https://dns.example/dns-query"); got != "https::https://dns.example/dns-query" {
		t.Errorf("Unexpected identity: %s", got)
	}
}
