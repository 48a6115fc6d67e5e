package querylog

import (
	"net"

	"github.com/miekg/dns"
)

// IsBlockedAnswer guesses whether the upstream resolver blocked the query.
// Resolvers that filter domains commonly answer with the null or loopback
// address; any A record of 0.0.0.0 or AAAA record of :: or ::1 counts. Other
// null-routing conventions are not detected.
func IsBlockedAnswer(answers []dns.RR) bool {
	for _, rr := range answers {
		switch v := rr.(type) {
		case *dns.A:
			if v.A.Equal(net.IPv4zero) {
				return true
			}
		case *dns.AAAA:
			if v.AAAA.Equal(net.IPv6unspecified) || v.AAAA.Equal(net.IPv6loopback) {
				return true
			}
		}
	}
	return false
}
