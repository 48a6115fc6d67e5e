package querylog

// Upstream kinds used in server identities.
const (
	UpstreamUDP   = "udp"
	UpstreamTCP   = "tcp"
	UpstreamHTTPS = "https"
	UpstreamTLS   = "tls"
	UpstreamQUIC  = "quic"
)

// ServerIdentity formats the upstream identity stored in QueryRecord.AskedServer,
// e.g. "https::https://dns.example/dns-query" or "udp::1.1.1.1:53".
func ServerIdentity(kind, address string) string {
	return kind + "::" + address
}
