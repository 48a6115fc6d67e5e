// Package dnsproxy provides the local DNS server that redirected device traffic
// ends up at.
//
// Queries received over UDP or TCP are answered from a TTL-bound answer cache
// when possible, and otherwise forwarded to the configured upstreams in order
// until one answers:
//   - udp://ip:port - plain DNS over UDP
//   - tcp://ip:port - plain DNS over TCP
//
// Every query is reported to a QueryTracker as it moves through its lifecycle:
// received from the device, forwarded to an upstream (once per attempt) and
// answered. Queries for the check domain are answered locally so a client can
// verify that its DNS traffic reaches the proxy.
package dnsproxy
