// Package redirect forces DNS traffic of the device to the local DNS server by
// installing NAT rules with iptables and ip6tables.
//
// Rules are inserted for port 53 over UDP and TCP. The IPv4 rule lives in the
// nat OUTPUT chain, the IPv6 rule in nat PREROUTING. UDP is authoritative: a
// failed TCP rule never fails the redirect.
package redirect
