// Package networking executes privileged network commands for the DNS redirect.
//
// Two command runners are provided:
//
//   - ShellRunner hands the command line to a shell, through su when the
//     process is not running as root
//   - IPTablesRunner parses iptables/ip6tables command lines and applies them
//     with the go-iptables library, without spawning a shell per rule
//
// FirstGlobalAddress resolves the address of this host used as the IPv6
// redirect destination when it is configured as "auto".
package networking
