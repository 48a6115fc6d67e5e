// Package config handles configuration file parsing and validation for keen-dns.
//
// The configuration is a TOML file with the following sections:
//   - general: verbosity and the optional log file
//   - query_log: whether DNS queries are persisted, and where
//   - proxy: the local DNS server and its upstreams
//   - redirect: the iptables redirect of port 53 traffic to the proxy
//   - api: the HTTP status API
//
// Missing sections and fields get defaults (see DefaultConfig). Relative paths
// are resolved against the directory of the configuration file.
//
// # Example Usage
//
//	cfg, err := config.LoadConfig("/opt/etc/keen-dns/keen-dns.toml")
//	if err != nil {
//	    log.Fatalf("%v", err)
//	}
//	if err := cfg.ValidateConfig(); err != nil {
//	    log.Fatalf("%v", err)
//	}
package config
