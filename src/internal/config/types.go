package config

import (
	"path/filepath"
	"time"

	"github.com/maksimkurb/keen-dns/src/internal/utils"
)

// IPv6Auto makes the redirect use the first global IPv6 address of the host.
const IPv6Auto = "auto"

const (
	RedirectBackendShell    = "shell"
	RedirectBackendIPTables = "iptables"
)

type Config struct {
	// General holds general configuration.
	General *GeneralConfig `toml:"general" json:"general"`
	// QueryLog configures persistence of DNS queries.
	QueryLog *QueryLogConfig `toml:"query_log" json:"query_log"`
	// Proxy configures the local DNS server.
	Proxy *ProxyConfig `toml:"proxy" json:"proxy"`
	// Redirect configures redirection of port 53 traffic to the proxy.
	Redirect *RedirectConfig `toml:"redirect" json:"redirect"`
	// API configures the HTTP status API.
	API *APIConfig `toml:"api" json:"api"`

	_absConfigFilePath string
}

type GeneralConfig struct {
	// Verbose enables debug logging.
	Verbose bool `toml:"verbose" json:"verbose"`
	// LogFile is an optional file receiving a copy of the log, rotated by size.
	LogFile string `toml:"log_file" json:"log_file,omitempty"`
	// LogMaxSizeMB is the size in megabytes at which the log file is rotated (default: 10).
	LogMaxSizeMB int `toml:"log_max_size_mb" json:"log_max_size_mb" validate:"gte=0"`
	// LogMaxBackups is the number of rotated log files to keep (default: 3).
	LogMaxBackups int `toml:"log_max_backups" json:"log_max_backups" validate:"gte=0"`
}

type QueryLogConfig struct {
	// Enabled persists every DNS query with its answer.
	Enabled bool `toml:"enabled" json:"enabled"`
	// LogToConsole writes every query event to the debug log.
	LogToConsole bool `toml:"log_to_console" json:"log_to_console"`
	// DatabasePath is the query database file (default: queries.db next to the config file).
	DatabasePath string `toml:"database_path" json:"database_path" validate:"required_if=Enabled true"`
	// FlushIntervalMs is how often queries are written to the database in milliseconds (default: 1500).
	FlushIntervalMs int `toml:"flush_interval_ms" json:"flush_interval_ms" validate:"gte=100"`
}

type ProxyConfig struct {
	// ListenAddr is the listen address (default: 127.0.0.1). IPv6 must be in square brackets.
	ListenAddr string `toml:"listen_addr" json:"listen_addr" validate:"ip_or_empty"`
	// ListenPort is the UDP and TCP listen port (default: 5353).
	ListenPort uint16 `toml:"listen_port" json:"listen_port" validate:"required,min=1"`
	// Upstreams lists upstream DNS servers as udp://ip:port or tcp://ip:port (default: ["udp://1.1.1.1:53"]).
	Upstreams []string `toml:"upstreams" json:"upstreams" validate:"required,min=1,dive,upstream_url"`
	// CacheEnabled answers repeated questions from memory until their TTL expires.
	CacheEnabled bool `toml:"cache_enabled" json:"cache_enabled"`
	// CacheMaxTTLSec caps the lifetime of cached answers in seconds (default: 3600).
	CacheMaxTTLSec uint32 `toml:"cache_max_ttl_sec" json:"cache_max_ttl_sec" validate:"min=1"`
	// TimeoutMs is the upstream query timeout in milliseconds (default: 5000).
	TimeoutMs int `toml:"timeout_ms" json:"timeout_ms" validate:"min=1"`
}

type RedirectConfig struct {
	// Enabled installs the redirect rules when the service starts.
	Enabled bool `toml:"enabled" json:"enabled"`
	// Backend is "shell" (iptables binaries through sh/su) or "iptables" (go-iptables) (default: shell).
	Backend string `toml:"backend" json:"backend" validate:"oneof=shell iptables"`
	// IPv4Address is the IPv4 destination of redirected traffic (default: 127.0.0.1).
	IPv4Address string `toml:"ipv4_address" json:"ipv4_address" validate:"required,ipv4"`
	// IPv6Address is the IPv6 destination, "auto" for the host's global address, or empty to skip IPv6.
	IPv6Address string `toml:"ipv6_address" json:"ipv6_address" validate:"ipv6_or_auto"`
	// Port is the destination port (default: proxy listen_port).
	Port uint16 `toml:"port" json:"port" validate:"required,min=1"`
	// SuBinary is used to gain root when keen-dns does not run as root (default: su).
	SuBinary string `toml:"su_binary" json:"su_binary"`
}

type APIConfig struct {
	// Enabled starts the HTTP API.
	Enabled bool `toml:"enabled" json:"enabled"`
	// Listen is the host:port of the API server (default: 127.0.0.1:8080).
	Listen string `toml:"listen" json:"listen" validate:"hostport_or_empty"`
}

func (c *Config) GetConfigDir() string {
	return filepath.Dir(c._absConfigFilePath)
}

// GetAbsDatabasePath returns the query database path resolved against the
// config directory.
func (c *Config) GetAbsDatabasePath() string {
	return utils.GetAbsolutePath(c.QueryLog.DatabasePath, c.GetConfigDir())
}

// GetAbsLogFilePath returns the log file path resolved against the config
// directory, or "" when no log file is configured.
func (c *Config) GetAbsLogFilePath() string {
	if c.General.LogFile == "" {
		return ""
	}
	return utils.GetAbsolutePath(c.General.LogFile, c.GetConfigDir())
}

// FlushInterval returns the query log flush interval.
func (q *QueryLogConfig) FlushInterval() time.Duration {
	return time.Duration(q.FlushIntervalMs) * time.Millisecond
}

// Timeout returns the upstream query timeout.
func (p *ProxyConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// ListenAddress returns host:port of the proxy listener.
func (p *ProxyConfig) ListenAddress() string {
	return utils.JoinHostPort(p.ListenAddr, p.ListenPort)
}
