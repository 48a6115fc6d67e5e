package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Proxy.Upstreams = []string{"udp://9.9.9.9:9953"}
	return cfg
}

func expectFieldError(t *testing.T, err error, fieldPath string) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected validation error for %s", fieldPath)
	}
	var ve ValidationErrors
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationErrors, got %T", err)
	}
	for _, e := range ve {
		if e.FieldPath == fieldPath {
			return
		}
	}
	t.Errorf("Expected error for %s, got: %v", fieldPath, err)
}

func TestValidateConfig_Success(t *testing.T) {
	if err := validConfig().ValidateConfig(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestValidateConfig_MissingSection(t *testing.T) {
	cfg := validConfig()
	cfg.Proxy = nil
	expectFieldError(t, cfg.ValidateConfig(), "proxy")
}

func TestValidateConfig_FieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"negative log size", func(c *Config) { c.General.LogMaxSizeMB = -1 }, "general.log_max_size_mb"},
		{"flush interval too small", func(c *Config) { c.QueryLog.FlushIntervalMs = 10 }, "query_log.flush_interval_ms"},
		{"IPv6 listen without brackets", func(c *Config) { c.Proxy.ListenAddr = "::1" }, "proxy.listen_addr"},
		{"no upstreams", func(c *Config) { c.Proxy.Upstreams = []string{} }, "proxy.upstreams"},
		{"bad upstream scheme", func(c *Config) { c.Proxy.Upstreams = []string{"quic://dns.example"} }, "proxy.upstreams[0]"},
		{"upstream without port", func(c *Config) { c.Proxy.Upstreams = []string{"udp://1.1.1.1"} }, "proxy.upstreams[0]"},
		{"unknown backend", func(c *Config) { c.Redirect.Backend = "nft" }, "redirect.backend"},
		{"IPv6 redirect address for IPv4", func(c *Config) { c.Redirect.IPv4Address = "::1" }, "redirect.ipv4_address"},
		{"bad IPv6 redirect address", func(c *Config) { c.Redirect.IPv6Address = "127.0.0.1" }, "redirect.ipv6_address"},
		{"bad API listen", func(c *Config) { c.API.Listen = "localhost" }, "api.listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			expectFieldError(t, cfg.ValidateConfig(), tt.field)
		})
	}
}

func TestValidateConfig_DuplicateUpstreams(t *testing.T) {
	cfg := validConfig()
	cfg.Proxy.Upstreams = []string{"udp://9.9.9.9:9953", "udp://9.9.9.9:9953"}
	expectFieldError(t, cfg.ValidateConfig(), "proxy.upstreams.1")
}

func TestValidateConfig_Redirect(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := validConfig()
		cfg.Redirect.Enabled = true
		cfg.Redirect.IPv6Address = IPv6Auto
		if err := cfg.ValidateConfig(); err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
	})

	t.Run("port mismatch", func(t *testing.T) {
		cfg := validConfig()
		cfg.Redirect.Enabled = true
		cfg.Redirect.Port = 5354
		expectFieldError(t, cfg.ValidateConfig(), "redirect.port")
	})

	t.Run("port 53", func(t *testing.T) {
		cfg := validConfig()
		cfg.Redirect.Enabled = true
		cfg.Redirect.IPv4Address = "192.168.1.1"
		cfg.Redirect.Port = 53
		expectFieldError(t, cfg.ValidateConfig(), "redirect.port")
	})

	t.Run("upstream on port 53", func(t *testing.T) {
		cfg := validConfig()
		cfg.Redirect.Enabled = true
		cfg.Proxy.Upstreams = []string{"udp://1.1.1.1:53"}
		expectFieldError(t, cfg.ValidateConfig(), "proxy.upstreams.0")
	})

	t.Run("upstream on port 53 without redirect", func(t *testing.T) {
		cfg := validConfig()
		cfg.Proxy.Upstreams = []string{"udp://1.1.1.1:53"}
		if err := cfg.ValidateConfig(); err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
	})
}

func TestValidationErrors_Error(t *testing.T) {
	if got := (ValidationErrors{}).Error(); got != "no validation errors" {
		t.Errorf("Unexpected message: %s", got)
	}

	ve := ValidationErrors{
		{FieldPath: "proxy.listen_port", Message: "field is required"},
		{FieldPath: "redirect.backend", Message: "must be one of: shell iptables"},
	}
	msg := ve.Error()
	if !strings.Contains(msg, "2 error(s)") || !strings.Contains(msg, "2. redirect.backend: must be one of: shell iptables") {
		t.Errorf("Unexpected message: %s", msg)
	}
}

func TestValidateUpstreamURL(t *testing.T) {
	tests := map[string]bool{
		"udp://1.1.1.1:53":              true,
		"tcp://[2606:4700::1]:53":       true,
		"udp://dns.example:53":          true,
		"":                              false,
		"1.1.1.1:53":                    false,
		"keenetic://":                   false,
		"tcp://1.1.1.1":                 false,
		"https://dns.example/dns-query": false,
		"udp://1.1.1.1:0":               false,
		"udp://1.1.1.1:65536":           false,
	}
	for upstream, valid := range tests {
		err := ValidateUpstreamURL(upstream)
		if (err == nil) != valid {
			t.Errorf("ValidateUpstreamURL(%q) error = %v, want valid=%v", upstream, err, valid)
		}
	}
}
