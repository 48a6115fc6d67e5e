package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/maksimkurb/keen-dns/src/internal/log"
)

const (
	DefaultLogMaxSizeMB    = 10
	DefaultLogMaxBackups   = 3
	DefaultDatabasePath    = "queries.db"
	DefaultFlushIntervalMs = 1500
	DefaultListenAddr      = "127.0.0.1"
	DefaultListenPort      = 5353
	DefaultUpstream        = "udp://1.1.1.1:53"
	DefaultCacheMaxTTLSec  = 3600
	DefaultTimeoutMs       = 5000
	DefaultRedirectIPv4    = "127.0.0.1"
	DefaultSuBinary        = "su"
	DefaultAPIListen       = "127.0.0.1:8080"
)

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func LoadConfig(configPath string) (*Config, error) {
	configFile := filepath.Clean(configPath)

	if !filepath.IsAbs(configFile) {
		if path, err := filepath.Abs(configFile); err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %v", err)
		} else {
			configFile = path
		}
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Errorf("Configuration file not found: %s", configFile)
		return nil, fmt.Errorf("configuration file not found: %s", configFile)
	}

	content, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	var config Config
	if err := toml.Unmarshal(content, &config); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			log.Errorf("%s", derr.String())
			row, col := derr.Position()
			log.Errorf("Error at line %d, column %d", row, col)
			return nil, fmt.Errorf("failed to parse config file")
		}
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	config._absConfigFilePath = configFile
	config.applyDefaults()

	log.Debugf("Configuration file path: %s", configFile)
	if config.QueryLog.Enabled {
		log.Debugf("Query database: %s", config.GetAbsDatabasePath())
	}

	return &config, nil
}

// applyDefaults fills missing sections and zero-valued fields.
func (c *Config) applyDefaults() {
	if c.General == nil {
		c.General = &GeneralConfig{}
	}
	if c.General.LogMaxSizeMB == 0 {
		c.General.LogMaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.General.LogMaxBackups == 0 {
		c.General.LogMaxBackups = DefaultLogMaxBackups
	}

	if c.QueryLog == nil {
		c.QueryLog = &QueryLogConfig{}
	}
	if c.QueryLog.DatabasePath == "" {
		c.QueryLog.DatabasePath = DefaultDatabasePath
	}
	if c.QueryLog.FlushIntervalMs == 0 {
		c.QueryLog.FlushIntervalMs = DefaultFlushIntervalMs
	}

	if c.Proxy == nil {
		c.Proxy = &ProxyConfig{}
	}
	if c.Proxy.ListenAddr == "" {
		c.Proxy.ListenAddr = DefaultListenAddr
	}
	if c.Proxy.ListenPort == 0 {
		c.Proxy.ListenPort = DefaultListenPort
	}
	if c.Proxy.Upstreams == nil {
		c.Proxy.Upstreams = []string{DefaultUpstream}
	}
	if c.Proxy.CacheMaxTTLSec == 0 {
		c.Proxy.CacheMaxTTLSec = DefaultCacheMaxTTLSec
	}
	if c.Proxy.TimeoutMs == 0 {
		c.Proxy.TimeoutMs = DefaultTimeoutMs
	}

	if c.Redirect == nil {
		c.Redirect = &RedirectConfig{}
	}
	if c.Redirect.Backend == "" {
		c.Redirect.Backend = RedirectBackendShell
	}
	if c.Redirect.IPv4Address == "" {
		c.Redirect.IPv4Address = DefaultRedirectIPv4
	}
	if c.Redirect.Port == 0 {
		c.Redirect.Port = c.Proxy.ListenPort
	}
	if c.Redirect.SuBinary == "" {
		c.Redirect.SuBinary = DefaultSuBinary
	}

	if c.API == nil {
		c.API = &APIConfig{}
	}
	if c.API.Listen == "" {
		c.API.Listen = DefaultAPIListen
	}
}

func (c *Config) SerializeConfig() (*bytes.Buffer, error) {
	buf := bytes.Buffer{}
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return &buf, nil
}

// SetConfigPath sets the file WriteConfig writes to. Relative paths in the
// configuration are resolved against its directory.
func (c *Config) SetConfigPath(path string) error {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	c._absConfigFilePath = abs
	return nil
}

// WriteConfig writes the configuration back to the file it was loaded from.
func (c *Config) WriteConfig() error {
	config, err := c.SerializeConfig()
	if err != nil {
		return err
	}
	if err := os.WriteFile(c._absConfigFilePath, config.Bytes(), 0644); err != nil {
		return err
	}
	return nil
}
