package commands

import (
	"net"

	"github.com/vishvananda/netlink"

	"github.com/maksimkurb/keen-dns/src/internal/config"
	keenerrors "github.com/maksimkurb/keen-dns/src/internal/errors"
	"github.com/maksimkurb/keen-dns/src/internal/log"
	"github.com/maksimkurb/keen-dns/src/internal/metrics"
	"github.com/maksimkurb/keen-dns/src/internal/networking"
	"github.com/maksimkurb/keen-dns/src/internal/redirect"
)

type Runner interface {
	Init(args []string, globalArgs *AppContext) error
	Run() error
	Name() string
}

type AppContext struct {
	ConfigPath string
	Verbose    bool
}

// loadAndValidateConfigOrFail loads configuration from file and validates it.
func loadAndValidateConfigOrFail(configPath string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, keenerrors.NewConfigError("failed to load configuration", err)
	}

	if err := cfg.ValidateConfig(); err != nil {
		return nil, keenerrors.NewValidationError("configuration validation failed", err)
	}

	return cfg, nil
}

// addressLookup returns a global address of the host for a netlink family.
type addressLookup func(family int) (net.IP, error)

// redirectConfig builds the redirect destination from cfg, resolving an
// "auto" IPv6 address through lookup. IPv6 redirection is skipped when no
// global IPv6 address exists.
func redirectConfig(cfg *config.Config, lookup addressLookup) redirect.Config {
	rc := redirect.Config{
		IPv4Address: cfg.Redirect.IPv4Address,
		IPv6Address: cfg.Redirect.IPv6Address,
		Port:        cfg.Redirect.Port,
	}

	if rc.IPv6Address == config.IPv6Auto {
		ip, err := lookup(netlink.FAMILY_V6)
		if err != nil {
			log.Warnf("No global IPv6 address, IPv6 DNS traffic will not be redirected: %v", err)
			rc.IPv6Address = ""
		} else {
			rc.IPv6Address = ip.String()
			log.Debugf("Using IPv6 address %s for DNS redirection", rc.IPv6Address)
		}
	}

	return rc
}

// redirectRunner returns the command runner of the configured backend.
func redirectRunner(cfg *config.RedirectConfig) redirect.Runner {
	if cfg.Backend == config.RedirectBackendIPTables {
		return networking.NewIPTablesRunner()
	}
	return networking.NewShellRunner(cfg.SuBinary)
}

// newRedirector creates a redirector for cfg using the system network state.
func newRedirector(cfg *config.Config, m *metrics.Metrics) *redirect.Redirector {
	return redirect.NewRedirector(redirectConfig(cfg, networking.FirstGlobalAddress), redirectRunner(cfg.Redirect), m)
}
