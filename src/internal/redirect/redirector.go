package redirect

import (
	"context"
	"fmt"
	"sync"

	"github.com/maksimkurb/keen-dns/src/internal/log"
	"github.com/maksimkurb/keen-dns/src/internal/metrics"
)

// Mode is the outcome of the last redirect operation.
type Mode int

const (
	ModeDisabled Mode = iota
	ModeSucceeded
	ModeSucceededNoIPv6
	ModeFailed
)

var modeNames = map[Mode]string{
	ModeDisabled:        "disabled",
	ModeSucceeded:       "succeeded",
	ModeSucceededNoIPv6: "succeeded_no_ipv6",
	ModeFailed:          "failed",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(text []byte) error {
	for mode, name := range modeNames {
		if name == string(text) {
			*m = mode
			return nil
		}
	}
	return fmt.Errorf("unknown redirect mode: %q", text)
}

// ModeNames lists all mode names.
func ModeNames() []string {
	return []string{"disabled", "succeeded", "succeeded_no_ipv6", "failed"}
}

// Runner executes a privileged command line.
type Runner interface {
	Run(ctx context.Context, command string) error
}

// Config describes where DNS traffic is redirected to.
type Config struct {
	// IPv4Address is the IPv4 destination of redirected traffic.
	IPv4Address string
	// IPv6Address is optional. When empty, IPv6 traffic is not redirected.
	IPv6Address string
	Port        uint16
}

// Redirector installs and removes the DNS redirect rules.
type Redirector struct {
	cfg     Config
	runner  Runner
	metrics *metrics.Metrics
	logger  log.Logger

	// opMu serializes BeginForward and EndForward.
	opMu sync.Mutex

	mu    sync.Mutex
	state Mode
}

// NewRedirector creates a redirector executing commands through runner.
func NewRedirector(cfg Config, runner Runner, m *metrics.Metrics) *Redirector {
	r := &Redirector{
		cfg:     cfg,
		runner:  runner,
		metrics: m,
		logger:  log.Tag("redirect"),
		state:   ModeDisabled,
	}
	m.SetRedirectMode(ModeDisabled.String(), ModeNames())
	return r
}

// Config returns the redirect destination.
func (r *Redirector) Config() Config {
	return r.cfg
}

// BeginForward inserts the redirect rules. When the rules are already in
// place it does nothing and returns the current mode.
func (r *Redirector) BeginForward(ctx context.Context) Mode {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if current := r.State(); current == ModeSucceeded || current == ModeSucceededNoIPv6 {
		r.logger.Debugf("DNS traffic is already redirected (%s)", current)
		return current
	}

	if r.cfg.IPv6Address != "" {
		r.logger.Infof("Redirecting DNS traffic to %s:%d and [%s]:%d", r.cfg.IPv4Address, r.cfg.Port, r.cfg.IPv6Address, r.cfg.Port)
	} else {
		r.logger.Infof("Redirecting DNS traffic to %s:%d", r.cfg.IPv4Address, r.cfg.Port)
	}
	mode := r.process(ctx, ActionInsert)
	r.setState(mode)
	return mode
}

// EndForward removes the redirect rules. The returned mode describes the
// removal itself; afterwards State reports ModeDisabled unless the IPv4
// removal failed.
func (r *Redirector) EndForward(ctx context.Context) Mode {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.logger.Infof("Removing DNS redirect rules")
	mode := r.process(ctx, ActionDelete)
	if mode == ModeFailed {
		r.setState(ModeFailed)
	} else {
		r.setState(ModeDisabled)
	}
	return mode
}

// State returns the outcome of the last operation.
func (r *Redirector) State() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Redirector) setState(mode Mode) {
	r.mu.Lock()
	r.state = mode
	r.mu.Unlock()
	r.metrics.SetRedirectMode(mode.String(), ModeNames())
}

func (r *Redirector) process(ctx context.Context, action Action) Mode {
	if !r.forward(ctx, action, FamilyIPv4, r.cfg.IPv4Address) {
		return ModeFailed
	}
	if r.cfg.IPv6Address == "" || r.forward(ctx, action, FamilyIPv6, r.cfg.IPv6Address) {
		return ModeSucceeded
	}
	return ModeSucceededNoIPv6
}

// forward applies the UDP rule and, if it succeeded, the TCP rule. Only the
// UDP result counts.
func (r *Redirector) forward(ctx context.Context, action Action, family Family, addr string) bool {
	if !r.run(ctx, BuildCommand(action, ProtocolUDP, family, addr, r.cfg.Port)) {
		return false
	}
	r.run(ctx, BuildCommand(action, ProtocolTCP, family, addr, r.cfg.Port))
	return true
}

func (r *Redirector) run(ctx context.Context, command string) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Errorf("Command panicked: %s: %v", command, p)
			ok = false
		}
	}()

	r.logger.Debugf("Running: %s", command)
	if err := r.runner.Run(ctx, command); err != nil {
		r.logger.Warnf("Command failed: %s: %v", command, err)
		return false
	}
	return true
}
