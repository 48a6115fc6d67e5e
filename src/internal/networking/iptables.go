package networking

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/coreos/go-iptables/iptables"
)

// RuleTable is the subset of *iptables.IPTables used by IPTablesRunner.
type RuleTable interface {
	InsertUnique(table, chain string, pos int, rulespec ...string) error
	DeleteIfExists(table, chain string, rulespec ...string) error
}

// ParsedCommand is an iptables command line split into its parts.
type ParsedCommand struct {
	Protocol iptables.Protocol
	Table    string
	// Insert is true for -I and false for -D.
	Insert   bool
	Chain    string
	RuleSpec []string
}

// ParseCommand parses a command line of the form
// "iptables|ip6tables -t <table> -I|-D <chain> <rulespec...>".
func ParseCommand(command string) (*ParsedCommand, error) {
	fields := strings.Fields(command)
	if len(fields) < 6 {
		return nil, fmt.Errorf("unsupported iptables command: %q", command)
	}

	parsed := &ParsedCommand{}
	switch fields[0] {
	case "iptables":
		parsed.Protocol = iptables.ProtocolIPv4
	case "ip6tables":
		parsed.Protocol = iptables.ProtocolIPv6
	default:
		return nil, fmt.Errorf("unsupported binary %q in command %q", fields[0], command)
	}

	if fields[1] != "-t" {
		return nil, fmt.Errorf("expected table selector in command %q", command)
	}
	parsed.Table = fields[2]

	switch fields[3] {
	case "-I":
		parsed.Insert = true
	case "-D":
		parsed.Insert = false
	default:
		return nil, fmt.Errorf("unsupported action %q in command %q", fields[3], command)
	}

	parsed.Chain = fields[4]
	parsed.RuleSpec = fields[5:]
	return parsed, nil
}

// IPTablesRunner applies iptables command lines through go-iptables.
type IPTablesRunner struct {
	newTable func(proto iptables.Protocol) (RuleTable, error)

	mu     sync.Mutex
	tables map[iptables.Protocol]RuleTable
}

// NewIPTablesRunner creates a runner backed by the system iptables binaries.
func NewIPTablesRunner() *IPTablesRunner {
	return NewIPTablesRunnerWith(func(proto iptables.Protocol) (RuleTable, error) {
		return iptables.NewWithProtocol(proto)
	})
}

// NewIPTablesRunnerWith creates a runner using newTable to get a handle per
// IP protocol.
func NewIPTablesRunnerWith(newTable func(proto iptables.Protocol) (RuleTable, error)) *IPTablesRunner {
	return &IPTablesRunner{
		newTable: newTable,
		tables:   make(map[iptables.Protocol]RuleTable),
	}
}

// Run parses command and inserts the rule at the top of the chain or deletes it.
// A rule already present is not inserted again, and deleting a missing rule
// succeeds.
func (r *IPTablesRunner) Run(_ context.Context, command string) error {
	parsed, err := ParseCommand(command)
	if err != nil {
		return err
	}

	table, err := r.table(parsed.Protocol)
	if err != nil {
		return err
	}

	if parsed.Insert {
		err = table.InsertUnique(parsed.Table, parsed.Chain, 1, parsed.RuleSpec...)
	} else {
		err = table.DeleteIfExists(parsed.Table, parsed.Chain, parsed.RuleSpec...)
	}
	if err != nil {
		return fmt.Errorf("failed to apply %q: %w", command, err)
	}
	return nil
}

func (r *IPTablesRunner) table(proto iptables.Protocol) (RuleTable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tables[proto]; ok {
		return t, nil
	}
	t, err := r.newTable(proto)
	if err != nil {
		return nil, fmt.Errorf("failed to create iptables handle: %w", err)
	}
	r.tables[proto] = t
	return t, nil
}
