package mocks

import (
	"context"
	"sync"
)

// MockRunner is a mock implementation of the redirect Runner interface.
//
// This allows testing redirect logic without touching iptables.
type MockRunner struct {
	// RunFunc is called by Run if not nil
	RunFunc func(ctx context.Context, command string) error

	mu       sync.Mutex
	commands []string
}

// NewMockRunner creates a new mock runner where every command succeeds.
func NewMockRunner() *MockRunner {
	return &MockRunner{}
}

// Run records the command and delegates to RunFunc.
func (m *MockRunner) Run(ctx context.Context, command string) error {
	m.mu.Lock()
	m.commands = append(m.commands, command)
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, command)
	}
	return nil
}

// Commands returns the commands run so far, in order.
func (m *MockRunner) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

// Reset forgets the recorded commands.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = nil
}
