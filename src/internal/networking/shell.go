package networking

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/maksimkurb/keen-dns/src/internal/log"
)

// DefaultSuBinary is used to gain root when the process is unprivileged.
const DefaultSuBinary = "su"

// ShellRunner runs command lines through sh, or through su when the process
// does not run as root.
type ShellRunner struct {
	suBinary string
	isRoot   func() bool
}

// NewShellRunner creates a shell runner. An empty suBinary means DefaultSuBinary.
func NewShellRunner(suBinary string) *ShellRunner {
	if suBinary == "" {
		suBinary = DefaultSuBinary
	}
	return &ShellRunner{
		suBinary: suBinary,
		isRoot:   func() bool { return unix.Geteuid() == 0 },
	}
}

// Command returns the argv used to run command.
func (r *ShellRunner) Command(command string) []string {
	if r.isRoot() {
		return []string{"sh", "-c", command}
	}
	return []string{r.suBinary, "-c", command}
}

// Run executes command and returns an error carrying its stderr if it fails.
func (r *ShellRunner) Run(ctx context.Context, command string) error {
	argv := r.Command(command)
	log.Debugf("Executing: %s", strings.Join(argv, " "))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("failed to execute %q: %w: %s", command, err, msg)
		}
		return fmt.Errorf("failed to execute %q: %w", command, err)
	}
	return nil
}
