package commands

import (
	"context"
	"fmt"
	"time"

	keenerrors "github.com/maksimkurb/keen-dns/src/internal/errors"
	"github.com/maksimkurb/keen-dns/src/internal/log"
)

// RunnerConfig contains configuration for Supervise.
type RunnerConfig struct {
	Name           string
	MaxRestarts    int           // 0 = unlimited restarts
	RestartBackoff time.Duration // Initial backoff (default: 1s)
	MaxBackoff     time.Duration // Max backoff (default: 30s)
}

// Supervise runs fn until it returns nil or ctx is cancelled, restarting it
// with exponential backoff when it fails or panics. It returns the last error
// once MaxRestarts is reached, and nil otherwise.
func Supervise(ctx context.Context, cfg RunnerConfig, fn func(ctx context.Context) error) error {
	if cfg.RestartBackoff == 0 {
		cfg.RestartBackoff = 1 * time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 30 * time.Second
	}

	backoff := cfg.RestartBackoff
	restarts := 0

	for {
		err := runWithRecovery(ctx, fn)
		if err == nil {
			log.Debugf("%s: exited cleanly", cfg.Name)
			return nil
		}
		if ctx.Err() != nil {
			log.Debugf("%s: context cancelled, stopping", cfg.Name)
			return nil
		}

		restarts++
		if cfg.MaxRestarts > 0 && restarts >= cfg.MaxRestarts {
			log.Errorf("%s: max restarts (%d) reached, giving up. Last error: %v", cfg.Name, cfg.MaxRestarts, err)
			return fmt.Errorf("%s: %w", cfg.Name, err)
		}

		log.Errorf("%s: crashed with error: %v. Restarting in %v (restart #%d)", cfg.Name, err, backoff, restarts)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, cfg.MaxBackoff)
	}
}

// runWithRecovery runs fn and turns a panic into an error.
func runWithRecovery(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = keenerrors.NewInternalError("panic", fmt.Errorf("%v", recovered))
		}
	}()

	return fn(ctx)
}
