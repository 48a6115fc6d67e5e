package commands

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/maksimkurb/keen-dns/src/internal/config"
	"github.com/maksimkurb/keen-dns/src/internal/log"
	"github.com/maksimkurb/keen-dns/src/internal/utils"
)

func CreateInitConfigCommand() *InitConfigCommand {
	ic := &InitConfigCommand{
		fs: flag.NewFlagSet("init-config", flag.ExitOnError),
	}

	ic.fs.BoolVar(&ic.Force, "force", false, "Overwrite an existing configuration file")

	return ic
}

// InitConfigCommand writes a configuration file with default values.
type InitConfigCommand struct {
	fs    *flag.FlagSet
	ctx   *AppContext
	Force bool
}

func (c *InitConfigCommand) Name() string {
	return c.fs.Name()
}

func (c *InitConfigCommand) Init(args []string, ctx *AppContext) error {
	c.ctx = ctx
	return c.fs.Parse(args)
}

func (c *InitConfigCommand) Run() error {
	path := c.ctx.ConfigPath

	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("configuration file already exists: %s (use -force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	cfg := config.DefaultConfig()
	if err := cfg.SetConfigPath(path); err != nil {
		return err
	}
	if err := utils.EnsureParentDir(path); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := cfg.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	log.Infof("Default configuration written to %s", path)
	return nil
}
