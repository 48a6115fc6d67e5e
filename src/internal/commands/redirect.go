package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/maksimkurb/keen-dns/src/internal/config"
	keenerrors "github.com/maksimkurb/keen-dns/src/internal/errors"
	"github.com/maksimkurb/keen-dns/src/internal/log"
	"github.com/maksimkurb/keen-dns/src/internal/redirect"
)

func CreateRedirectCommand() *RedirectCommand {
	rc := &RedirectCommand{
		fs:  flag.NewFlagSet("redirect", flag.ExitOnError),
		out: os.Stdout,
	}

	rc.fs.DurationVar(&rc.Timeout, "timeout", 30*time.Second, "Timeout for the iptables commands")
	rc.fs.Usage = func() {
		fmt.Fprintf(rc.fs.Output(), "Usage: keen-dns redirect [options] begin|end\n\n")
		rc.fs.PrintDefaults()
	}

	return rc
}

// RedirectCommand inserts or removes the DNS redirect rules once and prints
// the resulting mode.
type RedirectCommand struct {
	fs      *flag.FlagSet
	cfg     *config.Config
	ctx     *AppContext
	out     io.Writer
	Timeout time.Duration

	action     string
	redirector *redirect.Redirector
}

func (r *RedirectCommand) Name() string {
	return r.fs.Name()
}

func (r *RedirectCommand) Init(args []string, ctx *AppContext) error {
	r.ctx = ctx

	if err := r.fs.Parse(args); err != nil {
		return err
	}

	if r.fs.NArg() != 1 || (r.fs.Arg(0) != "begin" && r.fs.Arg(0) != "end") {
		r.fs.Usage()
		return fmt.Errorf("expected \"begin\" or \"end\"")
	}
	r.action = r.fs.Arg(0)

	if cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath); err != nil {
		return err
	} else {
		r.cfg = cfg
	}

	if r.redirector == nil {
		r.redirector = newRedirector(r.cfg, nil)
	}

	return nil
}

func (r *RedirectCommand) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	var mode redirect.Mode
	if r.action == "begin" {
		mode = r.redirector.BeginForward(ctx)
	} else {
		mode = r.redirector.EndForward(ctx)
	}

	fmt.Fprintln(r.out, mode)

	if mode == redirect.ModeFailed {
		return keenerrors.New(keenerrors.ErrCodeRedirect, "redirect "+r.action+" failed")
	}
	if mode == redirect.ModeSucceededNoIPv6 {
		log.Warnf("IPv6 rules could not be applied")
	}
	return nil
}
