package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/maksimkurb/keen-dns/src/internal/api"
	"github.com/maksimkurb/keen-dns/src/internal/commands"
	"github.com/maksimkurb/keen-dns/src/internal/log"
)

var (
	version = "dev"
	commit  = "n/a"
	date    = "n/a"
)

func main() {
	ctx := &commands.AppContext{}

	// Define flags
	flag.StringVar(&ctx.ConfigPath, "config", "/opt/etc/keen-dns/keen-dns.conf", "Path to configuration file")
	flag.BoolVar(&ctx.Verbose, "verbose", false, "Enable debug logging")

	// Custom usage message
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Keenetic DNS proxy with query log\n")
		fmt.Fprintf(os.Stderr, "Version: %s (Commit: %s, Date: %s)\n\n", version, commit, date)
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  service                 Run as a service/daemon (DNS proxy, query log, redirect rules and API)\n")
		fmt.Fprintf(os.Stderr, "  redirect begin|end      Insert or remove the DNS redirect rules\n")
		fmt.Fprintf(os.Stderr, "  queries                 Print recently logged queries\n")
		fmt.Fprintf(os.Stderr, "  init-config             Write a configuration file with default values\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if ctx.Verbose {
		log.SetVerbose(true)
	}

	api.Version, api.Commit, api.Date = version, commit, date

	cmds := []commands.Runner{
		commands.CreateServiceCommand(),
		commands.CreateRedirectCommand(),
		commands.CreateQueriesCommand(),
		commands.CreateInitConfigCommand(),
	}

	args := flag.Args()

	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	subcommand := args[0]
	for _, cmd := range cmds {
		if cmd.Name() == subcommand {
			if err := cmd.Init(args[1:], ctx); err != nil {
				log.Fatalf("Failed to initialize command: %v", err)
			}

			if err := cmd.Run(); err != nil {
				log.Fatalf("Failed to run command: %v", err)
			}

			os.Exit(0)
		}
	}

	log.Fatalf("Unknown subcommand: %s", subcommand)
}
