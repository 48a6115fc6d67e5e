package commands

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/maksimkurb/keen-dns/src/internal/api"
	"github.com/maksimkurb/keen-dns/src/internal/config"
	"github.com/maksimkurb/keen-dns/src/internal/dnsproxy"
	"github.com/maksimkurb/keen-dns/src/internal/log"
	"github.com/maksimkurb/keen-dns/src/internal/metrics"
	"github.com/maksimkurb/keen-dns/src/internal/querylog"
	"github.com/maksimkurb/keen-dns/src/internal/redirect"
	"github.com/maksimkurb/keen-dns/src/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func CreateServiceCommand() *ServiceCommand {
	sc := &ServiceCommand{
		fs: flag.NewFlagSet("service", flag.ExitOnError),
	}

	sc.fs.BoolVar(&sc.NoRedirect, "no-redirect", false, "Do not install DNS redirect rules even if enabled in configuration")

	return sc
}

// ServiceCommand runs the DNS proxy with query tracking, traffic redirection
// and the HTTP API until SIGINT or SIGTERM.
type ServiceCommand struct {
	fs         *flag.FlagSet
	cfg        *config.Config
	ctx        *AppContext
	NoRedirect bool

	registry prometheus.Registerer
	gatherer prometheus.Gatherer

	store      *storage.QueryStore
	tracker    *querylog.Tracker
	dnsProxy   *dnsproxy.DNSProxy
	redirector *redirect.Redirector
	apiServer  *api.Server
}

func (s *ServiceCommand) Name() string {
	return s.fs.Name()
}

func (s *ServiceCommand) Init(args []string, ctx *AppContext) error {
	s.ctx = ctx

	if err := s.fs.Parse(args); err != nil {
		return err
	}

	if cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath); err != nil {
		return err
	} else {
		s.cfg = cfg
	}

	s.registry = prometheus.DefaultRegisterer
	s.gatherer = prometheus.DefaultGatherer

	return nil
}

func (s *ServiceCommand) Run() error {
	if s.cfg.General.Verbose {
		log.SetVerbose(true)
	}
	if path := s.cfg.GetAbsLogFilePath(); path != "" {
		log.SetLogFile(path, s.cfg.General.LogMaxSizeMB, s.cfg.General.LogMaxBackups)
		defer log.Close()
	}

	log.Infof("Starting keen-dns service...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.start(); err != nil {
		s.shutdown()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if s.apiServer != nil {
		g.Go(func() error {
			return Supervise(gctx, RunnerConfig{
				Name:           "API server",
				RestartBackoff: 2 * time.Second,
				MaxBackoff:     30 * time.Second,
			}, func(context.Context) error {
				return s.apiServer.Serve()
			})
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := s.apiServer.Stop(shutdownCtx); err != nil {
				log.Errorf("Error during API server shutdown: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return s.handleSignals(gctx)
	})

	log.Infof("Service started successfully.")
	log.Infof("Send SIGHUP to flush the answer cache and the query log")

	err := g.Wait()
	log.Infof("Shutting down keen-dns service...")
	s.shutdown()
	log.Infof("Service stopped")
	return err
}

// start creates and starts all components enabled in the configuration.
func (s *ServiceCommand) start() error {
	m := metrics.New(s.registry)

	if s.cfg.QueryLog.Enabled {
		store, err := storage.Open(s.cfg.GetAbsDatabasePath())
		if err != nil {
			return fmt.Errorf("failed to open query database: %w", err)
		}
		s.store = store
	}

	opts := querylog.Options{
		Persist:       s.cfg.QueryLog.Enabled,
		LogToConsole:  s.cfg.QueryLog.LogToConsole,
		FlushInterval: s.cfg.QueryLog.FlushInterval(),
		Metrics:       m,
	}
	if s.store != nil {
		opts.Store = s.store
	}
	tracker, err := querylog.NewTracker(opts)
	if err != nil {
		return fmt.Errorf("failed to create query tracker: %w", err)
	}
	s.tracker = tracker

	proxy, err := dnsproxy.NewDNSProxy(dnsproxy.ProxyConfigFromAppConfig(s.cfg), s.tracker, m)
	if err != nil {
		return fmt.Errorf("failed to create DNS proxy: %w", err)
	}
	if err := proxy.Start(); err != nil {
		return fmt.Errorf("failed to start DNS proxy: %w", err)
	}
	s.dnsProxy = proxy

	if s.cfg.Redirect.Enabled && !s.NoRedirect {
		s.redirector = newRedirector(s.cfg, m)
		switch mode := s.redirector.BeginForward(context.Background()); mode {
		case redirect.ModeFailed:
			log.Errorf("Failed to redirect DNS traffic, devices will not use keen-dns")
		case redirect.ModeSucceededNoIPv6:
			log.Warnf("DNS traffic redirected for IPv4 only")
		default:
			log.Infof("DNS traffic redirection: %s", mode)
		}
	} else {
		log.Infof("DNS traffic redirection is disabled")
	}

	if s.cfg.API.Enabled {
		deps := api.Dependencies{
			Tracker: s.tracker,
			Checks:  s.dnsProxy,
			Proxy:   s.dnsProxy,
		}
		if s.store != nil {
			deps.Queries = s.store
		}
		if s.redirector != nil {
			deps.Redirect = s.redirector
		}

		s.apiServer = api.NewServer(s.cfg.API.Listen, api.NewRouter(deps, s.gatherer))
		if err := s.apiServer.Listen(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		log.Infof("API access restricted to private subnets only")
	} else {
		log.Infof("HTTP API is disabled")
	}

	return nil
}

// handleSignals flushes the answer cache and the query log on SIGHUP until
// ctx is done.
func (s *ServiceCommand) handleSignals(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sigChan:
			log.Infof("Received SIGHUP, flushing answer cache and query log...")
			s.dnsProxy.FlushCache()
			if result, err := s.tracker.Flush(); err != nil {
				log.Errorf("Failed to flush query log: %v", err)
			} else {
				log.Infof("Query log flushed: %d inserted, %d updated", result.Inserted, result.Updated)
			}
		}
	}
}

// shutdown removes the redirect rules first so devices fall back to the
// system resolver, then stops the proxy and writes the remaining queries.
func (s *ServiceCommand) shutdown() {
	if s.redirector != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if mode := s.redirector.EndForward(ctx); mode == redirect.ModeFailed {
			log.Errorf("Failed to remove DNS redirect rules, run \"keen-dns redirect end\" manually")
		}
		cancel()
		s.redirector = nil
	}

	if s.dnsProxy != nil {
		if err := s.dnsProxy.Stop(); err != nil {
			log.Errorf("Failed to stop DNS proxy: %v", err)
		}
		s.dnsProxy = nil
	}

	if s.tracker != nil {
		s.tracker.Cleanup()
		s.tracker = nil
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Errorf("Failed to close query database: %v", err)
		}
		s.store = nil
	}
}
