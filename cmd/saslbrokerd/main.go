// Command saslbrokerd runs the SASL authentication broker: it terminates
// the IRC S2S SASL sub-protocol on behalf of services that don't speak
// SASL themselves, verifying credentials against the account store and
// reporting the outcome back over the server link.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ircservices/saslbroker/internal/adminapi"
	adminauth "github.com/ircservices/saslbroker/internal/adminapi/auth"
	"github.com/ircservices/saslbroker/internal/engine"
	"github.com/ircservices/saslbroker/internal/finalizer"
	"github.com/ircservices/saslbroker/internal/link"
	"github.com/ircservices/saslbroker/internal/logger"
	"github.com/ircservices/saslbroker/internal/metrics"
	"github.com/ircservices/saslbroker/internal/policy"
	"github.com/ircservices/saslbroker/internal/reaper"
	"github.com/ircservices/saslbroker/internal/session"
	"github.com/ircservices/saslbroker/internal/telemetry"
	"github.com/ircservices/saslbroker/pkg/config"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `saslbrokerd - SASL authentication broker for IRC services

Usage:
  saslbrokerd [flags]

Flags:
  --config string   Path to config file (default: $XDG_CONFIG_HOME/saslbroker/config.yaml)
  --version         Show version information

Environment Variables:
  All configuration options can be overridden using environment variables.
  Format: SASLBROKER_<SECTION>_<KEY> (use underscores for nested keys)

  Example:
    SASLBROKER_LOGGING_LEVEL=DEBUG saslbrokerd
`

func main() {
	configFile := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if *showVersion {
		fmt.Printf("saslbrokerd %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}

	if *configFile == "" && !config.DefaultConfigExists() {
		fmt.Fprintf(os.Stderr, "Error: no configuration file found at default location: %s\n\n", config.GetDefaultConfigPath())
		fmt.Fprintln(os.Stderr, "Initialize one with: saslbrokerctl init")
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "saslbrokerd",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "saslbrokerd",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		log.Fatalf("failed to initialize profiling: %v", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("saslbrokerd starting", "version", version, "commit", commit)

	registerer := prometheus.NewRegistry()
	m := metrics.New(registerer)

	accounts, err := config.CreateAccountStore(ctx, cfg.AccountStore)
	if err != nil {
		log.Fatalf("failed to initialize account store: %v", err)
	}

	mechanisms, err := config.InitializeRegistry(cfg, accounts, logger.With("component", "mechanism"))
	if err != nil {
		log.Fatalf("failed to initialize mechanism registry: %v", err)
	}
	logger.Info("mechanism registry initialized", "mechanisms", mechanisms.Names())

	checker := policy.New(accounts)
	limiter := finalizer.NewMapLimiter(cfg.Policy.MaxLogins)
	login := finalizer.New(checker, limiter, accounts, logger.With("component", "finalizer"))

	sessions := session.NewStore()
	eng := engine.New(mechanisms, sessions, login, cfg.Link.ServerName, cfg.Policy.HideServerNames, logger.With("component", "engine"))

	rp := config.CreateReaper(sessions, cfg.Reaper,
		reaper.WithRecorder(m),
		reaper.WithLogger(logger.With("component", "reaper")),
		reaper.WithReaped(login),
		reaper.WithTimeoutLogging(!cfg.Link.UsesPersistentUIDs),
	)

	lk := link.New(link.Config{
		Network:             cfg.Link.Network,
		Address:             cfg.Link.Address,
		ReconnectMinBackoff: cfg.Link.ReconnectMinBackoff,
		ReconnectMaxBackoff: cfg.Link.ReconnectMaxBackoff,
	}, eng, logger.With("component", "link"))

	var servers []*http.Server

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.Address, Handler: mux}
		servers = append(servers, srv)
		go serveOrLog(srv, "metrics")
	} else {
		logger.Info("metrics server disabled")
	}

	if cfg.AdminAPI.Enabled {
		jwtSvc, err := adminauth.NewJWTService(adminauth.Config{
			Secret:        cfg.AdminAPI.JWT.GetJWTSecret(),
			Issuer:        cfg.AdminAPI.JWT.Issuer,
			TokenDuration: cfg.AdminAPI.JWT.TokenDuration,
		})
		if err != nil {
			log.Fatalf("failed to initialize admin API JWT service: %v", err)
		}
		router := adminapi.NewRouter(sessions, mechanisms, jwtSvc, logger.With("component", "adminapi"))
		srv := &http.Server{Addr: cfg.AdminAPI.Address, Handler: router}
		servers = append(servers, srv)
		go serveOrLog(srv, "admin API")
	} else {
		logger.Info("admin API disabled")
	}

	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		rp.Run(ctx)
	}()

	linkDone := make(chan error, 1)
	go func() {
		linkDone <- lk.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("saslbrokerd is running")

	linkExited := false
	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
	case err := <-linkDone:
		linkExited = true
		if err != nil {
			logger.Error("server link exited with error", "error", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "addr", srv.Addr, "error", err)
		}
	}

	<-reaperDone
	if !linkExited {
		<-linkDone
	}

	logger.Info("saslbrokerd stopped")
}

func serveOrLog(srv *http.Server, name string) {
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error(name+" server error", "addr", srv.Addr, "error", err)
	}
}
