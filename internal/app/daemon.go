package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bnema/zerowrap"

	"revp/internal/adapters/in/http/admin"
	"revp/internal/adapters/in/http/middleware"
	"revp/internal/adapters/out/caddy"
	"revp/internal/adapters/out/dockerlocal"
	"revp/internal/adapters/out/sshdocker"
	"revp/internal/adapters/out/staticstore"
	"revp/internal/config"
	"revp/internal/usecase/discovery"
	"revp/internal/usecase/reconcile"
	"revp/internal/usecase/routes"
)

// Run starts the reconciliation daemon: the scan/diff/write loop plus the
// operator API server. It blocks until the context is cancelled or a
// shutdown signal arrives, and lets an in-flight cycle finish before
// returning.
func Run(ctx context.Context, configPath string) error {
	_, cfg, err := initConfig(configPath)
	if err != nil {
		return err
	}

	log, cleanup, err := initLogger(cfg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	ctx = zerowrap.WithCtx(ctx, log)
	log.Info().
		Str(zerowrap.FieldLayer, "app").
		Str("caddy_admin_url", cfg.Caddy.AdminURL).
		Dur("interval", cfg.Monitor.Interval).
		Msg("starting revp")

	svc, err := createServices(cfg, log)
	if err != nil {
		return err
	}

	// An unreachable proxy at startup is not fatal; cycles keep retrying
	// until it comes up.
	if err := svc.proxy.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("proxy admin API not reachable yet")
	}

	if err := svc.routeSvc.LoadStatic(); err != nil {
		return err
	}

	handler := admin.NewHandler(svc.routeSvc, svc.scanner, svc.proxy, admin.ConfigInfo{
		AdminURL:       cfg.Caddy.AdminURL,
		ServerName:     cfg.Caddy.ServerName,
		Interval:       cfg.Monitor.Interval,
		LabelNamespace: cfg.Monitor.LabelNamespace,
		HostsFile:      cfg.HostsFilePath(),
	}, log)

	return runDaemon(ctx, cfg, svc, handler, log)
}

// services holds the wired adapters and use cases.
type services struct {
	proxy      *caddy.Client
	routeSvc   *routes.Service
	scanner    *discovery.Scanner
	reconciler *reconcile.Reconciler
}

func createServices(cfg Config, log zerowrap.Logger) (*services, error) {
	model := caddy.NewModel(cfg.Monitor.DNSResolver)
	proxy := caddy.NewClient(cfg.Caddy.AdminURL, cfg.Caddy.ServerName, model, log)

	store := staticstore.NewStore(cfg.RoutesFilePath(), log)
	routeSvc := routes.NewService(proxy, model, store, log)

	sshLister := sshdocker.NewLister(log, sshdocker.WithDialTimeout(cfg.Monitor.SSHTimeout))
	localLister, err := dockerlocal.NewLister()
	if err != nil {
		return nil, log.WrapErr(err, "failed to create local Docker lister")
	}

	scanner := discovery.NewScanner(
		sshLister,
		localLister,
		cfg.HostsFilePath(),
		cfg.Monitor.LabelNamespace,
		discovery.NewStatusRegistry(),
		log,
	)

	reconciler := reconcile.New(proxy, model, scanner, routeSvc, cfg.Monitor.Interval, log)

	return &services{
		proxy:      proxy,
		routeSvc:   routeSvc,
		scanner:    scanner,
		reconciler: reconciler,
	}, nil
}

func runDaemon(ctx context.Context, cfg Config, svc *services, handler http.Handler, log zerowrap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/admin/", handler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","component":"revp"}`))
	})

	chain := middleware.Chain(
		middleware.PanicRecovery(log),
		middleware.RequestLogger(log),
		middleware.SecurityHeaders,
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           chain(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- svc.reconciler.Run(loopCtx)
	}()

	log.Info().
		Str(zerowrap.FieldLayer, "app").
		Int("port", cfg.Server.Port).
		Msg("operator API server listening")

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("operator API server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		log.Info().Msg("context cancelled, shutting down")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("operator API server shutdown error")
	}

	// Let a cycle in flight finish before exiting.
	stopLoop()
	<-loopDone

	log.Info().Msg("revp stopped")
	return nil
}

// Check validates the configuration and connectivity without starting the
// daemon: config parses, the proxy admin API answers, the host inventory
// and static route file load.
func Check(ctx context.Context, configPath string) error {
	_, cfg, err := initConfig(configPath)
	if err != nil {
		return err
	}

	log, cleanup, err := initLogger(cfg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	model := caddy.NewModel(cfg.Monitor.DNSResolver)
	proxy := caddy.NewClient(cfg.Caddy.AdminURL, cfg.Caddy.ServerName, model, log)

	if err := proxy.Ping(ctx); err != nil {
		return log.WrapErr(err, "proxy admin API check failed")
	}
	rev, err := proxy.Read(ctx)
	if err != nil {
		return log.WrapErr(err, "route collection read failed")
	}

	owned := 0
	for _, e := range rev.Entries {
		if e.Spec.Owned() {
			owned++
		}
	}
	log.Info().
		Int(zerowrap.FieldCount, len(rev.Entries)).
		Int("owned", owned).
		Bool("versioned", rev.Token != "").
		Msg("route collection reachable")

	hosts, err := config.LoadHosts(cfg.HostsFilePath())
	if err != nil {
		return log.WrapErr(err, "host inventory check failed")
	}
	log.Info().Int(zerowrap.FieldCount, len(hosts)).Str(zerowrap.FieldPath, cfg.HostsFilePath()).Msg("host inventory loaded")

	static, err := staticstore.NewStore(cfg.RoutesFilePath(), log).Load()
	if err != nil {
		return log.WrapErr(err, "static route file check failed")
	}
	log.Info().Int(zerowrap.FieldCount, len(static)).Str(zerowrap.FieldPath, cfg.RoutesFilePath()).Msg("static routes loaded")

	return nil
}
