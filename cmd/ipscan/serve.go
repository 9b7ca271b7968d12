package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HerbHall/ipscan/internal/config"
	"github.com/HerbHall/ipscan/internal/event"
	"github.com/HerbHall/ipscan/internal/metrics"
	"github.com/HerbHall/ipscan/internal/recon"
	"github.com/HerbHall/ipscan/internal/scanner"
	"github.com/HerbHall/ipscan/internal/server"
	"github.com/HerbHall/ipscan/internal/services"
	"github.com/HerbHall/ipscan/internal/settings"
	"github.com/HerbHall/ipscan/internal/store"
	"github.com/HerbHall/ipscan/internal/version"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and auto-scan scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a.settings)
		},
	}
}

func runServe(ctx context.Context, cfg config.Settings) error {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("ipscan server starting", zap.String("version", version.Short()))

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	settingsRepo, err := services.NewSQLiteSettingsRepository(ctx, st)
	if err != nil {
		return err
	}
	names, err := services.NewSQLiteDeviceNameRepository(ctx, st)
	if err != nil {
		return err
	}
	snapshots, err := services.NewSQLiteSnapshotRepository(ctx, st)
	if err != nil {
		return err
	}

	collector := metrics.New()
	eventLog := logger.Named("events")
	bus := event.NewBus(eventLog)
	defer bus.SubscribeAll(func(_ context.Context, e event.Event) {
		eventLog.Debug("event published",
			zap.String("topic", e.Topic),
			zap.String("source", e.Source),
		)
	})()
	coord := scanner.NewCoordinator(scanner.Options{
		Prober:    newProber(logger),
		Resolver:  newResolver(cfg.Scanner, logger),
		Bus:       bus,
		Metrics:   collector,
		Saver:     snapshots,
		RateLimit: cfg.Scanner.RateLimit,
		Logger:    logger.Named("scanner"),
	})

	module := recon.NewModule(recon.Deps{
		Coordinator: coord,
		Configs:     services.NewScanConfigStore(settingsRepo),
		Names:       names,
		Snapshots:   snapshots,
		Bus:         bus,
		Defaults:    cfg.Scanner.ScanConfig(),
		Logger:      logger.Named("recon"),
	})
	if err := module.Start(ctx); err != nil {
		return err
	}

	srv := server.New(server.Options{
		Addr:       cfg.Server.Addr(),
		Logger:     logger.Named("http"),
		Metrics:    collector.Handler(),
		Middleware: []server.Middleware{collector.Middleware},
		Routes: []server.RouteRegistrar{
			module,
			settings.NewHandler(module, nil, logger.Named("settings")),
		},
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	logger.Info("ipscan server ready", zap.String("addr", cfg.Server.Addr()))

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case serveErr = <-errCh:
	}

	// Stopping the module first discards any in-progress scan.
	module.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("ipscan server stopped")
	return serveErr
}

// newProber builds the layered ICMP/TCP prober, skipping ICMP when this
// process cannot open an ICMP socket.
func newProber(logger *zap.Logger) scanner.Prober {
	mode := scanner.DetectICMPMode()
	if mode == scanner.ICMPUnavailable {
		logger.Warn("ICMP unavailable, probing with TCP connects only")
	} else {
		logger.Info("ICMP probing enabled", zap.Stringer("mode", mode))
	}
	return scanner.NewLayeredProber(scanner.NewPinger(mode), nil, logger.Named("probe"))
}

// newResolver chains PTR lookups with the optional mDNS fallback.
func newResolver(s config.ScannerSettings, logger *zap.Logger) scanner.Resolver {
	ptr := scanner.NewResolver(s.Resolver.Server, s.Resolver.ResolvConf, s.Resolver.Timeout(), logger.Named("resolver"))
	if !s.MDNS.Enabled {
		return ptr
	}
	logger.Info("mDNS name fallback enabled", zap.Duration("timeout", s.MDNS.Timeout()))
	return scanner.ChainResolver{ptr, recon.NewMDNSResolver(s.MDNS.Timeout(), logger.Named("mdns"))}
}
