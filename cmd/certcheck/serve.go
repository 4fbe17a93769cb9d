package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/gateway-fm/certcheck/internal/certificate"
	"github.com/gateway-fm/certcheck/internal/config"
	"github.com/gateway-fm/certcheck/internal/health"
	"github.com/gateway-fm/certcheck/internal/kill_switch"
	"github.com/gateway-fm/certcheck/internal/metrics"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Check the configured domain on a schedule and serve the status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("http", ":8080", "HTTP server address")
	flags.String("grpc", ":50051", "gRPC health server address")
	flags.String("db", "certcheck.db", "SQLite database path")
	flags.String("cron", "", "cron expression for checks, overrides --interval")
	flags.Duration("interval", 24*time.Hour, "time between checks")
	flags.Bool("run-on-start", false, "check immediately on startup")
	flags.String("kill-switch-api-key", "", "API key for the kill endpoint")
	flags.String("kill-restart-api-key", "", "API key for the restart endpoint")

	if err := bindFlags(v, flags, map[string]string{
		config.KeyHTTPAddr:          "http",
		config.KeyGRPCAddr:          "grpc",
		config.KeyDBPath:            "db",
		config.KeyScheduleCron:      "cron",
		config.KeyScheduleInterval:  "interval",
		config.KeyRunOnStart:        "run-on-start",
		config.KeyKillSwitchAPIKey:  "kill-switch-api-key",
		config.KeyKillRestartAPIKey: "kill-restart-api-key",
	}); err != nil {
		panic(err)
	}
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	db, err := certificate.NewSqliteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "err", closeErr)
		}
	}()

	if err := certificate.HashAndStoreKey(db, certificate.CredentialKillKey, cfg.KillSwitchAPIKey); err != nil {
		return fmt.Errorf("failed to hash kill switch API key: %w", err)
	}
	if err := certificate.HashAndStoreKey(db, certificate.CredentialRestartKey, cfg.KillRestartAPIKey); err != nil {
		return fmt.Errorf("failed to hash kill restart API key: %w", err)
	}

	clock := clockwork.NewRealClock()
	reporter := metrics.NewPrometheusReporter()
	service := certificate.NewService(db, newChecker(), newDispatcher(cfg, clock),
		certificate.WithReporter(reporter),
		certificate.WithServiceClock(clock),
		certificate.WithCheckTimeout(cfg.CheckTimeout),
	)
	if err := service.SetTarget(cfg.Domain, cfg.To); err != nil {
		return fmt.Errorf("failed to store check target: %w", err)
	}
	slog.Info("configured check", "domain", cfg.Domain, "to", cfg.To, "cron", cfg.Cron, "interval", cfg.Interval)

	g, gctx := errgroup.WithContext(ctx)

	healthService := health.NewService(gctx)
	updater := metrics.NewUpdater(service, reporter)
	updater.Start(gctx)

	scheduler, err := certificate.NewScheduler(gctx, service, certificate.Schedule{
		Cron:       cfg.Cron,
		Interval:   cfg.Interval,
		RunOnStart: cfg.RunOnStart,
	}, clock)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	grpcServer := grpc.NewServer()
	healthService.RegisterGRPC(grpcServer)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	certificate.NewAPIServer(service, kill_switch.New(kill_switch.DefaultConfig, db), updater.Trigger).RegisterHandlers(router)
	health.NewApi(healthService).RegisterHandlers(router)
	reporter.WireUpHttpMetrics(router)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return gctx
		},
	}

	g.Go(func() error {
		scheduler.Start()
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
		}
		slog.Info("gRPC health server listening", "address", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("http server listening", "address", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")
		healthService.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "err", err)
		}
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			slog.Warn("shutdown timeout exceeded, forcing gRPC stop")
			grpcServer.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("shutdown complete")
	return nil
}
