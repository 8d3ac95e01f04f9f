package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	grpclib "google.golang.org/grpc"

	grpcadapter "github.com/simaogato/lnmomo-backend/internal/adapter/grpc"
	httpadapter "github.com/simaogato/lnmomo-backend/internal/adapter/http"
	"github.com/simaogato/lnmomo-backend/internal/scheduler"
	"github.com/simaogato/lnmomo-backend/internal/usecase/simulate"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the optional gRPC admin API and the background drivers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	errCh := make(chan error, 4)

	// 1. Event relay
	if a.relay != nil {
		go func() {
			if err := a.relay.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	// 2. Demo payer for simulated invoices
	if cfg.Demo.Enabled {
		driver := simulate.NewDriver(a.bus, a.simulated, a.reconcile, simulate.Config{
			MinDelay:   cfg.Demo.MinDelay,
			MaxDelay:   cfg.Demo.MaxDelay,
			PaidChance: cfg.Demo.PaidChance,
			Origin:     a.bus.Origin(),
		}, logger)
		go func() { _ = driver.Run(ctx) }()
	}

	// 3. Scheduled sweep
	var sweeper *scheduler.Sweeper
	if cfg.Sweep.Enabled {
		sweeper, err = scheduler.NewSweeper(a.sweep, cfg.Sweep.Schedule, 0, logger)
		if err != nil {
			return err
		}
		sweeper.Start()
	}

	// 4. HTTP API
	api := httpadapter.NewServer(httpadapter.Deps{
		Issuer:     a.issuance,
		Reconciler: a.reconcile,
		Sweeper:    a.sweep,
		Catalog:    a.catalog,
		Events:     a.bus,
		Store:      a.repo,
	}, httpadapter.Options{
		APIToken:       cfg.Server.APIToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		CheckTimeout:   cfg.Server.CheckTimeout,
		SweepTimeout:   cfg.Server.SweepTimeout,
		Logger:         logger,
	})
	// Write deadlines are per route, set by the API's Options
	httpServer := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
	}
	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 5. gRPC admin API
	var grpcServer *grpclib.Server
	if cfg.Server.GRPCPort > 0 {
		interceptors := []grpclib.UnaryServerInterceptor{grpcadapter.LoggingInterceptor(logger)}
		if cfg.Server.APIToken != "" {
			interceptors = append(interceptors, grpcadapter.AuthInterceptor(cfg.Server.APIToken))
		} else {
			logger.Warn("gRPC admin API runs without authentication; set server.api_token")
		}
		grpcServer = grpclib.NewServer(grpclib.ChainUnaryInterceptor(interceptors...))
		grpcadapter.RegisterReconciliationServer(grpcServer, grpcadapter.NewServer(a.issuance, a.reconcile, a.sweep))

		lis, err := net.Listen("tcp", cfg.Server.GRPCAddress())
		if err != nil {
			return err
		}
		go func() {
			logger.Info("grpc server listening", "addr", lis.Addr().String())
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	// Graceful shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("component failed, shutting down", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}
	if grpcServer != nil {
		stopGRPC(shutdownCtx, grpcServer)
	}
	if sweeper != nil {
		if err := sweeper.Stop(shutdownCtx); err != nil {
			logger.Warn("sweep scheduler shutdown", "error", err)
		}
	}
	logger.Info("stopped")
	return nil
}

// stopGRPC drains in-flight calls, forcing a stop when ctx expires
func stopGRPC(ctx context.Context, srv *grpclib.Server) {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		srv.Stop()
	}
}
