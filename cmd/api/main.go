package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"bookshelf.org/internal/auth"
	"bookshelf.org/internal/config"
	"bookshelf.org/internal/db"
	"bookshelf.org/internal/httpapi"
	"bookshelf.org/internal/obs"
	"bookshelf.org/internal/store/memory"
	"bookshelf.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(2)
	}

	logger := obs.NewLogger(os.Stdout, obs.ParseLevel(cfg.LogLevel))
	obs.SetLogger(logger)
	slog.SetDefault(logger)

	obs.Init()
	obs.SetBuildInfo(version, commit)

	if err := run(cfg, logger); err != nil {
		logger.Error("bookshelf-api stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proxies, err := httpapi.ParseTrustedProxies(cfg.TrustedProxies())
	if err != nil {
		return err
	}

	var (
		store auth.Store
		ready httpapi.Readiness = httpapi.ReadyProbe{}
	)
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory credential store; accounts are lost on restart")
		store = memory.New()
	default:
		pool, err := db.Open(ctx, cfg.DB, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := obs.RegisterDBStats(pool.DB(), cfg.DB.Name); err != nil {
			logger.Warn("register db stats collector", "error", err)
		}
		store = pg.New(pool)
		ready = httpapi.ReadyProbe{Pool: pool}
	}

	svc, err := auth.NewService(store,
		auth.WithTokenSecret(cfg.TokenSecret),
		auth.WithIssuer(cfg.TokenIssuer),
		auth.WithTokenTTL(cfg.TokenTTL),
		auth.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	api := httpapi.New(httpapi.Options{
		Auth:           svc,
		Ready:          ready,
		Version:        version,
		CORSOrigins:    cfg.CORSOrigins(),
		RateBurst:      cfg.RateBurst,
		RatePerSec:     cfg.RatePerSec,
		TrustedProxies: proxies,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		grpcSrv = grpc.NewServer()
		httpapi.NewHealthServer(ready).Register(grpcSrv)
		go func() {
			logger.Info("grpc health listening", "addr", lis.Addr().String())
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
		logger.Error("server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	logger.Info("stopped")
	return serveErr
}
