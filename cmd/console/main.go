package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"gestio.app/internal/account"
	"gestio.app/internal/config"
	"gestio.app/internal/guard"
	"gestio.app/internal/httpapi"
	"gestio.app/internal/identity"
	"gestio.app/internal/kvstore"
	"gestio.app/internal/obs"
	"gestio.app/internal/profile"
	"gestio.app/internal/session"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal("load config", zap.Error(err))
	}
	logger, err := obs.NewLogger(obs.LogConfig{Level: cfg.LogLevel, Dev: cfg.LogDev})
	if err != nil {
		obs.Logger().Fatal("build logger", zap.Error(err))
	}
	defer obs.SetLogger(logger)()
	defer func() { _ = logger.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := kvstore.OpenBackend(ctx, cfg)
	if err != nil {
		logger.Fatal("open store", zap.String("store", cfg.Store), zap.Error(err))
	}
	kv := kvstore.New(backend)
	defer func() { _ = kv.Close() }()

	profiles := profile.New(kv)
	tokens := profile.NewTokens(kv)
	cache := session.New()
	if p := profiles.Restore(ctx); p != nil {
		logger.Info("restored profile", zap.String("user", p.Email))
	}

	// The hook needs the account service, which needs the client.
	var accounts *account.Service
	client, err := identity.New(cfg.IdentityURL, tokens,
		identity.WithHTTPClient(&http.Client{Timeout: cfg.IdentityCallTimeout()}),
		identity.WithUnauthorizedHook(func(ctx context.Context) { accounts.SignOutLocally(ctx) }),
	)
	if err != nil {
		logger.Fatal("identity client", zap.Error(err))
	}
	accounts = account.New(client, profiles, tokens, cache)

	api := httpapi.New(httpapi.Deps{
		Ready:    httpapi.ReadyProbe{Store: kv},
		Profiles: profiles,
		Tokens:   tokens,
		Session:  cache,
		Guard: guard.New(cache, tokens, client,
			guard.WithSignInPath(cfg.SignInPath),
			guard.WithTimeout(cfg.IdentityCallTimeout()),
		),
		Accounts: accounts,
		Version:  version,
	}, httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSecond))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var (
		grpcSrv *grpc.Server
		health  *httpapi.HealthReporter
	)
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("grpc listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
		}
		grpcSrv = grpc.NewServer()
		health = httpapi.NewHealthReporter(api)
		health.Register(grpcSrv)
		go health.Run(ctx, 15*time.Second)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				logger.Error("grpc serve", zap.Error(err))
			}
		}()
		logger.Info("grpc health listening", zap.String("addr", cfg.GRPCAddr))
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()
	logger.Info("starting gestio-console",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
		zap.String("store", cfg.Store),
		zap.String("identity", cfg.IdentityURL),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if health != nil {
		health.Shutdown()
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
