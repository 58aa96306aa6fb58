// Command identity-stub runs an in-memory identity service for local
// development of the console.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gestio.app/internal/config"
	"gestio.app/internal/identity/stub"
	"gestio.app/internal/obs"
)

func main() {
	cfg, err := config.LoadStub()
	if err != nil {
		obs.Logger().Fatal("load config", zap.Error(err))
	}
	logger, err := obs.NewLogger(obs.LogConfig{Level: cfg.LogLevel, Dev: cfg.LogDev})
	if err != nil {
		obs.Logger().Fatal("build logger", zap.Error(err))
	}
	defer obs.SetLogger(logger)()
	defer func() { _ = logger.Sync() }()

	if cfg.Secret == config.DevStubSecret {
		logger.Warn("using the built-in development secret")
	}

	idp, err := stub.New(stub.Options{
		Secret:     cfg.Secret,
		AccessTTL:  cfg.AccessTokenTTL(),
		RefreshTTL: cfg.RefreshTokenTTL(),
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("build stub", zap.Error(err))
	}
	if err := idp.SeedDefaults(cfg.SeedPassword); err != nil {
		logger.Fatal("seed accounts", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           idp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()
	logger.Info("identity stub listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.Strings("seeded", []string{stub.SuperadminEmail, stub.SalesEmail}),
	)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
