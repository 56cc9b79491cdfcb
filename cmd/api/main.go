package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"storefront-cart/internal/config"
	"storefront-cart/internal/httpserver"
	"storefront-cart/internal/session"
)

// newLogger builds the application-wide zap logger.
func newLogger() *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(os.Stdout),
		zapcore.InfoLevel,
	)
	return zap.New(core).Sugar()
}

func main() {
	// Missing .env is fine; the environment may be set by the runtime.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	logger := newLogger()
	defer logger.Sync()

	verifier := session.NewTokenVerifier(cfg.JWTSecret)

	srv, err := httpserver.New(httpserver.Deps{
		Config:   cfg,
		Verifier: verifier,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatalw("init server", "error", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infow("starting http server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Infow("received signal, shutting down", "signal", sig.String())
	case err := <-serverErr:
		logger.Errorw("server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorw("graceful shutdown failed", "error", err)
	} else {
		logger.Infow("server stopped")
	}
}
