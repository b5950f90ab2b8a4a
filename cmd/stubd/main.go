package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/homelens/client/internal/config"
	"github.com/homelens/client/internal/logging"
	"github.com/homelens/client/internal/stub"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Stub()
	if err != nil {
		logging.Must("").Fatal("load configuration", zap.Error(err))
	}

	logger := logging.Must(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	otpStore, refreshStore, users := buildStores(cfg, logger)

	signer := stub.NewTokenSigner(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	otpService := stub.NewOTPService(otpStore, cfg.DevMode, logger)
	server := stub.NewServer(signer, otpService, refreshStore, users, cfg.RefreshTTL, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("stub backend starting", zap.String("port", cfg.Port), zap.Bool("devMode", cfg.DevMode))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}

// buildStores picks redis-backed stores when REDIS_ADDR is set,
// in-memory ones otherwise
func buildStores(cfg *config.StubConfig, logger *zap.Logger) (stub.OTPStore, stub.RefreshStore, stub.UserDirectory) {
	if cfg.RedisAddr == "" {
		logger.Info("using in-memory stores")
		return stub.NewMemoryOTPStore(), stub.NewMemoryRefreshStore(), stub.NewMemoryUserDirectory()
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal("redis unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	logger.Info("using redis stores", zap.String("addr", cfg.RedisAddr))
	return stub.NewRedisOTPStore(client), stub.NewRedisRefreshStore(client), stub.NewRedisUserDirectory(client)
}
