package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/mailmule/internal/api"
	"github.com/ignite/mailmule/internal/config"
	"github.com/ignite/mailmule/internal/pkg/logger"
	"github.com/ignite/mailmule/internal/publish"
	"github.com/ignite/mailmule/internal/ratelimit"
	"github.com/ignite/mailmule/internal/sender"
	"github.com/ignite/mailmule/internal/subscription"
	"github.com/ignite/mailmule/internal/token"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.RedactPII != nil {
		logger.SetRedactPII(*cfg.Log.RedactPII)
	}

	// Database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Database unreachable: %v", err)
	}
	pingCancel()
	logger.Info("database connected")

	// Outbound email provider
	emailSender, err := buildSender(cfg.Sender)
	if err != nil {
		log.Fatalf("Failed to initialize email sender: %v", err)
	}
	logger.Info("email sender initialized", "provider", cfg.Sender.Provider)

	// Core services: one store, one sender handle, shared by both paths.
	store := subscription.NewStore(db)
	dispatcher, err := subscription.NewDispatcher(emailSender, cfg.Confirmation)
	if err != nil {
		log.Fatalf("Failed to initialize confirmation dispatcher: %v", err)
	}
	service := subscription.NewService(store, token.CryptoGenerator{}, dispatcher)
	fanout := publish.NewFanout(store, emailSender, cfg.Publish.Workers)

	// Optional subscribe rate limiting
	var limiter api.RateLimiter
	if cfg.RateLimit.Enabled && cfg.RateLimit.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, subscribe rate limiting disabled", "error", err)
			redisClient.Close()
		} else {
			limiter = ratelimit.NewLimiter(redisClient, cfg.RateLimit.RequestsPerMinute)
			logger.Info("subscribe rate limiting enabled",
				"requests_per_minute", cfg.RateLimit.RequestsPerMinute)
		}
		pingCancel()
	}

	router := api.SetupRoutes(api.NewHandlers(service, fanout, limiter))

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

func buildSender(cfg config.SenderConfig) (sender.EmailSender, error) {
	switch cfg.Provider {
	case "ses":
		return sender.NewSESSender(cfg)
	default:
		return sender.NewPostmarkSender(cfg), nil
	}
}
