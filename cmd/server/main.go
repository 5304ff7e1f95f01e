package main

import (
	"context"   // context package is needed for Redis operations
	"errors"    // Server shutdown classification
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Graceful shutdown
	"syscall"   // SIGTERM
	"time"      // Shutdown timeout

	"storefront_ledger/internal/api"      // Custom package for API handlers
	"storefront_ledger/internal/config"   // Custom package for configuration
	"storefront_ledger/internal/db"       // Connection and transaction runner
	"storefront_ledger/internal/funding"  // Request lifecycle
	"storefront_ledger/internal/identity" // Identity resolution
	"storefront_ledger/internal/ledger"   // Balance ledger
	"storefront_ledger/internal/notify"   // Post-commit notifications

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// setupLogger applies LOG_FORMAT and LOG_LEVEL
func setupLogger(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// setupNotifier publishes to RabbitMQ when configured and always logs events
func setupNotifier(cfg *config.Config) (*notify.Dispatcher, func()) {
	sinks := []notify.Sink{notify.LogSink{}}
	cleanup := func() {}
	if cfg.RabbitMQURL != "" {
		pub, err := notify.NewAMQPPublisher(cfg.RabbitMQURL, cfg.NotifyExchange)
		if err != nil {
			// Notifications are best-effort; the ledger runs without a broker
			logrus.WithError(err).Warn("RabbitMQ unavailable, notifications are logged only")
		} else {
			sinks = append(sinks, pub)
			cleanup = pub.Close
		}
	}
	return notify.NewDispatcher(cfg.NotifyBuffer, sinks...), cleanup
}

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration
	setupLogger(cfg)           // Setup logger

	if cfg.JWTSecret == "" {
		logrus.Fatal("JWT_SECRET is required")
	}

	// Connect to the database
	gdb, err := db.Open(cfg.DSN())
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})
	defer redisClient.Close()

	// Test Redis connection
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	dispatcher, closeBroker := setupNotifier(cfg)
	defer closeBroker()
	defer dispatcher.Close() // Drain pending events before the broker closes

	// Core services
	resolver := identity.NewResolver(gdb)
	l := ledger.New(db.NewRunner(gdb, cfg.TxMaxRetries), dispatcher)
	lifecycle := funding.New(l, resolver, dispatcher)

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default() // Gin router instance
	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}
	api.Register(r, api.Deps{
		DB:        gdb,
		Redis:     redisClient,
		Resolver:  resolver,
		Ledger:    l,
		Lifecycle: lifecycle,
		JWTSecret: cfg.JWTSecret,
		JWTIssuer: cfg.JWTIssuer,
		CacheTTL:  cfg.CacheTTL,
	})

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r}
	go func() {
		logrus.Infof("Server running on %s", cfg.AppPort) // Log server start
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	// Wait for a shutdown signal, then let in-flight transactions finish
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("shutdown: %v", err)
	}
}
