package main

import (
	"context"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/username/tradejournal/src/config"
	"github.com/username/tradejournal/src/database"
	"github.com/username/tradejournal/src/handlers"
	"github.com/username/tradejournal/src/logger"
	"github.com/username/tradejournal/src/parsers"
	"github.com/username/tradejournal/src/security"
	"github.com/username/tradejournal/src/services"
)

func rateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				logger.L.Warn("Rate limit exceeded",
					"method", r.Method,
					"path", r.URL.Path,
					"remoteAddr", r.RemoteAddr)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Trade import server starting...")

	if len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "driver", config.Cfg.DatabaseDriver)
	db, err := database.InitDB(config.Cfg.DatabaseDriver, config.Cfg.DatabaseDSN)
	if err != nil {
		logger.L.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing services and handlers...")
	registry := parsers.NewDefaultRegistry()
	logger.L.Info("Broker adapters registered", "adapters", strings.Join(registry.IDs(), ","))

	tradeStore := database.NewSQLTradeStore(db, config.Cfg.DatabaseDriver)
	runRepo := database.NewImportRunRepository(db, config.Cfg.DatabaseDriver)
	presetRepo := database.NewPresetRepository(db, config.Cfg.DatabaseDriver)
	authService := security.NewAuthService(config.Cfg.JWTSecret)

	commitService := services.NewCommitService(registry, tradeStore, runRepo, services.CommitConfig{
		UploadTTL:        config.Cfg.UploadTTL,
		DefaultChunkSize: config.Cfg.DefaultChunkSize,
		MaxChunkSize:     config.Cfg.MaxChunkSize,
		BatchSize:        config.Cfg.UpsertBatchSize,
		DefaultTimezone:  config.Cfg.DefaultTimezone,
		DefaultCurrency:  config.Cfg.DefaultCurrency,
	})
	importHandler := handlers.NewImportHandler(commitService, registry, presetRepo, runRepo, tradeStore, config.Cfg.MaxUploadSizeBytes)

	housekeeper := services.NewHousekeeper(runRepo, config.Cfg.UploadTTL)
	if err := housekeeper.Schedule(config.Cfg.HousekeepingSchedule); err != nil {
		logger.L.Error("Invalid HOUSEKEEPING_SCHEDULE", "schedule", config.Cfg.HousekeepingSchedule, "error", err)
		os.Exit(1)
	}
	housekeeper.Start()
	defer housekeeper.Stop()

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	importHandler.Register(rootMux, handlers.AuthMiddleware(authService))

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Trade import server is running"})
			return
		}
		logger.L.Warn("Path not found", "method", r.Method, "path", r.URL.Path)
		http.NotFound(w, r)
	})

	logger.L.Info("Applying global middleware...")
	limiter := rate.NewLimiter(rate.Limit(config.Cfg.RateLimitPerSecond), config.Cfg.RateLimitBurst)
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   config.Cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-None-Match", "X-Request-ID"},
		ExposedHeaders:   []string{"ETag", "X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	finalHandler := corsHandler(handlers.RequestIDMiddleware(rateLimitMiddleware(limiter)(rootMux)))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.L.Info("Server starting", "address", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L.Error("Failed to start server", "error", err)
			stdlog.Fatalf("Failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.L.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.L.Error("Graceful shutdown failed", "error", err)
		return
	}
	logger.L.Info("Server stopped gracefully.")
}
