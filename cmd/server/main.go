package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"admission-forecast/internal/cache"
	"admission-forecast/internal/config"
	"admission-forecast/internal/forecast"
	"admission-forecast/internal/handlers"
	"admission-forecast/internal/holiday"
	"admission-forecast/internal/oracle"
	"admission-forecast/internal/repository"
	"admission-forecast/internal/services"
	"admission-forecast/pkg/database"
	"admission-forecast/pkg/logging"
	"admission-forecast/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("admission-forecast-api", version, logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting admission forecast API server", logging.Fields{
		"version":       version,
		"server_host":   cfg.Server.Host,
		"server_port":   cfg.Server.Port,
		"model_backend": cfg.Model.Backend,
		"timezone":      cfg.Forecast.Timezone,
		"timeout":       cfg.Forecast.RequestTimeout.String(),
		"database":      cfg.Database.Enabled,
		"redis":         cfg.Redis.Enabled,
	})

	metricsCollector := metrics.NewCollector("admission_forecast", prometheus.DefaultRegisterer)

	location, err := cfg.Forecast.Location()
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Invalid timezone", logging.Fields{"timezone": cfg.Forecast.Timezone}, err)
	}

	holidays, err := holiday.NewCalendarSource(holiday.Config{
		Country:    cfg.Holiday.Country,
		MinYear:    cfg.Holiday.MinYear,
		MaxYear:    cfg.Holiday.MaxYear,
		ExtraDates: cfg.Holiday.ExtraDates,
	})
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to build holiday calendar", logging.Fields{}, err)
	}
	logger.Info(ctx, "[STARTUP] Holiday calendar loaded", logging.Fields{
		"country":  holidays.Country(),
		"min_year": cfg.Holiday.MinYear,
		"max_year": cfg.Holiday.MaxYear,
	})

	// The model must be usable before the server accepts requests
	startupCtx, cancelStartup := context.WithTimeout(ctx, 30*time.Second)
	model, err := oracle.New(startupCtx, oracle.Config{
		Backend: cfg.Model.Backend,
		URL:     cfg.Model.URL,
		Timeout: cfg.Model.Timeout,
		Path:    cfg.Model.Path,
	}, metricsCollector)
	cancelStartup()
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Prediction model unavailable", logging.Fields{
			"backend": cfg.Model.Backend,
			"url":     cfg.Model.URL,
			"path":    cfg.Model.Path,
		}, err)
	}

	roller := forecast.NewRoller(model, holidays,
		forecast.WithMaxDays(cfg.Forecast.MaxDays),
		forecast.WithTrendWindow(cfg.Forecast.TrendWindow),
	)

	// Optional prediction log
	var repo repository.PredictionRepository
	if cfg.Database.Enabled {
		db, err := database.NewPostgresDB(&database.Config{
			URL:             cfg.Database.URL,
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}, logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
		}
		defer db.Close()
		repo = repository.NewPredictionRepository(db, logger, metricsCollector)
	}

	// Optional forecast cache
	var seriesCache services.SeriesCache
	var cacheCheck handlers.HealthChecker
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to redis", logging.Fields{"addr": cfg.Redis.Addr}, err)
		}
		defer client.Close()
		forecastCache := cache.NewForecastCache(client, cfg.Redis.TTL, logger, metricsCollector)
		seriesCache = forecastCache
		cacheCheck = forecastCache
	}

	// Initialize services
	forecastService := services.NewForecastService(roller, repo, seriesCache, logger, metricsCollector)
	historyService := services.NewHistoryService(repo, logger, metricsCollector)

	// Initialize handlers
	forecastHandler := handlers.NewForecastHandler(forecastService, historyService, handlers.Options{
		Location:       location,
		ModelBackend:   cfg.Model.Backend,
		Cache:          cacheCheck,
		RequestTimeout: cfg.Forecast.RequestTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, logger, metricsCollector)

	// Setup router
	router := mux.NewRouter()
	forecastHandler.RegisterRoutes(router)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
