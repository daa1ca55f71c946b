package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"admission-forecast/internal/config"
	"admission-forecast/pkg/database"
	"admission-forecast/pkg/logging"
	"admission-forecast/pkg/metrics"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	dir := flag.String("dir", "migrations", "Directory containing *.up.sql and *.down.sql files")
	flag.Parse()

	if *direction != "up" && *direction != "down" {
		fmt.Fprintf(os.Stderr, "Invalid direction %q, expected up or down\n", *direction)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("admission-forecast-migrate", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	ctx := context.Background()

	db, err := database.NewPostgresDB(&database.Config{
		URL:      cfg.Database.URL,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	}, logger, metrics.NewCollector("admission_forecast_migrate", prometheus.NewRegistry()))
	if err != nil {
		logger.Fatal(ctx, "[MIGRATE_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	files, err := migrationFiles(*dir, *direction)
	if err != nil {
		logger.Fatal(ctx, "[MIGRATE_ERROR] Failed to list migrations", logging.Fields{"dir": *dir}, err)
	}
	if len(files) == 0 {
		logger.Warn(ctx, "[MIGRATE] No migrations found", logging.Fields{"dir": *dir})
		return
	}

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			logger.Fatal(ctx, "[MIGRATE_ERROR] Failed to read migration file", logging.Fields{"file": file}, err)
		}

		logger.Info(ctx, "[MIGRATE] Running migration", logging.Fields{"file": file})

		if _, err := db.ExecContext(ctx, "migrate", string(content)); err != nil {
			logger.Fatal(ctx, "[MIGRATE_ERROR] Failed to execute migration", logging.Fields{"file": file}, err)
		}
	}

	logger.Info(ctx, "[MIGRATE_COMPLETE] Migrations applied", logging.Fields{
		"direction": *direction,
		"count":     len(files),
	})
}

// migrationFiles returns the migrations for direction; down runs newest first
func migrationFiles(dir, direction string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*."+direction+".sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	if direction == "down" {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}
	return files, nil
}
