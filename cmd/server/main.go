package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"mapping-service/internal/database"
	"mapping-service/internal/handlers"
	"mapping-service/internal/lookup"
)

func main() {
	// Load .env file if it exists (optional - fails silently if not found)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{}))
	slog.SetDefault(logger)

	slog.Info("Starting CDM mapping service")

	db, err := database.Connect(database.NewConfigFromEnv())
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := lookup.SeedDefaults(db); err != nil {
		slog.Error("Failed to seed system lookups", "error", err)
		os.Exit(1)
	}

	uploadDir := getEnvOrDefault("UPLOAD_DIR", "data/uploads")
	workDir := getEnvOrDefault("MAPPING_WORK_DIR", "data/generated")

	handler, err := handlers.New(db, uploadDir, workDir)
	if err != nil {
		slog.Error("Failed to initialize handlers", "error", err)
		os.Exit(1)
	}

	router := gin.Default()
	handler.RegisterRoutes(router)

	// Abandoned sessions leave generated artifacts behind; sweep them on a
	// schedule.
	workDirTTL := parseDurationOrDefault(os.Getenv("WORK_DIR_TTL"), 24*time.Hour)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@hourly", func() {
		handler.XMLGenerator().PurgeStale(workDirTTL)
	}); err != nil {
		slog.Error("Failed to schedule work directory cleanup", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	port := getEnvOrDefault("PORT", "5000")
	slog.Info("Listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDurationOrDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration, using default", "value", raw, "default", fallback)
		return fallback
	}
	return d
}
