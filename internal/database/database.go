package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mapping-service/internal/models"
)

// Config holds the database connection settings, read from the environment.
type Config struct {
	Driver   string // "postgres" or "sqlite"
	Host     string
	User     string
	Password string
	Name     string
	Port     string
	Path     string // sqlite file path
}

// NewConfigFromEnv builds a Config from DB_* environment variables. The
// default is a local sqlite file so the service runs without a postgres
// instance.
func NewConfigFromEnv() Config {
	cfg := Config{
		Driver:   getEnvOrDefault("DB_DRIVER", "sqlite"),
		Host:     os.Getenv("DB_HOST"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		Name:     os.Getenv("DB_NAME"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		Path:     getEnvOrDefault("DB_PATH", "mapping-service.db"),
	}
	return cfg
}

// Connect opens the gorm connection and migrates the schema.
func Connect(cfg Config) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Warn,
			Colorful:      false,
		},
	)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema migrations for all persisted models.
// This will create tables, missing foreign keys, constraints, columns and
// indexes. It will NOT delete unneeded columns.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.EtlMapping{},
		&models.SourceTable{},
		&models.SourceField{},
		&models.ScanSample{},
		&models.Lookup{},
		&models.ScanReportFile{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database schema: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
