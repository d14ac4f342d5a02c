package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds all runtime configuration, constructed once at process start
// and passed to the components that need it.
type Config struct {
	Port        string
	Environment string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	JWTSecret          string
	AccessTokenExpire  time.Duration
	RefreshTokenExpire time.Duration

	CORSOrigins []string

	// TimescaleDB feature flags
	EnableTimescaleDB  bool
	EnableCompression  bool
	ChunkTimeInterval  string
	PriceRetentionDays int

	// Market data feed
	FeedURL string

	// Optional stores
	TickStorePath string
	MongoURI      string

	// First superuser seeded on an empty database
	FirstSuperuserEmail    string
	FirstSuperuserPassword string
}

// LoadConfig loads environment variables into a Config
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	accessMinutes := getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60*24*8)
	refreshDays := getEnvInt("REFRESH_TOKEN_EXPIRE_DAYS", 30)

	cfg := &Config{
		Port:        getEnv("PORT", "8000"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "cryptovision"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:          getEnv("SECRET_KEY", "your-secret-key-here"),
		AccessTokenExpire:  time.Duration(accessMinutes) * time.Minute,
		RefreshTokenExpire: time.Duration(refreshDays) * 24 * time.Hour,

		CORSOrigins: splitEnvList(getEnv("BACKEND_CORS_ORIGINS", "http://localhost:3000,http://localhost:8000")),

		EnableTimescaleDB:  getEnvBool("ENABLE_TIMESCALEDB", true),
		EnableCompression:  getEnvBool("ENABLE_TIMESCALEDB_COMPRESSION", false),
		ChunkTimeInterval:  getEnv("TIMESCALEDB_CHUNK_INTERVAL", "7 days"),
		PriceRetentionDays: getEnvInt("PRICE_RETENTION_DAYS", 365*5),

		FeedURL: getEnv("MARKET_FEED_URL", ""),

		TickStorePath: getEnv("TICK_STORE_PATH", "data/ticks.db"),
		MongoURI:      getEnv("MONGODB_URI", ""),

		FirstSuperuserEmail:    getEnv("FIRST_SUPERUSER_EMAIL", ""),
		FirstSuperuserPassword: getEnv("FIRST_SUPERUSER_PASSWORD", ""),
	}

	if cfg.Environment == "production" && cfg.JWTSecret == "your-secret-key-here" {
		return nil, fmt.Errorf("SECRET_KEY must be set in production")
	}

	return cfg, nil
}

// InitDB opens the PostgreSQL connection and verifies it with a ping
func InitDB(cfg *Config) (*gorm.DB, error) {
	log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
		maskHost(cfg.DBHost), cfg.DBPort, cfg.DBUser, cfg.DBName)

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode,
	)

	logLevel := logger.Info
	if cfg.Environment == "production" {
		logLevel = logger.Error
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("Database connection verified successfully")
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func splitEnvList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
