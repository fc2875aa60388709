package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port        string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	MongoURI    string
	Environment string

	// Provider settings
	ProviderBaseURL string
	ProviderTimeout time.Duration
	FetchWorkers    int

	// Scheduling
	Timezone          string
	EodScanAt         string // HH:MM on weekdays, after market close
	CleanupAt         string // HH:MM on Sundays
	RefreshEveryMin   int
	MisfireGrace      time.Duration
	KeepRunsPerJob    int
	RetentionDays     int
	SignalWindowBars  int
	HistoryWindowDays int
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", ""),
		DBName:      getEnv("DB_NAME", "signal_engine"),
		MongoURI:    getEnv("MONGODB_URI", ""),
		Environment: getEnv("ENVIRONMENT", "development"),

		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", "https://api-finfo.vndirect.com.vn/v4/stock_prices"),
		ProviderTimeout: time.Duration(getEnvInt("PROVIDER_TIMEOUT_SEC", 30)) * time.Second,
		FetchWorkers:    getEnvInt("FETCH_WORKERS", 4),

		Timezone:          getEnv("SCHEDULER_TZ", "Asia/Ho_Chi_Minh"),
		EodScanAt:         getEnv("EOD_SCAN_AT", "16:30"),
		CleanupAt:         getEnv("CLEANUP_AT", "01:00"),
		RefreshEveryMin:   getEnvInt("REFRESH_EVERY_MIN", 30),
		MisfireGrace:      time.Duration(getEnvInt("MISFIRE_GRACE_MIN", 60)) * time.Minute,
		KeepRunsPerJob:    getEnvInt("KEEP_RUNS_PER_JOB", 5),
		RetentionDays:     getEnvInt("RETENTION_DAYS", 14),
		SignalWindowBars:  getEnvInt("SIGNAL_WINDOW_BARS", 60),
		HistoryWindowDays: getEnvInt("HISTORY_WINDOW_DAYS", 400),
	}

	AppConfig = config
	return config, nil
}

// InitDB initializes database connection
func InitDB() (*gorm.DB, error) {
	// Log connection info (masked for security)
	log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
		maskHost(AppConfig.DBHost),
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBName,
	)

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=require TimeZone=%s",
		AppConfig.DBHost,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBPort,
		AppConfig.Timezone,
	)

	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})

	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Failed to get underlying database: %v", err)
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		log.Printf("Database ping failed: %v", err)
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
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

// getEnvInt gets an integer environment variable or returns a default value
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
