package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Redis     RedisConfig
	S3        S3Config
	Permit    PermitConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port        string
	GinMode     string
	Environment string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// JWTConfig holds the shared secret of the identity service that issues
// bearer tokens. Tokens are only validated here, never issued.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type S3Config struct {
	Enabled         bool
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	BaseURL         string // CloudFront or S3 direct URL
}

// PermitConfig holds the lifecycle policy knobs.
type PermitConfig struct {
	ValidityYears       int    // validity granted on approval
	RegistryHorizonDays int    // "expiring soon" window for registry and dashboard
	RenewalHorizonDays  int    // "expiring soon" window for the renewal queue
	PageSize            int    // fixed listing page size
	NumberPrefix        string // permit number prefix, e.g. BP-2026-000123
}

type SchedulerConfig struct {
	ReminderCron string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			GinMode:     getEnv("GIN_MODE", "debug"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "bplo"),
			Password: getEnv("DB_PASSWORD", "bplo"),
			DBName:   getEnv("DB_NAME", "bizpermit"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxOpenConns:    parseInt(getEnv("DB_MAX_OPEN_CONNS", "25"), 25),
			MaxIdleConns:    parseInt(getEnv("DB_MAX_IDLE_CONNS", "5"), 5),
			ConnMaxLifetime: parseDuration(getEnv("DB_CONN_MAX_LIFETIME", "30m"), 30*time.Minute),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Redis: RedisConfig{
			Enabled:  parseBool(getEnv("REDIS_ENABLED", "false")),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt(getEnv("REDIS_DB", "0"), 0),
		},
		S3: S3Config{
			Enabled:         parseBool(getEnv("AWS_S3_ENABLED", "false")),
			Region:          getEnv("AWS_REGION", "ap-southeast-1"),
			Bucket:          getEnv("AWS_S3_BUCKET", "bizpermit-reports"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			BaseURL:         getEnv("AWS_S3_BASE_URL", ""),
		},
		Permit: PermitConfig{
			ValidityYears:       parseInt(getEnv("PERMIT_VALIDITY_YEARS", "1"), 1),
			RegistryHorizonDays: parseInt(getEnv("PERMIT_REGISTRY_HORIZON_DAYS", "30"), 30),
			RenewalHorizonDays:  parseInt(getEnv("PERMIT_RENEWAL_HORIZON_DAYS", "60"), 60),
			PageSize:            parseInt(getEnv("PERMIT_PAGE_SIZE", "15"), 15),
			NumberPrefix:        getEnv("PERMIT_NUMBER_PREFIX", "BP"),
		},
		Scheduler: SchedulerConfig{
			ReminderCron: getEnv("REMINDER_CRON", "0 8 * * *"),
		},
	}

	if err := config.Permit.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultPermitConfig returns the policy used when nothing is configured.
func DefaultPermitConfig() PermitConfig {
	return PermitConfig{
		ValidityYears:       1,
		RegistryHorizonDays: 30,
		RenewalHorizonDays:  60,
		PageSize:            15,
		NumberPrefix:        "BP",
	}
}

func (c PermitConfig) Validate() error {
	if c.ValidityYears < 1 {
		return fmt.Errorf("PERMIT_VALIDITY_YEARS must be at least 1, got %d", c.ValidityYears)
	}
	if c.RegistryHorizonDays < 0 || c.RenewalHorizonDays < 0 {
		return fmt.Errorf("expiry horizons must not be negative")
	}
	if c.PageSize < 1 {
		return fmt.Errorf("PERMIT_PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("Invalid integer %q, using default %d", s, fallback)
		return fallback
	}
	return n
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("Invalid duration %q, using default %s", s, fallback)
		return fallback
	}
	return d
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}

func parseSlice(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
