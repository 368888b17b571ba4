package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	MercadoPago MercadoPagoConfig
	Auth        AuthConfig
	Ledger      LedgerConfig
	Sweeps      SweepConfig
	Packages    PackagesConfig
}

type ServerConfig struct {
	Port         string
	Environment  string
	AllowOrigins string
	// PublicURL is where the provider can reach this service (webhook notifications).
	PublicURL string
	// AppURL is the frontend the checkout redirects back to.
	AppURL string
}

type DatabaseConfig struct {
	URL          string
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	URL string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type MercadoPagoConfig struct {
	AccessToken string
	BaseURL     string
	Timeout     time.Duration
}

type AuthConfig struct {
	JWTSecret      string
	InternalAPIKey string
}

type LedgerConfig struct {
	MaxRetries               int
	CommissionRetryBackoff   time.Duration
	CommissionWorkerInterval time.Duration
	CommissionBatchSize      int
}

type SweepConfig struct {
	Enabled         bool
	ExpiryInterval  time.Duration
	RenewalInterval time.Duration
	BatchSize       int
	LockTTL         time.Duration
}

type PackagesConfig struct {
	File string
}

// DSN prefers DATABASE_URL and falls back to the discrete DB_* settings.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Name + "?sslmode=" + d.SSLMode
}

func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			AllowOrigins: getEnv("ALLOW_ORIGINS", "*"),
			PublicURL:    strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),
			AppURL:       strings.TrimRight(getEnv("APP_URL", "https://app.loomper.com.br"), "/"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("DATABASE_URL", ""),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "loomper"),
			Password:     getEnv("DB_PASSWORD", "loomper"),
			Name:         getEnv("DB_NAME", "loomper"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_LEDGER_TOPIC", "loomper.ledger"),
		},
		MercadoPago: MercadoPagoConfig{
			AccessToken: getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
			BaseURL:     strings.TrimRight(getEnv("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com"), "/"),
			Timeout:     getDuration("MERCADOPAGO_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			InternalAPIKey: getEnv("INTERNAL_API_KEY", ""),
		},
		Ledger: LedgerConfig{
			MaxRetries:               getInt("LEDGER_MAX_RETRIES", 10),
			CommissionRetryBackoff:   getDuration("COMMISSION_RETRY_BACKOFF", time.Minute),
			CommissionWorkerInterval: getDuration("COMMISSION_WORKER_INTERVAL", 30*time.Second),
			CommissionBatchSize:      getInt("COMMISSION_BATCH_SIZE", 50),
		},
		Sweeps: SweepConfig{
			Enabled:         getBool("SWEEPS_ENABLED", true),
			ExpiryInterval:  getDuration("EXPIRY_SWEEP_INTERVAL", 24*time.Hour),
			RenewalInterval: getDuration("RENEWAL_SWEEP_INTERVAL", 24*time.Hour),
			BatchSize:       getInt("SWEEP_BATCH_SIZE", 200),
			LockTTL:         getDuration("SWEEP_LOCK_TTL", 30*time.Minute),
		},
		Packages: PackagesConfig{
			File: getEnv("PACKAGES_FILE", "packages.yaml"),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return n
}

func getBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return b
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
