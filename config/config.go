package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Environment   string
	Port          string
	DatabaseURL   string
	JWTSecret     string
	JWTExpiration int

	// Redis Configuration
	RedisURL string

	// Kafka Configuration
	KafkaBrokers []string

	// Serverless proxy (client side)
	ProxyBaseURL string
	ProxyToken   string
	ProxyPort    string

	// GHTK Configuration (proxy side)
	GHTKBaseURL        string
	GHTKToken          string
	GHTKCreateShipment bool

	// PayOS Configuration (proxy side)
	PayOSBaseURL      string
	PayOSClientID     string
	PayOSAPIKey       string
	PayOSChecksumKey  string
	PayOSRedirectBase string

	// Checkout behaviour
	PaymentTimeout         time.Duration
	PaymentSweepInterval   time.Duration
	ProviderTimeout        time.Duration
	ShippingFeeConcurrency int

	// Rate Limiting Configuration
	RateLimitRequests int
	RateLimitWindow   int

	// Logging Configuration
	LogLevel  string
	LogFormat string

	// CORS Configuration
	AllowedOrigins []string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   getEnv("DATABASE_URL", "storefront.db"),
		JWTSecret:     getEnv("JWT_SECRET", "your-super-secret-jwt-key-change-in-production"),
		JWTExpiration: getEnvAsInt("JWT_EXPIRATION", 24*60*60), // 24 hours in seconds

		RedisURL: getEnv("REDIS_URL", ""),

		KafkaBrokers: getEnvAsStringSlice("KAFKA_BROKERS", []string{}),

		ProxyBaseURL: getEnv("PROXY_BASE_URL", "http://localhost:8090"),
		ProxyToken:   getEnv("PROXY_TOKEN", ""),
		ProxyPort:    getEnv("PROXY_PORT", "8090"),

		GHTKBaseURL:        getEnv("GHTK_BASE_URL", "https://services.giaohangtietkiem.vn"),
		GHTKToken:          getEnv("GHTK_TOKEN", ""),
		GHTKCreateShipment: getEnvAsBool("GHTK_CREATE_SHIPMENT", false),

		PayOSBaseURL:      getEnv("PAYOS_BASE_URL", "https://api-merchant.payos.vn"),
		PayOSClientID:     getEnv("PAYOS_CLIENT_ID", ""),
		PayOSAPIKey:       getEnv("PAYOS_API_KEY", ""),
		PayOSChecksumKey:  getEnv("PAYOS_CHECKSUM_KEY", ""),
		PayOSRedirectBase: getEnv("PAYOS_REDIRECT_BASE", "https://storefront.example.com"),

		PaymentTimeout:         getEnvAsDuration("PAYMENT_TIMEOUT", 15*time.Minute),
		PaymentSweepInterval:   getEnvAsDuration("PAYMENT_SWEEP_INTERVAL", time.Minute),
		ProviderTimeout:        getEnvAsDuration("PROVIDER_TIMEOUT", 30*time.Second),
		ShippingFeeConcurrency: getEnvAsInt("SHIPPING_FEE_CONCURRENCY", 1),

		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getEnvAsInt("RATE_LIMIT_WINDOW", 60),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		AllowedOrigins: getEnvAsStringSlice("ALLOWED_ORIGINS", []string{}),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if c.PaymentTimeout <= 0 {
		return fmt.Errorf("payment timeout must be positive")
	}
	if c.ShippingFeeConcurrency < 1 {
		return fmt.Errorf("shipping fee concurrency must be at least 1")
	}
	return nil
}

// ValidateProxy validates the settings the serverless proxy needs to reach providers
func (c *Config) ValidateProxy() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.GHTKToken == "" {
		return fmt.Errorf("GHTK token is required")
	}
	if c.PayOSClientID == "" || c.PayOSAPIKey == "" || c.PayOSChecksumKey == "" {
		return fmt.Errorf("PayOS client id, api key and checksum key are required")
	}
	return nil
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Environment: %s, Port: %s, DatabaseURL: %s}", c.Environment, c.Port, c.DatabaseURL)
}
