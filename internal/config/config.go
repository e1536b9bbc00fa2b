package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr         string
	ServerPort         int
	AppEnv             string
	LogLevel           string
	MaxRequestBodySize int64

	// Storage: "postgres" or "memory"
	StoreDriver string
	AutoMigrate bool
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	// JWT
	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration

	// Principal cache, disabled when RedisURL is empty
	RedisURL          string
	PrincipalCacheTTL time.Duration

	// Activity transport, in-process when KafkaBrokers is empty
	KafkaBrokers       []string
	KafkaActivityTopic string
	KafkaGroupID       string
	ActivityBufferSize int

	// Membership
	MutationMaxRetries int
	TeamDeletePolicy   string
	ReconcileSchedule  string

	RateLimit       RateLimitConfig
	SecurityHeaders SecurityHeadersConfig
}

// RateLimitConfig configures per-client request limits.
type RateLimitConfig struct {
	Enabled bool

	// Authenticated API traffic, keyed by principal.
	APIRequestsPerMinute int
	APIWindowMinutes     int

	// Membership and account writes, keyed by principal.
	WriteRequestsPerMinute int
	WriteWindowMinutes     int
}

// SecurityHeadersConfig configures the response security headers.
type SecurityHeadersConfig struct {
	Enabled            bool
	CSP                string
	HSTSMaxAge         int
	FrameOptions       string
	ContentTypeOptions string
	XSSProtection      string
	ReferrerPolicy     string
	PermissionsPolicy  string
}

var (
	storeDrivers   = []string{"postgres", "memory"}
	deletePolicies = []string{"orphan", "cascade", "reject"}
)

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		// Server defaults
		ServerAddr:         getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort:         getEnvInt("SERVER_PORT", 8080),
		AppEnv:             getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)),

		// Database defaults (matches podman setup: make postgres-start)
		StoreDriver: getEnv("STORE_DRIVER", "postgres"),
		AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", false),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnvInt("DB_PORT", 25432),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", "postgres"),
		DBName:      getEnv("DB_NAME", "simple_team"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "simple-team"),
		TokenTTL:  getEnvDuration("TOKEN_TTL", 15*time.Minute),

		RedisURL:          getEnv("REDIS_URL", ""),
		PrincipalCacheTTL: getEnvDuration("PRINCIPAL_CACHE_TTL", time.Minute),

		KafkaBrokers:       getEnvList("KAFKA_BROKERS", nil),
		KafkaActivityTopic: getEnv("KAFKA_ACTIVITY_TOPIC", "team-activities"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "simple-team-ledger"),
		ActivityBufferSize: getEnvInt("ACTIVITY_BUFFER_SIZE", 256),

		MutationMaxRetries: getEnvInt("MUTATION_MAX_RETRIES", 3),
		TeamDeletePolicy:   getEnv("TEAM_DELETE_POLICY", "orphan"),
		ReconcileSchedule:  getEnv("RECONCILE_SCHEDULE", "@every 1h"),

		RateLimit: RateLimitConfig{
			Enabled:                getEnvBool("RATE_LIMIT_ENABLED", true),
			APIRequestsPerMinute:   getEnvInt("RATE_LIMIT_API_REQUESTS", 300),
			APIWindowMinutes:       getEnvInt("RATE_LIMIT_API_WINDOW_MINUTES", 1),
			WriteRequestsPerMinute: getEnvInt("RATE_LIMIT_WRITE_REQUESTS", 60),
			WriteWindowMinutes:     getEnvInt("RATE_LIMIT_WRITE_WINDOW_MINUTES", 1),
		},

		SecurityHeaders: SecurityHeadersConfig{
			Enabled:            getEnvBool("SECURITY_HEADERS_ENABLED", true),
			CSP:                getEnv("SECURITY_HEADERS_CSP", "default-src 'none'; frame-ancestors 'none'"),
			HSTSMaxAge:         getEnvInt("SECURITY_HEADERS_HSTS_MAX_AGE", 31536000),
			FrameOptions:       getEnv("SECURITY_HEADERS_FRAME_OPTIONS", "DENY"),
			ContentTypeOptions: getEnv("SECURITY_HEADERS_CONTENT_TYPE_OPTIONS", "nosniff"),
			XSSProtection:      getEnv("SECURITY_HEADERS_XSS_PROTECTION", "0"),
			ReferrerPolicy:     getEnv("SECURITY_HEADERS_REFERRER_POLICY", "no-referrer"),
			PermissionsPolicy:  getEnv("SECURITY_HEADERS_PERMISSIONS_POLICY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and enumerated values.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if !slices.Contains(storeDrivers, c.StoreDriver) {
		return fmt.Errorf("STORE_DRIVER must be one of %v, got %q", storeDrivers, c.StoreDriver)
	}
	if !slices.Contains(deletePolicies, c.TeamDeletePolicy) {
		return fmt.Errorf("TEAM_DELETE_POLICY must be one of %v, got %q", deletePolicies, c.TeamDeletePolicy)
	}
	if c.MutationMaxRetries < 1 {
		return fmt.Errorf("MUTATION_MAX_RETRIES must be at least 1")
	}
	return nil
}

// HasRedis returns true if the principal cache is configured.
func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

// HasKafka returns true if activities go through Kafka.
func (c *Config) HasKafka() bool {
	return len(c.KafkaBrokers) > 0
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerAddr, c.ServerPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
