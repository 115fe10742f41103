package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bridge.
type Config struct {
	App         AppConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Logger      LoggerConfig
	Auth        AuthConfig
	Store       StoreConfig
	Bridge      BridgeConfig
	Connectwise ConnectwiseConfig
	Slack       SlackConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines admin API authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// StoreConfig selects the sync state backend.
type StoreConfig struct {
	Backend   string
	KeyPrefix string
	TableName string
}

// BridgeConfig tunes the synchronization engine.
type BridgeConfig struct {
	AssignmentRecheckDelay time.Duration
	ShutdownGrace          time.Duration
	TicketRunTimeout       time.Duration
}

// ConnectwiseConfig configures the ticket-system REST client.
type ConnectwiseConfig struct {
	BaseURLTemplate string
	DefaultSite     string
	Timeout         time.Duration
	MaxRetries      int
}

// SlackConfig configures the chat Web API client.
type SlackConfig struct {
	APIBaseURL string
	Timeout    time.Duration
	MaxRetries int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	backend := strings.ToLower(getEnv("STORE_BACKEND", "memory"))
	switch backend {
	case "memory", "redis", "postgres":
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q", backend)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-bridge"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Store: StoreConfig{
			Backend:   backend,
			KeyPrefix: getEnv("STORE_KEY_PREFIX", "bridge"),
			TableName: getEnv("STORE_TABLE", "sync_items"),
		},
		Bridge: BridgeConfig{
			AssignmentRecheckDelay: getEnvAsDuration("BRIDGE_ASSIGNMENT_RECHECK_DELAY", 2*time.Minute),
			ShutdownGrace:          getEnvAsDuration("BRIDGE_SHUTDOWN_GRACE", 15*time.Second),
			TicketRunTimeout:       getEnvAsDuration("BRIDGE_TICKET_RUN_TIMEOUT", time.Minute),
		},
		Connectwise: ConnectwiseConfig{
			BaseURLTemplate: getEnv("CONNECTWISE_BASE_URL", "https://%s/v4_6_release/apis/3.0"),
			DefaultSite:     getEnv("CONNECTWISE_DEFAULT_SITE", "na.myconnectwise.net"),
			Timeout:         getEnvAsDuration("CONNECTWISE_TIMEOUT", 20*time.Second),
			MaxRetries:      getEnvAsInt("CONNECTWISE_MAX_RETRIES", 3),
		},
		Slack: SlackConfig{
			APIBaseURL: getEnv("SLACK_API_BASE_URL", "https://slack.com/api"),
			Timeout:    getEnvAsDuration("SLACK_TIMEOUT", 10*time.Second),
			MaxRetries: getEnvAsInt("SLACK_MAX_RETRIES", 3),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
