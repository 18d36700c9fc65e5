package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Audit    AuditConfig
	Engine   EngineConfig
	Logger   LoggerConfig
}

type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
	// ReconcileTimeout bounds a shared reconciliation pass when the caller
	// set no deadline.
	ReconcileTimeout time.Duration
	AllowedOrigins   []string
}

type StoreConfig struct {
	Backend   string
	ProjectID string
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type AuthConfig struct {
	SkipAuth              bool
	ServiceAccountKeyPath string
}

type AuditConfig struct {
	Bucket     string
	AMQPURL    string
	Exchange   string
	RoutingKey string
}

type EngineConfig struct {
	TimeZone                       string
	BucketDangling                 bool
	ReconcileLegacyToUncategorized bool
}

type LoggerConfig struct {
	Level string
}

var defaultOrigins = []string{
	"http://localhost:1234",
	"http://127.0.0.1:1234",
}

// Load reads configuration from the environment, after loading the first
// .env file found in the working directory or its parents.
func Load() (*Config, error) {
	for _, envFile := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	shutdown, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	reconcileTimeout, err := time.ParseDuration(getEnv("RECONCILE_TIMEOUT", "2m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:             getEnv("PORT", "8111"),
			ShutdownTimeout:  shutdown,
			ReconcileTimeout: reconcileTimeout,
			AllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS", defaultOrigins),
		},
		Store: StoreConfig{
			Backend:   strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
			ProjectID: getEnv("GOOGLE_CLOUD_PROJECT", ""),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DB_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "spending"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			SkipAuth:              getEnvBool("SKIP_AUTH", false),
			ServiceAccountKeyPath: getEnv("FIREBASE_SERVICE_ACCOUNT_KEY", ""),
		},
		Audit: AuditConfig{
			Bucket:     getEnv("AUDIT_BUCKET", ""),
			AMQPURL:    getEnv("AUDIT_AMQP_URL", ""),
			Exchange:   getEnv("AUDIT_EXCHANGE", "spending.audit"),
			RoutingKey: getEnv("AUDIT_ROUTING_KEY", "reconciliation"),
		},
		Engine: EngineConfig{
			TimeZone:                       getEnv("TIMEZONE", "UTC"),
			BucketDangling:                 getEnvBool("SUMMARY_BUCKET_DANGLING", false),
			ReconcileLegacyToUncategorized: getEnvBool("RECONCILE_LEGACY_TO_UNCATEGORIZED", false),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	switch cfg.Store.Backend {
	case BackendMemory, BackendFirestore, BackendPostgres:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Store.Backend)
	}
	if cfg.Store.Backend == BackendFirestore && cfg.Store.ProjectID == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the firestore backend")
	}
	if _, err := cfg.Engine.Location(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Location loads the configured time zone.
func (e EngineConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(e.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", e.TimeZone, err)
	}
	return loc, nil
}

// DSN returns DB_URL if set, otherwise a postgres:// URL assembled from the
// DB_* parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
