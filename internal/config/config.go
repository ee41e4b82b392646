package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings"
	"time"

	"github.com/joho/godotenv" // godotenv loads a local .env file into the environment
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env        string // application environment (e.g. "dev", "prod")
	Port       string // HTTP port to listen on
	DBDriver   string // "mysql" or "sqlite"
	DBUser     string // database username
	DBPass     string // database password (optional)
	DBHost     string // database host address
	DBPort     string // database port number
	DBName     string // database name
	SQLitePath string // database file when DBDriver is sqlite
	JWTSecret  string // secret used to verify API tokens and sign OAuth state

	// TokenEncryptionKey seals provider tokens at rest.  Empty keeps them
	// in plain text.
	TokenEncryptionKey string

	OAuth             OAuthConfig
	HTTPClientTimeout time.Duration // timeout for every outbound provider call

	MirrorEventsEnabled bool   // publish mirror drift events to RabbitMQ
	AMQPURL             string // broker URL for the publisher and cmd/mirror-audit
}

// OAuthCredentials is one provider's registered application.
type OAuthCredentials struct {
	ClientID     string
	ClientSecret string
}

// Configured reports whether both halves of the credentials are present.
func (c OAuthCredentials) Configured() bool { return c.ClientID != "" && c.ClientSecret != "" }

// OAuthConfig holds the client registrations of the supported providers.
type OAuthConfig struct {
	RedirectBaseURL string // public base URL the providers redirect back to
	Google          OAuthCredentials
	Microsoft       OAuthCredentials
	MicrosoftTenant string
	Atlassian       OAuthCredentials
}

// Load reads configuration values from environment variables and returns a
// Config.  A .env file in the working directory is applied first when it
// exists; variables already set in the environment win.  Required
// variables are enforced by must() and missing values cause the program to
// exit with a fatal log message.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: ignoring .env: %v", err)
	}

	cfg := Config{
		Env:                 envStr("APP_ENV", "dev"),
		Port:                envStr("APP_PORT", "8080"),
		DBDriver:            strings.ToLower(envStr("DB_DRIVER", "mysql")),
		JWTSecret:           must("JWT_SECRET"),
		TokenEncryptionKey:  os.Getenv("TOKEN_ENCRYPTION_KEY"),
		OAuth:               LoadOAuthConfig(),
		HTTPClientTimeout:   envDur("HTTP_CLIENT_TIMEOUT", 15*time.Second),
		MirrorEventsEnabled: envBool("MIRROR_EVENTS_ENABLED", false),
		AMQPURL:             firstEnv("RABBITMQ_URL", "AMQP_URL"),
	}

	switch cfg.DBDriver {
	case "sqlite":
		cfg.SQLitePath = envStr("SQLITE_PATH", "dayplanner.db")
	case "mysql":
		cfg.DBUser = must("DB_USER")                   // database user
		cfg.DBPass = os.Getenv("DB_PASS")              // database password (empty allowed)
		cfg.DBHost = must("DB_HOST")                   // database host
		cfg.DBPort = strconv.Itoa(mustInt("DB_PORT")) // database port, validated as a number
		cfg.DBName = must("DB_NAME")                   // database name
	default:
		log.Fatalf("unsupported DB_DRIVER: %q", cfg.DBDriver)
	}
	return cfg
}

// LoadOAuthConfig reads provider client registrations.  Providers whose
// credentials are missing are simply not offered by the connect flow.
func LoadOAuthConfig() OAuthConfig {
	return OAuthConfig{
		RedirectBaseURL: strings.TrimRight(envStr("OAUTH_REDIRECT_BASE_URL", "http://localhost:8080"), "/"),
		Google: OAuthCredentials{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		},
		Microsoft: OAuthCredentials{
			ClientID:     os.Getenv("AZURE_AD_CLIENT_ID"),
			ClientSecret: os.Getenv("AZURE_AD_CLIENT_SECRET"),
		},
		MicrosoftTenant: envStr("AZURE_AD_TENANT_ID", "common"),
		Atlassian: OAuthCredentials{
			ClientID:     os.Getenv("ATLASSIAN_CLIENT_ID"),
			ClientSecret: os.Getenv("ATLASSIAN_CLIENT_SECRET"),
		},
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
