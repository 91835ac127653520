// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Backends and identity providers accepted by Validate.
var (
	DataBackends      = []string{"memory", "sqlite", "postgres", "firestore"}
	AuthBackends      = []string{"memory", "sqlite", "postgres"}
	IdentityProviders = []string{"local", "oidc", "firebase"}
)

type Config struct {
	// HTTP Server
	Addr             string
	WebDir           string
	TrustForwardAuth bool

	// Logging
	LogLevel  string
	LogFormat string

	// Record store
	DataBackend    string
	StoreNamespace string
	DatabaseURL    string
	SQLiteDBPath   string

	// Credential store, used when the record store cannot hold users
	AuthBackend string

	// Firebase
	FirebaseProjectID       string
	FirebaseCredentialsFile string
	FirestoreRoot           string

	// Identity
	IdentityProvider string
	SessionTTL       time.Duration
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string

	// AMQP
	AMQPURL        string
	AMQPExchange   string
	AMQPAuditQueue string

	// Kafka
	KafkaBrokers []string
	KafkaTopic   string
}

func Load() *Config {
	cfg := &Config{
		Addr:             getEnv("ADDR", ":8080"),
		WebDir:           getEnv("WEB_DIR", "web"),
		TrustForwardAuth: getEnvBool("TRUST_FORWARD_AUTH", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DataBackend:    getEnv("DATA_BACKEND", "memory"),
		StoreNamespace: getEnv("STORE_NAMESPACE", "default-app-id"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		SQLiteDBPath:   getEnv("SQLITE_DB_PATH", "./data/salesboard.db"),

		AuthBackend: getEnv("AUTH_BACKEND", "memory"),

		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		FirestoreRoot:           getEnv("FIRESTORE_ROOT", "artifacts"),

		IdentityProvider: getEnv("IDENTITY_PROVIDER", "local"),
		SessionTTL:       getEnvDuration("SESSION_TTL", 24*time.Hour),
		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:  getEnv("OIDC_REDIRECT_URL", ""),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "salesboard"),
		AMQPAuditQueue: getEnv("AMQP_AUDIT_QUEUE", ""),

		KafkaBrokers: getEnvList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "salesboard.records"),
	}

	return cfg
}

// OIDCEnabled reports whether SSO is configured.
func (c *Config) OIDCEnabled() bool {
	return c.OIDCIssuer != "" && c.OIDCClientID != ""
}

// CredentialBackend returns the store holding users and sessions. Firestore
// only holds records, so it defers to AuthBackend.
func (c *Config) CredentialBackend() string {
	if c.DataBackend == "firestore" {
		return c.AuthBackend
	}
	return c.DataBackend
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if c.Addr == "" {
		errors = append(errors, "listen address cannot be empty")
	}

	if !slices.Contains(DataBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, DataBackends))
	}
	if c.DataBackend == "firestore" && !slices.Contains(AuthBackends, c.AuthBackend) {
		errors = append(errors, fmt.Sprintf("invalid auth backend '%s': must be one of %v", c.AuthBackend, AuthBackends))
	}

	// Store namespace becomes a single collection path segment
	if c.StoreNamespace == "" {
		errors = append(errors, "store namespace cannot be empty")
	} else if strings.ContainsAny(c.StoreNamespace, "/ \t\n") {
		errors = append(errors, fmt.Sprintf("invalid store namespace '%s': must be a single path segment", c.StoreNamespace))
	}

	backend := c.CredentialBackend()
	if (backend == "postgres" || c.DataBackend == "postgres") && c.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required when using postgres")
	}

	if backend == "sqlite" || c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.DataBackend == "firestore" || c.IdentityProvider == "firebase" {
		if c.FirebaseProjectID == "" {
			errors = append(errors, "FIREBASE_PROJECT_ID is required when using firebase")
		}
		if c.FirebaseCredentialsFile != "" {
			if _, err := os.Stat(c.FirebaseCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Firebase credentials file does not exist: %s", c.FirebaseCredentialsFile))
			}
		}
		if c.FirestoreRoot == "" || strings.Contains(c.FirestoreRoot, "/") {
			errors = append(errors, fmt.Sprintf("invalid Firestore root '%s': must be a single path segment", c.FirestoreRoot))
		}
	}

	if !slices.Contains(IdentityProviders, c.IdentityProvider) {
		errors = append(errors, fmt.Sprintf("invalid identity provider '%s': must be one of %v", c.IdentityProvider, IdentityProviders))
	}
	if c.IdentityProvider == "oidc" {
		if !c.OIDCEnabled() {
			errors = append(errors, "OIDC_ISSUER and OIDC_CLIENT_ID are required when using oidc")
		}
		if c.OIDCRedirectURL == "" {
			errors = append(errors, "OIDC_REDIRECT_URL is required when using oidc")
		}
	}

	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	} else if c.AMQPAuditQueue != "" {
		errors = append(errors, "AMQP_AUDIT_QUEUE requires AMQP_URL")
	}

	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errors = append(errors, "Kafka topic cannot be empty when KAFKA_BROKERS is provided")
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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
