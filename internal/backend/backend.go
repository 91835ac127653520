// Package backend assembles the record store and credential store selected
// by configuration.
package backend

import (
	"fmt"

	"salesboard/internal/adapter/firebase"
	"salesboard/internal/config"
	"salesboard/internal/domain"
)

// BackendType names a storage backend.
type BackendType string

const (
	MemoryBackend    BackendType = "memory"
	SQLiteBackend    BackendType = "sqlite"
	PostgresBackend  BackendType = "postgres"
	FirestoreBackend BackendType = "firestore"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend, FirestoreBackend:
		return true
	default:
		return false
	}
}

// HoldsCredentials reports whether the backend can store users and sessions.
func (bt BackendType) HoldsCredentials() bool {
	return bt.IsValid() && bt != FirestoreBackend
}

// Config holds configuration for backend creation
type Config struct {
	Records     BackendType
	Credentials BackendType

	SQLiteDBPath string
	DatabaseURL  string

	Firebase      firebase.Config
	FirestoreRoot string
	// NeedFirebase initializes the Firebase client even when records live
	// elsewhere, for ID token verification.
	NeedFirebase bool
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		Records:      BackendType(appConfig.DataBackend),
		Credentials:  BackendType(appConfig.CredentialBackend()),
		SQLiteDBPath: appConfig.SQLiteDBPath,
		DatabaseURL:  appConfig.DatabaseURL,
		Firebase: firebase.Config{
			ProjectID:       appConfig.FirebaseProjectID,
			CredentialsFile: appConfig.FirebaseCredentialsFile,
		},
		FirestoreRoot: appConfig.FirestoreRoot,
		NeedFirebase:  appConfig.IdentityProvider == "firebase",
	}
	return cfg, cfg.Validate()
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Records.IsValid() {
		return fmt.Errorf("invalid record backend type: %s", c.Records)
	}
	if !c.Credentials.HoldsCredentials() {
		return fmt.Errorf("invalid credential backend type: %s", c.Credentials)
	}
	uses := func(bt BackendType) bool { return c.Records == bt || c.Credentials == bt }
	if uses(SQLiteBackend) && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	if uses(PostgresBackend) && c.DatabaseURL == "" {
		return fmt.Errorf("database URL is required for postgres backend")
	}
	if (c.Records == FirestoreBackend || c.NeedFirebase) && c.Firebase.ProjectID == "" {
		return fmt.Errorf("Firebase project ID is required for firestore backend")
	}
	return nil
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the assembled stores and the function releasing them.
type BackendResult struct {
	Records  domain.RecordStore
	Users    domain.UserRepository
	Sessions domain.SessionRepository
	// Firebase is set when a Firebase client was initialized.
	Firebase *firebase.Client
	Cleanup  CleanupFunc
}
