package backend

import (
	"context"
	"errors"
	"fmt"

	"salesboard/internal/adapter/firebase"
	"salesboard/internal/adapter/memory"
	"salesboard/internal/adapter/postgres"
	"salesboard/internal/adapter/sqlite"
	"salesboard/internal/log"
)

// Factory creates backends based on configuration
type Factory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Nop()
	}
	return &Factory{logger: logger.WithComponent(log.ComponentBackend)}
}

// build tracks the resources opened so far so a failure can release them.
type build struct {
	result   BackendResult
	closers  []func() error
	memory   *memory.DB
	sqlite   *sqlite.DB
	postgres *postgres.DB
}

func (b *build) cleanup() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// CreateBackend opens every store config names. Stores shared between
// records and credentials are opened once.
func (f *Factory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	b := &build{}
	if err := f.assemble(ctx, config, b); err != nil {
		_ = b.cleanup()
		return nil, err
	}

	f.logger.Info("backend ready",
		log.FieldBackend, config.Records.String(),
		"credentials", config.Credentials.String())

	res := b.result
	res.Cleanup = b.cleanup
	return &res, nil
}

func (f *Factory) assemble(ctx context.Context, config Config, b *build) error {
	switch config.Credentials {
	case MemoryBackend:
		db := f.memoryDB(b)
		b.result.Users, b.result.Sessions = db, db.NewSessionRepo()
	case SQLiteBackend:
		db, err := f.sqliteDB(config, b)
		if err != nil {
			return err
		}
		b.result.Users, b.result.Sessions = db, sqlite.NewSessionRepo(db)
	case PostgresBackend:
		db, err := f.postgresDB(config, b)
		if err != nil {
			return err
		}
		b.result.Users, b.result.Sessions = db, postgres.NewSessionRepo(db)
	default:
		return fmt.Errorf("unsupported credential backend: %s", config.Credentials)
	}

	if config.Records == FirestoreBackend || config.NeedFirebase {
		client, err := firebase.New(ctx, config.Firebase)
		if err != nil {
			return fmt.Errorf("failed to initialize Firebase: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		b.result.Firebase = client
	}

	switch config.Records {
	case MemoryBackend:
		b.result.Records = f.memoryDB(b).NewRecordStore()
	case SQLiteBackend:
		db, err := f.sqliteDB(config, b)
		if err != nil {
			return err
		}
		store := sqlite.NewRecordStore(db)
		b.closers = append(b.closers, store.Close)
		b.result.Records = store
	case PostgresBackend:
		db, err := f.postgresDB(config, b)
		if err != nil {
			return err
		}
		store := postgres.NewRecordStore(db, f.logger)
		b.closers = append(b.closers, store.Close)
		b.result.Records = store
	case FirestoreBackend:
		b.result.Records = b.result.Firebase.NewRecordStore(config.FirestoreRoot, f.logger)
	default:
		return fmt.Errorf("unsupported record backend: %s", config.Records)
	}
	return nil
}

func (f *Factory) memoryDB(b *build) *memory.DB {
	if b.memory == nil {
		f.logger.Warn("using in-memory storage; data is lost on restart")
		b.memory = memory.New()
	}
	return b.memory
}

func (f *Factory) sqliteDB(config Config, b *build) (*sqlite.DB, error) {
	if b.sqlite != nil {
		return b.sqlite, nil
	}
	db, err := sqlite.Open(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite database: %w", err)
	}
	b.closers = append(b.closers, db.Close)
	b.sqlite = db
	f.logger.Info("SQLite database opened", "path", config.SQLiteDBPath)
	return db, nil
}

func (f *Factory) postgresDB(config Config, b *build) (*postgres.DB, error) {
	if b.postgres != nil {
		return b.postgres, nil
	}
	db, err := postgres.Open(config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	b.closers = append(b.closers, db.Close)
	b.postgres = db
	return db, nil
}
