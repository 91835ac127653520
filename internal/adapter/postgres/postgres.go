package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// notifyChannel carries the collection path of every changed record.
const notifyChannel = "dashboard_records"

// DB wraps a *sql.DB and implements domain repository interfaces.
type DB struct {
	sql     *sql.DB
	connStr string
}

// Open connects to PostgreSQL, pings, and runs migrations.
func Open(connStr string) (*DB, error) {
	s, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	s.SetMaxOpenConns(10)
	s.SetMaxIdleConns(5)
	s.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.PingContext(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	d := &DB{sql: s, connStr: connStr}
	if err := d.migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS users (id BIGSERIAL PRIMARY KEY, username TEXT UNIQUE NOT NULL, password_hash TEXT NOT NULL, created_at TIMESTAMPTZ NOT NULL);",
		"ALTER TABLE users ADD COLUMN IF NOT EXISTS anonymous BOOLEAN NOT NULL DEFAULT FALSE;",
		"CREATE TABLE IF NOT EXISTS sessions (token TEXT PRIMARY KEY, user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE, expires_at TIMESTAMPTZ NOT NULL, created_at TIMESTAMPTZ NOT NULL);",
		"CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);",
		`CREATE TABLE IF NOT EXISTS dashboard_records (
			id BIGSERIAL PRIMARY KEY,
			collection TEXT NOT NULL,
			dm_count BIGINT NOT NULL DEFAULT 0 CHECK (dm_count >= 0),
			ad_spend NUMERIC NOT NULL DEFAULT 0,
			sales_count BIGINT NOT NULL DEFAULT 0 CHECK (sales_count >= 0),
			revenue NUMERIC NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		"CREATE INDEX IF NOT EXISTS idx_dashboard_records_collection ON dashboard_records(collection, created_at);",
		`CREATE OR REPLACE FUNCTION notify_dashboard_records() RETURNS trigger AS $$
		BEGIN
			IF TG_OP = 'DELETE' THEN
				PERFORM pg_notify('` + notifyChannel + `', OLD.collection);
			ELSE
				PERFORM pg_notify('` + notifyChannel + `', NEW.collection);
			END IF;
			RETURN NULL;
		END;
		$$ LANGUAGE plpgsql;`,
		"DROP TRIGGER IF EXISTS dashboard_records_notify ON dashboard_records;",
		"CREATE TRIGGER dashboard_records_notify AFTER INSERT OR UPDATE OR DELETE ON dashboard_records FOR EACH ROW EXECUTE FUNCTION notify_dashboard_records();",
	}

	for _, stmt := range stmts {
		if _, err := d.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
