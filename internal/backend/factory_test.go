package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"salesboard/internal/config"
	"salesboard/internal/domain"
)

func TestBackendType(t *testing.T) {
	for _, bt := range []BackendType{MemoryBackend, SQLiteBackend, PostgresBackend, FirestoreBackend} {
		if !bt.IsValid() {
			t.Errorf("%s should be valid", bt)
		}
	}
	if BackendType("sheets").IsValid() {
		t.Error("sheets should be invalid")
	}
	if FirestoreBackend.HoldsCredentials() {
		t.Error("firestore cannot hold credentials")
	}
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(&config.Config{
		DataBackend:       "firestore",
		AuthBackend:       "sqlite",
		SQLiteDBPath:      "./x.db",
		FirebaseProjectID: "demo",
		FirestoreRoot:     "artifacts",
	})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Records != FirestoreBackend || cfg.Credentials != SQLiteBackend {
		t.Errorf("unexpected backends %+v", cfg)
	}

	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "postgres"}); err == nil || !strings.Contains(err.Error(), "database URL") {
		t.Errorf("expected missing database URL, got %v", err)
	}
}

func TestCreateBackend_Memory(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Records: MemoryBackend, Credentials: MemoryBackend})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer func() { _ = res.Cleanup() }()

	if res.Records == nil || res.Users == nil || res.Sessions == nil {
		t.Fatalf("incomplete result %+v", res)
	}
	if res.Firebase != nil {
		t.Error("firebase should not be initialized")
	}
	// One shared database.
	if _, err := res.Users.Create(context.Background(), "dana", "", false); err != nil {
		t.Fatal(err)
	}
	if n, _ := res.Users.Count(context.Background()); n != 1 {
		t.Errorf("expected 1 user, got %d", n)
	}
}

func TestCreateBackend_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.db")
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Records:      SQLiteBackend,
		Credentials:  SQLiteBackend,
		SQLiteDBPath: path,
	})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer func() { _ = res.Cleanup() }()

	ctx := context.Background()
	id, err := res.Records.Create(ctx, "acme/users/u/dashboard_data", domain.RecordFields{Revenue: decimal.NewFromInt(3)})
	if err != nil || id == "" {
		t.Fatalf("Create = %q, %v", id, err)
	}
	if _, err := res.Users.Create(ctx, "erin", "", false); err != nil {
		t.Fatalf("Users.Create: %v", err)
	}
}

func TestCreateBackend_Invalid(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Records: MemoryBackend, Credentials: FirestoreBackend})
	if err == nil {
		t.Fatal("expected error for firestore credentials")
	}
}
