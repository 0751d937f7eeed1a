package store

import (
	"path/filepath"
	"testing"

	"presencebridge/internal/config"
	"presencebridge/internal/crypto"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(":memory:", opts...)
	if err != nil {
		t.Fatalf("New(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newMigratedStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := newTestStore(t, opts...)
	if err := s.Migrate(); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	return s
}

func newTestSealer(t *testing.T, secret string) *crypto.Sealer {
	t.Helper()
	sealer, err := crypto.NewSealer(secret)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	return sealer
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(); err != nil {
		t.Fatalf("Ping() failed: %v", err)
	}
}

func TestPingAfterClose(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	if err := s.Ping(); err == nil {
		t.Fatal("expected Ping() to fail after Close()")
	}
}

func TestHasSealer(t *testing.T) {
	if newTestStore(t).HasSealer() {
		t.Error("expected no sealer by default")
	}
	if !newTestStore(t, WithSealer(newTestSealer(t, "s"))).HasSealer() {
		t.Error("expected sealer")
	}
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.db")

	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Migrate(); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting("k", "v"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	got, err := s.GetSetting("k")
	if err != nil {
		t.Fatal(err)
	}
	if got != "v" {
		t.Errorf("got %q, want v", got)
	}
}

func TestOpenCreatesDirAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bridge.db")

	s, err := Open(config.StoreConfig{Path: path, Secret: "secret"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if !s.HasSealer() {
		t.Error("expected sealer when a secret is configured")
	}
	if err := s.SetGatewayCredentials(GatewayCredentials{ApplicationID: "1", Token: "tok"}); err != nil {
		t.Fatalf("settings table missing after Open: %v", err)
	}
}

func TestOpenMemoryWithoutSecret(t *testing.T) {
	s, err := Open(config.StoreConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.HasSealer() {
		t.Error("expected no sealer without a secret")
	}
	creds, err := s.GetGatewayCredentials()
	if err != nil {
		t.Fatal(err)
	}
	if creds.Complete() {
		t.Errorf("fresh store has credentials: %+v", creds)
	}
}
