// Package store keeps the bridge's settings in a sqlite database.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"presencebridge/internal/config"
	"presencebridge/internal/crypto"
)

const memoryPath = ":memory:"

type Store struct {
	db     *sql.DB
	sealer *crypto.Sealer
}

type Option func(*Store)

// WithSealer encrypts the gateway token at rest.
func WithSealer(s *crypto.Sealer) Option {
	return func(st *Store) { st.sealer = s }
}

// Open prepares the configured database for use: it creates the parent
// directory, seals the token when a secret is set and applies migrations.
func Open(cfg config.StoreConfig) (*Store, error) {
	if cfg.Path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, err
		}
	}

	var opts []Option
	if cfg.Secret != "" {
		sealer, err := crypto.NewSealer(cfg.Secret)
		if err != nil {
			return nil, fmt.Errorf("configuring sealer: %w", err)
		}
		opts = append(opts, WithSealer(sealer))
	}

	s, err := New(cfg.Path, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// New opens the database at dbPath without migrating it.
func New(dbPath string, opts ...Option) (*Store, error) {
	dsn := "file:" + dbPath + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// each :memory: connection would get its own empty database
	if dbPath == memoryPath {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) HasSealer() bool { return s.sealer != nil }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping() error { return s.db.Ping() }
