// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store is the durable, single-process record store (C3):
// devices, punches, sync logs and the enumerated runtime settings. It is
// backed by sqlite3 through sqlx, per the relational option spec.md §9
// names explicitly ("UNIQUE constraint and INSERT OR IGNORE semantics").
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/punch-agent/punch-agent/pkg/log"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	sqlite3drv "github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
)

//go:embed migrations/sqlite3/*.sql
var migrationFiles embed.FS

// Store wraps the sqlite connection and the mutex that serializes writes.
// Readers may run concurrently; every write path takes mu for the
// duration of its transaction.
type Store struct {
	DB *sqlx.DB
	mu sync.Mutex
}

var (
	registerOnce sync.Once
)

// Open connects to (and migrates) the sqlite3 database at path. If the
// file exists but fails PRAGMA integrity_check, it is renamed aside to
// "<path>.backup.<epoch_ms>" and a fresh database is initialized in its
// place, per spec.md §4.3/§6.
func Open(path string) (*Store, error) {
	registerOnce.Do(func() {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3drv.SQLiteDriver{}, &queryLogHook{}))
	})

	if err := quarantineIfCorrupt(path); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on", path)
	db, err := sqlx.Open("sqlite3WithHooks", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// sqlite does not multithread; more than one connection just waits on
	// locks, so pin to one the way the teacher's repository package does.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db.DB, path); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// quarantineIfCorrupt opens path directly (outside of sqlx/migrate) to run
// an integrity check; a missing file is not corruption, just a fresh
// start. Any failure to pass the check renames the file aside.
func quarantineIfCorrupt(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	raw, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("store: probe %s: %w", path, err)
	}
	defer raw.Close()

	var result string
	checkErr := raw.QueryRow("PRAGMA integrity_check").Scan(&result)
	if checkErr == nil && result == "ok" {
		return nil
	}

	backup := fmt.Sprintf("%s.backup.%d", path, time.Now().UnixMilli())
	log.Errorf("store: %s failed integrity check (%v), quarantining to %s", path, checkErr, backup)
	if err := os.Rename(path, backup); err != nil {
		return fmt.Errorf("store: quarantine %s: %w", path, err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if _, err := os.Stat(path + suffix); err == nil {
			_ = os.Rename(path+suffix, backup+suffix)
		}
	}
	return nil
}

func migrateUp(db *sql.DB, path string) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver for %s: %w", path, err)
	}
	src, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("store: migration init: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: migrate %s: %w", path, err)
	}
	return nil
}

// queryLogHook satisfies sqlhooks.Hooks, logging every query at debug
// level with its elapsed time, the same pattern the teacher's
// repository.Hooks uses.
type queryLogHook struct{}

type beginKey struct{}

func (h *queryLogHook) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("store: query %s %q", query, args)
	return context.WithValue(ctx, beginKey{}, time.Now()), nil
}

func (h *queryLogHook) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(beginKey{}).(time.Time); ok {
		log.Debugf("store: took %s", time.Since(begin))
	}
	return ctx, nil
}
