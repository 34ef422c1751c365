// Copyright 2025 Hersouls
// SPDX-License-Identifier: Apache-2.0

// Package tripstore provides the embedded, offline-capable local store
// for the travel planner: trips, itinerary plans, saved places, cached
// route segments and the settings singleton.
//
// Records carry a locally-assigned integer id and, once synchronized,
// a remote document id. The two id spaces are independent; child
// records (plans, route segments) store their parent trip reference in
// both spaces.
package tripstore

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite database holding all local collections.
type Store struct {
	DB      *sql.DB
	logger  *slog.Logger
	writeMu sync.Mutex // serialize writes to avoid SQLite lock contention
}

// Open opens (or creates) the SQLite database at path and initializes
// the schema. Use ":memory:" for an ephemeral store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	store, err := NewStore(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore initializes the schema on an existing database handle.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := initializeSchema(db); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{DB: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}

func initializeSchema(db *sql.DB) error {
	pragmas := []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA foreign_keys=ON`,
		`PRAGMA busy_timeout=5000`,
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS trips (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			remote_id   TEXT,
			title       TEXT NOT NULL,
			destination TEXT NOT NULL DEFAULT '',
			start_date  TEXT NOT NULL DEFAULT '',
			end_date    TEXT NOT NULL DEFAULT '',
			notes       TEXT NOT NULL DEFAULT '',
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trips_remote_id ON trips(remote_id)`,

		`CREATE TABLE IF NOT EXISTS plans (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			remote_id      TEXT,
			trip_id        INTEGER NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
			trip_remote_id TEXT NOT NULL DEFAULT '',
			day            INTEGER NOT NULL DEFAULT 0,
			title          TEXT NOT NULL,
			start_time     TEXT NOT NULL DEFAULT '',
			notes          TEXT NOT NULL DEFAULT '',
			updated_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_plans_remote_id ON plans(remote_id)`,
		`CREATE INDEX IF NOT EXISTS idx_plans_trip_id ON plans(trip_id)`,

		`CREATE TABLE IF NOT EXISTS places (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			remote_id  TEXT,
			name       TEXT NOT NULL,
			address    TEXT NOT NULL DEFAULT '',
			latitude   REAL NOT NULL DEFAULT 0,
			longitude  REAL NOT NULL DEFAULT 0,
			category   TEXT NOT NULL DEFAULT '',
			notes      TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_places_remote_id ON places(remote_id)`,

		`CREATE TABLE IF NOT EXISTS route_segments (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			remote_id      TEXT,
			trip_id        INTEGER NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
			trip_remote_id TEXT NOT NULL DEFAULT '',
			travel_mode    TEXT NOT NULL DEFAULT '',
			polyline       TEXT NOT NULL DEFAULT '',
			distance_m     REAL NOT NULL DEFAULT 0,
			duration_s     REAL NOT NULL DEFAULT 0,
			updated_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_route_segments_remote_id ON route_segments(remote_id)`,
		`CREATE INDEX IF NOT EXISTS idx_route_segments_trip_id ON route_segments(trip_id)`,

		`CREATE TABLE IF NOT EXISTS settings (
			id            INTEGER PRIMARY KEY CHECK (id = 1),
			remote_id     TEXT,
			currency      TEXT NOT NULL DEFAULT 'USD',
			distance_unit TEXT NOT NULL DEFAULT 'km',
			theme         TEXT NOT NULL DEFAULT 'light',
			language      TEXT NOT NULL DEFAULT 'en',
			updated_at    INTEGER NOT NULL
		)`,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// nullableStr maps an empty string to NULL so the remote_id index
// never matches records that were not uploaded yet.
func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
