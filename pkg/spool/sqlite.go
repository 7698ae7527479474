/*
 * Copyright (c) 2025, FleetForge Software (https://fleetforge.io).
 *
 * FleetForge Software licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package spool

import (
	_ "embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed telemetry-spool.sql
var schemaSQL string

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQLiteStore creates a new SQLite spool instance
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	// Build connection string with SQLite pragmas for optimal performance
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_cache_size=2000", dbPath)

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Prevents "database is locked" errors with concurrent access
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite spool initialized",
		zap.String("database_path", dbPath),
		zap.String("journal_mode", "WAL"))

	return store, nil
}

// initSchema creates the spool schema if it doesn't exist
func (s *SQLiteStore) initSchema() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to query schema version: %w", err)
	}

	if version == 0 {
		s.logger.Info("Initializing spool schema (version 1)")
		if _, err := s.db.Exec(schemaSQL); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	} else {
		s.logger.Debug("Spool schema already exists", zap.Int("version", version))
	}

	return nil
}

// Append persists a message and returns its id.
func (s *SQLiteStore) Append(payload []byte) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO spool_entries (payload, enqueued_at) VALUES (?, ?)`,
		payload, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert spool entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read spool entry id: %w", err)
	}
	return id, nil
}

// Ack removes a delivered message.
func (s *SQLiteStore) Ack(id int64) error {
	result, err := s.db.Exec(`DELETE FROM spool_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete spool entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: id=%d", ErrNotFound, id)
	}
	return nil
}

// Pending returns unacknowledged messages in append order.
func (s *SQLiteStore) Pending(limit int) ([]Entry, error) {
	var entries []Entry
	var err error
	if limit > 0 {
		err = s.db.Select(&entries,
			`SELECT id, payload, enqueued_at FROM spool_entries ORDER BY id ASC LIMIT ?`, limit)
	} else {
		err = s.db.Select(&entries,
			`SELECT id, payload, enqueued_at FROM spool_entries ORDER BY id ASC`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query spool entries: %w", err)
	}
	return entries, nil
}

// Len returns the number of unacknowledged messages.
func (s *SQLiteStore) Len() (int, error) {
	var count int
	if err := s.db.Get(&count, `SELECT COUNT(*) FROM spool_entries`); err != nil {
		return 0, fmt.Errorf("failed to count spool entries: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("Closing SQLite spool")
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
