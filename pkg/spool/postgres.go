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
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS spool_entries (
    id          BIGSERIAL PRIMARY KEY,
    payload     BYTEA NOT NULL,
    enqueued_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore implements the Store interface using PostgreSQL. Meant for
// agents that share a database with other fleet infrastructure; standalone
// deployments usually run the SQLite spool.
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresStore creates a new PostgreSQL spool instance
func NewPostgresStore(dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("PostgreSQL spool initialized")

	return &PostgresStore{
		db:     db,
		logger: logger,
	}, nil
}

// Append persists a message and returns its id.
func (s *PostgresStore) Append(payload []byte) (int64, error) {
	var id int64
	err := s.db.QueryRow(
		`INSERT INTO spool_entries (payload, enqueued_at) VALUES ($1, $2) RETURNING id`,
		payload, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert spool entry: %w", err)
	}
	return id, nil
}

// Ack removes a delivered message.
func (s *PostgresStore) Ack(id int64) error {
	result, err := s.db.Exec(`DELETE FROM spool_entries WHERE id = $1`, id)
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
func (s *PostgresStore) Pending(limit int) ([]Entry, error) {
	var entries []Entry
	var err error
	if limit > 0 {
		err = s.db.Select(&entries,
			`SELECT id, payload, enqueued_at FROM spool_entries ORDER BY id ASC LIMIT $1`, limit)
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
func (s *PostgresStore) Len() (int, error) {
	var count int
	if err := s.db.Get(&count, `SELECT COUNT(*) FROM spool_entries`); err != nil {
		return 0, fmt.Errorf("failed to count spool entries: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	s.logger.Info("Closing PostgreSQL spool")
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
