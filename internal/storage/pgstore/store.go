// Package pgstore keeps night state in PostgreSQL.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"sleepstage-service/internal/nights"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS sleep_nights (
	night_id   TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store implements nights.Store with one JSONB row per night.
type Store struct {
	db *sql.DB
}

var _ nights.Store = (*Store)(nil)

// New returns a Store on an already-open database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL using dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the sleep_nights table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create sleep_nights: %w", err)
	}
	return nil
}

// GetNight implements nights.Store.GetNight.
func (s *Store) GetNight(ctx context.Context, id nights.NightID) (*nights.Night, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM sleep_nights WHERE night_id = $1`, string(id),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query night %s: %w", id, err)
	}

	var n nights.Night
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, false, fmt.Errorf("decode night %s: %w", id, err)
	}
	return &n, true, nil
}

// SetNight implements nights.Store.SetNight.
func (s *Store) SetNight(ctx context.Context, n *nights.Night) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode night %s: %w", n.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sleep_nights (night_id, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (night_id) DO UPDATE
		SET payload = EXCLUDED.payload, updated_at = now()`,
		string(n.ID), payload,
	)
	if err != nil {
		return fmt.Errorf("upsert night %s: %w", n.ID, err)
	}
	return nil
}

// ListNightIDs implements nights.Store.ListNightIDs.
func (s *Store) ListNightIDs(ctx context.Context) ([]nights.NightID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT night_id FROM sleep_nights ORDER BY night_id`)
	if err != nil {
		return nil, fmt.Errorf("query night ids: %w", err)
	}
	defer rows.Close()

	var ids []nights.NightID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan night id: %w", err)
		}
		ids = append(ids, nights.NightID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate night ids: %w", err)
	}
	return ids, nil
}
