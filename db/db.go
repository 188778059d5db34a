// Package db provides the Postgres connection, schema migration, and access
// helpers for relay session checkpoints.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection pool for dsn and verifies it.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db dsn empty")
	}
	dbx, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	dbx.SetMaxOpenConns(8)
	dbx.SetConnMaxIdleTime(5 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbx.PingContext(pctx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return dbx, nil
}

// Migrate brings the schema up to date.
func Migrate(dbx *sql.DB) error { return RunMigrations(dbx) }

// Session is one row of stream_sessions.
type Session struct {
	StreamID     string    `json:"stream_id"`
	ChannelID    string    `json:"channel_id"`
	Continuation string    `json:"continuation"`
	State        string    `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UpsertSession inserts or updates the checkpoint of s.StreamID.
func UpsertSession(ctx context.Context, dbx *sql.DB, s Session) error {
	if s.StreamID == "" {
		return fmt.Errorf("stream id empty")
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	_, err := dbx.ExecContext(ctx, `INSERT INTO stream_sessions (stream_id, channel_id, continuation, state, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (stream_id) DO UPDATE SET
			channel_id=EXCLUDED.channel_id,
			continuation=EXCLUDED.continuation,
			state=EXCLUDED.state,
			updated_at=EXCLUDED.updated_at`,
		s.StreamID, s.ChannelID, s.Continuation, s.State, s.UpdatedAt.UTC())
	return err
}

// GetSession returns the checkpoint for streamID; sql.ErrNoRows when absent.
func GetSession(ctx context.Context, dbx *sql.DB, streamID string) (Session, error) {
	var s Session
	err := dbx.QueryRowContext(ctx, `SELECT stream_id, channel_id, continuation, state, created_at, updated_at
		FROM stream_sessions WHERE stream_id=$1`, streamID).
		Scan(&s.StreamID, &s.ChannelID, &s.Continuation, &s.State, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// ListSessions returns up to limit checkpoints, most recently updated first.
func ListSessions(ctx context.Context, dbx *sql.DB, limit int) ([]Session, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := dbx.QueryContext(ctx, `SELECT stream_id, channel_id, continuation, state, created_at, updated_at
		FROM stream_sessions ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.StreamID, &s.ChannelID, &s.Continuation, &s.State, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
