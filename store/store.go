// Package store keeps an audit trail of onboarding decisions in Postgres.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hkinc45/dev-kitchen-onboarding/onboarding"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS onboarding_decisions (
	id            BIGSERIAL PRIMARY KEY,
	session_id    TEXT        NOT NULL,
	trigger       TEXT        NOT NULL,
	outcome       TEXT        NOT NULL,
	member_status TEXT        NOT NULL DEFAULT '',
	wizard_state  TEXT        NOT NULL,
	error_code    INTEGER     NOT NULL DEFAULT 0,
	decided_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS onboarding_decisions_session_idx ON onboarding_decisions(session_id, decided_at);
`

// Execer is the slice of a pgx pool the store needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct{ DB Execer }

func New(db Execer) *Store { return &Store{DB: db} }

// Connect opens a small pool for the audit trail.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the decisions table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.DB.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) RecordDecision(ctx context.Context, d onboarding.Decision) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO onboarding_decisions(session_id,trigger,outcome,member_status,wizard_state,error_code,decided_at)
VALUES($1,$2,$3,$4,$5,$6,$7)
`, d.SessionID, d.Trigger.String(), d.Outcome, string(d.MemberStatus), d.Wizard.String(), d.ErrorCode, d.DecidedAt)
	if err != nil {
		return fmt.Errorf("store: record decision: %w", err)
	}
	return nil
}
