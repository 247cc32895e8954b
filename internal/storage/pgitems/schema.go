package pgitems

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS tracked_items (
  id TEXT PRIMARY KEY,
  position INT NOT NULL DEFAULT 0,
  doc JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS seen_messages (
  message_id TEXT PRIMARY KEY,
  seen_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS candidate_returns (
  message_id TEXT PRIMARY KEY,
  retailer TEXT NOT NULL,
  product_name TEXT NOT NULL,
  refund_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
  email_date TIMESTAMPTZ NOT NULL,
  subject TEXT NOT NULL DEFAULT '',
  snippet TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_candidate_returns_email_date ON candidate_returns(email_date DESC)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
