package pgitems

import (
	"context"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

func (s *Storage) AddCandidates(ctx context.Context, cs []models.CandidateReturn) error {
	if len(cs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	q := builder().
		Insert("candidate_returns").
		Columns("message_id", "retailer", "product_name", "refund_amount", "email_date", "subject", "snippet", "created_at")
	for _, c := range cs {
		q = q.Values(c.MessageID, c.Retailer, c.ProductName, c.RefundAmount, c.EmailDate, c.Subject, c.Snippet, now)
	}
	q = q.Suffix(`ON CONFLICT (message_id) DO UPDATE SET
  retailer = EXCLUDED.retailer,
  product_name = EXCLUDED.product_name,
  refund_amount = EXCLUDED.refund_amount,
  email_date = EXCLUDED.email_date,
  subject = EXCLUDED.subject,
  snippet = EXCLUDED.snippet`)
	return s.exec(ctx, q, "upsert candidates")
}

func (s *Storage) ListCandidates(ctx context.Context) ([]models.CandidateReturn, error) {
	sql, args, err := builder().
		Select("message_id", "retailer", "product_name", "refund_amount", "email_date", "subject", "snippet").
		From("candidate_returns").
		OrderBy("email_date DESC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build select candidates")
	}
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select candidates")
	}
	defer rows.Close()

	out := []models.CandidateReturn{}
	for rows.Next() {
		var c models.CandidateReturn
		if err := rows.Scan(&c.MessageID, &c.Retailer, &c.ProductName, &c.RefundAmount, &c.EmailDate, &c.Subject, &c.Snippet); err != nil {
			return nil, errors.Wrap(err, "scan candidate")
		}
		c.EmailDate = c.EmailDate.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Storage) DismissCandidate(ctx context.Context, messageID string) error {
	return s.exec(ctx, builder().Delete("candidate_returns").Where(squirrel.Eq{"message_id": messageID}), "delete candidate")
}
