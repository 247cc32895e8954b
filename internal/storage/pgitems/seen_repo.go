package pgitems

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

// SeenSet is the Postgres-backed set of surfaced or hidden inbox message ids.
type SeenSet struct {
	s *Storage
}

func (s *Storage) SeenSet() *SeenSet {
	return &SeenSet{s: s}
}

func (ss *SeenSet) Contains(ctx context.Context, id string) (bool, error) {
	sql, args, err := builder().
		Select("1").
		From("seen_messages").
		Where(squirrel.Eq{"message_id": id}).
		Prefix("SELECT EXISTS (").
		Suffix(")").
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, "build seen exists")
	}
	var ok bool
	if err := ss.s.db.QueryRow(ctx, sql, args...).Scan(&ok); err != nil {
		return false, errors.Wrap(err, "seen exists")
	}
	return ok, nil
}

func (ss *SeenSet) Add(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	q := builder().Insert("seen_messages").Columns("message_id", "seen_at")
	for _, id := range ids {
		q = q.Values(id, now)
	}
	return ss.s.exec(ctx, q.Suffix("ON CONFLICT (message_id) DO NOTHING"), "insert seen")
}

func (ss *SeenSet) Remove(ctx context.Context, id string) error {
	return ss.s.exec(ctx, builder().Delete("seen_messages").Where(squirrel.Eq{"message_id": id}), "delete seen")
}

func (ss *SeenSet) Count(ctx context.Context) (int, error) {
	sql, args, err := builder().Select("COUNT(*)").From("seen_messages").ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "build seen count")
	}
	var n int
	if err := ss.s.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "seen count")
	}
	return n, nil
}

func (ss *SeenSet) List(ctx context.Context) ([]string, error) {
	sql, args, err := builder().Select("message_id").From("seen_messages").OrderBy("message_id").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build seen list")
	}
	rows, err := ss.s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "seen list")
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan seen")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (ss *SeenSet) Clear(ctx context.Context) error {
	return ss.s.exec(ctx, builder().Delete("seen_messages"), "clear seen")
}
