package pgitems

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/syncerr"
	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) LoadItems(ctx context.Context) ([]models.TrackedItem, error) {
	sql, args, err := builder().
		Select("doc").
		From("tracked_items").
		OrderBy("position ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build select items")
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select items")
	}
	defer rows.Close()

	var out []models.TrackedItem
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, errors.Wrap(err, "scan item")
		}
		var it models.TrackedItem
		if err := json.Unmarshal(doc, &it); err != nil {
			return nil, errors.Wrapf(syncerr.ErrDecode, "item doc: %v", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows")
	}
	return out, nil
}

// SaveItems replaces the stored collection with items in one transaction.
func (s *Storage) SaveItems(ctx context.Context, items []models.TrackedItem) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, 0, len(items))
	for i, it := range items {
		doc, err := json.Marshal(it)
		if err != nil {
			return errors.Wrap(err, "marshal item")
		}
		sql, args, err := builder().
			Insert("tracked_items").
			Columns("id", "position", "doc", "updated_at").
			Values(it.ID, i, doc, now).
			Suffix("ON CONFLICT (id) DO UPDATE SET position = EXCLUDED.position, doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at").
			ToSql()
		if err != nil {
			return errors.Wrap(err, "build upsert item")
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return errors.Wrap(err, "upsert item")
		}
		ids = append(ids, it.ID)
	}

	del := builder().Delete("tracked_items")
	if len(ids) > 0 {
		del = del.Where(squirrel.NotEq{"id": ids})
	}
	sql, args, err := del.ToSql()
	if err != nil {
		return errors.Wrap(err, "build delete items")
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return errors.Wrap(err, "delete items")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
