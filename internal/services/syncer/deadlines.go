package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/ReturnBox/internal/cache"
	"github.com/BearBump/ReturnBox/internal/models"
)

const (
	day          = 24 * time.Hour
	ReturnWindow = 30 * day
)

type deadlineStage struct {
	after    time.Duration
	daysLeft int
}

// по возрастанию after
var deadlineStages = []deadlineStage{
	{after: 7 * day, daysLeft: 23},
	{after: 27 * day, daysLeft: 3},
	{after: 29 * day, daysLeft: 1},
}

// AlertLedger remembers which one-off alerts were already handed out.
type AlertLedger interface {
	Sent(ctx context.Context, id string) (bool, error)
	MarkSent(ctx context.Context, id string) error
}

type cacheLedger struct {
	c   cache.BytesCache
	ttl time.Duration
}

// NewCacheLedger keeps sent marks in c for ttl. With an in-process cache the
// marks do not survive a restart.
func NewCacheLedger(c cache.BytesCache, ttl time.Duration) AlertLedger {
	return &cacheLedger{c: c, ttl: ttl}
}

func (l *cacheLedger) Sent(ctx context.Context, id string) (bool, error) {
	_, ok, err := l.c.Get(ctx, ledgerKey(id))
	return ok, err
}

func (l *cacheLedger) MarkSent(ctx context.Context, id string) error {
	return l.c.Set(ctx, ledgerKey(id), []byte("1"), l.ttl)
}

func ledgerKey(id string) string {
	return "alert-sent:" + id
}

// dueDeadline returns the latest warning stage the item has reached. Items
// past the return window, finished refunds and items without a creation time
// have none.
func dueDeadline(it models.TrackedItem, now time.Time) (int, bool) {
	if it.CreatedAt.IsZero() {
		return 0, false
	}
	if it.RefundStatus == models.RefundStatusProcessed || it.RefundStatus == models.RefundStatusCompleted {
		return 0, false
	}
	age := now.Sub(it.CreatedAt)
	if age >= ReturnWindow {
		return 0, false
	}
	daysLeft, ok := 0, false
	for _, s := range deadlineStages {
		if age >= s.after {
			daysLeft, ok = s.daysLeft, true
		}
	}
	return daysLeft, ok
}

func deadlineKey(itemID string, daysLeft int) string {
	return fmt.Sprintf("deadline_%s_%ddays", itemID, daysLeft)
}

// warnDeadlines raises at most one warning per item and stage. Ledger errors
// only skip the item for this run.
func (c *Coordinator) warnDeadlines(ctx context.Context, st *runState, log *slog.Logger) {
	now := c.now()
	for _, it := range c.items.Snapshot() {
		daysLeft, ok := dueDeadline(it, now)
		if !ok {
			continue
		}
		key := deadlineKey(it.ID, daysLeft)
		sent, err := c.ledger.Sent(ctx, key)
		if err != nil {
			log.Warn("alert ledger lookup", "item_id", it.ID, "error", err.Error())
			continue
		}
		if sent {
			continue
		}

		fired := false
		merged := st.g.do(func() {
			if fired = c.notifier.OnDeadlineApproaching(ctx, it, daysLeft); fired {
				st.deadlineWarnings++
			}
		})
		if !merged {
			c.metrics.LateResult()
			return
		}
		if !fired {
			continue
		}
		if err := c.ledger.MarkSent(ctx, key); err != nil {
			log.Warn("alert ledger mark", "item_id", it.ID, "error", err.Error())
		}
	}
}
