package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/ReturnBox/internal/broker/messages"
	"github.com/BearBump/ReturnBox/internal/cache"
	"github.com/BearBump/ReturnBox/internal/services/notify"
	"github.com/pkg/errors"
)

const dedupTTL = 24 * time.Hour

type alertConsumer interface {
	ConsumeAlerts(ctx context.Context, handler func(ctx context.Context, a messages.Alert) error) error
}

// relay hands alerts from the broker to the final deliverer. An alert id seen
// within dedupTTL is delivered only once.
type relay struct {
	consumer  alertConsumer
	deliverer notify.Deliverer
	seen      cache.BytesCache
}

func (r *relay) handle(ctx context.Context, a messages.Alert) error {
	dedup := a.ID != "" && r.seen != nil
	key := "alert:" + a.ID
	if dedup {
		_, ok, err := r.seen.Get(ctx, key)
		if err != nil {
			slog.Warn("alert dedup lookup", "id", a.ID, "error", err.Error())
		}
		if ok {
			slog.Debug("duplicate alert skipped", "id", a.ID)
			return nil
		}
	}
	if err := r.deliverer.Deliver(ctx, a); err != nil {
		return errors.Wrapf(err, "deliver alert %s", a.ID)
	}
	if dedup {
		if err := r.seen.Set(ctx, key, []byte(a.Type), dedupTTL); err != nil {
			slog.Warn("alert dedup store", "id", a.ID, "error", err.Error())
		}
	}
	return nil
}

func (r *relay) Run(ctx context.Context) error {
	err := r.consumer.ConsumeAlerts(ctx, r.handle)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
