package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/BearBump/ReturnBox/internal/broker/messages"
	"github.com/BearBump/ReturnBox/internal/models"
)

type Deliverer interface {
	Deliver(ctx context.Context, a messages.Alert) error
}

// Trigger decides whether a state change deserves an alert and hands it to the
// deliverer in the background. Delivery errors are only logged.
type Trigger struct {
	d   Deliverer
	now func() time.Time

	wg sync.WaitGroup

	onSent func(alertType string)
}

func New(d Deliverer) *Trigger {
	return &Trigger{d: d, now: func() time.Time { return time.Now().UTC() }}
}

// WithSentHook registers a callback invoked for every alert handed to the deliverer.
func (t *Trigger) WithSentHook(fn func(alertType string)) *Trigger {
	t.onSent = fn
	return t
}

// OnTrackingTransition fires only for a real transition into a known status.
func (t *Trigger) OnTrackingTransition(ctx context.Context, item models.TrackedItem, oldStatus *models.TrackingStatus, newStatus models.TrackingStatus) bool {
	if oldStatus == nil || *oldStatus == newStatus || newStatus == models.TrackingStatusUnknown {
		return false
	}
	body, subtitle, ok := render(newStatus, item.Retailer, item.ProductName)
	if !ok {
		return false
	}
	t.send(ctx, messages.Alert{
		ID:       fmt.Sprintf("tracking_%s_%s", item.ID, newStatus),
		Type:     messages.AlertTypeTrackingUpdate,
		Title:    trackingTitle,
		Subtitle: subtitle,
		Body:     body,
		Payload: map[string]string{
			"type":       messages.AlertTypeTrackingUpdate,
			"item_id":    item.ID,
			"new_status": string(newStatus),
			"retailer":   item.Retailer,
		},
	})
	return true
}

func (t *Trigger) OnCandidatesFound(ctx context.Context, count int) bool {
	if count <= 0 {
		return false
	}
	title, body := candidatesText(count)
	t.send(ctx, messages.Alert{
		Type:  messages.AlertTypeCandidatesFound,
		Title: title,
		Body:  body,
		Payload: map[string]string{
			"type":  messages.AlertTypeCandidatesFound,
			"count": strconv.Itoa(count),
		},
	})
	return true
}

// OnDeadlineApproaching warns that the return window of item closes in daysLeft days.
func (t *Trigger) OnDeadlineApproaching(ctx context.Context, item models.TrackedItem, daysLeft int) bool {
	if daysLeft <= 0 {
		return false
	}
	u := urgencyFor(daysLeft)
	title, body := deadlineText(u, daysLeft, item.Retailer, item.ProductName)
	t.send(ctx, messages.Alert{
		ID:    DeadlineAlertID(item.ID, daysLeft),
		Type:  messages.AlertTypeDeadlineWarning,
		Title: title,
		Body:  body,
		Payload: map[string]string{
			"type":      messages.AlertTypeDeadlineWarning,
			"item_id":   item.ID,
			"days_left": strconv.Itoa(daysLeft),
			"urgency":   string(u),
		},
	})
	return true
}

func DeadlineAlertID(itemID string, daysLeft int) string {
	return fmt.Sprintf("deadline_%s_%ddays", itemID, daysLeft)
}

func (t *Trigger) send(ctx context.Context, a messages.Alert) {
	a.CreatedAt = t.now()
	if t.onSent != nil {
		t.onSent(a.Type)
	}
	// доставка не должна зависеть от дедлайна синка
	ctx = context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.d.Deliver(ctx, a); err != nil {
			slog.Error("deliver alert", "type", a.Type, "id", a.ID, "error", err.Error())
		}
	}()
}

// Wait blocks until every alert handed out so far has been delivered or dropped.
func (t *Trigger) Wait() {
	t.wg.Wait()
}
