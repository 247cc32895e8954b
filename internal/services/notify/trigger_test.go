package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/BearBump/ReturnBox/internal/broker/messages"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	alerts []messages.Alert
	err    error
}

func (r *recorder) Deliver(ctx context.Context, a messages.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func status(s models.TrackingStatus) *models.TrackingStatus { return &s }

func TestTrigger_OnTrackingTransition_Rules(t *testing.T) {
	item := models.TrackedItem{ID: "item-1", Retailer: "Nike", ProductName: "Air Max"}

	cases := []struct {
		name string
		old  *models.TrackingStatus
		new  models.TrackingStatus
		want bool
	}{
		{"no previous status", nil, models.TrackingStatusInTransit, false},
		{"same status", status(models.TrackingStatusInTransit), models.TrackingStatusInTransit, false},
		{"to unknown", status(models.TrackingStatusInTransit), models.TrackingStatusUnknown, false},
		{"from unknown", status(models.TrackingStatusUnknown), models.TrackingStatusPending, true},
		{"to delivered", status(models.TrackingStatusInTransit), models.TrackingStatusDelivered, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			tr := New(rec)
			require.Equal(t, tc.want, tr.OnTrackingTransition(context.Background(), item, tc.old, tc.new))
			tr.Wait()
			if tc.want {
				require.Len(t, rec.alerts, 1)
			} else {
				require.Empty(t, rec.alerts)
			}
		})
	}
}

func TestTrigger_OnTrackingTransition_Content(t *testing.T) {
	rec := &recorder{}
	var sent []string
	tr := New(rec).WithSentHook(func(alertType string) { sent = append(sent, alertType) })
	item := models.TrackedItem{ID: "item-1", Retailer: "Nike", ProductName: "Air Max"}

	tr.OnTrackingTransition(context.Background(), item, status(models.TrackingStatusOutForDelivery), models.TrackingStatusDelivered)
	tr.Wait()

	require.Len(t, rec.alerts, 1)
	a := rec.alerts[0]
	require.Equal(t, "tracking_item-1_delivered", a.ID)
	require.Equal(t, "Return Status Update", a.Title)
	require.Equal(t, "✅ Your return to Nike has been delivered!", a.Body)
	require.Equal(t, "Air Max - Check for refund processing", a.Subtitle)
	require.Equal(t, map[string]string{
		"type":       "tracking_update",
		"item_id":    "item-1",
		"new_status": "delivered",
		"retailer":   "Nike",
	}, a.Payload)
	require.False(t, a.CreatedAt.IsZero())
	require.Equal(t, []string{messages.AlertTypeTrackingUpdate}, sent)
}

func TestTrigger_Templates(t *testing.T) {
	body, sub, ok := render(models.TrackingStatusException, "REI", "Tent")
	require.True(t, ok)
	require.Equal(t, "⚠️ Issue with your return to REI", body)
	require.Equal(t, "Tent - Check tracking details", sub)

	body, sub, ok = render(models.TrackingStatusPending, "REI", "Tent")
	require.True(t, ok)
	require.Equal(t, "⏳ Your return to REI is being processed", body)
	require.Equal(t, "Tent", sub)

	_, _, ok = render(models.TrackingStatusUnknown, "REI", "Tent")
	require.False(t, ok)
}

func TestTrigger_OnCandidatesFound(t *testing.T) {
	rec := &recorder{err: errors.New("delivery down")}
	tr := New(rec)

	require.False(t, tr.OnCandidatesFound(context.Background(), 0))
	require.True(t, tr.OnCandidatesFound(context.Background(), 3))
	tr.Wait()

	require.Len(t, rec.alerts, 1)
	require.Equal(t, messages.AlertTypeCandidatesFound, rec.alerts[0].Type)
	require.Equal(t, "3", rec.alerts[0].Payload["count"])
	require.Contains(t, rec.alerts[0].Body, "3 possible returns")
}

func TestTrigger_DeliveryIgnoresCanceledContext(t *testing.T) {
	rec := &recorder{}
	tr := New(rec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr.OnCandidatesFound(ctx, 1)
	tr.Wait()
	require.Len(t, rec.alerts, 1)
}

func TestTrigger_OnDeadlineApproaching(t *testing.T) {
	item := models.TrackedItem{ID: "item-1", Retailer: "Nike", ProductName: "Air Max"}

	cases := []struct {
		daysLeft int
		title    string
		body     string
		urgency  Urgency
	}{
		{23, "Return Deadline Reminder", "⏰ 23 days left to return Air Max to Nike", UrgencyNormal},
		{3, "Return Deadline Soon!", "⚠️ Only 3 days left to return Air Max to Nike", UrgencyUrgent},
		{1, "Final Return Warning!", "🚨 Last day to return Air Max to Nike!", UrgencyCritical},
	}
	for _, tc := range cases {
		r := &recorder{}
		tr := New(r)
		require.True(t, tr.OnDeadlineApproaching(context.Background(), item, tc.daysLeft))
		tr.Wait()

		require.Len(t, r.alerts, 1)
		a := r.alerts[0]
		require.Equal(t, DeadlineAlertID("item-1", tc.daysLeft), a.ID)
		require.Equal(t, messages.AlertTypeDeadlineWarning, a.Type)
		require.Equal(t, tc.title, a.Title)
		require.Equal(t, tc.body, a.Body)
		require.Equal(t, string(tc.urgency), a.Payload["urgency"])
		require.Equal(t, "item-1", a.Payload["item_id"])
	}
	require.Equal(t, "deadline_item-1_3days", DeadlineAlertID("item-1", 3))

	r := &recorder{}
	require.False(t, New(r).OnDeadlineApproaching(context.Background(), item, 0))
	require.Empty(t, r.alerts)
}
