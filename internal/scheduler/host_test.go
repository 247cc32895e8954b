package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/ReturnBox/internal/syncerr"
	"github.com/stretchr/testify/require"
)

func TestHost_SubmitDenied(t *testing.T) {
	h := New().WithSettings(0, time.Hour)

	err := h.Submit("missing", time.Now())
	require.ErrorIs(t, err, syncerr.ErrSchedulingDenied)

	require.NoError(t, h.Register("job", func(Grant) {}))
	err = h.Submit("job", time.Now().Add(2*time.Hour))
	require.ErrorIs(t, err, syncerr.ErrSchedulingDenied)
	require.Equal(t, int64(2), h.Stats().Denied)
}

func TestHost_SubmitReplacesPending(t *testing.T) {
	h := New()
	var calls atomic.Int32
	grants := make(chan Grant, 4)
	require.NoError(t, h.Register("job", func(g Grant) {
		calls.Add(1)
		grants <- g
	}))

	far := time.Now().Add(time.Hour)
	require.NoError(t, h.Submit("job", far))
	at, ok := h.Pending("job")
	require.True(t, ok)
	require.Equal(t, far, at)

	require.NoError(t, h.Submit("job", time.Now().Add(10*time.Millisecond)))

	select {
	case g := <-grants:
		require.Equal(t, "job", g.JobID)
		require.WithinDuration(t, time.Now().Add(DefaultWindow), g.Deadline, time.Second)
		g.Complete(true)
		g.Complete(false)
	case <-time.After(time.Second):
		t.Fatal("grant not delivered")
	}

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), calls.Load())
	_, ok = h.Pending("job")
	require.False(t, ok)

	st := h.Stats()
	require.Equal(t, int64(1), st.Granted)
	require.Equal(t, int64(1), st.Succeeded)
	require.Equal(t, int64(0), st.Failed)
}

func TestHost_Cancel(t *testing.T) {
	h := New()
	var calls atomic.Int32
	require.NoError(t, h.Register("job", func(Grant) { calls.Add(1) }))
	require.NoError(t, h.Submit("job", time.Now().Add(20*time.Millisecond)))
	h.Cancel("job")

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, int32(0), calls.Load())
}

func TestHost_TriggerUsesWindow(t *testing.T) {
	h := New().WithSettings(2*time.Second, 0)
	grants := make(chan Grant, 1)
	require.NoError(t, h.Register("job", func(g Grant) { grants <- g }))

	require.NoError(t, h.Trigger("job"))
	g := <-grants
	require.WithinDuration(t, time.Now().Add(2*time.Second), g.Deadline, 500*time.Millisecond)
	g.Complete(false)
	require.Equal(t, int64(1), h.Stats().Failed)

	require.ErrorIs(t, h.Trigger("other"), syncerr.ErrSchedulingDenied)
}

func TestHost_RunStops(t *testing.T) {
	h := New()
	require.NoError(t, h.Register("job", func(Grant) {}))
	require.NoError(t, h.Submit("job", time.Now().Add(time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	_, ok := h.Pending("job")
	require.False(t, ok)
	require.ErrorIs(t, h.Submit("job", time.Now()), syncerr.ErrSchedulingDenied)
	require.ErrorIs(t, h.Register("job2", func(Grant) {}), syncerr.ErrSchedulingDenied)
}

func TestHost_ExpiredTimerDoesNotClobberReplacement(t *testing.T) {
	h := New()
	var calls atomic.Int32
	require.NoError(t, h.Register("job", func(g Grant) {
		calls.Add(1)
		g.Complete(true)
	}))

	require.NoError(t, h.Submit("job", time.Now().Add(time.Hour)))
	h.mu.Lock()
	stale := h.jobs["job"].gen
	h.mu.Unlock()

	next := time.Now().Add(2 * time.Hour)
	require.NoError(t, h.Submit("job", next))

	// первый таймер успел сработать до замены и ждал мьютекс
	h.fire("job", stale)

	at, ok := h.Pending("job")
	require.True(t, ok)
	require.Equal(t, next, at)
	require.Equal(t, int32(0), calls.Load())

	h.Cancel("job")
	_, ok = h.Pending("job")
	require.False(t, ok)

	h.mu.Lock()
	gen := h.jobs["job"].gen
	h.mu.Unlock()
	h.fire("job", gen-1)
	require.Equal(t, int32(0), calls.Load())
	require.Equal(t, int64(0), h.Stats().Granted)
}
