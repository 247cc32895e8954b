package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ReturnBox/internal/syncerr"
	"github.com/pkg/errors"
)

const (
	DefaultWindow  = 30 * time.Second
	DefaultHorizon = 24 * time.Hour
)

// Grant is one permission to execute a job. Complete must be called once;
// extra calls are ignored.
type Grant struct {
	JobID    string
	Deadline time.Time
	Complete func(success bool)
}

type Handler func(g Grant)

type job struct {
	handler   Handler
	timer     *time.Timer
	notBefore time.Time
	// растёт при каждой замене или отмене таймера
	gen uint64
}

// Host is an in-process stand-in for a platform job scheduler: it keeps at most
// one pending timer per job and hands out grants with a fixed execution window.
type Host struct {
	mu      sync.Mutex
	jobs    map[string]*job
	stopped bool

	window  time.Duration
	horizon time.Duration
	now     func() time.Time

	wg sync.WaitGroup

	granted   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	denied    atomic.Int64
}

func New() *Host {
	return &Host{
		jobs:    map[string]*job{},
		window:  DefaultWindow,
		horizon: DefaultHorizon,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *Host) WithSettings(window, horizon time.Duration) *Host {
	if window > 0 {
		h.window = window
	}
	if horizon > 0 {
		h.horizon = horizon
	}
	return h
}

func (h *Host) Window() time.Duration { return h.window }

func (h *Host) Register(jobID string, handler Handler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return h.deny("register %s: host stopped", jobID)
	}
	if j, ok := h.jobs[jobID]; ok {
		j.handler = handler
		return nil
	}
	h.jobs[jobID] = &job{handler: handler}
	return nil
}

// Submit replaces any pending request for jobID with one that fires at notBefore.
func (h *Host) Submit(jobID string, notBefore time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return h.deny("submit %s: host stopped", jobID)
	}
	j, ok := h.jobs[jobID]
	if !ok {
		return h.deny("submit %s: unknown job", jobID)
	}
	now := h.now()
	if notBefore.After(now.Add(h.horizon)) {
		return h.deny("submit %s: %s is beyond horizon", jobID, notBefore.Format(time.RFC3339))
	}
	if j.timer != nil {
		j.timer.Stop()
	}
	j.gen++
	gen := j.gen
	j.notBefore = notBefore
	j.timer = time.AfterFunc(notBefore.Sub(now), func() { h.fire(jobID, gen) })
	return nil
}

func (h *Host) Cancel(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if j, ok := h.jobs[jobID]; ok && j.timer != nil {
		j.timer.Stop()
		j.timer = nil
		j.notBefore = time.Time{}
		j.gen++
	}
}

// Trigger hands out a grant right away. The pending request, if any, stays.
func (h *Host) Trigger(jobID string) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return h.deny("trigger %s: host stopped", jobID)
	}
	_, ok := h.jobs[jobID]
	h.mu.Unlock()
	if !ok {
		return h.deny("trigger %s: unknown job", jobID)
	}
	h.grant(jobID)
	return nil
}

// Pending returns the instant of the pending request for jobID.
func (h *Host) Pending(jobID string) (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	j, ok := h.jobs[jobID]
	if !ok || j.timer == nil {
		return time.Time{}, false
	}
	return j.notBefore, true
}

// Run blocks until ctx is done, then stops every timer and waits for
// outstanding handlers to return.
func (h *Host) Run(ctx context.Context) error {
	<-ctx.Done()
	h.mu.Lock()
	h.stopped = true
	for _, j := range h.jobs {
		if j.timer != nil {
			j.timer.Stop()
			j.timer = nil
		}
	}
	h.mu.Unlock()
	h.wg.Wait()
	return ctx.Err()
}

// fire ignores a timer that was replaced or canceled after it had already
// expired: its generation no longer matches the job.
func (h *Host) fire(jobID string, gen uint64) {
	h.mu.Lock()
	j, ok := h.jobs[jobID]
	if ok && j.gen != gen {
		h.mu.Unlock()
		return
	}
	if ok {
		j.timer = nil
		j.notBefore = time.Time{}
	}
	stopped := h.stopped
	h.mu.Unlock()
	if !ok || stopped {
		return
	}
	h.grant(jobID)
}

func (h *Host) grant(jobID string) {
	h.mu.Lock()
	j, ok := h.jobs[jobID]
	if !ok || h.stopped {
		h.mu.Unlock()
		return
	}
	handler := j.handler
	h.wg.Add(1)
	h.mu.Unlock()

	h.granted.Add(1)
	deadline := h.now().Add(h.window)
	var once sync.Once
	g := Grant{
		JobID:    jobID,
		Deadline: deadline,
		Complete: func(success bool) {
			once.Do(func() {
				if success {
					h.succeeded.Add(1)
				} else {
					h.failed.Add(1)
				}
				slog.Debug("grant completed", "job_id", jobID, "success", success)
			})
		},
	}
	go func() {
		defer h.wg.Done()
		handler(g)
	}()
}

func (h *Host) deny(format string, args ...any) error {
	h.denied.Add(1)
	return errors.Wrapf(syncerr.ErrSchedulingDenied, format, args...)
}

type Stats struct {
	Granted   int64 `json:"granted"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Denied    int64 `json:"denied"`
}

func (h *Host) Stats() Stats {
	return Stats{
		Granted:   h.granted.Load(),
		Succeeded: h.succeeded.Load(),
		Failed:    h.failed.Load(),
		Denied:    h.denied.Load(),
	}
}
