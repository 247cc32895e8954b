package syncer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ReturnBox/internal/cache/memcache"
	"github.com/BearBump/ReturnBox/internal/metrics"
	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/BearBump/ReturnBox/internal/services/items"
	"github.com/BearBump/ReturnBox/internal/syncerr"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const DefaultStaleAfter = 4 * time.Hour

type Tracker interface {
	Fetch(ctx context.Context, trackingNumber string) (*models.TrackingInfo, error)
}

type InboxScanner interface {
	Ready() bool
	Scan(ctx context.Context) ([]models.CandidateReturn, error)
}

type SeenSet interface {
	Contains(ctx context.Context, id string) (bool, error)
	Add(ctx context.Context, ids ...string) error
}

type CandidateSink interface {
	AddCandidates(ctx context.Context, cs []models.CandidateReturn) error
}

type Notifier interface {
	OnTrackingTransition(ctx context.Context, item models.TrackedItem, oldStatus *models.TrackingStatus, newStatus models.TrackingStatus) bool
	OnCandidatesFound(ctx context.Context, count int) bool
	OnDeadlineApproaching(ctx context.Context, item models.TrackedItem, daysLeft int) bool
}

type RunResult struct {
	RunID            string    `json:"runId"`
	StartedAt        time.Time `json:"startedAt"`
	Deadline         time.Time `json:"deadline"`
	FinishedAt       time.Time `json:"finishedAt"`
	TrackingOK       bool      `json:"trackingOk"`
	InboxOK          bool      `json:"inboxOk"`
	InboxSkipped     bool      `json:"inboxSkipped"`
	DeadlineExceeded bool      `json:"deadlineExceeded"`
	Attempted        int       `json:"attempted"`
	Updated          int       `json:"updated"`
	NewCandidates    int       `json:"newCandidates"`
	DeadlineWarnings int       `json:"deadlineWarnings"`
	Err              error     `json:"-"`
	Error            string    `json:"error,omitempty"`
}

func (r RunResult) Success() bool {
	return r.Err == nil && r.TrackingOK && r.InboxOK && !r.DeadlineExceeded
}

// Coordinator runs one bounded sync: tracking refresh and inbox scan side by side,
// merged into the item list until the deadline seals the run.
type Coordinator struct {
	items      *items.List
	tracker    Tracker
	scanner    InboxScanner
	seen       SeenSet
	candidates CandidateSink
	notifier   Notifier
	ledger     AlertLedger
	metrics    *metrics.Metrics

	staleAfter  time.Duration
	concurrency int
	now         func() time.Time

	lastMu sync.Mutex
	last   *RunResult
}

type Option func(*Coordinator)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithAlertLedger sets where sent deadline warnings are remembered between runs.
func WithAlertLedger(l AlertLedger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.ledger = l
		}
	}
}

func WithStaleAfter(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.staleAfter = d
		}
	}
}

func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func New(list *items.List, tracker Tracker, scanner InboxScanner, seen SeenSet, candidates CandidateSink, notifier Notifier, opts ...Option) *Coordinator {
	c := &Coordinator{
		items:       list,
		tracker:     tracker,
		scanner:     scanner,
		seen:        seen,
		candidates:  candidates,
		notifier:    notifier,
		ledger:      NewCacheLedger(memcache.New(), ReturnWindow),
		staleAfter:  DefaultStaleAfter,
		concurrency: 5,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type inboxOutcome struct {
	ok      bool
	skipped bool
}

// run-scoped counters, written only under the gate
type runState struct {
	g             gate
	attempted     atomic.Int64
	updated          int
	newCandidates    int
	deadlineWarnings int
}

func (c *Coordinator) Run(ctx context.Context, deadline time.Time) RunResult {
	res := RunResult{
		RunID:     uuid.NewString(),
		StartedAt: c.now(),
		Deadline:  deadline,
	}
	log := slog.With("run_id", res.RunID)
	log.Info("sync run started", "deadline", deadline)

	st := &runState{}
	trackCh := make(chan bool, 1)
	inboxCh := make(chan inboxOutcome, 1)

	go func() {
		ok := c.refreshTracking(ctx, st, log)
		c.warnDeadlines(ctx, st, log)
		trackCh <- ok
	}()
	go func() {
		if c.scanner == nil || !c.scanner.Ready() {
			inboxCh <- inboxOutcome{ok: true, skipped: true}
			return
		}
		inboxCh <- inboxOutcome{ok: c.scanInbox(ctx, st, log)}
	}()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	trackingDone, inboxDone := false, false
join:
	for !trackingDone || !inboxDone {
		select {
		case ok := <-trackCh:
			trackingDone, res.TrackingOK = true, ok
		case out := <-inboxCh:
			inboxDone, res.InboxOK, res.InboxSkipped = true, out.ok, out.skipped
		case <-timer.C:
			res.DeadlineExceeded = true
			break join
		case <-ctx.Done():
			res.Err = ctx.Err()
			break join
		}
	}
	st.g.seal()
	if res.DeadlineExceeded {
		log.Warn("sync run hit deadline", "tracking_done", trackingDone, "inbox_done", inboxDone)
		res.Err = errors.Wrap(syncerr.ErrDeadlineExceeded, "sync run")
	}
	res.Attempted = int(st.attempted.Load())
	res.Updated = st.updated
	res.NewCandidates = st.newCandidates
	res.DeadlineWarnings = st.deadlineWarnings

	if err := c.items.Flush(ctx); err != nil {
		log.Error("flush items", "error", err.Error())
		if res.Err == nil {
			res.Err = err
		}
	}

	res.FinishedAt = c.now()
	if res.Err == nil && !res.Success() {
		res.Err = errors.New("sync subtask failed")
	}
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	c.metrics.ObserveRun(res.Success(), res.FinishedAt.Sub(res.StartedAt))
	log.Info("sync run finished",
		"success", res.Success(),
		"tracking_ok", res.TrackingOK,
		"inbox_ok", res.InboxOK,
		"updated", res.Updated,
		"new_candidates", res.NewCandidates,
		"deadline_warnings", res.DeadlineWarnings,
	)

	c.lastMu.Lock()
	last := res
	c.last = &last
	c.lastMu.Unlock()
	return res
}

// LastResult returns the outcome of the most recent finished run.
func (c *Coordinator) LastResult() *RunResult {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	if c.last == nil {
		return nil
	}
	r := *c.last
	return &r
}

func (c *Coordinator) refreshTracking(ctx context.Context, st *runState, log *slog.Logger) bool {
	now := c.now()
	var due []models.TrackedItem
	for _, it := range c.items.Snapshot() {
		if it.NeedsRefresh(now, c.staleAfter) {
			due = append(due, it)
		}
	}
	if len(due) == 0 {
		return true
	}

	var failed atomic.Int64
	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	for _, it := range due {
		if st.g.isSealed() {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		st.attempted.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			info, err := c.tracker.Fetch(ctx, *it.TrackingNumber)
			c.metrics.TrackingFetch(err == nil)
			if err != nil {
				failed.Add(1)
				log.Warn("tracking fetch failed", "item_id", it.ID, "error", err.Error())
				return
			}
			c.merge(ctx, st, it.ID, info)
		}()
	}
	wg.Wait()

	attempted := st.attempted.Load()
	return attempted == 0 || failed.Load() < attempted
}

func (c *Coordinator) merge(ctx context.Context, st *runState, id string, info *models.TrackingInfo) {
	ok := st.g.do(func() {
		var (
			old  *models.TrackingStatus
			item models.TrackedItem
		)
		found := c.items.Update(id, func(it *models.TrackedItem) {
			old = it.CurrentStatus()
			synced := c.now()
			it.TrackingInfo = info
			it.LastSyncedAt = &synced
			if info.Status == models.TrackingStatusDelivered && it.RefundStatus == models.RefundStatusShipped {
				it.RefundStatus = models.RefundStatusReceived
			}
			item = *it
		})
		if !found {
			return
		}
		st.updated++
		c.notifier.OnTrackingTransition(ctx, item, old, info.Status)
	})
	if !ok {
		c.metrics.LateResult()
		slog.Debug("late tracking result dropped", "item_id", id)
	}
}

func (c *Coordinator) scanInbox(ctx context.Context, st *runState, log *slog.Logger) bool {
	found, err := c.scanner.Scan(ctx)
	if err != nil {
		log.Warn("inbox scan failed", "error", err.Error())
		return false
	}

	fresh := make([]models.CandidateReturn, 0, len(found))
	for _, cand := range found {
		seen, err := c.seen.Contains(ctx, cand.MessageID)
		if err != nil {
			log.Warn("seen-set lookup failed", "error", err.Error())
			return false
		}
		if !seen {
			fresh = append(fresh, cand)
		}
	}

	ok := false
	merged := st.g.do(func() {
		if len(fresh) == 0 {
			ok = true
			return
		}
		if err := c.candidates.AddCandidates(ctx, fresh); err != nil {
			log.Error("store candidates", "error", err.Error())
			return
		}
		ids := make([]string, len(fresh))
		for i := range fresh {
			ids[i] = fresh[i].MessageID
		}
		if err := c.seen.Add(ctx, ids...); err != nil {
			log.Error("mark candidates seen", "error", err.Error())
			return
		}
		st.newCandidates = len(fresh)
		c.metrics.CandidatesFound(len(fresh))
		c.notifier.OnCandidatesFound(ctx, len(fresh))
		ok = true
	})
	if !merged {
		c.metrics.LateResult()
		log.Debug("late inbox result dropped", "found", len(fresh))
	}
	return ok
}
