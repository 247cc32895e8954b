package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ReturnBox/internal/metrics"
	"github.com/BearBump/ReturnBox/internal/scheduler"
	"github.com/BearBump/ReturnBox/internal/services/syncer"
	"github.com/pkg/errors"
)

const (
	DefaultJobID        = "returnbox.refresh"
	DefaultSafetyMargin = 5 * time.Second
)

type Host interface {
	Register(jobID string, h scheduler.Handler) error
	Submit(jobID string, notBefore time.Time) error
	Cancel(jobID string)
}

type Runner interface {
	Run(ctx context.Context, deadline time.Time) syncer.RunResult
}

// Supervisor turns host grants into sync runs: it keeps exactly one pending
// request, refuses overlapping grants and reports every grant exactly once.
type Supervisor struct {
	host   Host
	runner Runner
	jobID  string

	planner      *Planner
	safetyMargin time.Duration
	metrics      *metrics.Metrics
	now          func() time.Time

	baseMu  sync.Mutex
	baseCtx context.Context

	inFlight            atomic.Bool
	consecutiveFailures atomic.Int32
	reschedulePending   atomic.Bool

	startedAtUnixNano   int64
	lastGrantUnixNano   atomic.Int64
	lastFinishUnixNano  atomic.Int64
	nextRequestUnixNano atomic.Int64
	totalGrants         atomic.Int64
	totalSucceeded      atomic.Int64
	totalFailed         atomic.Int64
	totalTimedOut       atomic.Int64
	totalRefused        atomic.Int64
	totalDenied         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(host Host, runner Runner, jobID string) *Supervisor {
	if jobID == "" {
		jobID = DefaultJobID
	}
	return &Supervisor{
		host:              host,
		runner:            runner,
		jobID:             jobID,
		planner:           NewPlanner(DefaultPlannerConfig(), nil),
		safetyMargin:      DefaultSafetyMargin,
		now:               func() time.Time { return time.Now().UTC() },
		baseCtx:           context.Background(),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (s *Supervisor) WithSettings(safetyMargin time.Duration) *Supervisor {
	if safetyMargin > 0 {
		s.safetyMargin = safetyMargin
	}
	return s
}

func (s *Supervisor) WithPlanner(cfg PlannerConfig) *Supervisor {
	s.planner = NewPlanner(cfg, nil)
	return s
}

func (s *Supervisor) WithMetrics(m *metrics.Metrics) *Supervisor {
	s.metrics = m
	return s
}

func (s *Supervisor) JobID() string { return s.jobID }

func (s *Supervisor) Register() error {
	if err := s.host.Register(s.jobID, s.handle); err != nil {
		return errors.Wrap(err, "register job")
	}
	return nil
}

// Start registers the job and asks for the first grant at notBefore.
// ctx is the parent of every sync run started by a grant.
func (s *Supervisor) Start(ctx context.Context, notBefore time.Time) error {
	s.baseMu.Lock()
	s.baseCtx = ctx
	s.baseMu.Unlock()

	if err := s.Register(); err != nil {
		return err
	}
	_ = s.ScheduleNext(notBefore)
	return nil
}

// ScheduleNext cancels the pending request for the job and submits a new one.
// A denied request is logged, counted and retried at the next opportunity.
func (s *Supervisor) ScheduleNext(notBefore time.Time) error {
	s.host.Cancel(s.jobID)
	if err := s.host.Submit(s.jobID, notBefore); err != nil {
		s.totalDenied.Add(1)
		s.metrics.SchedulingDenied()
		s.setLastError(err)
		s.reschedulePending.Store(true)
		slog.Warn("schedule next grant", "job_id", s.jobID, "not_before", notBefore, "error", err.Error())
		return err
	}
	s.reschedulePending.Store(false)
	s.nextRequestUnixNano.Store(notBefore.UnixNano())
	return nil
}

func (s *Supervisor) scheduleFromPlanner() {
	delay := s.planner.NextDelay(int(s.consecutiveFailures.Load()))
	_ = s.ScheduleNext(s.now().Add(delay))
}

func (s *Supervisor) handle(g scheduler.Grant) {
	s.totalGrants.Add(1)
	s.lastGrantUnixNano.Store(s.now().UnixNano())

	s.scheduleFromPlanner()

	if !s.inFlight.CompareAndSwap(false, true) {
		s.totalRefused.Add(1)
		s.metrics.Grant("refused")
		slog.Warn("grant refused: sync already running", "job_id", g.JobID)
		g.Complete(false)
		return
	}

	// finish reports whether this call decided the outcome of the grant.
	var once sync.Once
	finish := func(success bool, outcome string) bool {
		won := false
		once.Do(func() {
			won = true
			s.lastFinishUnixNano.Store(s.now().UnixNano())
			switch {
			case outcome == "timeout":
				s.totalTimedOut.Add(1)
			case success:
				s.totalSucceeded.Add(1)
			default:
				s.totalFailed.Add(1)
			}
			if success {
				s.consecutiveFailures.Store(0)
			} else {
				s.consecutiveFailures.Add(1)
			}
			s.metrics.Grant(outcome)
			g.Complete(success)
		})
		return won
	}

	runDeadline := g.Deadline.Add(-s.safetyMargin)
	safety := time.AfterFunc(time.Until(runDeadline), func() {
		slog.Warn("sync run abandoned at safety deadline", "job_id", g.JobID, "deadline", runDeadline)
		s.setLastError(errors.New("safety deadline reached"))
		finish(false, "timeout")
	})

	s.baseMu.Lock()
	ctx := s.baseCtx
	s.baseMu.Unlock()

	go func() {
		defer s.inFlight.Store(false)

		res := s.runner.Run(ctx, runDeadline)
		safety.Stop()

		switch {
		case res.Success():
			finish(true, "success")
		case finish(false, "failure"):
			if res.Err != nil {
				s.setLastError(res.Err)
			}
		}
		if s.reschedulePending.Load() {
			s.scheduleFromPlanner()
		}
	}()
}

func (s *Supervisor) setLastError(err error) {
	s.lastErrorMu.Lock()
	s.lastError = err.Error()
	s.lastErrorMu.Unlock()
}

type Stats struct {
	StartedAt           time.Time  `json:"startedAt"`
	LastGrantAt         *time.Time `json:"lastGrantAt,omitempty"`
	LastFinishAt        *time.Time `json:"lastFinishAt,omitempty"`
	NextRequestAt       *time.Time `json:"nextRequestAt,omitempty"`
	TotalGrants         int64      `json:"totalGrants"`
	TotalSucceeded      int64      `json:"totalSucceeded"`
	TotalFailed         int64      `json:"totalFailed"`
	TotalTimedOut       int64      `json:"totalTimedOut"`
	TotalRefused        int64      `json:"totalRefused"`
	TotalDenied         int64      `json:"totalDenied"`
	ConsecutiveFailures int32      `json:"consecutiveFailures"`
	InFlight            bool       `json:"inFlight"`
	LastError           string     `json:"lastError,omitempty"`
}

func (s *Supervisor) Stats() Stats {
	st := Stats{
		StartedAt:           time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalGrants:         s.totalGrants.Load(),
		TotalSucceeded:      s.totalSucceeded.Load(),
		TotalFailed:         s.totalFailed.Load(),
		TotalTimedOut:       s.totalTimedOut.Load(),
		TotalRefused:        s.totalRefused.Load(),
		TotalDenied:         s.totalDenied.Load(),
		ConsecutiveFailures: s.consecutiveFailures.Load(),
		InFlight:            s.inFlight.Load(),
	}
	st.LastGrantAt = unixPtr(s.lastGrantUnixNano.Load())
	st.LastFinishAt = unixPtr(s.lastFinishUnixNano.Load())
	st.NextRequestAt = unixPtr(s.nextRequestUnixNano.Load())
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func unixPtr(n int64) *time.Time {
	if n <= 0 {
		return nil
	}
	t := time.Unix(0, n).UTC()
	return &t
}
