package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"chatrelay/pkg/models"
	"chatrelay/pkg/presence"
	"chatrelay/pkg/state/logger"
	"chatrelay/pkg/timeutil"
)

// Sweeper is the part of presence.Service the scheduler drives.
type Sweeper interface {
	Sweep(ctx context.Context, inv *presence.Invocation) error
}

// Lease elects one sweeper among processes sharing a presence store.
type Lease interface {
	Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, owner string) error
}

// Scheduler runs a server-side presence sweep on a cron schedule. Each
// run is its own invocation with an empty self id, so no user is exempt.
type Scheduler struct {
	svc   Sweeper
	cron  string
	lease Lease
	owner string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New validates cron and returns a stopped scheduler. lease may be nil.
func New(svc Sweeper, cron string, lease Lease) (*Scheduler, error) {
	if !gronx.New().IsValid(cron) {
		return nil, errors.New("invalid sweep cron expression: " + cron)
	}
	return &Scheduler{svc: svc, cron: cron, lease: lease, owner: uuid.NewString()}, nil
}

// Start launches the schedule loop. It returns a func that stops the loop
// and waits for it to exit.
func (s *Scheduler) Start(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	logger.Info("sweep_scheduler_started", "cron", s.cron, "owner", s.owner)
	go func() {
		defer close(done)
		s.scheduleLoop(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (s *Scheduler) scheduleLoop(ctx context.Context) {
	for {
		now := timeutil.Now()
		next, err := gronx.NextTickAfter(s.cron, now, false)
		if err != nil {
			logger.Error("sweep_nexttick_failed", "cron", s.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := next.Sub(now)
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			s.runJob(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// runJob skips the tick when the previous run is still going.
func (s *Scheduler) runJob(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Warn("sweep_overlap_skipped")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if _, err := s.RunOnce(ctx); err != nil {
		logger.Error("sweep_run_error", "error", err)
	}
}

// RunOnce performs one sweep and returns the number of local notices it
// produced. When a lease is configured and held elsewhere the run is
// skipped and reports 0.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	runID := uuid.NewString()
	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx, s.owner, time.Minute)
		if err != nil {
			return 0, err
		}
		if !ok {
			logger.Debug("sweep_lease_busy", "run_id", runID)
			return 0, nil
		}
		defer func() {
			if err := s.lease.Release(context.Background(), s.owner); err != nil {
				logger.Warn("sweep_lease_release_failed", "error", err)
			}
		}()
	}

	n := &logNotifier{runID: runID}
	inv := presence.NewInvocation("", n)
	start := timeutil.Now()
	logger.Debug("sweep_run_start", "run_id", runID)
	if err := s.svc.Sweep(ctx, inv); err != nil {
		return n.count, err
	}
	logger.Info("sweep_run_done", "run_id", runID, "evicted", n.count, "took", timeutil.Now().Sub(start))
	return n.count, nil
}

// logNotifier stands in for a connected client on server-side runs.
type logNotifier struct {
	runID string
	count int
}

func (l *logNotifier) Deliver(m *models.Message) {
	l.count++
	logger.Debug("sweep_notice", "run_id", l.runID, "from", m.From, "type", m.Type)
}
