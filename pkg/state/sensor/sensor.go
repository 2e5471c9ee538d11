package sensor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"chatrelay/pkg/state/logger"
	"chatrelay/pkg/timeutil"
)

// Config tunes the disk monitor. An alert raised above DiskHighPct clears
// once usage has stayed under DiskLowPct for RecoveryWindow.
type Config struct {
	Path           string
	PollInterval   time.Duration
	DiskHighPct    float64
	DiskLowPct     float64
	RecoveryWindow time.Duration
}

// Sensor watches free space on the filesystem holding the database.
type Sensor struct {
	cfg    Config
	usage  func(path string) (float64, error)
	report func(pct float64)

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	alert    bool
	lowSince time.Time
}

// New builds a sensor; report, if set, receives every sample.
func New(cfg Config, report func(pct float64)) *Sensor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Sensor{
		cfg:    cfg,
		usage:  DiskUsage,
		report: report,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (s *Sensor) Start() {
	go s.run()
}

// Stop ends the poll loop and waits for it. Safe to call more than once.
func (s *Sensor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.done
}

func (s *Sensor) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	s.Check()
	for {
		select {
		case <-ticker.C:
			s.Check()
		case <-s.stopCh:
			return
		}
	}
}

// Check samples disk usage once and updates the alert state.
func (s *Sensor) Check() {
	pct, err := s.usage(s.cfg.Path)
	if err != nil {
		logger.Warn("disk_stat_failed", "path", s.cfg.Path, "error", err)
		return
	}
	if s.report != nil {
		s.report(pct)
	}

	now := timeutil.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case pct > s.cfg.DiskHighPct:
		s.lowSince = time.Time{}
		if !s.alert {
			logger.Warn("disk_usage_high", "used_pct", pct, "threshold", s.cfg.DiskHighPct)
			s.alert = true
		}
	case s.alert && pct < s.cfg.DiskLowPct:
		if s.lowSince.IsZero() {
			s.lowSince = now
		}
		if now.Sub(s.lowSince) >= s.cfg.RecoveryWindow {
			logger.Info("disk_usage_recovered", "used_pct", pct, "threshold", s.cfg.DiskLowPct)
			s.alert = false
			s.lowSince = time.Time{}
		}
	default:
		s.lowSince = time.Time{}
	}
}

// Alerting reports whether disk usage is currently flagged high.
func (s *Sensor) Alerting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alert
}

// DiskUsage returns the used percentage of the filesystem holding path.
func DiskUsage(path string) (float64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	if total == 0 {
		return 0, nil
	}
	available := stat.Bavail * uint64(stat.Bsize)
	return float64(total-available) / float64(total) * 100, nil
}
