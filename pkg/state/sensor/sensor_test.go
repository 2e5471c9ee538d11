package sensor

import (
	"testing"
	"time"

	"chatrelay/pkg/timeutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskUsage(t *testing.T) {
	pct, err := DiskUsage(t.TempDir())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pct, 0.0)
	assert.LessOrEqual(t, pct, 100.0)

	_, err = DiskUsage("/definitely/not/here")
	assert.Error(t, err)
}

func TestAlertHysteresis(t *testing.T) {
	clock := timeutil.NewFixed(time.Unix(1_700_000_000, 0))
	t.Cleanup(timeutil.SetClock(clock))

	var reported []float64
	s := New(Config{DiskHighPct: 90, DiskLowPct: 80, RecoveryWindow: time.Minute}, func(p float64) {
		reported = append(reported, p)
	})
	next := 50.0
	s.usage = func(string) (float64, error) { return next, nil }

	s.Check()
	assert.False(t, s.Alerting())

	next = 95
	s.Check()
	assert.True(t, s.Alerting())

	// between thresholds keeps the alert
	next = 85
	s.Check()
	assert.True(t, s.Alerting())

	next = 70
	s.Check()
	assert.True(t, s.Alerting())
	clock.Advance(30 * time.Second)
	s.Check()
	assert.True(t, s.Alerting())
	clock.Advance(31 * time.Second)
	s.Check()
	assert.False(t, s.Alerting())

	assert.Equal(t, []float64{50, 95, 85, 70, 70, 70}, reported)
}

func TestStartStop(t *testing.T) {
	s := New(Config{Path: t.TempDir(), PollInterval: time.Hour, DiskHighPct: 101, DiskLowPct: 100}, nil)
	s.Start()
	s.Stop()
	s.Stop()
}
