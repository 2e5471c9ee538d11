package sweeper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chatrelay/pkg/models"
	"chatrelay/pkg/presence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	calls   int
	notices int
	err     error
	selves  []string
}

func (f *fakeSweeper) Sweep(_ context.Context, inv *presence.Invocation) error {
	f.calls++
	f.selves = append(f.selves, inv.Self)
	if f.err != nil {
		return f.err
	}
	for i := 0; i < f.notices; i++ {
		inv.Notify(&models.Message{Kind: models.KindPresence, From: "A@h/internal", To: "@h/internal"})
	}
	return nil
}

type denyLease struct{}

func (denyLease) Acquire(context.Context, string, time.Duration) (bool, error) { return false, nil }
func (denyLease) Release(context.Context, string) error                       { return nil }

func TestNewRejectsBadCron(t *testing.T) {
	_, err := New(&fakeSweeper{}, "not a cron", nil)
	assert.Error(t, err)
}

func TestRunOnceUsesServerInvocation(t *testing.T) {
	f := &fakeSweeper{notices: 2}
	s, err := New(f, "* * * * *", nil)
	require.NoError(t, err)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{""}, f.selves)
}

func TestRunOnceSkipsWithoutLease(t *testing.T) {
	f := &fakeSweeper{}
	s, err := New(f, "* * * * *", denyLease{})
	require.NoError(t, err)
	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.calls)
}

func TestRunOncePropagatesError(t *testing.T) {
	boom := errors.New("boom")
	s, err := New(&fakeSweeper{err: boom}, "* * * * *", NewFileLease(t.TempDir()))
	require.NoError(t, err)
	_, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestStartStop(t *testing.T) {
	s, err := New(&fakeSweeper{}, "* * * * *", nil)
	require.NoError(t, err)
	stop := s.Start(context.Background())
	stop()
}

func TestFileLease(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a := NewFileLease(dir)
	b := NewFileLease(dir)

	ok, err := a.Acquire(ctx, "one", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, "two", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, b.Release(ctx, "two"), ErrNotOwner)
	require.NoError(t, a.Release(ctx, "one"))

	ok, err = b.Acquire(ctx, "two", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Release(ctx, "two"))
	require.NoError(t, b.Release(ctx, "two"))
}

func TestFileLeaseCorruptIsTakenOver(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := NewFileLease(dir)
	for _, junk := range []string{"", "{not json", `{"owner":7}`} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "sweep.lock"), []byte(junk), 0o600))

		ok, err := l.Acquire(ctx, "two", time.Minute)
		require.NoError(t, err, junk)
		assert.True(t, ok, junk)

		ok, err = NewFileLease(dir).Acquire(ctx, "three", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
		require.NoError(t, l.Release(ctx, "two"))
	}
}

func TestFileLeaseExpired(t *testing.T) {
	ctx := context.Background()
	l := NewFileLease(t.TempDir())
	ok, err := l.Acquire(ctx, "one", -time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Acquire(ctx, "two", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
