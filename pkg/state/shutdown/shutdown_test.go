package shutdown

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunKeepsGoingAfterFailure(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	err := Run(context.Background(),
		Step{Name: "server", Fn: func(context.Context) error { order = append(order, "server"); return boom }},
		Step{Name: "skipped"},
		Step{Name: "db", Fn: func(context.Context) error { order = append(order, "db"); return nil }},
	)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"server", "db"}, order)
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := Run(ctx, Step{Name: "db", Fn: func(context.Context) error { called = true; return nil }})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestWriteCrashDump(t *testing.T) {
	path, err := WriteCrashDump(t.TempDir(), "open store", errors.New("locked"))
	require.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), "reason: open store"))
	assert.True(t, strings.Contains(string(b), "error: locked"))
}

func TestSignalHandlerCancel(t *testing.T) {
	ctx, cancel := SetupSignalHandler(context.Background())
	cancel()
	<-ctx.Done()
}
