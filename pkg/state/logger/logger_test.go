package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestWarnIsWrittenAtInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("info", &buf)
	defer func() { Log = nil }()

	Debug("hidden_event")
	Warn("message_dropped", "sender", "john", "recipient", "ghost")

	out := buf.String()
	assert.NotContains(t, out, "hidden_event")
	assert.Contains(t, out, "message_dropped")
	assert.Contains(t, out, "recipient=ghost")
}

func TestSafeHeadersMasksValues(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.Set("X-User-Signature", "abcdef")
	ctx.Request.Header.Set("Cookie", "session=1")

	out := SafeHeadersFast(&ctx)
	assert.Contains(t, out, "a*****f")
	assert.NotContains(t, out, "abcdef")
	assert.NotContains(t, out, "session")
}

func TestNilLoggerIsSafe(t *testing.T) {
	Log = nil
	assert.NotPanics(t, func() {
		Info("noop")
		Error("noop", "error", "x")
	})
}
