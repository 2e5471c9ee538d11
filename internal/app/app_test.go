package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"chatrelay/pkg/config"
	"chatrelay/pkg/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func testEff(t *testing.T) (config.EffectiveConfigResult, state.Paths) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "db")
	paths, err := state.Init(root)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.Host = "example.org"
	cfg.Server.APIKeys.Backend = []string{"sk_app"}
	cfg.Server.APIKeys.Admin = []string{"ak_app"}
	cfg.Presence.Sweep.Enabled = true
	cfg.Directory.Users = []string{"alice", "bob"}
	return config.EffectiveConfigResult{Config: cfg, Addr: "127.0.0.1:0", DBPath: root, Source: "flags"}, paths
}

func call(h fasthttp.RequestHandler, method, uri, key, user, body string) (int, string) {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	req.Header.SetContentType("application/json")
	req.SetBodyString(body)
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	h(&ctx)
	return ctx.Response.StatusCode(), string(ctx.Response.Body())
}

func TestNewServesRequests(t *testing.T) {
	eff, paths := testEff(t)
	a, err := New(eff, paths, "test", "none", "unknown")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	require.NotNil(t, a.sweeper)
	h := a.Handler()

	status, body := call(h, "GET", "/readyz", "", "", "")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, body, `"version":"test"`)

	status, body = call(h, "GET", "/admin/users", "ak_app", "", "")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, body, "alice")

	status, _ = call(h, "POST", "/v1/presence", "sk_app", "alice", `{"presence":"online"}`)
	assert.Equal(t, fasthttp.StatusOK, status)

	status, body = call(h, "GET", "/v1/presence", "sk_app", "bob", "")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, body, "alice@example.org/internal")

	status, _ = call(h, "GET", "/v1/presence", "", "bob", "")
	assert.Equal(t, fasthttp.StatusUnauthorized, status)

	status, body = call(h, "GET", "/admin/metrics", "ak_app", "", "")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, body, "chatrelay_")
}

func TestShutdownIsSafeBeforeRun(t *testing.T) {
	eff, paths := testEff(t)
	a, err := New(eff, paths, "test", "", "")
	require.NoError(t, err)
	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, "stopped", a.state)
	assert.False(t, a.db.Ready())
}

func TestNewRejectsMissingKeys(t *testing.T) {
	eff, paths := testEff(t)
	eff.Config.Server.APIKeys.Backend = nil
	eff.Config.Server.APIKeys.Admin = nil
	_, err := New(eff, paths, "test", "", "")
	assert.Error(t, err)
}

func TestNewRejectsFrontendWithoutBackend(t *testing.T) {
	eff, paths := testEff(t)
	eff.Config.Server.APIKeys.Backend = nil
	eff.Config.Server.APIKeys.Frontend = []string{"pk"}
	_, err := New(eff, paths, "test", "", "")
	assert.Error(t, err)
}

func TestNewRejectsBadNATSURL(t *testing.T) {
	eff, paths := testEff(t)
	eff.Config.Relay.NATS.Enabled = true
	eff.Config.Relay.NATS.URL = "::bad"
	_, err := New(eff, paths, "test", "", "")
	assert.Error(t, err)
}

func TestVersionString(t *testing.T) {
	a := &App{version: "1.2.0", commit: "abc", buildDate: "2026-01-01"}
	assert.Equal(t, "1.2.0 (abc) @ 2026-01-01", a.versionString())
	a = &App{version: "dev", commit: "none", buildDate: "unknown"}
	assert.Equal(t, "dev", a.versionString())
}

func TestNewLeavesDotenvToMain(t *testing.T) {
	eff, paths := testEff(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CHATRELAY_APP_DOTENV_MARKER=1\n"), 0o600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Cleanup(func() { _ = os.Unsetenv("CHATRELAY_APP_DOTENV_MARKER") })

	a, err := New(eff, paths, "test", "none", "unknown")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	_, loaded := os.LookupEnv("CHATRELAY_APP_DOTENV_MARKER")
	assert.False(t, loaded)
}
