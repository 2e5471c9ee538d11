package auth

import (
	"testing"
	"time"

	"chatrelay/pkg/config"
	"chatrelay/pkg/timeutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

const (
	backendKey  = "sk_backend"
	frontendKey = "pk_frontend"
	adminKey    = "ak_admin"
)

func setup(t *testing.T, rps float64) *Gateway {
	t.Helper()
	config.SetRuntime(&config.RuntimeConfig{
		BackendKeys: map[string]struct{}{backendKey: {}},
		SigningKeys: map[string]struct{}{backendKey: {}},
	})
	t.Cleanup(func() { config.SetRuntime(nil) })
	g := NewGateway(SecConfig{
		RPS:          rps,
		Burst:        1,
		BackendKeys:  map[string]struct{}{backendKey: {}},
		FrontendKeys: map[string]struct{}{frontendKey: {}},
		AdminKeys:    map[string]struct{}{adminKey: {}},
	})
	t.Cleanup(g.Close)
	return g
}

type result struct {
	status int
	user   string
	called bool
	err    *IdentityError
}

func do(g *Gateway, method, uri string, headers map[string]string) result {
	var res result
	h := g.Middleware(func(ctx *fasthttp.RequestCtx) {
		res.called = true
		res.user, res.err = ResolveUser(ctx)
	})
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	for k, v := range headers {
		ctx.Request.Header.Set(k, v)
	}
	h(&ctx)
	res.status = ctx.Response.StatusCode()
	return res
}

func TestPublicPaths(t *testing.T) {
	g := setup(t, 0)
	res := do(g, "GET", "/healthz", nil)
	assert.True(t, res.called)
}

func TestMissingKeyIsUnauthorized(t *testing.T) {
	g := setup(t, 0)
	res := do(g, "GET", "/v1/presence", nil)
	assert.False(t, res.called)
	assert.Equal(t, fasthttp.StatusUnauthorized, res.status)

	res = do(g, "GET", "/v1/presence", map[string]string{"X-API-Key": "nope"})
	assert.Equal(t, fasthttp.StatusUnauthorized, res.status)
}

func TestFrontendRequiresSignature(t *testing.T) {
	g := setup(t, 0)
	res := do(g, "GET", "/v1/presence", map[string]string{"X-API-Key": frontendKey, "X-User-ID": "john"})
	assert.False(t, res.called)
	assert.Equal(t, fasthttp.StatusUnauthorized, res.status)

	res = do(g, "GET", "/v1/presence", map[string]string{
		"X-API-Key":        frontendKey,
		"X-User-ID":        "john",
		"X-User-Signature": "deadbeef",
	})
	assert.Equal(t, fasthttp.StatusUnauthorized, res.status)

	res = do(g, "GET", "/v1/presence", map[string]string{
		"X-API-Key":        frontendKey,
		"X-User-ID":        "john",
		"X-User-Signature": CreateHMACSignature("john", backendKey),
	})
	require.True(t, res.called)
	assert.Nil(t, res.err)
	assert.Equal(t, "john", res.user)
}

func TestSignedUserQueryMismatch(t *testing.T) {
	g := setup(t, 0)
	res := do(g, "GET", "/v1/presence?user=mallory", map[string]string{
		"Authorization":    "Bearer " + frontendKey,
		"X-User-ID":        "john",
		"X-User-Signature": CreateHMACSignature("john", backendKey),
	})
	require.True(t, res.called)
	assert.Equal(t, ErrUserMismatch, res.err)
}

func TestFrontendRouteRestrictions(t *testing.T) {
	g := setup(t, 0)
	signed := map[string]string{
		"X-API-Key":        frontendKey,
		"X-User-ID":        "john",
		"X-User-Signature": CreateHMACSignature("john", backendKey),
	}
	assert.Equal(t, fasthttp.StatusForbidden, do(g, "POST", "/v1/presence/sweep", signed).status)
	assert.Equal(t, fasthttp.StatusForbidden, do(g, "POST", "/v1/presence/sweep/", signed).status)
	assert.Equal(t, fasthttp.StatusForbidden, do(g, "PUT", "/admin/users/john", signed).status)
	assert.Equal(t, fasthttp.StatusForbidden, do(g, "POST", "/v1/_sign", signed).status)
	assert.True(t, do(g, "POST", "/v1/messages", signed).called)
}

func TestBackendActsAsUser(t *testing.T) {
	g := setup(t, 0)
	res := do(g, "POST", "/v1/presence/sweep", map[string]string{"X-API-Key": backendKey, "X-User-ID": "svc"})
	require.True(t, res.called)
	assert.Nil(t, res.err)
	assert.Equal(t, "svc", res.user)

	res = do(g, "GET", "/v1/messages?user=derp", map[string]string{"X-API-Key": backendKey})
	assert.Equal(t, "derp", res.user)

	res = do(g, "GET", "/v1/messages", map[string]string{"X-API-Key": backendKey})
	assert.Equal(t, ErrBackendMissingUser, res.err)

	assert.Equal(t, fasthttp.StatusForbidden, do(g, "GET", "/admin/metrics", map[string]string{"X-API-Key": backendKey}).status)
}

func TestAdminOnlyAdminRoutes(t *testing.T) {
	g := setup(t, 0)
	assert.True(t, do(g, "GET", "/admin/metrics", map[string]string{"X-API-Key": adminKey}).called)
	assert.Equal(t, fasthttp.StatusForbidden, do(g, "GET", "/v1/presence", map[string]string{"X-API-Key": adminKey}).status)
}

func TestClientCannotForgeRole(t *testing.T) {
	g := setup(t, 0)
	res := do(g, "GET", "/v1/messages", map[string]string{
		"X-API-Key":   frontendKey,
		"X-Role-Name": "backend",
		"X-User-ID":   "john",
	})
	assert.False(t, res.called)
	assert.Equal(t, fasthttp.StatusUnauthorized, res.status)
}

func TestRateLimit(t *testing.T) {
	g := setup(t, 0.001)
	hdr := map[string]string{"X-API-Key": backendKey, "X-User-ID": "svc"}
	assert.True(t, do(g, "GET", "/v1/presence", hdr).called)
	assert.Equal(t, fasthttp.StatusTooManyRequests, do(g, "GET", "/v1/presence", hdr).status)
}

func TestOptionsShortCircuits(t *testing.T) {
	g := setup(t, 0)
	g.cfg.AllowedOrigins = []string{"https://chat.example.org"}
	h := g.Middleware(func(*fasthttp.RequestCtx) { t.Fatal("handler must not run") })
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod("OPTIONS")
	ctx.Request.SetRequestURI("/v1/messages")
	ctx.Request.Header.Set("Origin", "https://chat.example.org")
	h(&ctx)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	assert.Equal(t, "https://chat.example.org", string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")))
}

func TestLimiterEvictsIdle(t *testing.T) {
	clock := timeutil.NewFixed(time.Unix(1000, 0))
	defer timeutil.SetClock(clock)()

	p := newLimiterPool(10, 1, time.Minute)
	defer p.Shutdown()
	p.Allow("a")
	clock.Advance(2 * time.Minute)
	p.Allow("b")
	p.evictIdle()
	assert.Equal(t, 1, p.Len())
}

func TestSigningKeyIsStable(t *testing.T) {
	config.SetRuntime(&config.RuntimeConfig{SigningKeys: map[string]struct{}{"b": {}, "a": {}}})
	defer config.SetRuntime(nil)
	k, ok := SigningKey()
	require.True(t, ok)
	assert.Equal(t, "a", k)
	assert.True(t, VerifyHMACSignature("john", CreateHMACSignature("john", "b")))
}
