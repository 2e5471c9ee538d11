package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func serve(r *Router, method, uri string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	r.Handler(&ctx)
	return &ctx
}

func TestParamsAndPattern(t *testing.T) {
	r := New()
	var got, pattern string
	r.PUT("/admin/users/{userId}", func(ctx *fasthttp.RequestCtx) {
		got, _ = ctx.UserValue("userId").(string)
		pattern, _ = ctx.UserValue(PatternKey).(string)
	})

	ctx := serve(r, "PUT", "/admin/users/derp")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "derp", got)
	assert.Equal(t, "/admin/users/{userId}", pattern)
}

func TestRootAndTrailingSlash(t *testing.T) {
	r := New()
	hits := 0
	r.GET("/", func(*fasthttp.RequestCtx) { hits++ })
	r.GET("/v1/presence", func(*fasthttp.RequestCtx) { hits++ })

	serve(r, "GET", "/")
	serve(r, "GET", "/v1/presence/")
	assert.Equal(t, 2, hits)
}

func TestNotFoundAndNotAllowed(t *testing.T) {
	r := New()
	r.GET("/v1/messages", func(*fasthttp.RequestCtx) {})
	r.POST("/v1/messages", func(*fasthttp.RequestCtx) {})

	ctx := serve(r, "DELETE", "/v1/messages")
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode())
	assert.Equal(t, "GET, POST", string(ctx.Response.Header.Peek("Allow")))

	ctx = serve(r, "GET", "/v1/nothing")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())

	r.NotFound(func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusTeapot) })
	ctx = serve(r, "GET", "/v1/nothing")
	assert.Equal(t, fasthttp.StatusTeapot, ctx.Response.StatusCode())
}

func TestEmptyParamDoesNotMatch(t *testing.T) {
	r := New()
	r.DELETE("/admin/users/{userId}", func(*fasthttp.RequestCtx) {})
	ctx := serve(r, "DELETE", "/admin/users//")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}
