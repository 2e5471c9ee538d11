package router

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func TestWriteJSONError(t *testing.T) {
	var ctx fasthttp.RequestCtx
	WriteJSONError(&ctx, fasthttp.StatusBadRequest, "invalid stanza")
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	var body map[string]string
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	assert.Equal(t, "invalid stanza", body["error"])
}

func TestExtractAPIKey(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.Set("Authorization", "Bearer   sk_live")
	assert.Equal(t, "sk_live", ExtractAPIKey(&ctx))

	var other fasthttp.RequestCtx
	other.Request.Header.Set("X-API-Key", " pk_1 ")
	assert.Equal(t, "pk_1", ExtractAPIKey(&other))
}

func TestQueryHelpers(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/v1/messages?limit=5&bad=x")
	assert.Equal(t, 5, GetQueryInt(&ctx, "limit", 100))
	assert.Equal(t, 100, GetQueryInt(&ctx, "bad", 100))
	assert.Equal(t, 7, GetQueryInt(&ctx, "missing", 7))
}

func TestValidatePathParam(t *testing.T) {
	var ctx fasthttp.RequestCtx
	_, ok := ValidatePathParam(&ctx, "userId")
	assert.False(t, ok)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx.SetUserValue("userId", "derp")
	v, ok := ValidatePathParam(&ctx, "userId")
	assert.True(t, ok)
	assert.Equal(t, "derp", v)
}
