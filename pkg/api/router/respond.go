package router

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// WriteJSON writes data as a JSON response with the current status code.
func WriteJSON(ctx *fasthttp.RequestCtx, data interface{}) error {
	ctx.Response.Header.Set("Content-Type", "application/json")
	return json.NewEncoder(ctx).Encode(data)
}

// WriteJSONStatus sets status and writes data as JSON.
func WriteJSONStatus(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	ctx.SetStatusCode(status)
	_ = WriteJSON(ctx, data)
}

// WriteJSONError writes {"error": message} with status.
func WriteJSONError(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.SetStatusCode(status)
	ctx.Response.Header.Set("Content-Type", "application/json")
	_ = json.NewEncoder(ctx).Encode(map[string]string{"error": message})
}

// WriteJSONOk writes a simple OK JSON response.
func WriteJSONOk(ctx *fasthttp.RequestCtx, data map[string]interface{}) {
	ctx.Response.Header.Set("Content-Type", "application/json")
	_ = json.NewEncoder(ctx).Encode(data)
}
