package router

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
)

// GetHeader returns header value with trimming
func GetHeader(ctx *fasthttp.RequestCtx, key string) string {
	return strings.TrimSpace(string(ctx.Request.Header.Peek(key)))
}

func GetHeaderLower(ctx *fasthttp.RequestCtx, key string) string {
	return strings.ToLower(GetHeader(ctx, key))
}

// GetQuery returns query parameter value with trimming
func GetQuery(ctx *fasthttp.RequestCtx, key string) string {
	return strings.TrimSpace(string(ctx.QueryArgs().Peek(key)))
}

// GetQueryInt returns query parameter value as integer, with default fallback
func GetQueryInt(ctx *fasthttp.RequestCtx, key string, defaultValue int) int {
	value := GetQuery(ctx, key)
	if value == "" {
		return defaultValue
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return defaultValue
}

func GetPath(ctx *fasthttp.RequestCtx) string {
	return string(ctx.Path())
}

func HasPathPrefix(ctx *fasthttp.RequestCtx, prefix string) bool {
	return strings.HasPrefix(GetPath(ctx), prefix)
}

// PathParam returns a path parameter captured by the router.
func PathParam(ctx *fasthttp.RequestCtx, param string) string {
	if v := ctx.UserValue(param); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

// ValidatePathParam writes a 400 and returns false when param is empty.
func ValidatePathParam(ctx *fasthttp.RequestCtx, param string) (string, bool) {
	value := PathParam(ctx, param)
	if value == "" {
		WriteJSONError(ctx, fasthttp.StatusBadRequest, param+" missing")
		return "", false
	}
	return value, true
}

// ExtractAPIKey reads "Authorization: Bearer <key>" or X-API-Key.
func ExtractAPIKey(ctx *fasthttp.RequestCtx) string {
	if auth := GetHeader(ctx, "Authorization"); auth != "" {
		parts := strings.Fields(auth)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return GetHeader(ctx, "X-API-Key")
}

// GetApiRole returns the role stamped by the auth middleware.
func GetApiRole(ctx *fasthttp.RequestCtx) string {
	return GetHeaderLower(ctx, "X-Role-Name")
}

func GetUserSignature(ctx *fasthttp.RequestCtx) string {
	return GetHeader(ctx, "X-User-Signature")
}

// GetUserToken returns the X-User-Token JWT, if any.
func GetUserToken(ctx *fasthttp.RequestCtx) string {
	return GetHeader(ctx, "X-User-Token")
}

func HasUserSignature(ctx *fasthttp.RequestCtx) bool {
	return GetUserSignature(ctx) != ""
}
