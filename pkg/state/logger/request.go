package logger

import (
	"strings"
	"unicode/utf8"

	"github.com/valyala/fasthttp"
)

// headers whose values never reach the log, not even masked
var droppedHeaders = map[string]struct{}{
	"cookie": {},
}

func maskedValue(v string) string {
	if v == "" {
		return ""
	}
	if utf8.RuneCountInString(v) <= 2 {
		return "<redacted>"
	}
	first, _ := utf8.DecodeRuneInString(v)
	last, _ := utf8.DecodeLastRuneInString(v)
	return string(first) + "*****" + string(last)
}

// SafeHeadersFast renders request headers with every value masked.
func SafeHeadersFast(ctx *fasthttp.RequestCtx) string {
	parts := make([]string, 0)
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		key := string(k)
		if _, drop := droppedHeaders[strings.ToLower(key)]; drop {
			return
		}
		parts = append(parts, key+"="+maskedValue(string(v)))
	})
	return strings.Join(parts, "; ")
}

// LogRequestFast logs a concise summary of an incoming request.
func LogRequestFast(ctx *fasthttp.RequestCtx) {
	if Log == nil {
		return
	}
	Debug("incoming_request", "method", string(ctx.Method()), "path", string(ctx.Path()), "remote", ctx.RemoteAddr().String(), "headers", SafeHeadersFast(ctx))
}
