package auth

import (
	"net"
	pathpkg "path"
	"strings"

	"github.com/valyala/fasthttp"

	"chatrelay/pkg/api/router"
	"chatrelay/pkg/state/logger"
)

// Gateway authenticates requests by API key, applies CORS, the ip
// whitelist, role route restrictions and per-key rate limits, then
// verifies signed user identity.
type Gateway struct {
	cfg      SecConfig
	limiters *limiterPool
}

func NewGateway(cfg SecConfig) *Gateway {
	return &Gateway{cfg: cfg, limiters: newLimiterPool(cfg.RPS, cfg.Burst, 0)}
}

// Close stops background limiter cleanup.
func (g *Gateway) Close() {
	g.limiters.Shutdown()
}

// Middleware wraps next with the full authentication chain.
func (g *Gateway) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	signed := RequireSignedUser(next)
	cfg := g.cfg
	return func(ctx *fasthttp.RequestCtx) {
		logger.LogRequestFast(ctx)

		origin := router.GetHeader(ctx, "Origin")
		if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
			h := &ctx.Response.Header
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			h.Set("Access-Control-Max-Age", "600")
			h.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key,X-User-ID,X-User-Signature,X-User-Token")
			h.Set("Access-Control-Expose-Headers", "X-Role-Name")
		}
		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		if len(cfg.IPWhitelist) > 0 {
			ip := clientIP(ctx)
			if !ipWhitelisted(ip, cfg.IPWhitelist) {
				router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
				logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", router.GetPath(ctx))
				return
			}
		}

		// the role header is ours to set, never the client's
		ctx.Request.Header.Del("X-Role-Name")

		if publicPath(ctx) {
			ctx.Request.Header.Set("X-Role-Name", RoleUnauth.String())
			next(ctx)
			return
		}

		role, key := g.role(ctx)
		if role == RoleUnauth {
			router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "unauthorized")
			logger.Warn("request_unauthorized", "path", router.GetPath(ctx), "remote", ctx.RemoteAddr().String())
			return
		}
		ctx.Request.Header.Set("X-Role-Name", role.String())

		switch {
		case role == RoleFrontend && !frontendAllowed(ctx):
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
			logger.Warn("request_forbidden", "reason", "frontend_not_allowed", "path", router.GetPath(ctx))
			return
		case role != RoleAdmin && router.HasPathPrefix(ctx, "/admin"):
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "admin routes require an admin api key")
			logger.Warn("admin_access_attempt", "role", role.String(), "path", router.GetPath(ctx))
			return
		case role == RoleAdmin && !router.HasPathPrefix(ctx, "/admin"):
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "admin api keys may only access /admin routes")
			logger.Warn("admin_route_violation", "path", router.GetPath(ctx))
			return
		}

		if !g.limiters.Allow(key) {
			router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
			logger.Warn("rate_limited", "role", role.String(), "path", router.GetPath(ctx))
			return
		}

		signed(ctx)
	}
}

func (g *Gateway) role(ctx *fasthttp.RequestCtx) (Role, string) {
	key := router.ExtractAPIKey(ctx)
	if key == "" {
		return RoleUnauth, clientIP(ctx)
	}
	if _, ok := g.cfg.AdminKeys[key]; ok {
		return RoleAdmin, key
	}
	if _, ok := g.cfg.BackendKeys[key]; ok {
		return RoleBackend, key
	}
	if _, ok := g.cfg.FrontendKeys[key]; ok {
		return RoleFrontend, key
	}
	return RoleUnauth, key
}

func clientIP(ctx *fasthttp.RequestCtx) string {
	host := ctx.RemoteAddr().String()
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return h
}

// frontends may only reach the per-user chat and presence routes
func frontendAllowed(ctx *fasthttp.RequestCtx) bool {
	path := pathpkg.Clean("/" + router.GetPath(ctx))
	if path == "/v1/presence/sweep" {
		return false
	}
	return strings.HasPrefix(path, "/v1/messages") || strings.HasPrefix(path, "/v1/presence")
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}

func publicPath(ctx *fasthttp.RequestCtx) bool {
	path := router.GetPath(ctx)
	return (path == "/healthz" || path == "/readyz") && string(ctx.Method()) == fasthttp.MethodGet
}
