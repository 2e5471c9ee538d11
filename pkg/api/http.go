package api

import (
	rt "chatrelay/pkg/api/router"
	"chatrelay/pkg/router"

	"github.com/valyala/fasthttp"
)

// RegisterRoutes wires all API routes onto r.
func (a *API) RegisterRoutes(r *router.Router) {
	r.GET("/healthz", a.Healthz)
	r.GET("/readyz", a.Readyz)

	// identity
	r.POST("/v1/_sign", a.Sign)

	// chat
	r.POST("/v1/messages", a.SubmitMessage)
	r.GET("/v1/messages", a.PollMessages)

	// presence
	r.POST("/v1/presence", a.AnnouncePresence)
	r.GET("/v1/presence", a.ListPresences)
	r.GET("/v1/presence/connected", a.ListConnected)
	r.POST("/v1/presence/active", a.MarkActive)
	r.POST("/v1/presence/sweep", a.RunSweep)

	// admin
	r.GET("/admin/users", a.ListUsers)
	r.PUT("/admin/users/{userId}", a.RegisterUser)
	r.DELETE("/admin/users/{userId}", a.RemoveUser)
	if a.d.Metrics != nil {
		r.GET("/admin/metrics", a.d.Metrics.Handler())
	}

	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		rt.WriteJSONError(ctx, fasthttp.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(ctx *fasthttp.RequestCtx) {
		rt.WriteJSONError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
	})
}

// Handler returns the routed handler without authentication.
func (a *API) Handler() fasthttp.RequestHandler {
	r := router.New()
	a.RegisterRoutes(r)
	return r.Handler
}
