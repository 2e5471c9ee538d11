package api

import (
	"chatrelay/pkg/api/router"

	"github.com/valyala/fasthttp"
)

func (a *API) Healthz(ctx *fasthttp.RequestCtx) {
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, statusResponse{Status: "ok"})
}

func (a *API) Readyz(ctx *fasthttp.RequestCtx) {
	if !a.d.Ready() {
		router.WriteJSONStatus(ctx, fasthttp.StatusServiceUnavailable, statusResponse{Status: "not ready"})
		return
	}
	ver := a.d.Version
	if ver == "" {
		ver = "dev"
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, statusResponse{Status: "ok", Version: ver})
}
