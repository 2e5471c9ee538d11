package app

import (
	"time"

	"github.com/valyala/fasthttp"

	"chatrelay/pkg/router"
)

// Handler is the full request chain: metrics, then the auth gateway, then
// the routes.
func (a *App) Handler() fasthttp.RequestHandler {
	r := router.New()
	a.api.RegisterRoutes(r)
	return a.metrics.Middleware(a.gateway.Middleware(r.Handler))
}

// startHTTP starts the fasthttp server and returns a channel that delivers
// its terminal error.
func (a *App) startHTTP() <-chan error {
	const (
		readBufferSize       = 64 * 1024
		readTimeout          = 10 * time.Second
		writeTimeout         = 10 * time.Second
		idleTimeout          = 30 * time.Second
		maxKeepaliveDuration = 2 * time.Minute
	)
	a.srvFast = &fasthttp.Server{
		Name:                 "chatrelay",
		Handler:              a.Handler(),
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   int(a.eff.Config.Server.MaxBodySize.Int64()),
		ReduceMemoryUsage:    true,
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}

	errCh := make(chan error, 1)
	addr := a.eff.Addr
	if addr == "" {
		addr = a.eff.Config.Addr()
	}
	go func() {
		// TLS is terminated by a proxy in front of the server.
		errCh <- a.srvFast.ListenAndServe(addr)
	}()
	return errCh
}
