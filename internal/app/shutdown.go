package app

import (
	"context"

	"chatrelay/pkg/state/logger"
	"chatrelay/pkg/state/shutdown"
)

// Shutdown stops intake first, then background work, then storage.
func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"
	err := shutdown.Run(ctx,
		shutdown.Step{Name: "http_server", Fn: func(context.Context) error {
			if a.srvFast == nil {
				return nil
			}
			return a.srvFast.Shutdown()
		}},
		shutdown.Step{Name: "sweep_scheduler", Fn: func(context.Context) error {
			if a.sweepStop != nil {
				a.sweepStop()
			}
			return nil
		}},
		shutdown.Step{Name: "disk_sensor", Fn: func(context.Context) error {
			if a.disk != nil {
				a.disk.Stop()
			}
			return nil
		}},
		shutdown.Step{Name: "gateway", Fn: func(context.Context) error {
			if a.gateway != nil {
				a.gateway.Close()
			}
			return nil
		}},
		shutdown.Step{Name: "stores", Fn: func(context.Context) error {
			return a.closeStores()
		}},
	)
	if err == nil {
		a.state = "stopped"
	}
	return err
}

// closeStores drains nats and closes redis and pebble, in that order.
func (a *App) closeStores() error {
	var first error
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			logger.Error("nats_drain_failed", "error", err)
			first = err
		}
		a.nats = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && first == nil {
			first = err
		}
		a.redis = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
