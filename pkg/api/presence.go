package api

import (
	"encoding/json"
	"errors"

	"chatrelay/pkg/api/router"
	"chatrelay/pkg/models"
	"chatrelay/pkg/presence"
	"chatrelay/pkg/state/logger"

	"github.com/valyala/fasthttp"
)

// AnnouncePresence stores the caller's presence and broadcasts it.
func (a *API) AnnouncePresence(ctx *fasthttp.RequestCtx) {
	user, ok := resolveUser(ctx)
	if !ok {
		return
	}
	var req presenceRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid JSON payload")
		return
	}
	inv := presence.NewInvocation(user, nil)
	if err := a.d.Presence.Announce(ctx, inv, models.Presence(req.Presence)); err != nil {
		if errors.Is(err, models.ErrInvalidPresence) {
			router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}
		logger.Error("presence_announce_failed", "user_id", user, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "delivery failed")
		return
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, statusResponse{Status: "ok"})
}

// ListPresences returns everyone's presence but the caller's.
func (a *API) ListPresences(ctx *fasthttp.RequestCtx) {
	user, ok := resolveUser(ctx)
	if !ok {
		return
	}
	rows, err := a.d.Presence.GetPresences(ctx, presence.NewInvocation(user, nil))
	if err != nil {
		logger.Error("presence_list_failed", "user_id", user, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "read failed")
		return
	}
	if rows == nil {
		rows = []models.PresenceRecord{}
	}
	_ = router.WriteJSON(ctx, presencesResponse{Presences: rows})
}

func (a *API) ListConnected(ctx *fasthttp.RequestCtx) {
	user, ok := resolveUser(ctx)
	if !ok {
		return
	}
	users, err := a.d.Presence.GetConnectedUsers(ctx, presence.NewInvocation(user, nil))
	if err != nil {
		logger.Error("presence_connected_failed", "user_id", user, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "read failed")
		return
	}
	_ = router.WriteJSON(ctx, connectedResponse{Users: users})
}

func (a *API) MarkActive(ctx *fasthttp.RequestCtx) {
	user, ok := resolveUser(ctx)
	if !ok {
		return
	}
	if err := a.d.Presence.SetActive(ctx, user); err != nil {
		logger.Error("presence_touch_failed", "user_id", user, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "presence update failed")
		return
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, statusResponse{Status: "ok"})
}

// RunSweep triggers the timeout sweep on behalf of the caller and returns
// the notices addressed to them.
func (a *API) RunSweep(ctx *fasthttp.RequestCtx) {
	user, ok := resolveUser(ctx)
	if !ok {
		return
	}
	inv := presence.NewInvocation(user, nil)
	if err := a.d.Presence.Sweep(ctx, inv); err != nil {
		logger.Error("presence_sweep_failed", "self", user, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "delivery failed")
		return
	}
	notices := inv.Outbox().Drain()
	if notices == nil {
		notices = []*models.Message{}
	}
	_ = router.WriteJSON(ctx, noticesResponse{Notices: notices})
}
