package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"chatrelay/pkg/api/auth"
	"chatrelay/pkg/api/router"
	"chatrelay/pkg/models"
	"chatrelay/pkg/presence"
	"chatrelay/pkg/stanza"
	"chatrelay/pkg/state/logger"

	"github.com/valyala/fasthttp"
)

// resolveUser writes the identity error and returns false when the caller
// cannot be identified.
func resolveUser(ctx *fasthttp.RequestCtx) (string, bool) {
	user, err := auth.ResolveUser(ctx)
	if err != nil {
		router.WriteJSONError(ctx, err.Code, err.Message)
		return "", false
	}
	return user, true
}

func decodeStanza(ctx *fasthttp.RequestCtx) (stanza.Stanza, error) {
	body := ctx.PostBody()
	ct := strings.ToLower(string(ctx.Request.Header.ContentType()))
	if strings.Contains(ct, "xml") || bytes.HasPrefix(bytes.TrimSpace(body), []byte("<")) {
		return stanza.DecodeXML(bytes.NewReader(body))
	}
	var st stanza.Stanza
	if err := json.Unmarshal(body, &st); err != nil {
		return stanza.Stanza{}, err
	}
	return st, nil
}

// SubmitMessage routes a chat stanza from the caller. Unknown recipients
// are dropped silently, so the response does not reveal whether the
// recipient exists.
func (a *API) SubmitMessage(ctx *fasthttp.RequestCtx) {
	tr := a.d.Metrics.Track("api.submit_message")
	defer tr.Finish()

	user, ok := resolveUser(ctx)
	if !ok {
		return
	}
	st, err := decodeStanza(ctx)
	if err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid stanza payload")
		return
	}
	tr.Mark("decode")

	if err := a.d.Presence.SetActive(ctx, user); err != nil {
		logger.Error("presence_touch_failed", "user_id", user, "error", err)
	}

	if _, err := a.d.Stanzas.Handle(ctx, user, st); err != nil {
		if errors.Is(err, stanza.ErrInvalidInput) {
			router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}
		logger.Error("message_delivery_failed", "sender", user, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "delivery failed")
		return
	}
	tr.Mark("handle")
	router.WriteJSONStatus(ctx, fasthttp.StatusAccepted, statusResponse{Status: "accepted"})
}

// PollMessages marks the caller active, runs the timeout sweep and returns
// the queued messages together with the sweep's local notices.
func (a *API) PollMessages(ctx *fasthttp.RequestCtx) {
	tr := a.d.Metrics.Track("api.poll_messages")
	defer tr.Finish()

	user, ok := resolveUser(ctx)
	if !ok {
		return
	}
	inv := presence.NewInvocation(user, nil)

	if err := a.d.Presence.SetActive(ctx, user); err != nil {
		logger.Error("presence_touch_failed", "user_id", user, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "presence update failed")
		return
	}
	if err := a.d.Presence.Sweep(ctx, inv); err != nil {
		logger.Error("presence_sweep_failed", "self", user, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "delivery failed")
		return
	}
	tr.Mark("sweep")

	limit := router.GetQueryInt(ctx, "limit", defaultDrainLimit)
	msgs, err := a.d.Mailbox.Drain(ctx, user, limit)
	if err != nil {
		logger.Error("mailbox_drain_failed", "user_id", user, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "read failed")
		return
	}
	tr.Mark("drain")

	resp := pollResponse{Messages: msgs, Notices: inv.Outbox().Drain()}
	if resp.Messages == nil {
		resp.Messages = []models.Message{}
	}
	if resp.Notices == nil {
		resp.Notices = []*models.Message{}
	}
	_ = router.WriteJSON(ctx, resp)
}
