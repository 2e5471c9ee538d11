package api

import (
	"encoding/json"
	"errors"

	"chatrelay/pkg/api/auth"
	"chatrelay/pkg/api/router"
	"chatrelay/pkg/directory"
	"chatrelay/pkg/state/logger"

	"github.com/valyala/fasthttp"
)

// Sign issues a user signature for frontends. Backend role only.
func (a *API) Sign(ctx *fasthttp.RequestCtx) {
	if router.GetApiRole(ctx) != "backend" {
		logger.Warn("sign_forbidden", "role", router.GetApiRole(ctx), "remote", ctx.RemoteAddr().String())
		router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
		return
	}
	var req signRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := directory.ValidateUserID(req.UserID); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	key, ok := auth.SigningKey()
	if !ok {
		logger.Error("signing_keys_missing")
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "signing keys not configured")
		return
	}
	token, exp, err := auth.IssueToken(req.UserID, key, auth.TokenTTL)
	if err != nil {
		logger.Error("token_issue_failed", "user_id", req.UserID, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "token issue failed")
		return
	}
	_ = router.WriteJSON(ctx, signResponse{
		UserID:    req.UserID,
		Signature: auth.CreateHMACSignature(req.UserID, key),
		Token:     token,
		ExpiresAt: exp,
	})
}

func (a *API) ListUsers(ctx *fasthttp.RequestCtx) {
	users, err := a.d.Directory.List(ctx)
	if err != nil {
		logger.Error("directory_list_failed", "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "read failed")
		return
	}
	if users == nil {
		users = []string{}
	}
	_ = router.WriteJSON(ctx, usersResponse{Users: users})
}

// RegisterUser adds a user to the directory.
func (a *API) RegisterUser(ctx *fasthttp.RequestCtx) {
	id, ok := router.ValidatePathParam(ctx, "userId")
	if !ok {
		return
	}
	if err := a.d.Directory.Add(ctx, id); err != nil {
		if errors.Is(err, directory.ErrInvalidUserID) {
			router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}
		logger.Error("directory_add_failed", "user_id", id, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "write failed")
		return
	}
	logger.Info("user_registered", "user_id", id)
	router.WriteJSONOk(ctx, map[string]interface{}{"user_id": id, "status": "registered"})
}

// RemoveUser removes a user from the directory and drops their presence.
func (a *API) RemoveUser(ctx *fasthttp.RequestCtx) {
	id, ok := router.ValidatePathParam(ctx, "userId")
	if !ok {
		return
	}
	if err := a.d.Directory.Remove(ctx, id); err != nil {
		logger.Error("directory_remove_failed", "user_id", id, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "write failed")
		return
	}
	if err := a.d.Presence.DeletePresence(ctx, id); err != nil {
		logger.Error("presence_delete_failed", "user_id", id, "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "write failed")
		return
	}
	logger.Info("user_removed", "user_id", id)
	router.WriteJSONOk(ctx, map[string]interface{}{"user_id": id, "status": "deleted"})
}
