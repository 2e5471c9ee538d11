package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/valyala/fasthttp"

	"chatrelay/pkg/api/router"
	"chatrelay/pkg/config"
	"chatrelay/pkg/state/logger"
)

// caller role
type Role int

const (
	RoleUnauth Role = iota
	RoleFrontend
	RoleBackend
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleFrontend:
		return "frontend"
	case RoleBackend:
		return "backend"
	case RoleAdmin:
		return "admin"
	}
	return "unauth"
}

// userValueKey holds the signature-verified user id on the request.
const userValueKey = "user_id"

const maxUserIDLen = 128

// IdentityError is a failure to establish who the caller acts as.
type IdentityError struct {
	Type    string
	Message string
	Code    int
}

func (e *IdentityError) Error() string {
	return e.Message
}

var (
	ErrUserRequired       = &IdentityError{"user_required", "user required", fasthttp.StatusBadRequest}
	ErrUserTooLong        = &IdentityError{"user_too_long", "user id too long", fasthttp.StatusBadRequest}
	ErrInvalidSignature   = &IdentityError{"invalid_signature", "missing or invalid user signature", fasthttp.StatusUnauthorized}
	ErrUserMismatch       = &IdentityError{"user_mismatch", "user mismatch between signature and request", fasthttp.StatusForbidden}
	ErrBackendMissingUser = &IdentityError{"backend_missing_user", "X-User-ID required for backend requests", fasthttp.StatusBadRequest}
)

// CreateHMACSignature signs a user id with key.
func CreateHMACSignature(userID, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSignature checks signature against every configured signing key.
func VerifyHMACSignature(userID, signature string) bool {
	for k := range config.GetSigningKeys() {
		expected := CreateHMACSignature(userID, k)
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return true
		}
	}
	return false
}

// SigningKey returns the signing key used to issue new signatures. Keys
// are sorted so the choice is stable across restarts.
func SigningKey() (string, bool) {
	keys := config.GetSigningKeys()
	if len(keys) == 0 {
		return "", false
	}
	list := make([]string, 0, len(keys))
	for k := range keys {
		list = append(list, k)
	}
	sort.Strings(list)
	return list[0], true
}

// SecConfig configures the gateway middleware.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	BackendKeys    map[string]struct{}
	FrontendKeys   map[string]struct{}
	AdminKeys      map[string]struct{}
}

// RequireSignedUser verifies X-User-ID against X-User-Signature, or an
// X-User-Token JWT, and stores the verified id on the request. Backend callers may skip the signature;
// admin callers on /admin routes may too.
func RequireSignedUser(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		role := router.GetApiRole(ctx)
		userID := router.GetHeader(ctx, "X-User-ID")
		sig := router.GetUserSignature(ctx)

		if role != "frontend" && role != "backend" && role != "admin" {
			next(ctx)
			return
		}
		if raw := router.GetUserToken(ctx); raw != "" {
			subject, err := VerifyToken(raw)
			if err != nil {
				logger.Warn("invalid_user_token", "remote", ctx.RemoteAddr().String(), "path", router.GetPath(ctx))
				router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "invalid user token")
				return
			}
			if userID != "" && userID != subject {
				logger.Warn("user_mismatch_token_header", "token", subject, "header", userID, "path", router.GetPath(ctx))
				router.WriteJSONError(ctx, fasthttp.StatusForbidden, ErrUserMismatch.Message)
				return
			}
			ctx.SetUserValue(userValueKey, subject)
			next(ctx)
			return
		}
		if role == "backend" && sig == "" {
			next(ctx)
			return
		}
		if role == "admin" && router.HasPathPrefix(ctx, "/admin") && sig == "" {
			next(ctx)
			return
		}

		if sig == "" || userID == "" {
			logger.Warn("missing_signature_headers", "path", router.GetPath(ctx), "remote", ctx.RemoteAddr().String())
			router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "missing signature headers")
			return
		}
		if !VerifyHMACSignature(userID, sig) {
			logger.Warn("invalid_signature", "user", userID, "remote", ctx.RemoteAddr().String(), "path", router.GetPath(ctx))
			router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "invalid signature")
			return
		}

		logger.Debug("signature_verified", "user", userID, "path", router.GetPath(ctx))
		ctx.SetUserValue(userValueKey, userID)
		next(ctx)
	}
}

func validateUser(id string) *IdentityError {
	if id == "" {
		return ErrUserRequired
	}
	if len(id) > maxUserIDLen {
		return ErrUserTooLong
	}
	return nil
}

// ResolveUser returns the user the request acts as: the signature-verified
// id when present, otherwise the X-User-ID header or ?user= query of a
// backend caller.
func ResolveUser(ctx *fasthttp.RequestCtx) (string, *IdentityError) {
	if v, ok := ctx.UserValue(userValueKey).(string); ok && v != "" {
		if q := router.GetQuery(ctx, "user"); q != "" && q != v {
			logger.Warn("user_mismatch_signature_query", "signature", v, "query", q, "path", router.GetPath(ctx))
			return "", ErrUserMismatch
		}
		return v, nil
	}

	if router.GetApiRole(ctx) == "backend" {
		id := router.GetHeader(ctx, "X-User-ID")
		if id == "" {
			id = router.GetQuery(ctx, "user")
		}
		if id == "" {
			logger.Warn("backend_missing_user", "path", router.GetPath(ctx))
			return "", ErrBackendMissingUser
		}
		if err := validateUser(id); err != nil {
			logger.Warn("invalid_backend_user", "user", id, "path", router.GetPath(ctx))
			return "", err
		}
		return id, nil
	}

	logger.Warn("missing_user_signature", "role", router.GetApiRole(ctx), "path", router.GetPath(ctx))
	return "", ErrInvalidSignature
}
