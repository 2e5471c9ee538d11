package store

import (
	"context"

	"chatrelay/pkg/models"
)

// PresenceStore persists one presence row per user.
type PresenceStore interface {
	// Upsert creates or replaces the row of rec.UserID.
	Upsert(ctx context.Context, rec models.PresenceRecord) error
	// List returns every row except the one of except.
	List(ctx context.Context, except string) ([]models.PresenceRecord, error)
	// ListConnected returns the ids of users whose presence is not
	// unavailable, excluding except.
	ListConnected(ctx context.Context, except string) ([]string, error)
	// Touch sets LastActive of an existing row. Missing rows are ignored.
	Touch(ctx context.Context, userID string, at int64) error
	// Delete removes the row of userID if present.
	Delete(ctx context.Context, userID string) error
	// ExpireInactive marks every connected row other than self whose
	// LastActive is before cutoff as unavailable and returns the ids it
	// changed. Selection and update happen atomically.
	ExpireInactive(ctx context.Context, self string, cutoff int64) ([]string, error)
	Ready() bool
}

func expired(rec models.PresenceRecord, self string, cutoff int64) bool {
	return rec.UserID != self && rec.Presence.Connected() && rec.LastActive < cutoff
}
