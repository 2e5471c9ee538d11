package api

import (
	"context"
	"time"

	"chatrelay/pkg/directory"
	"chatrelay/pkg/models"
	"chatrelay/pkg/presence"
	"chatrelay/pkg/stanza"
	"chatrelay/pkg/telemetry"
)

// Mailbox is the read side of the message sink.
type Mailbox interface {
	Drain(ctx context.Context, to string, limit int) ([]models.Message, error)
}

// Deps are the components the HTTP handlers call into.
type Deps struct {
	Presence  *presence.Service
	Stanzas   *stanza.Handler
	Mailbox   Mailbox
	Directory *directory.Directory
	Metrics   *telemetry.Metrics
	// Ready reports whether storage is usable.
	Ready   func() bool
	Version string
}

// API holds the handlers of the HTTP surface.
type API struct {
	d Deps
}

func New(d Deps) *API {
	if d.Ready == nil {
		d.Ready = func() bool { return true }
	}
	return &API{d: d}
}

const defaultDrainLimit = 100

type statusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type presenceRequest struct {
	Presence string `json:"presence"`
}

type presencesResponse struct {
	Presences []models.PresenceRecord `json:"presences"`
}

type connectedResponse struct {
	Users []string `json:"users"`
}

type pollResponse struct {
	Messages []models.Message  `json:"messages"`
	Notices  []*models.Message `json:"notices"`
}

type noticesResponse struct {
	Notices []*models.Message `json:"notices"`
}

type signRequest struct {
	UserID string `json:"userId"`
}

type signResponse struct {
	UserID    string    `json:"userId"`
	Signature string    `json:"signature"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type usersResponse struct {
	Users []string `json:"users"`
}
