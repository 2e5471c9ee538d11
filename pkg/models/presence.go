package models

import (
	"errors"
	"fmt"
	"strings"
)

// Presence is a user's self-reported availability.
type Presence string

const (
	PresenceOnline      Presence = "online"
	PresenceChat        Presence = "chat"
	PresenceAway        Presence = "away"
	PresenceXA          Presence = "xa"
	PresenceDND         Presence = "dnd"
	PresenceUnavailable Presence = "unavailable"
)

var ErrInvalidPresence = errors.New("invalid presence")

// ParsePresence validates a wire value. Matching is case-insensitive.
func ParsePresence(s string) (Presence, error) {
	p := Presence(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PresenceOnline, PresenceChat, PresenceAway, PresenceXA, PresenceDND, PresenceUnavailable:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPresence, s)
}

// Connected reports whether the state counts as connected for broadcasts.
func (p Presence) Connected() bool {
	return p != PresenceUnavailable
}

// PresenceRecord is the stored presence row of one user. From/To are only
// filled when the record is framed for delivery to another user.
type PresenceRecord struct {
	UserID     string   `json:"user_id"`
	Presence   Presence `json:"presence"`
	LastActive int64    `json:"last_active"`
	From       string   `json:"from,omitempty"`
	To         string   `json:"to,omitempty"`
}
