package models

import "strings"

// InternalResource is the resource used on server-originated addresses.
const InternalResource = "internal"

// Stanza kinds carried by a Message.
const (
	KindMessage  = "message"
	KindPresence = "presence"
)

// PayloadEntry is one child element of a stanza with its namespace split off.
type PayloadEntry struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Value     string `json:"value"`
}

// Message is a routed stanza. It is not modified after being handed to a sink.
type Message struct {
	ID       string         `json:"id,omitempty"`
	Kind     string         `json:"kind"`
	From     string         `json:"from"`
	To       string         `json:"to"`
	Type     string         `json:"type,omitempty"`
	StanzaID string         `json:"stanza_id,omitempty"`
	Payload  []PayloadEntry `json:"payload,omitempty"`
	TS       int64          `json:"ts"`
}

// Address builds userId@host/internal.
func Address(userID, host string) string {
	return userID + "@" + host + "/" + InternalResource
}

// BareUser returns everything before the last '@' of an address, and false
// when the address has none.
func BareUser(addr string) (string, bool) {
	i := strings.LastIndex(addr, "@")
	if i < 0 {
		return "", false
	}
	return addr[:i], true
}
