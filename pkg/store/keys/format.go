package keys

import (
	"fmt"
	"strings"
)

const (
	// notation dictionary for key formats:
	// p = presence row
	// m = queued message
	// u = directory user
	// User ids are escaped so a ':' inside an id cannot split a segment.

	PresenceKey    = "p:%s"          // p:<user_id>
	PresencePrefix = "p:"            // all presence rows
	MessageKey     = "m:%s:%s:%s:%s" // m:<to_user>:<ts>:<seq>:<msg_id>
	MessagePrefix  = "m:%s:"         // m:<to_user>:
	UserKey        = "u:%s"          // u:<user_id>
	UserPrefix     = "u:"            // all directory users

	// padding widths (fixed for lexicographic ordering)
	TSPadWidth  = 20
	SeqPadWidth = 6
)

func escape(id string) string {
	id = strings.ReplaceAll(id, "%", "%25")
	return strings.ReplaceAll(id, ":", "%3A")
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, "%3A", ":")
	return strings.ReplaceAll(s, "%25", "%")
}

func GenPresenceKey(userID string) string {
	return fmt.Sprintf(PresenceKey, escape(userID))
}

// ParsePresenceKey returns the user id of a presence key.
func ParsePresenceKey(key string) (string, error) {
	if !strings.HasPrefix(key, PresencePrefix) || len(key) == len(PresencePrefix) {
		return "", fmt.Errorf("not a presence key: %q", key)
	}
	return unescape(key[len(PresencePrefix):]), nil
}

// GenMessageKey orders a mailbox by ts then seq. The message id keeps keys
// unique when seq restarts with the process.
func GenMessageKey(toUser string, ts int64, seq uint64, msgID string) string {
	return fmt.Sprintf(MessageKey, escape(toUser), PadTS(ts), PadSeq(seq), escape(msgID))
}

func GenMessagePrefix(toUser string) string {
	return fmt.Sprintf(MessagePrefix, escape(toUser))
}

func GenUserKey(userID string) string {
	return fmt.Sprintf(UserKey, escape(userID))
}

// ParseUserKey returns the user id of a directory key.
func ParseUserKey(key string) (string, error) {
	if !strings.HasPrefix(key, UserPrefix) || len(key) == len(UserPrefix) {
		return "", fmt.Errorf("not a user key: %q", key)
	}
	return unescape(key[len(UserPrefix):]), nil
}

func PadTS(ts int64) string {
	return fmt.Sprintf("%0*d", TSPadWidth, ts)
}

func PadSeq(seq uint64) string {
	return fmt.Sprintf("%0*d", SeqPadWidth, seq)
}

// PrefixUpperBound returns the smallest key greater than every key with
// prefix, or nil when no such key exists.
func PrefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
