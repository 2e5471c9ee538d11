package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"chatrelay/pkg/models"
	"chatrelay/pkg/state/logger"
	"chatrelay/pkg/store/keys"
	"chatrelay/pkg/timeutil"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
)

var ErrNoRecipient = errors.New("message has no recipient")

// MessageLog queues routed messages per recipient until they are drained.
type MessageLog struct {
	db    *DB
	seq   atomic.Uint64
	boxes *keyLocks
}

func NewMessageLog(db *DB) *MessageLog {
	return &MessageLog{db: db, boxes: newKeyLocks()}
}

// Insert stores m in the mailbox of m.To. Missing ID and TS are filled in
// on m before it is written.
func (l *MessageLog) Insert(ctx context.Context, m *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.To == "" {
		return ErrNoRecipient
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.TS == 0 {
		m.TS = timeutil.Now().Unix()
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	key := keys.GenMessageKey(m.To, m.TS, l.seq.Add(1)%1_000_000, m.ID)
	if err := l.db.Set(key, data); err != nil {
		return fmt.Errorf("insert message %s: %w", m.ID, err)
	}
	logger.Debug("message_inserted", "id", m.ID, "kind", m.Kind, "to", m.To)
	return nil
}

// Drain removes and returns up to limit queued messages of to, oldest
// first. limit <= 0 drains everything.
func (l *MessageLog) Drain(ctx context.Context, to string, limit int) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mu := l.boxes.get(to)
	mu.Lock()
	defer mu.Unlock()

	var (
		out     []models.Message
		taken   [][]byte
		scanErr error
	)
	err := l.db.ScanPrefix(keys.GenMessagePrefix(to), func(k, v []byte) bool {
		var m models.Message
		if err := json.Unmarshal(v, &m); err != nil {
			scanErr = fmt.Errorf("decode message %s: %w", k, err)
			return false
		}
		out = append(out, m)
		taken = append(taken, append([]byte(nil), k...))
		return limit <= 0 || len(out) < limit
	})
	if err == nil {
		err = scanErr
	}
	if err != nil {
		return nil, fmt.Errorf("drain %s: %w", to, err)
	}
	err = l.db.Apply(func(b *pebble.Batch) error {
		for _, k := range taken {
			if err := b.Delete(k, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drain %s: %w", to, err)
	}
	return out, nil
}

// Count returns the number of queued messages of to.
func (l *MessageLog) Count(ctx context.Context, to string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	err := l.db.ScanPrefix(keys.GenMessagePrefix(to), func(_, _ []byte) bool {
		n++
		return true
	})
	return n, err
}
