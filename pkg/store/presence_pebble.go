package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"chatrelay/pkg/models"
	"chatrelay/pkg/state/logger"
	"chatrelay/pkg/store/keys"

	"github.com/cockroachdb/pebble"
)

// PebblePresence stores presence rows as JSON under p:<user_id>.
//
// Single-row writes hold the row lock plus a shared sweep lock; the sweep
// takes the sweep lock exclusively so its select and bulk update cannot
// interleave with a concurrent touch.
type PebblePresence struct {
	db      *DB
	rows    *keyLocks
	sweepMu sync.RWMutex
}

func NewPebblePresence(db *DB) *PebblePresence {
	return &PebblePresence{db: db, rows: newKeyLocks()}
}

func (p *PebblePresence) Ready() bool { return p.db.Ready() }

func (p *PebblePresence) Upsert(ctx context.Context, rec models.PresenceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.From, rec.To = "", ""
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	p.sweepMu.RLock()
	defer p.sweepMu.RUnlock()
	l := p.rows.get(rec.UserID)
	l.Lock()
	defer l.Unlock()
	if err := p.db.Set(keys.GenPresenceKey(rec.UserID), data); err != nil {
		return fmt.Errorf("upsert presence %s: %w", rec.UserID, err)
	}
	return nil
}

func (p *PebblePresence) List(ctx context.Context, except string) ([]models.PresenceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := p.scan()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rec := range all {
		if rec.UserID != except {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (p *PebblePresence) ListConnected(ctx context.Context, except string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := p.scan()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rec := range all {
		if rec.UserID != except && rec.Presence.Connected() {
			out = append(out, rec.UserID)
		}
	}
	return out, nil
}

func (p *PebblePresence) Touch(ctx context.Context, userID string, at int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.sweepMu.RLock()
	defer p.sweepMu.RUnlock()
	l := p.rows.get(userID)
	l.Lock()
	defer l.Unlock()

	key := keys.GenPresenceKey(userID)
	raw, err := p.db.Get(key)
	if err != nil {
		if IsNotFound(err) {
			logger.Debug("presence_touch_missing", "user_id", userID)
			return nil
		}
		return fmt.Errorf("read presence %s: %w", userID, err)
	}
	var rec models.PresenceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("decode presence %s: %w", userID, err)
	}
	rec.LastActive = at
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	if err := p.db.Set(key, data); err != nil {
		return fmt.Errorf("touch presence %s: %w", userID, err)
	}
	return nil
}

func (p *PebblePresence) Delete(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.sweepMu.RLock()
	defer p.sweepMu.RUnlock()
	l := p.rows.get(userID)
	l.Lock()
	defer l.Unlock()
	if err := p.db.Delete(keys.GenPresenceKey(userID)); err != nil {
		return fmt.Errorf("delete presence %s: %w", userID, err)
	}
	return nil
}

func (p *PebblePresence) ExpireInactive(ctx context.Context, self string, cutoff int64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.sweepMu.Lock()
	defer p.sweepMu.Unlock()

	all, err := p.scan()
	if err != nil {
		return nil, err
	}
	var changed []string
	err = p.db.Apply(func(b *pebble.Batch) error {
		for _, rec := range all {
			if !expired(rec, self, cutoff) {
				continue
			}
			rec.Presence = models.PresenceUnavailable
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal presence: %w", err)
			}
			if err := b.Set([]byte(keys.GenPresenceKey(rec.UserID)), data, nil); err != nil {
				return err
			}
			changed = append(changed, rec.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("expire presence: %w", err)
	}
	return changed, nil
}

func (p *PebblePresence) scan() ([]models.PresenceRecord, error) {
	var (
		out     []models.PresenceRecord
		scanErr error
	)
	err := p.db.ScanPrefix(keys.PresencePrefix, func(k, v []byte) bool {
		var rec models.PresenceRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			scanErr = fmt.Errorf("decode presence %s: %w", k, err)
			return false
		}
		out = append(out, rec)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("scan presence: %w", err)
	}
	return out, scanErr
}
