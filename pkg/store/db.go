package store

import (
	"errors"
	"fmt"

	"chatrelay/pkg/state/logger"
	"chatrelay/pkg/store/keys"

	"github.com/cockroachdb/pebble"
)

// ErrNotOpen is returned by every DB operation after Close or before Open.
var ErrNotOpen = errors.New("pebble not opened")

// DB wraps the pebble instance shared by the presence store, the message
// log and the user directory.
type DB struct {
	client *pebble.DB
	path   string
	sync   bool
}

// Open opens or creates the pebble database at path. When sync is true
// every write is fsynced before returning.
func Open(path string, sync bool) (*DB, error) {
	client, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Debug("pebble_opened", "path", path)
	return &DB{client: client, path: path, sync: sync}, nil
}

// Close closes the database. Closing twice is a no-op.
func (d *DB) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	if err := d.client.Close(); err != nil {
		return err
	}
	d.client = nil
	return nil
}

// Ready reports whether the database is open.
func (d *DB) Ready() bool {
	return d != nil && d.client != nil
}

func (d *DB) Path() string { return d.path }

// IsNotFound reports whether err is pebble.ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

func (d *DB) writeOpt() *pebble.WriteOptions {
	if d.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// Get returns a copy of the value stored at key.
func (d *DB) Get(key string) ([]byte, error) {
	if !d.Ready() {
		return nil, ErrNotOpen
	}
	v, closer, err := d.client.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (d *DB) Set(key string, value []byte) error {
	if !d.Ready() {
		return ErrNotOpen
	}
	if err := d.client.Set([]byte(key), value, d.writeOpt()); err != nil {
		logger.Error("pebble_set_failed", "key", key, "error", err)
		return err
	}
	return nil
}

func (d *DB) Delete(key string) error {
	if !d.Ready() {
		return ErrNotOpen
	}
	if err := d.client.Delete([]byte(key), d.writeOpt()); err != nil {
		logger.Error("pebble_delete_failed", "key", key, "error", err)
		return err
	}
	return nil
}

// ScanPrefix calls fn for every key under prefix in key order. Slices
// passed to fn are only valid for the duration of the call. Returning
// false from fn stops the scan.
func (d *DB) ScanPrefix(prefix string, fn func(key, value []byte) bool) error {
	if !d.Ready() {
		return ErrNotOpen
	}
	pfx := []byte(prefix)
	iter, err := d.client.NewIter(&pebble.IterOptions{
		LowerBound: pfx,
		UpperBound: keys.PrefixUpperBound(pfx),
	})
	if err != nil {
		return fmt.Errorf("open iterator: %w", err)
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

// Apply commits every mutation recorded by fn as one atomic batch.
func (d *DB) Apply(fn func(b *pebble.Batch) error) error {
	if !d.Ready() {
		return ErrNotOpen
	}
	b := d.client.NewBatch()
	defer b.Close()
	if err := fn(b); err != nil {
		return err
	}
	if b.Empty() {
		return nil
	}
	if err := b.Commit(d.writeOpt()); err != nil {
		logger.Error("pebble_batch_failed", "count", b.Count(), "error", err)
		return err
	}
	return nil
}
