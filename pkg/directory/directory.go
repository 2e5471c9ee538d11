package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatrelay/pkg/state/logger"
	"chatrelay/pkg/store"
	"chatrelay/pkg/store/keys"
	"chatrelay/pkg/timeutil"
)

var ErrInvalidUserID = errors.New("invalid user id")

// Directory is the set of known local users, persisted in pebble.
type Directory struct {
	db *store.DB
}

func New(db *store.DB) *Directory {
	return &Directory{db: db}
}

// ValidateUserID rejects ids that cannot be addressed as user@host.
func ValidateUserID(id string) error {
	if id == "" || strings.TrimSpace(id) != id {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, id)
	}
	if strings.ContainsAny(id, "@/") {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, id)
	}
	return nil
}

// HasUser reports whether id is registered.
func (d *Directory) HasUser(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if id == "" {
		return false, nil
	}
	_, err := d.db.Get(keys.GenUserKey(id))
	if err != nil {
		if store.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("lookup user %s: %w", id, err)
	}
	return true, nil
}

// Add registers id. Registering an existing user is a no-op.
func (d *Directory) Add(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateUserID(id); err != nil {
		return err
	}
	stamp := fmt.Sprintf("%d", timeutil.Now().Unix())
	if err := d.db.Set(keys.GenUserKey(id), []byte(stamp)); err != nil {
		return fmt.Errorf("add user %s: %w", id, err)
	}
	return nil
}

// Remove unregisters id. Removing an unknown user is a no-op.
func (d *Directory) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.db.Delete(keys.GenUserKey(id)); err != nil {
		return fmt.Errorf("remove user %s: %w", id, err)
	}
	return nil
}

// List returns every registered id in key order.
func (d *Directory) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	err := d.db.ScanPrefix(keys.UserPrefix, func(k, _ []byte) bool {
		id, err := keys.ParseUserKey(string(k))
		if err == nil {
			out = append(out, id)
		}
		return true
	})
	return out, err
}

// Seed registers every id of users, skipping invalid entries with a warning.
func (d *Directory) Seed(ctx context.Context, users []string) (int, error) {
	added := 0
	for _, u := range users {
		if err := ValidateUserID(u); err != nil {
			logger.Warn("directory_seed_skipped", "user_id", u, "error", err)
			continue
		}
		if err := d.Add(ctx, u); err != nil {
			return added, err
		}
		added++
	}
	if added > 0 {
		logger.Info("directory_seeded", "users", added)
	}
	return added, nil
}
