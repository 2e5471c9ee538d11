package sweeper

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"chatrelay/pkg/state/logger"
	"chatrelay/pkg/timeutil"
)

var ErrNotOwner = errors.New("lease not held by owner")

// FileLease is a lock file next to the database, for processes sharing a host.
type FileLease struct {
	path string
}

type leaseFile struct {
	Owner   string `json:"owner"`
	Expires string `json:"expires"`
}

func NewFileLease(dir string) *FileLease {
	return &FileLease{path: filepath.Join(dir, "sweep.lock")}
}

func (l *FileLease) Acquire(_ context.Context, owner string, ttl time.Duration) (bool, error) {
	now := timeutil.Now()
	b, err := json.Marshal(leaseFile{Owner: owner, Expires: now.Add(ttl).Format(time.RFC3339)})
	if err != nil {
		return false, err
	}
	tmp := l.path + "." + owner + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		logger.Error("lease_tmp_write_failed", "path", tmp, "error", err)
		return false, err
	}
	defer os.Remove(tmp)

	// link fails when the lock already exists
	if err := os.Link(tmp, l.path); err == nil {
		return true, nil
	}

	existing, err := l.read()
	switch {
	case errors.Is(err, os.ErrNotExist):
		// released between the link attempt and the read
		return os.Link(tmp, l.path) == nil, nil
	case err != nil:
		if !corrupt(err) {
			return false, err
		}
		// an undecodable lock would never expire
		logger.Warn("lease_corrupt_replaced", "path", l.path, "error", err)
	default:
		expires, _ := time.Parse(time.RFC3339, existing.Expires)
		if existing.Owner != owner && !expires.Before(now) {
			logger.Debug("lease_currently_held", "path", l.path, "owner", existing.Owner)
			return false, nil
		}
	}
	if err := os.Rename(tmp, l.path); err != nil {
		logger.Error("lease_replace_failed", "path", l.path, "error", err)
		return false, err
	}
	return true, nil
}

func (l *FileLease) Release(_ context.Context, owner string) error {
	existing, err := l.read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if existing.Owner != owner {
		return ErrNotOwner
	}
	return os.Remove(l.path)
}

func (l *FileLease) read() (leaseFile, error) {
	var lf leaseFile
	data, err := os.ReadFile(l.path)
	if err != nil {
		return lf, err
	}
	err = json.Unmarshal(data, &lf)
	return lf, err
}

func corrupt(err error) bool {
	var syntax *json.SyntaxError
	var typ *json.UnmarshalTypeError
	return errors.As(err, &syntax) || errors.As(err, &typ)
}
