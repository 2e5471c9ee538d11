package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths is the on-disk layout under the database root.
type Paths struct {
	DB    string
	Store string // pebble: presence, messages, directory
	State string
	Lease string // sweep lease file
	Crash string // abort dumps
}

func PathsFor(dbPath string) Paths {
	statePath := filepath.Join(dbPath, "state")
	return Paths{
		DB:    dbPath,
		Store: filepath.Join(dbPath, "store"),
		State: statePath,
		Lease: filepath.Join(statePath, "lease"),
		Crash: filepath.Join(statePath, "crash"),
	}
}

// Init resolves dbPath and ensures the layout exists with restrictive
// permissions. An empty path falls back to ./database.
func Init(dbPath string) (Paths, error) {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = "./database"
	}
	p := PathsFor(filepath.Clean(path))
	return p, EnsureStateDirs(p)
}

// EnsureStateDirs creates every directory of p. Each must be a real,
// writable directory and not a symlink.
func EnsureStateDirs(p Paths) error {
	for _, dir := range []string{p.Store, p.Lease, p.Crash} {
		if fi, err := os.Lstat(dir); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink: %s", dir)
			}
			if !fi.IsDir() {
				return fmt.Errorf("path exists and is not a directory: %s", dir)
			}
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("cannot create path %s: %w", dir, err)
		}

		tmp, err := os.CreateTemp(dir, ".validate-*")
		if err != nil {
			return fmt.Errorf("path not writable: %s: %w", dir, err)
		}
		tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	return nil
}
