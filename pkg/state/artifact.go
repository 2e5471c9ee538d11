package state

import (
	"os"
	"path/filepath"
	"strings"
)

// ArtifactRoot returns CHATRELAY_ARTIFACT_ROOT as an absolute path, or ""
// when unset. Packaged builds use it to place the database.
func ArtifactRoot() string {
	root := strings.TrimSpace(os.Getenv("CHATRELAY_ARTIFACT_ROOT"))
	if root == "" {
		return ""
	}
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return root
}
