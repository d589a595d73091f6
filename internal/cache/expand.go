package cache

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandUser replaces a leading ~ with the home directory and expands $VARS.
func ExpandUser(path string) string {
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			home = os.TempDir()
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// existingAncestor returns path or its deepest ancestor that exists.
func existingAncestor(path string) string {
	p := filepath.Clean(path)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return ""
		}
		p = parent
	}
}
