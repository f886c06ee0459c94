package utils

import (
	"os"
	"path/filepath"
)

// FindUp walks from dir towards the filesystem root and returns the first
// existing path made of dir joined with one of names, or "" if none exists.
func FindUp(dir string, names ...string) string {
	for {
		for _, name := range names {
			path := filepath.Join(dir, name)

			if _, err := os.Stat(path); err == nil {
				return path
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}
