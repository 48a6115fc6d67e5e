package utils

import (
	"os"
	"path/filepath"
)

// GetAbsolutePath returns path if it is absolute, otherwise joins it with baseDir.
func GetAbsolutePath(path, baseDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Clean(filepath.Join(baseDir, path))
}

// EnsureParentDir creates the directory that will hold path.
func EnsureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}
