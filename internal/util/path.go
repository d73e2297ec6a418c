package util

import (
	"fmt"
	"os"
)

// CheckDirectory reports whether path exists and is a directory. A missing
// path is not an error.
func CheckDirectory(path string) (exists bool, isDir bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, false, nil
		}
		return false, false, err
	}
	return true, info.IsDir(), nil
}

// EnsureDirectory creates path when it is missing and fails when something
// other than a directory is there.
func EnsureDirectory(path string) error {
	exists, isDir, err := CheckDirectory(path)
	if err != nil {
		return err
	}
	if exists && !isDir {
		return fmt.Errorf("%s is not a directory", path)
	}
	if !exists {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}
	return nil
}
