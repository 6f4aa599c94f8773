// Package fsutil implements the FileSystem port and the overwrite_file
// safety-contract path validator.
package fsutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePath enforces the overwrite_file safety contract: absolute
// paths are rejected, any path component equal to ".." is rejected, and
// any component equal to ".git" (or the raw substring "/.git/") is
// rejected.
func ValidatePath(path string) error {
	if filepath.IsAbs(path) {
		return fmt.Errorf("absolute paths are not permitted: %q", path)
	}
	if strings.Contains(path, "/.git/") || strings.HasPrefix(path, ".git/") || path == ".git" {
		return fmt.Errorf("paths under .git are not permitted: %q", path)
	}
	clean := filepath.ToSlash(path)
	for _, part := range strings.Split(clean, "/") {
		switch part {
		case "..":
			return fmt.Errorf("path component %q is not permitted: %q", part, path)
		case ".git":
			return fmt.Errorf("path component %q is not permitted: %q", part, path)
		}
	}
	return nil
}
