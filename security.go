package flatstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// Security policy, always enforced for file-backed stores: the directory
// must be owned by the current user and must not be world-writable, and
// both are checked on every Open. Data and index files are created 0600;
// their own ownership and permissions are not checked.

func validateStoreDirectory(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("flatstore: directory cannot be empty")
	}
	if strings.Contains(dir, "..") {
		return "", fmt.Errorf("flatstore: path traversal not allowed in directory: %s", dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("flatstore: invalid directory path: %w", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return "", fmt.Errorf("flatstore: failed to create directory %s: %w", abs, err)
	}
	if err := validateDirectorySecurity(abs); err != nil {
		return "", err
	}
	return abs, nil
}

func validateDirectorySecurity(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("flatstore: failed to stat directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("flatstore: path %s is not a directory", dir)
	}
	if err := validateOwnership(dir, info); err != nil {
		return err
	}
	if info.Mode().Perm()&0002 != 0 {
		return fmt.Errorf("flatstore: directory %s is world-writable", dir)
	}
	return nil
}

func validateOwnership(path string, info os.FileInfo) error {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		// Platforms without a *syscall.Stat_t (no uid concept) skip the check.
		return nil
	}
	if int(stat.Uid) != os.Getuid() {
		return fmt.Errorf("flatstore: %s must be owned by the current user (uid %d), got uid %d",
			path, os.Getuid(), stat.Uid)
	}
	return nil
}
