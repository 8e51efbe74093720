// Package fsutil holds small filesystem helpers for config and binary paths.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// PathExists checks if the given path exists.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// ResolveBinary turns a configured executable into a runnable path. Values
// containing a path separator are expanded and must exist; bare names are
// looked up in PATH.
func ResolveBinary(bin string) (string, error) {
	bin = strings.TrimSpace(bin)
	if bin == "" {
		return "", errors.New("empty binary name")
	}
	if !strings.ContainsRune(bin, os.PathSeparator) && !strings.HasPrefix(bin, "~") {
		return exec.LookPath(bin)
	}
	p, err := ExpandHome(bin)
	if err != nil {
		return "", err
	}
	if !FileExists(p) {
		return "", fmt.Errorf("binary %s: %w", p, os.ErrNotExist)
	}
	return p, nil
}
