package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathValidator confines tool file access to one directory
type PathValidator struct {
	root string
}

// NewPathValidator creates a validator rooted at dir. The directory does not
// have to exist yet; containment is then checked lexically.
func NewPathValidator(dir string) (*PathValidator, error) {
	if dir == "" {
		return nil, fmt.Errorf("configured directory cannot be empty")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory: %w", err)
	}

	return &PathValidator{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute configured directory
func (v *PathValidator) Root() string {
	return v.root
}

// Resolve turns a user supplied path into an absolute path inside the root.
// Relative paths are taken relative to the root. NUL bytes are stripped.
func (v *PathValidator) Resolve(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(v.root, path)
	}
	path = filepath.Clean(path)

	if !v.Contains(path) {
		return "", fmt.Errorf("path is outside configured directory: %s", path)
	}

	return path, nil
}

// Contains reports whether path lies inside the root, following symlinks on
// both sides when they exist.
func (v *PathValidator) Contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	abs = filepath.Clean(abs)

	if !within(abs, v.root) {
		return false
	}

	realRoot := v.root
	if resolved, err := filepath.EvalSymlinks(v.root); err == nil {
		realRoot = resolved
	}

	// a symlink inside the root may still point outside it
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return within(resolved, realRoot) || within(resolved, v.root)
	}

	return true
}

// ResolveOutput resolves a path for writing; its parent directory must exist.
func (v *PathValidator) ResolveOutput(path string) (string, error) {
	resolved, err := v.Resolve(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(filepath.Dir(resolved))
	if err != nil {
		return "", fmt.Errorf("cannot access output directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("output parent is not a directory: %s", filepath.Dir(resolved))
	}

	return resolved, nil
}

func within(path, dir string) bool {
	if path == dir {
		return true
	}
	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}
	return strings.HasPrefix(path, dir)
}
