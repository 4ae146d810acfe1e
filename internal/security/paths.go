// Package security guards the file paths the tools write to.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a path resolves outside every allowed root.
var ErrPathEscape = errors.New("path escapes allowed directories")

const maxFilenameLen = 128

// canonical resolves symlinks on the longest existing prefix of path, so a
// file that does not exist yet is judged by where its parent really lives.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	rest := ""
	for dir := abs; ; {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
	}
}

// ValidateWithin reports whether path stays inside dir once symlinks and
// ".." components are resolved.
func ValidateWithin(path, dir string) error {
	target, err := canonical(path)
	if err != nil {
		return err
	}
	root, err := canonical(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is outside %s", ErrPathEscape, path, dir)
	}
	return nil
}

// ValidateOutputPath accepts path if it lies within any of roots. With no
// roots the working directory and the system temp directory are allowed.
func ValidateOutputPath(path string, roots ...string) error {
	if len(roots) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		roots = []string{cwd, os.TempDir()}
	}
	for _, root := range roots {
		if ValidateWithin(path, root) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be within one of %v", ErrPathEscape, path, roots)
}

// SanitizeFilename maps s onto [A-Za-z0-9._-], collapsing runs of other
// characters into one underscore. Empty results become "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
		default:
			pending = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
