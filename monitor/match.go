package monitor

import (
	"path/filepath"
	"strings"
)

// Matches reports whether the executable at path is lexically contained
// under any of the configured roots. The comparison is component-wise and
// case-insensitive, and both slash flavors are treated as path separators
// so configurations written with Windows-style paths behave the same
// everywhere.
//
// Matching is by path only, never by bare process name, to avoid false
// positives from unrelated executables that happen to share a name.
func Matches(path string, roots []string) bool {
	pathParts := splitPath(path)
	if len(pathParts) == 0 {
		return false
	}
	for _, root := range roots {
		rootParts := splitPath(root)
		if len(rootParts) == 0 {
			continue
		}
		// The executable must be strictly below the root.
		if len(pathParts) <= len(rootParts) {
			continue
		}
		if hasPrefixFold(pathParts, rootParts) {
			return true
		}
	}
	return false
}

// DisplayName derives a human-readable name for the executable at path: the
// base name of its parent directory, unless that directory is itself a
// configured root or a filesystem root, in which case the executable's stem
// is used instead.
func DisplayName(path string, roots []string) string {
	parts := splitPath(path)
	if len(parts) == 0 {
		return ""
	}
	executable := parts[len(parts)-1]
	stem := strings.TrimSuffix(executable, filepath.Ext(executable))
	if len(parts) < 2 {
		return stem
	}
	parent := parts[len(parts)-2]
	if isDriveDesignator(parent) {
		return stem
	}
	parentParts := parts[:len(parts)-1]
	for _, root := range roots {
		if equalFold(parentParts, splitPath(root)) {
			return stem
		}
	}
	return parent
}

// splitPath splits a path into its components, treating both forward and
// backward slashes as separators and dropping empty components.
func splitPath(path string) []string {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	filtered := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		filtered = append(filtered, part)
	}
	return filtered
}

func hasPrefixFold(parts, prefix []string) bool {
	if len(parts) < len(prefix) {
		return false
	}
	return equalFold(parts[:len(prefix)], prefix)
}

func equalFold(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

// isDriveDesignator reports whether a path component is a Windows drive
// designator such as "C:".
func isDriveDesignator(part string) bool {
	return len(part) == 2 && part[1] == ':'
}
