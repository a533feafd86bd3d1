package change

import (
	"path/filepath"
	"strings"
)

// DefaultIgnoreDirs are never scanned or watched: version-control metadata,
// build output, editor config and dependency caches.
var DefaultIgnoreDirs = []string{
	".git", ".svn", ".hg",
	".vscode", ".idea",
	"node_modules", "vendor", ".cache", "__pycache__",
	"dist", "build", "out", ".next",
	".precursor",
}

// IgnorePolicy decides which paths are left untracked
type IgnorePolicy struct {
	dirs map[string]bool
}

// NewIgnorePolicy combines the defaults with extra directory names
func NewIgnorePolicy(extra ...string) *IgnorePolicy {
	p := &IgnorePolicy{dirs: make(map[string]bool, len(DefaultIgnoreDirs)+len(extra))}
	for _, d := range DefaultIgnoreDirs {
		p.dirs[d] = true
	}
	for _, d := range extra {
		if d = strings.TrimSpace(d); d != "" {
			p.dirs[d] = true
		}
	}
	return p
}

// ShouldIgnore reports whether any segment of the relative path is an
// ignored directory name
func (p *IgnorePolicy) ShouldIgnore(relPath string) bool {
	if relPath == "" || relPath == "." {
		return false
	}

	parts := strings.Split(filepath.ToSlash(relPath), "/")
	for _, part := range parts {
		if p.dirs[part] {
			return true
		}
	}

	return false
}

// IgnoreDir reports whether a directory with this base name is skipped
func (p *IgnorePolicy) IgnoreDir(name string) bool {
	return p.dirs[name]
}
