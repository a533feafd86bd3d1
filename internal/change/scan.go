package change

import (
	"context"
	"io/fs"
	"path/filepath"

	"go.uber.org/zap"
)

// ScanResult counts what a directory scan did
type ScanResult struct {
	Added   int      `json:"added"`
	Known   int      `json:"known"`
	Skipped []string `json:"skipped,omitempty"`
}

// Scan walks the workspace and records every file the store does not know
// yet as its current saved version. Ignored directories are not entered.
// Files that cannot be read are logged and skipped; the scan carries on.
func (l *Listener) Scan(ctx context.Context) (ScanResult, error) {
	var res ScanResult

	err := filepath.WalkDir(l.Root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Unreadable directory entries are skipped, not fatal.
			l.logger.Warn("scan: skipping entry", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() && path != l.Root {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != l.Root && l.ignore.IgnoreDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := l.RelPath(path)
		if err != nil || l.ignore.ShouldIgnore(relPath) {
			return nil
		}
		if l.store.Has(relPath) {
			res.Known++
			return nil
		}

		content, err := l.readText(relPath)
		if err != nil {
			l.logger.Info("scan: file skipped", zap.String("path", relPath), zap.Error(err))
			res.Skipped = append(res.Skipped, relPath)
			return nil
		}

		if l.store.RecordSaveIfAbsent(relPath, content) {
			res.Added++
		} else {
			res.Known++
		}
		return nil
	})

	l.logger.Info("scan finished",
		zap.String("root", l.Root),
		zap.Int("added", res.Added),
		zap.Int("known", res.Known),
		zap.Int("skipped", len(res.Skipped)))

	return res, err
}
