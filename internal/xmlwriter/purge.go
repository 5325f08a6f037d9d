package xmlwriter

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// PurgeStale removes per-user working directories whose newest entry is older
// than maxAge. Abandoned sessions would otherwise accumulate generated
// artifacts forever. Individual failures are logged and skipped.
func (g *Generator) PurgeStale(maxAge time.Duration) {
	entries, err := os.ReadDir(g.workDir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("failed to scan working directory for purge", "error", err)
		}
		return
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(g.workDir, entry.Name())
		if newestModTime(dir).After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			slog.Error("failed to purge stale working directory", "dir", dir, "error", err)
			continue
		}
		slog.Info("purged stale working directory", "dir", dir)
	}
}

func newestModTime(dir string) time.Time {
	var newest time.Time
	_ = filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	return newest
}
