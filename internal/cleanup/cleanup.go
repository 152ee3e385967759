// Package cleanup reclaims disk space from abandoned upload spools.
//
// The HTTP upload handler stages each request body in spool/<uuid>/ before
// handing it to the store and removes the directory afterwards. A crash or a
// kill between those two steps leaves the spool behind. Spool removes any
// entry whose mtime is older than the configured TTL.
package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"
)

// Spool scans dir and removes entries older than ttl, returning how many were
// removed. In-progress uploads are recently modified and are left untouched.
func Spool(fsys afero.Fs, dir string, ttl time.Duration, log logr.Logger) int {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Error(err, "cleanup: readdir failed", "dir", dir)
		}
		return 0
	}

	cutoff := time.Now().Add(-ttl)
	var removed int
	for _, e := range entries {
		if !e.ModTime().Before(cutoff) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		age := time.Since(e.ModTime()).Round(time.Minute)
		if err := fsys.RemoveAll(p); err != nil {
			log.Error(err, "cleanup: remove failed", "spool", e.Name())
			continue
		}
		removed++
		log.V(1).Info("cleanup: removed stale spool", "spool", e.Name(), "age", age)
	}
	if removed > 0 {
		log.Info("cleanup: cycle complete", "removed", removed)
	}
	return removed
}

// RunPeriodic starts a background goroutine that calls Spool on every interval
// until ctx is cancelled. A first pass runs immediately to flush spools left
// over from a previous crash. A non-positive interval runs only that pass.
func RunPeriodic(ctx context.Context, fsys afero.Fs, dir string, ttl, interval time.Duration, log logr.Logger) {
	go func() {
		Spool(fsys, dir, ttl, log)
		if interval <= 0 {
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				Spool(fsys, dir, ttl, log)
			case <-ctx.Done():
				return
			}
		}
	}()
}
