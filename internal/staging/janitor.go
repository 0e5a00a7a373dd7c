package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweep removes request directories older than olderThan. Directories of
// in-flight requests are normally removed by Batch.Cleanup; this catches
// what a crash left behind.
func (s *Stager) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return 0, fmt.Errorf("read staging dir: %w", err)
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), requestDirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.cfg.Dir, e.Name())); err != nil {
			s.log.Warn("staging.sweep.remove_error", "dir", e.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info("staging.sweep", "removed", removed, "older_than", olderThan.String())
	}
	return removed, nil
}

// StartJanitor schedules Sweep on spec (cron syntax or descriptors such as
// "@every 15m"). The caller stops the returned scheduler.
func (s *Stager) StartJanitor(spec string, maxAge time.Duration) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := s.Sweep(maxAge); err != nil {
			s.log.Warn("staging.sweep.error", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
