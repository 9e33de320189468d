// Package sweeper runs scheduled housekeeping: it removes temp-dir
// leftovers from crashed or abandoned retrievals and purges expired
// activity log rows.
package sweeper

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"logvault/internal/audit"
)

// Sweeper owns the cron scheduler for housekeeping jobs.
type Sweeper struct {
	cron    *cron.Cron
	tempDir string
	maxAge  time.Duration
	auditor *audit.Auditor
	nowFn   func() time.Time
}

// New creates a Sweeper over tempDir. Files older than maxAge are removed
// on each run. auditor may be nil, in which case only the temp sweep runs.
func New(tempDir string, maxAge time.Duration, auditor *audit.Auditor) *Sweeper {
	return &Sweeper{
		cron:    cron.New(),
		tempDir: tempDir,
		maxAge:  maxAge,
		auditor: auditor,
		nowFn:   time.Now,
	}
}

// Start registers the housekeeping job under the given cron schedule and
// starts the scheduler.
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.runOnce); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[sweeper] started (schedule=%q, temp max age=%s)", schedule, s.maxAge)
	return nil
}

// Stop stops the scheduler. Running jobs finish.
func (s *Sweeper) Stop() {
	s.cron.Stop()
	log.Printf("[sweeper] stopped")
}

func (s *Sweeper) runOnce() {
	if n, err := s.SweepTemp(); err != nil {
		log.Printf("[sweeper] temp sweep: %v", err)
	} else if n > 0 {
		log.Printf("[sweeper] removed %d stale temp file(s)", n)
	}
	if s.auditor != nil {
		if _, err := s.auditor.PurgeOlderThan(0); err != nil {
			log.Printf("[sweeper] activity purge: %v", err)
		}
	}
}

// SweepTemp removes regular files in the temp directory older than the
// configured max age and returns how many were removed. In-flight
// retrievals are never touched: their artifacts are younger than any sane
// max age.
func (s *Sweeper) SweepTemp() (int, error) {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := s.nowFn().Add(-s.maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.tempDir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Printf("[sweeper] remove %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// SetNowFunc sets the clock function used for testing.
func (s *Sweeper) SetNowFunc(fn func() time.Time) { s.nowFn = fn }
