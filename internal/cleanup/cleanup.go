// Package cleanup implements the daily sweep that removes old completed or
// closed tasks when autoRemoveTasks is enabled, scheduled with
// robfig/cron/v3 the way the donor's own (now-retired) scheduler package
// drove its periodic jobs.
package cleanup

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"aio-download-engine/internal/config"
	"aio-download-engine/internal/record"
	"aio-download-engine/internal/recordstore"
)

// dailySpec runs the sweep once a day, shortly after midnight.
const dailySpec = "17 0 * * *"

// Sweeper removes Records that finished (COMPLETE or CLOSED) more than a
// configured number of days ago.
type Sweeper struct {
	logger *slog.Logger
	store  *recordstore.Store
	cron   *cron.Cron

	enabled  func() bool
	afterNDays func() int
}

// New builds a Sweeper. enabled and afterNDays are read live on every run
// so a settings change takes effect on the next scheduled sweep without
// restarting the cron job.
func New(logger *slog.Logger, store *recordstore.Store, enabled func() bool, afterNDays func() int) *Sweeper {
	return &Sweeper{
		logger:     logger,
		store:      store,
		cron:       cron.New(),
		enabled:    enabled,
		afterNDays: afterNDays,
	}
}

// Start schedules the daily sweep and returns immediately; the cron
// scheduler runs its own goroutine.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(dailySpec, s.runOnce)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop ends the scheduler, waiting for any in-flight run to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// RunNow performs a sweep immediately, outside the cron schedule (used by
// tests).
func (s *Sweeper) RunNow() {
	s.runOnce()
}

func (s *Sweeper) runOnce() {
	if s.enabled != nil && !s.enabled() {
		return
	}
	days := 7
	if s.afterNDays != nil {
		days = s.afterNDays()
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()

	ids, err := s.store.ListIDs()
	if err != nil {
		s.logger.Error("cleanup: list ids", "error", err)
		return
	}

	removed := 0
	for _, id := range ids {
		r, err := s.store.Load(id)
		if err != nil {
			continue
		}
		if !isFinished(r) {
			continue
		}
		if r.LastModifiedTimeDate > cutoff {
			continue
		}
		if err := s.store.Delete(r, r.GlobalSettings.DefaultDownloadLocation == config.PrivateFolder); err != nil {
			s.logger.Warn("cleanup: delete failed", "id", id, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("cleanup: swept finished tasks", "removed", removed, "olderThanDays", days)
	}
}

func isFinished(r *record.Record) bool {
	return r.Status == record.StatusComplete || r.Status == record.StatusClosed
}
