package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Refresher runs named jobs on cron schedules (six-field, with seconds).
type Refresher struct {
	cron *cron.Cron
	log  *slog.Logger
}

// NewRefresher creates a stopped Refresher.
func NewRefresher(log *slog.Logger) *Refresher {
	if log == nil {
		log = slog.Default()
	}
	return &Refresher{
		cron: cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:  log,
	}
}

// Add registers fn under name on the given schedule, e.g. "*/30 * * * * *".
// A job still running when its next tick arrives is skipped for that tick.
func (r *Refresher) Add(name, spec string, fn func()) error {
	_, err := r.cron.AddFunc(spec, func() {
		r.log.Debug("scheduled job running", "job", name)
		fn()
	})
	if err != nil {
		return fmt.Errorf("register %s job: %w", name, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (r *Refresher) Start() {
	r.cron.Start()
	r.log.Info("refresher started", "jobs", len(r.cron.Entries()))
}

// Stop stops the scheduler and waits for running jobs to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
	r.log.Info("refresher stopped")
}
