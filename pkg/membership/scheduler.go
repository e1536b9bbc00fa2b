package membership

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tendant/simple-team-slim/internal/logger"
)

// Scheduler runs the Reconciler on a cron schedule. A pass that is still
// running when the next one is due is skipped.
type Scheduler struct {
	cron       *cron.Cron
	reconciler *Reconciler
	log        *logger.Logger
	timeout    time.Duration
}

// NewScheduler registers reconciler under schedule, a standard five-field cron
// expression or a descriptor such as "@every 1h".
func NewScheduler(reconciler *Reconciler, schedule string, timeout time.Duration, log *logger.Logger) (*Scheduler, error) {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	s := &Scheduler{
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		reconciler: reconciler,
		log:        log.Named("scheduler"),
		timeout:    timeout,
	}
	if _, err := s.cron.AddFunc(schedule, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	report, err := s.reconciler.Run(ctx)
	if err != nil {
		s.log.Error("scheduled reconcile failed", "error", err)
		return
	}
	s.log.Info("scheduled reconcile finished",
		"teams", report.TeamsScanned, "users", report.UsersScanned,
		"added", report.Added, "pulled", report.Pulled, "duration", report.Duration)
}

// Run starts the scheduler and blocks until ctx is done, then waits for a
// running pass to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.log.Info("reconcile scheduler started")
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("reconcile scheduler stopped")
	return nil
}
