package reload

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"lookupd/internal/logging"
)

// JobName is the name of the scheduled reload job.
const JobName = "reload-lookup-tables"

// Scheduler reloads all tables on a cron schedule.
type Scheduler struct {
	scheduler gocron.Scheduler
	job       gocron.Job
	cronExpr  string
	logger    *slog.Logger
}

// NewScheduler creates a scheduler that calls r.ReloadAll on cronExpr.
// Five-field and six-field (with seconds) expressions are accepted. A run
// that is still going when the next one is due delays the next one.
func NewScheduler(r Reloader, cronExpr string, logger *slog.Logger) (*Scheduler, error) {
	logger = logging.Default(logger).With("component", "reload")

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create cron scheduler: %w", err)
	}
	j, err := s.NewJob(
		gocron.CronJob(cronExpr, true),
		gocron.NewTask(func() {
			if err := r.ReloadAll(context.Background()); err != nil {
				logger.Warn("scheduled reload: some lookup tables kept their previous contents", "error", err)
			}
		}),
		gocron.WithName(JobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("create scheduled job %s: %w", JobName, err)
	}
	return &Scheduler{
		scheduler: s,
		job:       j,
		cronExpr:  cronExpr,
		logger:    logger,
	}, nil
}

// NextRun returns when the next reload is due.
func (s *Scheduler) NextRun() (time.Time, error) {
	return s.job.NextRun()
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running reload to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.scheduler.Start()
	s.logger.Info("scheduled lookup table reload", "cron", s.cronExpr)
	<-ctx.Done()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("stop cron scheduler: %w", err)
	}
	return nil
}

// Stop shuts the scheduler down without running it.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}
