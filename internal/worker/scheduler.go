package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"expenses/internal/log"
)

// Job is a scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler wraps cron-based jobs. A job still running when its next turn
// comes is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *log.Logger
	ctx    context.Context
}

func NewScheduler(logger *log.Logger) *Scheduler {
	logger = logger.WithComponent(log.ComponentWorker)
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    context.Background(),
	}
}

// Add registers job under name on a standard cron spec or descriptor such as
// "@every 1h".
func (s *Scheduler) Add(spec, name string, job Job) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(s.ctx); err != nil {
			s.logger.Error("Scheduled job failed",
				log.FieldJob, name,
				log.FieldError, err.Error())
			return
		}
		s.logger.Debug("Scheduled job completed",
			log.FieldJob, name,
			log.FieldDuration, time.Since(start).Milliseconds())
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %s on %q: %w", name, spec, err)
	}
	return id, nil
}

// Entries reports the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish. Jobs receive ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("Scheduler started", "jobs", s.Entries())

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
	return nil
}

// cronLogger adapts log.Logger to cron.Logger.
type cronLogger struct {
	logger *log.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, log.FieldError, err.Error())...)
}
