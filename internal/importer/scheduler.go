package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/personal-pl/plctl/internal/logging"
)

// Scheduler runs a job on a cron schedule until its context ends. A run
// still in progress when the next one is due is skipped.
type Scheduler struct {
	cron *cron.Cron
	id   cron.EntryID
	log  *slog.Logger
	job  func(context.Context) error
	ctx  context.Context
}

// NewScheduler parses a standard five-field cron spec.
func NewScheduler(spec string, loc *time.Location, job func(context.Context) error, log *slog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{log: logging.For(log, logging.ComponentSchedule), job: job}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	id, err := s.cron.AddFunc(spec, s.runOnce)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.id = id
	return s, nil
}

func (s *Scheduler) runOnce() {
	start := time.Now()
	s.log.Info("scheduled import starting")
	if err := s.job(s.ctx); err != nil {
		s.log.Error("scheduled import failed", slog.String(logging.FieldError, err.Error()))
		return
	}
	s.log.Info("scheduled import finished", slog.Int64(logging.FieldDuration, time.Since(start).Milliseconds()))
}

// Next returns when the job runs next. Zero before Run.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.id).Next
}

// Run blocks until ctx is done, then waits for a running job to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.log.Info("schedule started", slog.Time("next", s.Next()))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, logging.FieldError, err)...)
}
