package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/compose-network/xdomain-relayer/internal/logger"
	"github.com/robfig/cron/v3"
)

type (
	// Task is one scheduled unit of work.
	Task func(ctx context.Context) error

	// Scheduler runs tasks on cron specs. A task never overlaps with itself: a tick
	// that fires while the previous run is in progress is skipped. Errors for which
	// the task's fatal check holds stop the scheduler and are reported on Err.
	Scheduler struct {
		cron   *cron.Cron
		logger *slog.Logger

		ctx    context.Context
		cancel context.CancelFunc

		once  sync.Once
		fatal chan error
	}

	cronLogger struct {
		logger *slog.Logger
	}
)

func NewScheduler(ctx context.Context) *Scheduler {
	log := logger.Named("scheduler")
	adapter := cronLogger{logger: log}
	ctx, cancel := context.WithCancel(ctx)

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger: log,
		ctx:    ctx,
		cancel: cancel,
		fatal:  make(chan error, 1),
	}
}

// Add registers task under spec ("@every 15s" or a standard cron line).
func (s *Scheduler) Add(name, spec string, task Task, isFatal func(error) bool) error {
	log := s.logger.With("task", name)

	_, err := s.cron.AddFunc(spec, func() {
		if s.ctx.Err() != nil {
			return
		}

		err := task(s.ctx)
		switch {
		case err == nil:
		case isFatal != nil && isFatal(err):
			log.With("err", err).Error("task hit a fatal error, stopping scheduler")
			s.stopWith(fmt.Errorf("task %s: %w", name, err))
		default:
			log.With("err", err).Warn("task failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s with %q: %w", name, spec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Err delivers the first fatal task error.
func (s *Scheduler) Err() <-chan error {
	return s.fatal
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

func (s *Scheduler) stopWith(err error) {
	s.once.Do(func() {
		s.fatal <- err
		s.cancel()
	})
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.With("err", err).Error(msg, keysAndValues...)
}
