package alerts

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Scheduler runs Checker.CheckAll on a fixed interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	checker   *Checker
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger
}

// NewScheduler creates a Scheduler. Each run is bounded by timeout, or by the interval when
// timeout is zero.
func NewScheduler(checker *Checker, interval, timeout time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 240 * time.Minute
	}
	if timeout <= 0 {
		timeout = interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		checker:   checker,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start schedules the check job and starts the scheduler in the background. The first run
// happens one interval after start.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).WaitForSchedule().SingletonMode().Do(s.run)
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info("alert scheduler started", zap.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.logger.Info("running alert check")
	if _, err := s.checker.CheckAll(ctx); err != nil {
		s.logger.Error("alert check failed", zap.Error(err))
	}
}

// Stop stops the scheduler. A run already in progress is not interrupted.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// IsRunning reports whether the scheduler has been started and not stopped.
func (s *Scheduler) IsRunning() bool {
	return s.scheduler.IsRunning()
}
