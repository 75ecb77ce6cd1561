package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	sweepTimeout   = 1 * time.Minute
	summaryTimeout = 5 * time.Minute
)

// Sweeper delivers whatever reminders are due.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// DigestSender sends the daily lesson summary.
type DigestSender interface {
	SendDailySummary(ctx context.Context) error
}

type Options struct {
	Interval     time.Duration
	InitialDelay time.Duration
	DailySpec    string
	Location     *time.Location
}

type ReminderScheduler struct {
	cronEngine *cron.Cron
	sweeper    Sweeper
	digest     DigestSender
	logger     *logrus.Entry
	opts       Options

	mu       sync.Mutex
	baseCtx  context.Context
	cancel   context.CancelFunc
	firstRun *time.Timer
	sweepJob cron.Job
	// tracks the initial sweep, which runs outside the cron engine
	firstWG sync.WaitGroup
}

func NewReminderScheduler(sweeper Sweeper, digest DigestSender, opts Options, baseLogger *logrus.Entry) *ReminderScheduler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	logger := baseLogger.WithField("component", "scheduler")
	return &ReminderScheduler{
		cronEngine: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(cron.PrintfLogger(logger)),
		),
		sweeper: sweeper,
		digest:  digest,
		logger:  logger,
		opts:    opts,
	}
}

// Start registers the periodic sweep and the daily summary and starts the cron engine.
// The first sweep runs after InitialDelay, then every Interval.
func (s *ReminderScheduler) Start(ctx context.Context) error {
	if s.opts.Interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %v", s.opts.Interval)
	}
	s.logger.Info("Starting reminder scheduler...")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseCtx, s.cancel = context.WithCancel(ctx)

	cronLogger := cron.PrintfLogger(s.logger)
	chain := cron.NewChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))

	s.sweepJob = chain.Then(cron.FuncJob(s.runSweep))
	s.cronEngine.Schedule(cron.Every(s.opts.Interval), s.sweepJob)

	if _, err := s.cronEngine.AddJob(s.opts.DailySpec, chain.Then(cron.FuncJob(s.runDailySummary))); err != nil {
		s.cancel()
		return fmt.Errorf("could not add daily summary job %q: %w", s.opts.DailySpec, err)
	}

	s.firstWG.Add(1)
	s.firstRun = time.AfterFunc(s.opts.InitialDelay, func() {
		defer s.firstWG.Done()
		s.sweepJob.Run()
	})
	s.cronEngine.Start()

	s.logger.WithFields(logrus.Fields{
		"interval":      s.opts.Interval.String(),
		"initial_delay": s.opts.InitialDelay.String(),
		"daily_spec":    s.opts.DailySpec,
		"location":      s.opts.Location.String(),
	}).Info("Reminder scheduler started with jobs.")
	return nil
}

func (s *ReminderScheduler) runSweep() {
	ctx, cancel := context.WithTimeout(s.baseCtx, sweepTimeout)
	defer cancel()
	if err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.WithError(err).Error("Error during reminder sweep")
	}
}

func (s *ReminderScheduler) runDailySummary() {
	s.logger.Info("Cron job triggered for daily summary.")
	ctx, cancel := context.WithTimeout(s.baseCtx, summaryTimeout)
	defer cancel()
	if err := s.digest.SendDailySummary(ctx); err != nil {
		s.logger.WithError(err).Error("Error during daily summary")
	}
}

// Stop stops scheduling new runs and waits for running jobs to finish.
func (s *ReminderScheduler) Stop() {
	s.logger.Info("Stopping reminder scheduler...")
	s.mu.Lock()
	if s.firstRun != nil && s.firstRun.Stop() {
		s.firstWG.Done()
	}
	s.firstRun = nil
	s.mu.Unlock()

	<-s.cronEngine.Stop().Done()
	s.firstWG.Wait()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.logger.Info("Reminder scheduler gracefully stopped.")
}
