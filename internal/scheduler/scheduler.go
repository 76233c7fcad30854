package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ykvlv/daily-prompt-bot/internal/domain"
	"github.com/ykvlv/daily-prompt-bot/internal/engagement"
)

// Runner is the batch work the scheduler triggers.
// engagement.Service implements it.
type Runner interface {
	RunDispatch(ctx context.Context) engagement.Report
	RunReminderScan(ctx context.Context) engagement.Report
}

// Options configures both drivers.
type Options struct {
	Location     *time.Location
	DispatchAt   domain.Clock  // daily, in Location
	ScanEnabled  bool
	ScanInterval time.Duration
	ScanFirst    time.Duration // delay before the first scan
}

// Scheduler fires the daily dispatch from cron and the reminder scan from a ticker.
type Scheduler struct {
	runner Runner
	log    *zap.Logger
	opts   Options
	spec   string
}

// New validates opts and creates a Scheduler.
func New(runner Runner, log *zap.Logger, opts Options) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	spec := opts.DispatchAt.CronSpec()
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("dispatch spec %q: %w", spec, err)
	}
	if opts.ScanEnabled && opts.ScanInterval <= 0 {
		return nil, fmt.Errorf("reminder scan interval must be positive, got %s", opts.ScanInterval)
	}
	if opts.ScanFirst < 0 {
		opts.ScanFirst = 0
	}
	return &Scheduler{runner: runner, log: log, opts: opts, spec: spec}, nil
}

// Run starts both drivers and blocks until ctx is canceled. On return any
// dispatch in progress has stopped at a user boundary.
func (s *Scheduler) Run(ctx context.Context) {
	c, id, err := s.newCron(ctx)
	if err != nil {
		// Expression was validated in New.
		s.log.Error("register dispatch failed", zap.Error(err))
		return
	}
	c.Start()
	s.log.Info("scheduler started",
		zap.String("dispatch_at", s.opts.DispatchAt.String()),
		zap.String("tz", s.opts.Location.String()),
		zap.Time("next_dispatch", c.Entry(id).Next),
		zap.Bool("reminder_scan", s.opts.ScanEnabled),
		zap.Duration("scan_interval", s.opts.ScanInterval),
	)

	if s.opts.ScanEnabled {
		s.scanLoop(ctx)
	} else {
		<-ctx.Done()
	}

	s.log.Info("scheduler stopping")
	<-c.Stop().Done()
}

// newCron builds a stopped cron with the daily dispatch registered in the
// configured location.
func (s *Scheduler) newCron(ctx context.Context) (*cron.Cron, cron.EntryID, error) {
	c := cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log.Sugar()})),
	)
	id, err := c.AddFunc(s.spec, func() { s.runner.RunDispatch(ctx) })
	if err != nil {
		return nil, 0, err
	}
	return c, id, nil
}

// scanLoop runs reminder scans until ctx is canceled. Scans run on this
// goroutine, so they never overlap each other.
func (s *Scheduler) scanLoop(ctx context.Context) {
	first := time.NewTimer(s.opts.ScanFirst)
	defer first.Stop()

	select {
	case <-ctx.Done():
		return
	case <-first.C:
		s.runner.RunReminderScan(ctx)
	}

	ticker := time.NewTicker(s.opts.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runner.RunReminderScan(ctx)
		}
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
