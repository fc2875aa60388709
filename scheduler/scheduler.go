package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"go_signal_engine/config"
	"go_signal_engine/services/jobs"
)

// calendar job slots, cron day-of-week ranges
const (
	weekdays = "1-5"
	sundays  = "0"
	everyDay = "*"
)

// Scheduler drives the three entry-point jobs on the configured clock. Chained
// jobs are never scheduled directly; they run off their predecessor inside the
// runner. Every firing goes through the runner wrapper, so a slow run makes
// the next tick a lock-busy no-op instead of an overlap.
type Scheduler struct {
	cron     *gocron.Scheduler
	runner   *jobs.Runner
	cfg      *config.Config
	logger   *zap.Logger
	location *time.Location
	handles  map[jobs.Kind]*gocron.Job
}

// New creates the scheduler in the configured market timezone.
func New(runner *jobs.Runner, cfg *config.Config, logger *zap.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	return &Scheduler{
		cron:     gocron.NewScheduler(loc),
		runner:   runner,
		cfg:      cfg,
		logger:   logger,
		location: loc,
		handles:  make(map[jobs.Kind]*gocron.Job),
	}, nil
}

// Start registers all entry-point jobs and launches the scheduler loop in the
// background. Calendar slots missed within the misfire grace are fired once,
// immediately.
func (s *Scheduler) Start() error {
	eodSpec, err := cronSpec(s.cfg.EodScanAt, weekdays)
	if err != nil {
		return fmt.Errorf("eod scan schedule: %w", err)
	}
	cleanupSpec, err := cronSpec(s.cfg.CleanupAt, sundays)
	if err != nil {
		return fmt.Errorf("cleanup schedule: %w", err)
	}

	eodJob, err := s.cron.Cron(eodSpec).SingletonMode().Do(s.fire, jobs.EodScan)
	if err != nil {
		return fmt.Errorf("register eod scan: %w", err)
	}
	s.handles[jobs.EodScan] = eodJob

	cleanupJob, err := s.cron.Cron(cleanupSpec).SingletonMode().Do(s.fire, jobs.HistoryCleanup)
	if err != nil {
		return fmt.Errorf("register history cleanup: %w", err)
	}
	s.handles[jobs.HistoryCleanup] = cleanupJob

	refreshJob, err := s.cron.Every(s.cfg.RefreshEveryMin).Minutes().
		SingletonMode().Do(s.fire, jobs.UniverseRefresh)
	if err != nil {
		return fmt.Errorf("register universe refresh: %w", err)
	}
	s.handles[jobs.UniverseRefresh] = refreshJob

	s.runner.SetNextRunFunc(s.nextRun)
	s.cron.StartAsync()
	s.logger.Info("scheduler started",
		zap.String("timezone", s.cfg.Timezone),
		zap.String("eod_scan", eodSpec),
		zap.String("cleanup", cleanupSpec),
		zap.Int("refresh_every_min", s.cfg.RefreshEveryMin))

	s.catchUpMissed()
	return nil
}

// Stop halts the scheduler loop. In-flight runs finish on their own.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) fire(kind jobs.Kind) {
	summary := s.runner.Run(context.Background(), kind)
	s.logger.Info("scheduled firing done",
		zap.String("job", string(summary.Job)),
		zap.String("status", summary.Status))
}

// nextRun reports a job's next scheduled firing for the run ledger. Chained
// jobs have no schedule of their own.
func (s *Scheduler) nextRun(kind jobs.Kind) *time.Time {
	handle, ok := s.handles[kind]
	if !ok {
		return nil
	}
	t := handle.NextRun()
	if t.IsZero() {
		return nil
	}
	return &t
}

// catchUpMissed fires a calendar job once when the process comes up shortly
// after its slot. Beyond the grace window the slot is considered missed and
// waits for the next day.
func (s *Scheduler) catchUpMissed() {
	now := time.Now().In(s.location)

	type slot struct {
		kind jobs.Kind
		at   string
		days string
	}
	for _, sl := range []slot{
		{kind: jobs.EodScan, at: s.cfg.EodScanAt, days: weekdays},
		{kind: jobs.HistoryCleanup, at: s.cfg.CleanupAt, days: sundays},
	} {
		hour, min, err := parseClock(sl.at)
		if err != nil {
			continue
		}
		if !dayMatches(now.Weekday(), sl.days) {
			continue
		}
		slotTime := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, s.location)
		late := now.Sub(slotTime)
		if late <= 0 || late > s.cfg.MisfireGrace {
			continue
		}
		s.logger.Info("firing missed slot within grace",
			zap.String("job", string(sl.kind)),
			zap.Duration("late", late))
		go s.fire(sl.kind)
	}
}

func dayMatches(d time.Weekday, days string) bool {
	switch days {
	case everyDay:
		return true
	case weekdays:
		return d >= time.Monday && d <= time.Friday
	case sundays:
		return d == time.Sunday
	}
	return false
}

// cronSpec builds a five-field cron expression from an HH:MM clock and a
// day-of-week range.
func cronSpec(clock, days string) (string, error) {
	hour, min, err := parseClock(clock)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * %s", min, hour, days), nil
}

func parseClock(clock string) (int, int, error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock %q, want HH:MM", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", clock)
	}
	min, err := strconv.Atoi(parts[1])
	if err != nil || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", clock)
	}
	return hour, min, nil
}
