package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"newshound/internal/timeutil"
)

// CronList accepts either a single cron expression or a list of them.
type CronList []string

func (l *CronList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*l = CronList{single}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := value.Decode(&many); err != nil {
			return err
		}
		*l = CronList(many)
		return nil
	default:
		return fmt.Errorf("cron must be a string or a list of strings")
	}
}

// Config is the `scheduler:` section of config.yaml.
type Config struct {
	Enabled    bool     `yaml:"enabled"`
	Cron       CronList `yaml:"cron"`
	RunOnStart bool     `yaml:"run_on_start"`
	MaxRuns    int      `yaml:"max_runs"` // 0 = unlimited
}

// Scheduler triggers a job on the earliest match across its cron schedules.
type Scheduler struct {
	cfg       Config
	schedules []*CronSchedule
	tz        *timeutil.Helper
}

func New(cfg Config, tz *timeutil.Helper) (*Scheduler, error) {
	var schedules []*CronSchedule
	for _, expr := range cfg.Cron {
		if expr == "" {
			continue
		}
		parsed, err := ParseCron(expr)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, parsed)
	}
	return &Scheduler{cfg: cfg, schedules: schedules, tz: tz}, nil
}

func (s *Scheduler) Enabled() bool { return s.cfg.Enabled }

// nextRun is the earliest trigger across all schedules.
func (s *Scheduler) nextRun(after time.Time) time.Time {
	next := s.schedules[0].NextRun(after)
	for _, schedule := range s.schedules[1:] {
		if candidate := schedule.NextRun(after); candidate.Before(next) {
			next = candidate
		}
	}
	return next
}

func (s *Scheduler) now() time.Time {
	if s.tz != nil {
		return s.tz.Now()
	}
	return time.Now()
}

// Run executes job per the cron timetable until the context is cancelled or
// max_runs is reached. Disabled scheduling runs the job exactly once. Job
// errors are logged; they never stop the loop.
func (s *Scheduler) Run(ctx context.Context, job func(context.Context) error) error {
	if !s.cfg.Enabled {
		slog.Info("scheduler disabled, running once")
		return job(ctx)
	}
	if len(s.schedules) == 0 {
		return fmt.Errorf("scheduler enabled but no cron expression configured")
	}

	runCount := 0
	if s.cfg.RunOnStart {
		slog.Info("running job at startup")
		if err := job(ctx); err != nil {
			slog.Error("startup run failed, continuing on schedule", "error", err)
		}
		runCount++
		if s.reachedMaxRuns(runCount) {
			return nil
		}
	}

	next := s.nextRun(s.now())
	slog.Info("scheduler started", "expressions", len(s.schedules), "next_run", next.Format(time.RFC3339))
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-timer.C:
		}

		runCount++
		slog.Info("cron trigger", "run", runCount, "at", next.Format(time.RFC3339))
		if err := job(ctx); err != nil {
			slog.Error("scheduled run failed, continuing", "error", err)
		}
		if s.reachedMaxRuns(runCount) {
			return nil
		}
		next = s.nextRun(next)
		slog.Info("next run scheduled", "at", next.Format(time.RFC3339))
		timer.Reset(time.Until(next))
	}
}

func (s *Scheduler) reachedMaxRuns(runCount int) bool {
	if s.cfg.MaxRuns > 0 && runCount >= s.cfg.MaxRuns {
		slog.Info("reached max runs, exiting", "max_runs", s.cfg.MaxRuns)
		return true
	}
	return false
}
