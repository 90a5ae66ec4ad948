package schedule

import (
	"context"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func mustParse(t *testing.T, expr string) *CronSchedule {
	t.Helper()
	s, err := ParseCron(expr)
	if err != nil {
		t.Fatalf("ParseCron(%q): %v", expr, err)
	}
	return s
}

func at(t *testing.T, value string) time.Time {
	t.Helper()
	moment, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		t.Fatalf("bad time %q: %v", value, err)
	}
	return moment
}

func TestNextRunEveryFifteenMinutes(t *testing.T) {
	s := mustParse(t, "*/15 * * * *")
	cases := map[string]string{
		"2026-08-22 10:00:00": "2026-08-22 10:15:00",
		"2026-08-22 10:14:59": "2026-08-22 10:15:00",
		"2026-08-22 10:15:00": "2026-08-22 10:30:00", // strictly after
		"2026-08-22 23:59:00": "2026-08-23 00:00:00",
	}
	for after, want := range cases {
		if got := s.NextRun(at(t, after)); !got.Equal(at(t, want)) {
			t.Errorf("NextRun(%s) = %s, want %s", after, got, want)
		}
	}
}

func TestNextRunDailyAtHour(t *testing.T) {
	s := mustParse(t, "30 8 * * *")
	if got := s.NextRun(at(t, "2026-08-22 09:00:00")); !got.Equal(at(t, "2026-08-23 08:30:00")) {
		t.Errorf("NextRun = %s", got)
	}
	if got := s.NextRun(at(t, "2026-08-22 08:00:00")); !got.Equal(at(t, "2026-08-22 08:30:00")) {
		t.Errorf("NextRun = %s", got)
	}
}

func TestNextRunWeekdayNames(t *testing.T) {
	// 2026-08-22 is a Saturday.
	s := mustParse(t, "0 9 * * mon-fri")
	if got := s.NextRun(at(t, "2026-08-22 10:00:00")); !got.Equal(at(t, "2026-08-24 09:00:00")) {
		t.Errorf("mon-fri after Saturday = %s", got)
	}

	s = mustParse(t, "0 12 * * sun")
	if got := s.NextRun(at(t, "2026-08-22 10:00:00")); !got.Equal(at(t, "2026-08-23 12:00:00")) {
		t.Errorf("sunday by name = %s", got)
	}
	// 7 is an alias for Sunday.
	s = mustParse(t, "0 12 * * 7")
	if got := s.NextRun(at(t, "2026-08-22 10:00:00")); !got.Equal(at(t, "2026-08-23 12:00:00")) {
		t.Errorf("sunday as 7 = %s", got)
	}
}

func TestNextRunListsAndRanges(t *testing.T) {
	s := mustParse(t, "0,30 9-11 * * *")
	got := s.NextRun(at(t, "2026-08-22 09:10:00"))
	if !got.Equal(at(t, "2026-08-22 09:30:00")) {
		t.Errorf("list/range = %s", got)
	}
	got = s.NextRun(at(t, "2026-08-22 11:45:00"))
	if !got.Equal(at(t, "2026-08-23 09:00:00")) {
		t.Errorf("wraps to next day = %s", got)
	}
}

func TestParseCronRejectsBadInput(t *testing.T) {
	for _, expr := range []string{
		"* * * *",        // four fields
		"61 * * * *",     // minute out of range
		"* 24 * * *",     // hour out of range
		"* * * * funday", // unknown weekday name
		"*/x * * * *",    // bad step
		"* * 0 * *",      // day below range
	} {
		if _, err := ParseCron(expr); err == nil {
			t.Errorf("ParseCron(%q) should fail", expr)
		}
	}
}

func TestCronListYAML(t *testing.T) {
	var single struct {
		Cron CronList `yaml:"cron"`
	}
	if err := yaml.Unmarshal([]byte(`cron: "*/5 * * * *"`), &single); err != nil {
		t.Fatalf("scalar cron: %v", err)
	}
	if len(single.Cron) != 1 || single.Cron[0] != "*/5 * * * *" {
		t.Errorf("scalar cron = %v", single.Cron)
	}

	var many struct {
		Cron CronList `yaml:"cron"`
	}
	data := "cron:\n  - \"0 8 * * *\"\n  - \"0 20 * * *\"\n"
	if err := yaml.Unmarshal([]byte(data), &many); err != nil {
		t.Fatalf("list cron: %v", err)
	}
	if len(many.Cron) != 2 {
		t.Errorf("list cron = %v", many.Cron)
	}
}

func TestSchedulerDisabledRunsOnce(t *testing.T) {
	s, err := New(Config{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	runs := 0
	if err := s.Run(context.Background(), func(context.Context) error {
		runs++
		return nil
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if runs != 1 {
		t.Errorf("disabled scheduler ran %d times", runs)
	}
}

func TestSchedulerEnabledNeedsCron(t *testing.T) {
	s, err := New(Config{Enabled: true}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Run(context.Background(), func(context.Context) error { return nil }); err == nil {
		t.Error("enabled scheduler without cron must error")
	}
}

func TestSchedulerRunOnStartHonorsMaxRuns(t *testing.T) {
	s, err := New(Config{
		Enabled:    true,
		Cron:       CronList{"* * * * *"},
		RunOnStart: true,
		MaxRuns:    1,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	runs := 0
	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background(), func(context.Context) error {
			runs++
			return nil
		})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not exit after max_runs")
	}
	if runs != 1 {
		t.Errorf("ran %d times, want 1", runs)
	}
}
