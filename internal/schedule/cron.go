// Package schedule runs the pipeline on a minimal cron timetable.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var weekdayNames = map[string]int{
	"sun": 0,
	"mon": 1,
	"tue": 2,
	"wed": 3,
	"thu": 4,
	"fri": 5,
	"sat": 6,
}

// CronSchedule is a parsed five-field cron expression
// (minute hour day-of-month month day-of-week). Supported syntax per field:
// "*", single values, names for weekdays, ranges "a-b", lists "a,b,c" and
// steps "*/n" or "a-b/n". 0 and 7 both mean Sunday.
type CronSchedule struct {
	Expression string
	minutes    map[int]bool
	hours      map[int]bool
	days       map[int]bool
	months     map[int]bool
	weekdays   map[int]bool
}

func ParseCron(expression string) (*CronSchedule, error) {
	parts := strings.Fields(expression)
	if len(parts) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: want 5 fields, got %d", expression, len(parts))
	}
	s := &CronSchedule{Expression: expression}
	var err error
	if s.minutes, err = parseField(parts[0], 0, 59, nil); err != nil {
		return nil, fmt.Errorf("cron %q minute: %w", expression, err)
	}
	if s.hours, err = parseField(parts[1], 0, 23, nil); err != nil {
		return nil, fmt.Errorf("cron %q hour: %w", expression, err)
	}
	if s.days, err = parseField(parts[2], 1, 31, nil); err != nil {
		return nil, fmt.Errorf("cron %q day: %w", expression, err)
	}
	if s.months, err = parseField(parts[3], 1, 12, nil); err != nil {
		return nil, fmt.Errorf("cron %q month: %w", expression, err)
	}
	if s.weekdays, err = parseField(parts[4], 0, 6, weekdayNames); err != nil {
		return nil, fmt.Errorf("cron %q weekday: %w", expression, err)
	}
	return s, nil
}

func parseField(field string, minimum, maximum int, names map[string]int) (map[int]bool, error) {
	values := map[int]bool{}
	tokens := strings.Split(field, ",")
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		base, step, err := extractStep(token)
		if err != nil {
			return nil, err
		}
		start, end, err := extractRange(base, minimum, maximum, names)
		if err != nil {
			return nil, err
		}
		for v := start; v <= end; v += step {
			if minimum <= v && v <= maximum {
				values[v] = true
			}
		}
	}
	if len(values) == 0 {
		for v := minimum; v <= maximum; v++ {
			values[v] = true
		}
	}
	return values, nil
}

func extractStep(token string) (string, int, error) {
	if !strings.Contains(token, "/") {
		return token, 1, nil
	}
	base, stepStr, _ := strings.Cut(token, "/")
	step, err := strconv.Atoi(stepStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid step %q", token)
	}
	if step < 1 {
		step = 1
	}
	if base == "" {
		base = "*"
	}
	return base, step, nil
}

func extractRange(token string, minimum, maximum int, names map[string]int) (int, int, error) {
	if token == "*" {
		return minimum, maximum, nil
	}
	startStr, endStr := token, token
	if strings.Contains(token, "-") {
		startStr, endStr, _ = strings.Cut(token, "-")
	}
	start, err := resolveValue(startStr, minimum, maximum, names)
	if err != nil {
		return 0, 0, err
	}
	end, err := resolveValue(endStr, minimum, maximum, names)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func resolveValue(token string, minimum, maximum int, names map[string]int) (int, error) {
	stripped := strings.ToLower(strings.TrimSpace(token))
	if names != nil {
		if v, ok := names[stripped]; ok {
			return v, nil
		}
	}
	v, err := strconv.Atoi(stripped)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", token)
	}
	// Cron convention: both 0 and 7 mean Sunday.
	if names != nil && v == 7 {
		v = 0
	}
	if v < minimum || v > maximum {
		return 0, fmt.Errorf("value %q out of range [%d,%d]", token, minimum, maximum)
	}
	return v, nil
}

// NextRun returns the first trigger time strictly after the given moment,
// rounded up to a whole minute.
func (s *CronSchedule) NextRun(after time.Time) time.Time {
	candidate := after.Truncate(time.Minute)
	if !candidate.After(after) {
		candidate = candidate.Add(time.Minute)
	}
	for {
		if s.matches(candidate) {
			return candidate
		}
		candidate = candidate.Add(time.Minute)
	}
}

func (s *CronSchedule) matches(moment time.Time) bool {
	return s.minutes[moment.Minute()] &&
		s.hours[moment.Hour()] &&
		s.days[moment.Day()] &&
		s.months[int(moment.Month())] &&
		s.weekdays[int(moment.Weekday())]
}
