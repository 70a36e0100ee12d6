package triggerware

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Schedule tells the server when to re-evaluate a polled query. The two
// concrete kinds are a single trigger instant (TimeSchedule) and a cron-like
// calendar pattern (CalendarSchedule); ScheduleList combines several of
// either.
type Schedule interface {
	scheduleValue() any
}

// TimeSchedule is the integer schedule form: a single trigger instant. The
// value is sent to the server as-is.
type TimeSchedule int64

func (t TimeSchedule) scheduleValue() any { return int64(t) }

// CalendarSchedule polls at calendar instants, crontab style. Each field
// accepts "*", a single value, a range "a-b", or a comma-separated list;
// an empty field means "*". Timezone defaults to UTC.
type CalendarSchedule struct {
	Minutes  string
	Hours    string
	Days     string
	Months   string
	Weekdays string
	Timezone string
}

var timezoneRe = regexp.MustCompile(`^[A-Za-z]+(?:_[A-Za-z]+)*(?:/[A-Za-z]+(?:_[A-Za-z]+)*)*$`)

// Validate checks every field against its legal range.
func (c CalendarSchedule) Validate() error {
	checks := []struct {
		name     string
		value    string
		min, max int
	}{
		{"minutes", c.Minutes, 0, 59},
		{"hours", c.Hours, 0, 23},
		{"days", c.Days, 1, 31},
		{"months", c.Months, 1, 12},
		{"weekdays", c.Weekdays, 0, 6},
	}
	for _, ck := range checks {
		if err := validateCalendarField(ck.value, ck.min, ck.max); err != nil {
			return fmt.Errorf("calendar schedule %s: %w", ck.name, err)
		}
	}
	if c.Timezone != "" && !timezoneRe.MatchString(c.Timezone) {
		return fmt.Errorf("calendar schedule timezone: %q is not a valid zone name", c.Timezone)
	}
	return nil
}

func (c CalendarSchedule) scheduleValue() any {
	return map[string]any{
		"minutes":  orStar(c.Minutes),
		"hours":    orStar(c.Hours),
		"days":     orStar(c.Days),
		"months":   orStar(c.Months),
		"weekdays": orStar(c.Weekdays),
		"timezone": orDefault(c.Timezone, "UTC"),
	}
}

func orStar(s string) string { return orDefault(s, "*") }

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func validateCalendarField(field string, min, max int) error {
	if field == "" || field == "*" {
		return nil
	}
	for _, part := range strings.Split(field, ",") {
		lo, hi, ok := strings.Cut(part, "-")
		if err := validateCalendarValue(lo, min, max); err != nil {
			return err
		}
		if ok {
			if err := validateCalendarValue(hi, min, max); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateCalendarValue(s string, min, max int) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%q is not a number", s)
	}
	if n < min || n > max {
		return fmt.Errorf("%d is outside %d..%d", n, min, max)
	}
	return nil
}

// ScheduleList combines several schedules; the server polls at the union of
// their instants.
type ScheduleList []Schedule

func (l ScheduleList) scheduleValue() any {
	vals := make([]any, len(l))
	for i, s := range l {
		vals[i] = s.scheduleValue()
	}
	return vals
}

func validateSchedule(s Schedule) error {
	switch x := s.(type) {
	case CalendarSchedule:
		return x.Validate()
	case ScheduleList:
		for _, member := range x {
			if err := validateSchedule(member); err != nil {
				return err
			}
		}
	}
	return nil
}
