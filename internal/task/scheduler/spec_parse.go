package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reClock = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseCronSpec builds a CronSpec from config strings.
//
//   - at: "HH:MM" (24h)
//   - days: "" / "*" / "daily", "weekdays", "weekends", or a comma list of
//     names, numbers (0=Sunday) and ranges such as "mon-fri" or "1-5"
func ParseCronSpec(at, days, tz string) (CronSpec, error) {
	h, m, err := ParseClock(at)
	if err != nil {
		return CronSpec{}, err
	}
	wd, err := ParseWeekdays(days)
	if err != nil {
		return CronSpec{}, err
	}
	spec := CronSpec{Hour: h, Minute: m, Weekdays: wd, Timezone: strings.TrimSpace(tz)}
	return spec, spec.Validate()
}

func ParseClock(s string) (hour, minute int, err error) {
	mm := reClock.FindStringSubmatch(s)
	if mm == nil {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	hour, _ = strconv.Atoi(mm[1])
	minute, _ = strconv.Atoi(mm[2])
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return hour, minute, nil
}

// ParseWeekdays returns nil for every day.
func ParseWeekdays(s string) ([]time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "*", "daily", "everyday":
		return nil, nil
	case "weekdays":
		return append([]time.Weekday(nil), Weekdays...), nil
	case "weekends":
		return []time.Weekday{time.Saturday, time.Sunday}, nil
	}

	seen := map[time.Weekday]bool{}
	var out []time.Weekday
	add := func(d time.Weekday) {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := parseWeekday(lo)
		if err != nil {
			return nil, err
		}
		if !isRange {
			add(from)
			continue
		}
		to, err := parseWeekday(hi)
		if err != nil {
			return nil, err
		}
		if to < from {
			return nil, fmt.Errorf("invalid weekday range %q", part)
		}
		for d := from; d <= to; d++ {
			add(d)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("invalid weekdays %q", s)
	}
	return out, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.TrimSpace(s)
	if d, ok := weekdayNames[s]; ok {
		return d, nil
	}
	if len(s) > 3 {
		if d, ok := weekdayNames[s[:3]]; ok {
			return d, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 6 {
		return 0, fmt.Errorf("invalid weekday %q", s)
	}
	return time.Weekday(n), nil
}
