package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

var reClock = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseClockField parses "HH:MM". An empty value yields def.
func ParseClockField(path, raw string, defHour, defMinute int) (hour, minute int, err error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return defHour, defMinute, nil
	}
	m := reClock.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("%s: invalid time %q, expected HH:MM", path, raw)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("%s: invalid time %q, expected HH:MM", path, raw)
	}
	return hour, minute, nil
}
