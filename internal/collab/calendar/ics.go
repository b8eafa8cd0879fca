package calendar

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// vevent is one parsed VEVENT before recurrence expansion.
type vevent struct {
	UID          string
	Summary      string
	Location     string
	Start        time.Time
	End          time.Time
	AllDay       bool
	RRule        string
	ExDates      []time.Time
	RecurrenceID time.Time
	Cancelled    bool
	Transparent  bool
	Dur          time.Duration
}

func (v vevent) duration() time.Duration {
	if d := v.End.Sub(v.Start); d > 0 {
		return d
	}
	return 0
}

type property struct {
	name   string
	params map[string]string
	value  string
}

// parseICS reads VEVENT components from an iCalendar stream. Times without
// a TZID or UTC suffix are interpreted in def.
func parseICS(r io.Reader, def *time.Location) ([]vevent, error) {
	lines, err := unfold(r)
	if err != nil {
		return nil, err
	}

	var (
		out   []vevent
		cur   *vevent
		depth int // nesting inside the current VEVENT (VALARM etc.)
	)
	for n, line := range lines {
		p, ok := parseProperty(line)
		if !ok {
			continue
		}
		switch p.name {
		case "BEGIN":
			if cur != nil {
				depth++
			} else if strings.EqualFold(p.value, "VEVENT") {
				cur = &vevent{}
			}
			continue
		case "END":
			if cur == nil {
				continue
			}
			if depth > 0 {
				depth--
				continue
			}
			if strings.EqualFold(p.value, "VEVENT") {
				if cur.Start.IsZero() {
					return nil, fmt.Errorf("ics line %d: VEVENT without DTSTART", n+1)
				}
				if cur.End.IsZero() && cur.Dur > 0 {
					cur.End = cur.Start.Add(cur.Dur)
				}
				if cur.End.IsZero() {
					cur.End = cur.Start
					if cur.AllDay {
						cur.End = cur.Start.AddDate(0, 0, 1)
					}
				}
				out = append(out, *cur)
				cur = nil
			}
			continue
		}
		if cur == nil || depth > 0 {
			continue
		}

		switch p.name {
		case "UID":
			cur.UID = p.value
		case "SUMMARY":
			cur.Summary = unescapeText(p.value)
		case "LOCATION":
			cur.Location = unescapeText(p.value)
		case "STATUS":
			cur.Cancelled = strings.EqualFold(p.value, "CANCELLED")
		case "TRANSP":
			cur.Transparent = strings.EqualFold(p.value, "TRANSPARENT")
		case "RRULE":
			cur.RRule = p.value
		case "DTSTART":
			t, allDay, err := parseDateTime(p, def)
			if err != nil {
				return nil, fmt.Errorf("ics line %d: DTSTART: %w", n+1, err)
			}
			cur.Start, cur.AllDay = t, allDay
		case "DTEND":
			t, _, err := parseDateTime(p, def)
			if err != nil {
				return nil, fmt.Errorf("ics line %d: DTEND: %w", n+1, err)
			}
			cur.End = t
		case "DURATION":
			d, err := parseDuration(p.value)
			if err != nil {
				return nil, fmt.Errorf("ics line %d: DURATION: %w", n+1, err)
			}
			cur.Dur = d
		case "EXDATE":
			for _, v := range strings.Split(p.value, ",") {
				t, _, err := parseDateTime(property{params: p.params, value: v}, def)
				if err != nil {
					return nil, fmt.Errorf("ics line %d: EXDATE: %w", n+1, err)
				}
				cur.ExDates = append(cur.ExDates, t)
			}
		case "RECURRENCE-ID":
			t, _, err := parseDateTime(p, def)
			if err != nil {
				return nil, fmt.Errorf("ics line %d: RECURRENCE-ID: %w", n+1, err)
			}
			cur.RecurrenceID = t
		}
	}
	return out, nil
}

// unfold joins RFC 5545 continuation lines (leading space or tab).
func unfold(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	var lines []string
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}

func parseProperty(line string) (property, bool) {
	head, value, ok := strings.Cut(line, ":")
	if !ok {
		return property{}, false
	}
	parts := strings.Split(head, ";")
	p := property{name: strings.ToUpper(strings.TrimSpace(parts[0])), value: value}
	for _, kv := range parts[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if p.params == nil {
			p.params = make(map[string]string, len(parts)-1)
		}
		p.params[strings.ToUpper(k)] = strings.Trim(v, `"`)
	}
	return p, true
}

func parseDateTime(p property, def *time.Location) (t time.Time, allDay bool, err error) {
	v := strings.TrimSpace(p.value)
	loc := def
	if tzid := p.params["TZID"]; tzid != "" {
		if l, lerr := time.LoadLocation(tzid); lerr == nil {
			loc = l
		}
	}
	if p.params["VALUE"] == "DATE" || len(v) == 8 {
		t, err = time.ParseInLocation("20060102", v, loc)
		return t, true, err
	}
	if strings.HasSuffix(v, "Z") {
		t, err = time.Parse("20060102T150405Z", v)
		return t, false, err
	}
	t, err = time.ParseInLocation("20060102T150405", v, loc)
	return t, false, err
}

var reDuration = regexp.MustCompile(`^([+-])?P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// parseDuration handles the RFC 5545 dur-value form (P1D, PT1H30M, P2W).
func parseDuration(s string) (time.Duration, error) {
	m := reDuration.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	units := []time.Duration{7 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, u := range units {
		if m[i+2] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+2])
		d += time.Duration(n) * u
	}
	if m[1] == "-" {
		d = -d
	}
	return d, nil
}

var textEscapes = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

func unescapeText(s string) string { return textEscapes.Replace(s) }
