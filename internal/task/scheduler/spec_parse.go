package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a normalized schedule.
//
// Accepted forms:
//   - cron: "*/5 * * * *", "0 */2 * * *", "@hourly", "@every 5m"
//   - a bare minute step: "*/5" (every 5 minutes)
//   - interval duration: "15m", "1h30m"
//   - interval HH:MM: "00:15", "02:30"
//
// "cron:" forces cron parsing; "interval:" and "every:" force an interval.
type ParsedSpec struct {
	Kind  SpecKind
	Cron  string
	Every time.Duration
}

// String is the canonical form handed to cron.
func (p ParsedSpec) String() string {
	if p.Kind == SpecInterval {
		return "@every " + p.Every.String()
	}
	return p.Cron
}

var (
	reHHMM       = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)
	reMinuteOnly = regexp.MustCompile(`^\*/\d{1,2}$`)
	parser       = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// ParseSchedule validates raw and returns its normalized form.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	forceCron, forceInterval := false, false
	for _, p := range []string{"cron:", "interval:", "every:"} {
		if strings.HasPrefix(low, p) {
			s = strings.TrimSpace(s[len(p):])
			forceCron, forceInterval = p == "cron:", p != "cron:"
			break
		}
	}
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required after prefix in %q", raw)
	}

	var ps ParsedSpec
	switch {
	case forceCron:
		ps = ParsedSpec{Kind: SpecCron, Cron: strings.Join(strings.Fields(s), " ")}
	case forceInterval && !reHHMM.MatchString(s):
		d, err := time.ParseDuration(s)
		if err != nil {
			return ParsedSpec{}, fmt.Errorf("invalid interval %q", raw)
		}
		ps = ParsedSpec{Kind: SpecInterval, Every: d}
	case reMinuteOnly.MatchString(s):
		ps = ParsedSpec{Kind: SpecCron, Cron: s + " * * * *"}
	case strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t"):
		ps = ParsedSpec{Kind: SpecCron, Cron: strings.Join(strings.Fields(s), " ")}
	case reHHMM.MatchString(s):
		m := reHHMM.FindStringSubmatch(s)
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return ParsedSpec{}, fmt.Errorf("invalid minutes in %q", raw)
		}
		ps = ParsedSpec{Kind: SpecInterval, Every: time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute}
	default:
		d, err := time.ParseDuration(s)
		if err != nil {
			return ParsedSpec{}, fmt.Errorf("invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '00:15', or a duration like '15m')", raw)
		}
		ps = ParsedSpec{Kind: SpecInterval, Every: d}
	}

	if ps.Kind == SpecInterval {
		if ps.Every < time.Minute {
			return ParsedSpec{}, fmt.Errorf("interval %s is shorter than one minute", ps.Every)
		}
		return ps, nil
	}
	if _, err := parser.Parse(ps.Cron); err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid cron %q: %w", ps.Cron, err)
	}
	return ps, nil
}
