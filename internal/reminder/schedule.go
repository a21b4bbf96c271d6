package reminder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultScanEvery is used when reminders.scan.every is empty.
const DefaultScanEvery = "60s"

// cronParser accepts both 5-field and 6-field (with seconds) specs plus descriptors.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ScanSchedule is a parsed scan trigger.
//
// Supported forms:
//   - Interval duration: "60s", "2m"
//   - Interval HH:MM: "00:05" (every five minutes)
//   - Cron: "*/30 * * * * *", "@every 1m", "@hourly"
//
// "cron:" and "every:" prefixes force the interpretation.
type ScanSchedule struct {
	Spec   string        // always a valid robfig/cron spec
	Every  time.Duration // zero for cron specs
	Source string        // "cron" | "duration" | "hhmm"
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

func ParseScanSchedule(raw string) (ScanSchedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		s = DefaultScanEvery
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return cronSchedule(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "every:"):
		return intervalSchedule(strings.TrimSpace(s[len("every:"):]))
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return cronSchedule(s)
	default:
		return intervalSchedule(s)
	}
}

func cronSchedule(expr string) (ScanSchedule, error) {
	if expr == "" {
		return ScanSchedule{}, fmt.Errorf("cron schedule required")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return ScanSchedule{}, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return ScanSchedule{Spec: expr, Source: "cron"}, nil
}

func intervalSchedule(v string) (ScanSchedule, error) {
	src := "duration"
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return ScanSchedule{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		src = "hhmm"
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return ScanSchedule{}, fmt.Errorf(
				"invalid scan schedule %q (use a duration like '60s', HH:MM like '00:05', or a cron spec)", v)
		}
	}
	if d < time.Second {
		return ScanSchedule{}, fmt.Errorf("scan interval must be at least 1s, got %s", d)
	}
	return ScanSchedule{Spec: "@every " + d.String(), Every: d, Source: src}, nil
}

// NextRuns previews the next n trigger times after from.
func (s ScanSchedule) NextRuns(from time.Time, n int) []time.Time {
	sched, err := cronParser.Parse(s.Spec)
	if err != nil || n <= 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	t := from
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		out = append(out, t)
	}
	return out
}
