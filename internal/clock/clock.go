// Package clock supplies the current instant in the bot's canonical fixed UTC offset.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultOffset is the canonical offset used when none is configured (UTC+3).
const DefaultOffset = "+03:00"

type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// ParseOffset parses "+03:00", "-0530", "+3" or "UTC" into a fixed zone.
func ParseOffset(raw string) (*time.Location, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		s = DefaultOffset
	}
	if strings.EqualFold(s, "UTC") || s == "Z" {
		return time.UTC, nil
	}
	sign := 1
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return nil, fmt.Errorf("utc offset %q: must start with + or -", raw)
	}
	body := strings.ReplaceAll(s[1:], ":", "")
	var hh, mm int
	var err error
	switch len(body) {
	case 1, 2:
		hh, err = strconv.Atoi(body)
	case 3, 4:
		hh, err = strconv.Atoi(body[:len(body)-2])
		if err == nil {
			mm, err = strconv.Atoi(body[len(body)-2:])
		}
	default:
		return nil, fmt.Errorf("utc offset %q: bad length", raw)
	}
	if err != nil || hh > 14 || mm > 59 {
		return nil, fmt.Errorf("utc offset %q: out of range", raw)
	}
	secs := sign * (hh*3600 + mm*60)
	return time.FixedZone(formatOffset(secs), secs), nil
}

func formatOffset(secs int) string {
	sign := '+'
	if secs < 0 {
		sign = '-'
		secs = -secs
	}
	return fmt.Sprintf("UTC%c%02d:%02d", sign, secs/3600, secs%3600/60)
}

// System reads the wall clock and converts it to loc.
type System struct {
	loc *time.Location
}

func NewSystem(loc *time.Location) System {
	if loc == nil {
		loc = time.UTC
	}
	return System{loc: loc}
}

func (c System) Now() time.Time           { return time.Now().In(c.loc) }
func (c System) Location() *time.Location { return c.loc }

// Fake is a settable clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(now time.Time) *Fake { return &Fake{now: now} }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Location() *time.Location {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now.Location()
}

func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
