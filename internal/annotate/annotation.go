// Package annotate turns one line of free text into task metadata: a due time,
// a priority and #categories.
package annotate

import (
	"regexp"
	"strings"
	"time"

	"pockettodo/internal/clock"
	"pockettodo/internal/todo"
)

// Annotation is the metadata inferred from one input line.
type Annotation struct {
	CleanText  string
	Due        time.Time // zero when no time phrase was found
	DueKind    TimeKind
	Priority   todo.Priority
	Categories []string
}

func (a Annotation) HasDue() bool { return !a.Due.IsZero() }

// Parser annotates lines relative to an injected clock.
type Parser struct {
	clock clock.Clock
}

func NewParser(c clock.Clock) *Parser {
	return &Parser{clock: c}
}

// Parse strips the priority marker first, then the time phrase, then reads categories.
func (p *Parser) Parse(line string) Annotation {
	return ParseAt(line, p.clock.Now())
}

// ParseAt is Parse with an explicit reference instant.
func ParseAt(line string, now time.Time) Annotation {
	prio, rest := ParsePriority(strings.TrimSpace(line))
	tm := ResolveTime(rest, now)
	rest = tm.Rest
	return Annotation{
		CleanText:  collapse(rest),
		Due:        tm.Due,
		DueKind:    tm.Kind,
		Priority:   prio,
		Categories: ExtractCategories(rest),
	}
}

var reEntrySep = regexp.MustCompile(`[;\n]`)

// SplitEntries splits a submission into independent task lines.
func SplitEntries(input string) []string {
	parts := reEntrySep.Split(input, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
