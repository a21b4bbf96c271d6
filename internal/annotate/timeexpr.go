package annotate

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// TimeKind names the phrase class that produced a due time.
type TimeKind int

const (
	TimeNone TimeKind = iota
	TimeWeekdayAt
	TimeWeekday
	TimeDate
	TimeTomorrow
	TimeToday
	TimeBare
	TimeMarker
)

func (k TimeKind) String() string {
	switch k {
	case TimeWeekdayAt:
		return "weekday_at"
	case TimeWeekday:
		return "weekday"
	case TimeDate:
		return "date"
	case TimeTomorrow:
		return "tomorrow"
	case TimeToday:
		return "today"
	case TimeBare:
		return "bare"
	case TimeMarker:
		return "marker"
	default:
		return "none"
	}
}

// DefaultWeekdayHour is the time of day used for a weekday without an explicit time.
const DefaultWeekdayHour = 9

// maxYearProbe bounds the search for the next valid DD.MM (covers 29.02).
const maxYearProbe = 8

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
	"mon":       time.Monday,
	"tue":       time.Tuesday,
	"wed":       time.Wednesday,
	"thu":       time.Thursday,
	"fri":       time.Friday,
	"sat":       time.Saturday,
	"sun":       time.Sunday,

	"понедельник": time.Monday,
	"вторник":     time.Tuesday,
	"среда":       time.Wednesday,
	"среду":       time.Wednesday,
	"четверг":     time.Thursday,
	"пятница":     time.Friday,
	"пятницу":     time.Friday,
	"суббота":     time.Saturday,
	"субботу":     time.Saturday,
	"воскресенье": time.Sunday,
}

const (
	clockPart = `(\d{1,2}):(\d{2})`
	atPart    = `(?:(?:at|в)\s+)?`
	onPart    = `(?:(?:on|во|в)\s+)?`
)

var (
	weekdayAlt = buildAlternation(weekdayNames)

	reWeekdayAt = regexp.MustCompile(`(?i)` + onPart + `(` + weekdayAlt + `)\s+` + atPart + clockPart)
	reWeekday   = regexp.MustCompile(`(?i)` + onPart + `(` + weekdayAlt + `)`)
	reDate      = regexp.MustCompile(`(?i)(\d{1,2})\.(\d{1,2})\s+` + atPart + clockPart)
	reTomorrow  = regexp.MustCompile(`(?i)(?:tomorrow|завтра)\s+` + atPart + clockPart)
	reToday     = regexp.MustCompile(`(?i)(?:today|сегодня)\s+` + atPart + clockPart)
	reBare      = regexp.MustCompile(`(?i)` + atPart + clockPart)
	reMarker    = regexp.MustCompile(`@` + clockPart)
)

// buildAlternation joins keys longest first so prefixes never shadow full words.
func buildAlternation(m map[string]time.Weekday) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := utf8.RuneCountInString(keys[i]), utf8.RuneCountInString(keys[j])
		if a != b {
			return a > b
		}
		return keys[i] < keys[j]
	})
	return strings.Join(keys, "|")
}

// TimeMatch is the result of resolving a time phrase.
type TimeMatch struct {
	Due  time.Time
	Kind TimeKind
	Rest string
}

// ParseTimeExpression resolves the first recognized time phrase in text relative to now.
// The returned instant is in now's location. On no match it returns the zero time, text
// unchanged and false.
func ParseTimeExpression(text string, now time.Time) (time.Time, string, bool) {
	m := ResolveTime(text, now)
	if m.Kind == TimeNone {
		return time.Time{}, text, false
	}
	return m.Due, m.Rest, true
}

// ResolveTime is ParseTimeExpression with the matched phrase class reported.
func ResolveTime(text string, now time.Time) TimeMatch {
	now = now.Truncate(time.Second)
	for _, r := range resolvers {
		due, start, end, ok := r.find(text, now)
		if !ok {
			continue
		}
		return TimeMatch{Due: due, Kind: r.kind, Rest: collapse(text[:start] + " " + text[end:])}
	}
	return TimeMatch{Rest: text}
}

type resolver struct {
	kind TimeKind
	re   *regexp.Regexp
	// lead/trail reject a match when the neighbouring rune belongs to a larger token.
	lead, trail func(r rune) bool
	resolve     func(g []string, now time.Time) (time.Time, bool)
}

var resolvers = []resolver{
	{kind: TimeWeekdayAt, re: reWeekdayAt, lead: isTagOrWord, trail: isWordOrColon, resolve: resolveWeekdayAt},
	{kind: TimeWeekday, re: reWeekday, lead: isTagOrWord, trail: isWordRune, resolve: resolveWeekday},
	{kind: TimeDate, re: reDate, lead: isNumberPart, trail: isWordOrColon, resolve: resolveDate},
	{kind: TimeTomorrow, re: reTomorrow, lead: isTagOrWord, trail: isWordOrColon, resolve: resolveTomorrow},
	{kind: TimeToday, re: reToday, lead: isTagOrWord, trail: isWordOrColon, resolve: resolveToday},
	{kind: TimeBare, re: reBare, lead: isBareLead, trail: isWordOrColon, resolve: resolveToday},
	{kind: TimeMarker, re: reMarker, lead: nil, trail: isWordOrColon, resolve: resolveToday},
}

// find returns the leftmost match that passes the boundary checks and resolves to a
// valid time. A rejected match restarts the search one rune later so overlapping
// candidates are still seen.
func (r resolver) find(text string, now time.Time) (time.Time, int, int, bool) {
	pos := 0
	for pos < len(text) {
		idx := r.re.FindStringSubmatchIndex(text[pos:])
		if idx == nil {
			break
		}
		base := pos
		start, end := base+idx[0], base+idx[1]
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + max(size, 1)

		if r.lead != nil && start > 0 {
			prev, _ := utf8.DecodeLastRuneInString(text[:start])
			if r.lead(prev) {
				continue
			}
		}
		if r.trail != nil && end < len(text) {
			next, _ := utf8.DecodeRuneInString(text[end:])
			if r.trail(next) {
				continue
			}
		}
		groups := make([]string, 0, len(idx)/2-1)
		for i := 2; i < len(idx); i += 2 {
			if idx[i] < 0 {
				groups = append(groups, "")
				continue
			}
			groups = append(groups, text[base+idx[i]:base+idx[i+1]])
		}
		if due, ok := r.resolve(groups, now); ok {
			return due, start, end, true
		}
	}
	return time.Time{}, 0, 0, false
}

func isWordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' }

func isWordOrColon(r rune) bool { return isWordRune(r) || r == ':' }

// isTagOrWord also rejects a phrase that is the body of a #category.
func isTagOrWord(r rune) bool { return isWordRune(r) || r == '#' }

func isNumberPart(r rune) bool { return isTagOrWord(r) || r == '.' }

func isBareLead(r rune) bool { return isNumberPart(r) || r == ':' || r == '@' }

func parseClock(hh, mm string) (int, int, bool) {
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

func at(day time.Time, h, m int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

// nextWeekday returns the date of the next wd strictly after now's date.
func nextWeekday(now time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return now.AddDate(0, 0, days)
}

func resolveWeekdayAt(g []string, now time.Time) (time.Time, bool) {
	wd, ok := weekdayNames[strings.ToLower(g[0])]
	if !ok {
		return time.Time{}, false
	}
	h, m, ok := parseClock(g[1], g[2])
	if !ok {
		return time.Time{}, false
	}
	return at(nextWeekday(now, wd), h, m), true
}

func resolveWeekday(g []string, now time.Time) (time.Time, bool) {
	wd, ok := weekdayNames[strings.ToLower(g[0])]
	if !ok {
		return time.Time{}, false
	}
	return at(nextWeekday(now, wd), DefaultWeekdayHour, 0), true
}

func resolveDate(g []string, now time.Time) (time.Time, bool) {
	day, err1 := strconv.Atoi(g[0])
	month, err2 := strconv.Atoi(g[1])
	if err1 != nil || err2 != nil || month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	h, m, ok := parseClock(g[2], g[3])
	if !ok {
		return time.Time{}, false
	}
	for y := now.Year(); y <= now.Year()+maxYearProbe; y++ {
		t := time.Date(y, time.Month(month), day, h, m, 0, 0, now.Location())
		// time.Date normalizes 31.04 into 01.05; treat that as invalid for this year.
		if t.Day() != day || int(t.Month()) != month {
			continue
		}
		if t.After(now) {
			return t, true
		}
	}
	return time.Time{}, false
}

func resolveTomorrow(g []string, now time.Time) (time.Time, bool) {
	h, m, ok := parseClock(g[0], g[1])
	if !ok {
		return time.Time{}, false
	}
	return at(now.AddDate(0, 0, 1), h, m), true
}

// resolveToday places the clock time today, or tomorrow when it is not after now.
func resolveToday(g []string, now time.Time) (time.Time, bool) {
	h, m, ok := parseClock(g[0], g[1])
	if !ok {
		return time.Time{}, false
	}
	t := at(now, h, m)
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t, true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
