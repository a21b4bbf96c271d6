package annotate

import (
	"testing"
	"time"
)

var msk = time.FixedZone("UTC+03:00", 3*3600)

// 2024-01-01 is a Monday.
var refNow = time.Date(2024, 1, 1, 10, 0, 0, 0, msk)

func TestParseTimeExpression(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		now  time.Time
		want time.Time
		rest string
		kind TimeKind
	}{
		{
			name: "weekday with time",
			text: "Gym friday 18:30",
			want: time.Date(2024, 1, 5, 18, 30, 0, 0, msk),
			rest: "Gym",
			kind: TimeWeekdayAt,
		},
		{
			name: "same weekday rolls a week",
			text: "Standup on monday at 09:15",
			want: time.Date(2024, 1, 8, 9, 15, 0, 0, msk),
			rest: "Standup",
			kind: TimeWeekdayAt,
		},
		{
			name: "same weekday rolls even when time is later today",
			text: "monday 23:00 report",
			want: time.Date(2024, 1, 8, 23, 0, 0, 0, msk),
			rest: "report",
			kind: TimeWeekdayAt,
		},
		{
			name: "weekday alone defaults to nine",
			text: "Pay rent Wednesday",
			want: time.Date(2024, 1, 3, 9, 0, 0, 0, msk),
			rest: "Pay rent",
			kind: TimeWeekday,
		},
		{
			name: "russian accusative weekday",
			text: "Позвонить в пятницу в 12:00",
			want: time.Date(2024, 1, 5, 12, 0, 0, 0, msk),
			rest: "Позвонить",
			kind: TimeWeekdayAt,
		},
		{
			name: "short weekday with time",
			text: "standup fri 10:00",
			want: time.Date(2024, 1, 5, 10, 0, 0, 0, msk),
			rest: "standup",
			kind: TimeWeekdayAt,
		},
		{
			name: "short weekday alone",
			text: "Call grandma sun",
			want: time.Date(2024, 1, 7, 9, 0, 0, 0, msk),
			rest: "Call grandma",
			kind: TimeWeekday,
		},
		{
			name: "short name is not a prefix match",
			text: "Plan month sunday",
			want: time.Date(2024, 1, 7, 9, 0, 0, 0, msk),
			rest: "Plan month",
			kind: TimeWeekday,
		},
		{
			name: "date later this year",
			text: "Dentist 15.03 14:00",
			want: time.Date(2024, 3, 15, 14, 0, 0, 0, msk),
			rest: "Dentist",
			kind: TimeDate,
		},
		{
			name: "date already past rolls to next year",
			text: "Party 01.01 09:00",
			want: time.Date(2025, 1, 1, 9, 0, 0, 0, msk),
			rest: "Party",
			kind: TimeDate,
		},
		{
			name: "leap day found in a later year",
			text: "Birthday 29.02 10:00",
			now:  time.Date(2025, 1, 1, 10, 0, 0, 0, msk),
			want: time.Date(2028, 2, 29, 10, 0, 0, 0, msk),
			rest: "Birthday",
			kind: TimeDate,
		},
		{
			name: "invalid date falls through to bare time",
			text: "Report 31.04 18:00",
			want: time.Date(2024, 1, 1, 18, 0, 0, 0, msk),
			rest: "Report 31.04",
			kind: TimeBare,
		},
		{
			name: "tomorrow",
			text: "Call mom tomorrow 18:00",
			want: time.Date(2024, 1, 2, 18, 0, 0, 0, msk),
			rest: "Call mom",
			kind: TimeTomorrow,
		},
		{
			name: "tomorrow russian with preposition",
			text: "завтра в 7:05 зарядка",
			want: time.Date(2024, 1, 2, 7, 5, 0, 0, msk),
			rest: "зарядка",
			kind: TimeTomorrow,
		},
		{
			name: "today future",
			text: "today 12:00 lunch",
			want: time.Date(2024, 1, 1, 12, 0, 0, 0, msk),
			rest: "lunch",
			kind: TimeToday,
		},
		{
			name: "today past rolls",
			text: "today 08:00 lunch",
			want: time.Date(2024, 1, 2, 8, 0, 0, 0, msk),
			rest: "lunch",
			kind: TimeToday,
		},
		{
			name: "bare time equal to now rolls",
			text: "Check 10:00",
			want: time.Date(2024, 1, 2, 10, 0, 0, 0, msk),
			rest: "Check",
			kind: TimeBare,
		},
		{
			name: "bare with at",
			text: "Meeting at 9:30 with Bob",
			want: time.Date(2024, 1, 2, 9, 30, 0, 0, msk),
			rest: "Meeting with Bob",
			kind: TimeBare,
		},
		{
			name: "marker",
			text: "Water plants @18:00",
			want: time.Date(2024, 1, 1, 18, 0, 0, 0, msk),
			rest: "Water plants",
			kind: TimeMarker,
		},
		{
			name: "marker past rolls",
			text: "@07:30 Run",
			want: time.Date(2024, 1, 2, 7, 30, 0, 0, msk),
			rest: "Run",
			kind: TimeMarker,
		},
		{
			name: "invalid hour is not a time",
			text: "Score was 25:10 @26:00",
			rest: "Score was 25:10 @26:00",
		},
		{
			name: "weekday inside a word is ignored",
			text: "Mondays are hard",
			rest: "Mondays are hard",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			now := tt.now
			if now.IsZero() {
				now = refNow
			}
			m := ResolveTime(tt.text, now)
			if m.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", m.Kind, tt.kind)
			}
			if !m.Due.Equal(tt.want) {
				t.Fatalf("Due = %v, want %v", m.Due, tt.want)
			}
			if m.Rest != tt.rest {
				t.Fatalf("Rest = %q, want %q", m.Rest, tt.rest)
			}
		})
	}
}

func TestParseTimeExpressionNoMatchKeepsText(t *testing.T) {
	t.Parallel()
	text := "  plain   text "
	due, rest, ok := ParseTimeExpression(text, refNow)
	if ok || !due.IsZero() {
		t.Fatalf("ParseTimeExpression found %v, want nothing", due)
	}
	if rest != text {
		t.Fatalf("rest = %q, want unchanged %q", rest, text)
	}
}

func TestResolvedTimesAreInTheFuture(t *testing.T) {
	t.Parallel()
	phrases := []string{
		"sunday 00:00", "monday", "01.01 00:00", "31.12 23:59",
		"tomorrow 00:00", "today 00:00", "00:00", "@00:00", "@23:59",
	}
	nows := []time.Time{
		refNow,
		time.Date(2024, 12, 31, 23, 59, 0, 0, msk),
		time.Date(2024, 2, 29, 0, 0, 0, 0, msk),
	}
	for _, now := range nows {
		for _, p := range phrases {
			due, _, ok := ParseTimeExpression(p, now)
			if !ok {
				t.Fatalf("ParseTimeExpression(%q) at %v found nothing", p, now)
			}
			if !due.After(now) {
				t.Fatalf("ParseTimeExpression(%q) at %v = %v, want after now", p, now, due)
			}
		}
	}
}

func TestResolveTimeUsesLocationOfNow(t *testing.T) {
	t.Parallel()
	due, _, ok := ParseTimeExpression("@18:00", refNow.In(time.UTC).In(msk))
	if !ok {
		t.Fatal("expected a match")
	}
	if _, off := due.Zone(); off != 3*3600 {
		t.Fatalf("offset = %d, want %d", off, 3*3600)
	}
}
