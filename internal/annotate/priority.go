package annotate

import (
	"regexp"
	"strings"

	"pockettodo/internal/todo"
)

// rePriority matches "!token" or "! token" at the start of text or after whitespace.
var rePriority = regexp.MustCompile(`(?:^|\s)(!\s?([\p{L}\p{N}]+))`)

var prioritySynonyms = map[string]todo.Priority{
	"urgent":    todo.PriorityHigh,
	"high":      todo.PriorityHigh,
	"important": todo.PriorityHigh,
	"asap":      todo.PriorityHigh,
	"critical":  todo.PriorityHigh,
	"1":         todo.PriorityHigh,
	"срочно":    todo.PriorityHigh,
	"высокий":   todo.PriorityHigh,
	"важно":     todo.PriorityHigh,
	"критично":  todo.PriorityHigh,

	"medium":    todo.PriorityMedium,
	"normal":    todo.PriorityMedium,
	"mid":       todo.PriorityMedium,
	"2":         todo.PriorityMedium,
	"средний":   todo.PriorityMedium,
	"обычный":   todo.PriorityMedium,
	"нормально": todo.PriorityMedium,

	"low":     todo.PriorityLow,
	"minor":   todo.PriorityLow,
	"later":   todo.PriorityLow,
	"someday": todo.PriorityLow,
	"3":       todo.PriorityLow,
	"низкий":  todo.PriorityLow,
	"потом":   todo.PriorityLow,
}

// ParsePriority looks at the first priority marker in text. The marker and its token
// are removed even when the token is unknown, in which case the priority is None.
func ParsePriority(text string) (todo.Priority, string) {
	idx := rePriority.FindStringSubmatchIndex(text)
	if idx == nil {
		return todo.PriorityNone, text
	}
	token := strings.ToLower(text[idx[4]:idx[5]])
	p := prioritySynonyms[token]
	return p, collapse(text[:idx[2]] + " " + text[idx[3]:])
}

// PriorityFromToken maps a bare token (without the marker) to a priority.
func PriorityFromToken(token string) (todo.Priority, bool) {
	p, ok := prioritySynonyms[strings.ToLower(strings.TrimSpace(token))]
	return p, ok
}
