package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pockettodo/internal/todo"
	"pockettodo/pkg/tgui"
)

// callbackNS prefixes every inline button this bot emits.
const callbackNS = "todo"

var (
	ErrUnknownAction   = errors.New("bot: unknown action")
	ErrMalformedAction = errors.New("bot: malformed action payload")
)

// Action is a decoded inline-button press. The variant set is closed; the
// handler switches over the concrete types below.
type Action interface {
	// Data encodes the action as Telegram callback data.
	Data() string
	isAction()
}

type (
	Noop       struct{}
	BackToList struct{}
	ToggleAll  struct{}

	ToggleTask struct{ TaskID int64 }
	// MarkDone completes a task from a reminder without ever reopening it.
	MarkDone struct{ TaskID int64 }

	ShowCategories struct{}
	FilterCategory struct{ Name string }

	ShowPriorityMenu struct{}
	PickPriority     struct{ TaskID int64 }
	SetPriority      struct {
		TaskID   int64
		Priority todo.Priority
	}

	ShowReminders struct{}
	ShowReminder  struct{ TaskID int64 }
	// Snooze postpones by Minutes, or to the same time tomorrow when NextDay
	// is set. PrevDue is the unix due shown on the notification, 0 if unknown.
	Snooze struct {
		TaskID  int64
		Minutes int
		NextDay bool
		PrevDue int64
	}
	CustomReminder struct{ TaskID int64 }
	DeleteReminder struct{ TaskID int64 }

	ClearDone struct{ Confirmed bool }
)

func (Noop) isAction()             {}
func (BackToList) isAction()       {}
func (ToggleAll) isAction()        {}
func (ToggleTask) isAction()       {}
func (MarkDone) isAction()         {}
func (ShowCategories) isAction()   {}
func (FilterCategory) isAction()   {}
func (ShowPriorityMenu) isAction() {}
func (PickPriority) isAction()     {}
func (SetPriority) isAction()      {}
func (ShowReminders) isAction()    {}
func (ShowReminder) isAction()     {}
func (Snooze) isAction()           {}
func (CustomReminder) isAction()   {}
func (DeleteReminder) isAction()   {}
func (ClearDone) isAction()        {}

func data(verb, payload string) string { return tgui.Data(callbackNS, verb, payload) }

func itoa64(v int64) string { return strconv.FormatInt(v, 10) }

func (Noop) Data() string             { return data("nop", "") }
func (BackToList) Data() string       { return data("list", "") }
func (ToggleAll) Data() string        { return data("all", "") }
func (a ToggleTask) Data() string     { return data("t", itoa64(a.TaskID)) }
func (a MarkDone) Data() string       { return data("done", itoa64(a.TaskID)) }
func (ShowCategories) Data() string   { return data("cats", "") }
func (a FilterCategory) Data() string { return data("cat", a.Name) }
func (ShowPriorityMenu) Data() string { return data("prio", "") }
func (a PickPriority) Data() string   { return data("pp", itoa64(a.TaskID)) }
func (a SetPriority) Data() string {
	return data("sp", itoa64(a.TaskID)+":"+strconv.Itoa(int(a.Priority)))
}
func (ShowReminders) Data() string  { return data("rems", "") }
func (a ShowReminder) Data() string { return data("rem", itoa64(a.TaskID)) }
func (a Snooze) Data() string {
	if a.NextDay {
		return data("snzt", itoa64(a.TaskID)+":"+itoa64(a.PrevDue))
	}
	return data("snz", itoa64(a.TaskID)+":"+strconv.Itoa(a.Minutes))
}
func (a CustomReminder) Data() string { return data("cr", itoa64(a.TaskID)) }
func (a DeleteReminder) Data() string { return data("dr", itoa64(a.TaskID)) }
func (a ClearDone) Data() string {
	if a.Confirmed {
		return data("clr", "y")
	}
	return data("clr", "")
}

// DecodeAction parses callback data produced by Action.Data.
func DecodeAction(raw string) (Action, error) {
	cd, ok := tgui.ParseData(strings.TrimSpace(raw))
	if !ok || cd.Namespace != callbackNS {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
	p := cd.Payload

	switch cd.Action {
	case "nop":
		return Noop{}, nil
	case "list":
		return BackToList{}, nil
	case "all":
		return ToggleAll{}, nil
	case "cats":
		return ShowCategories{}, nil
	case "prio":
		return ShowPriorityMenu{}, nil
	case "rems":
		return ShowReminders{}, nil
	case "clr":
		return ClearDone{Confirmed: p == "y"}, nil
	case "cat":
		if p == "" {
			return nil, malformed(raw)
		}
		return FilterCategory{Name: p}, nil
	case "t", "done", "pp", "rem", "cr", "dr":
		tid, err := parseID(p)
		if err != nil {
			return nil, malformed(raw)
		}
		return taskAction(cd.Action, tid), nil
	case "sp":
		tid, n, err := parsePair(p)
		if err != nil || !todo.Priority(n).Valid() {
			return nil, malformed(raw)
		}
		return SetPriority{TaskID: tid, Priority: todo.Priority(n)}, nil
	case "snz":
		tid, n, err := parsePair(p)
		if err != nil || n <= 0 {
			return nil, malformed(raw)
		}
		return Snooze{TaskID: tid, Minutes: int(n)}, nil
	case "snzt":
		tid, prev, err := parsePair(p)
		if err != nil || prev < 0 {
			return nil, malformed(raw)
		}
		return Snooze{TaskID: tid, NextDay: true, PrevDue: prev}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, raw)
}

func taskAction(verb string, tid int64) Action {
	switch verb {
	case "t":
		return ToggleTask{TaskID: tid}
	case "done":
		return MarkDone{TaskID: tid}
	case "pp":
		return PickPriority{TaskID: tid}
	case "rem":
		return ShowReminder{TaskID: tid}
	case "cr":
		return CustomReminder{TaskID: tid}
	default:
		return DeleteReminder{TaskID: tid}
	}
}

func malformed(raw string) error { return fmt.Errorf("%w: %q", ErrMalformedAction, raw) }

func parseID(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, ErrMalformedAction
	}
	return v, nil
}

func parsePair(s string) (int64, int64, error) {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, ErrMalformedAction
	}
	tid, err := parseID(a)
	if err != nil {
		return 0, 0, err
	}
	n, err := strconv.ParseInt(b, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return tid, n, nil
}
