package bot

import (
	"fmt"
	"strconv"
	"time"

	"pockettodo/internal/annotate"
	"pockettodo/internal/reminder"
	"pockettodo/internal/todo"
	"pockettodo/pkg/tgui"
)

const buttonTextRunes = 48

// btn builds a button for an action. It returns false when the encoded
// action does not fit into callback data.
func btn(text string, a Action) (tgui.Button, bool) {
	d := a.Data()
	if tgui.CheckData(d) != nil {
		return tgui.Button{}, false
	}
	return tgui.Btn(text, d), true
}

func mustBtn(text string, a Action) tgui.Button {
	b, _ := btn(text, a)
	return b
}

// formatDue renders t relative to now in now's location.
func formatDue(t, now time.Time) string {
	t = t.In(now.Location())
	y1, m1, d1 := now.Date()
	today := time.Date(y1, m1, d1, 0, 0, 0, 0, now.Location())
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())
	switch day.Sub(today) {
	case 0:
		return "today " + t.Format("15:04")
	case 24 * time.Hour:
		return "tomorrow " + t.Format("15:04")
	}
	if t.Year() != now.Year() {
		return t.Format("Mon 02.01.2006 15:04")
	}
	return t.Format("Mon 02.01 15:04")
}

// taskLabel is the one-line button text for a task.
func taskLabel(t todo.Task) string {
	s := "☐ "
	if t.Done {
		s = "✅ "
	}
	if e := t.Priority.Emoji(); e != "" {
		s += e + " "
	}
	if t.HasReminder() {
		s += "🔔 "
	}
	return tgui.TruncRunes(s+t.Text, buttonTextRunes)
}

// listView is the main task list. An empty filter shows every task.
func listView(tasks []todo.Task, filter string) tgui.Message {
	b := tgui.New()
	kb := tgui.NewInline()

	shown := tasks
	if filter != "" {
		shown = nil
		for _, t := range tasks {
			if annotate.HasCategory(t.Text, filter) {
				shown = append(shown, t)
			}
		}
		b.Title("#️⃣", "#"+filter)
	} else {
		b.Title("📋", "Your tasks")
	}

	if len(shown) == 0 {
		b.Line("No tasks yet. Send me a message to add one.")
		if filter != "" {
			kb.Row(mustBtn("⬅️ Back", ShowCategories{}))
		}
		return b.Inline(kb).Build()
	}

	done := 0
	for _, t := range shown {
		if t.Done {
			done++
		}
	}
	b.Line(fmt.Sprintf("%d of %d done. Tap a task to toggle it.", done, len(shown)))

	if filter == "" {
		kb.Row(mustBtn(fmt.Sprintf("🔄 %d/%d done", done, len(shown)), ToggleAll{}))
		kb.Row(
			mustBtn("#️⃣ Categories", ShowCategories{}),
			mustBtn("🔢 Priority", ShowPriorityMenu{}),
			mustBtn("🔔 Reminders", ShowReminders{}),
		)
	}
	for _, t := range shown {
		kb.Row(mustBtn(taskLabel(t), ToggleTask{TaskID: t.ID}))
	}
	if filter != "" {
		kb.Row(mustBtn("⬅️ Categories", ShowCategories{}), mustBtn("📋 All tasks", BackToList{}))
	} else if done > 0 {
		kb.Row(mustBtn("🧹 Delete completed", ClearDone{}))
	}
	return b.Inline(kb).Build()
}

func categoriesView(tasks []todo.Task) tgui.Message {
	texts := make([]string, 0, len(tasks))
	for _, t := range tasks {
		texts = append(texts, t.Text)
	}
	counts := annotate.CountCategories(texts)

	b := tgui.New().Title("#️⃣", "Categories")
	kb := tgui.NewInline()
	if len(counts) == 0 {
		b.Line("No categories yet. Add #tags to your tasks.")
	} else {
		b.Line("Pick a category to filter the list.")
		btns := make([]tgui.Button, 0, len(counts))
		for _, c := range counts {
			if x, ok := btn(fmt.Sprintf("#%s (%d)", c.Name, c.Count), FilterCategory{Name: c.Name}); ok {
				btns = append(btns, x)
			}
		}
		kb.Grid(2, btns)
	}
	kb.Row(mustBtn("⬅️ Back", BackToList{}))
	return b.Inline(kb).Build()
}

func priorityMenuView(tasks []todo.Task) tgui.Message {
	b := tgui.New().Title("🔢", "Priority")
	kb := tgui.NewInline()
	open := 0
	for _, t := range tasks {
		if t.Done {
			continue
		}
		open++
		kb.Row(mustBtn(taskLabel(t), PickPriority{TaskID: t.ID}))
	}
	if open == 0 {
		b.Line("No open tasks.")
	} else {
		b.Line("Pick a task.")
	}
	kb.Row(mustBtn("⬅️ Back", BackToList{}))
	return b.Inline(kb).Build()
}

func priorityLevelsView(t todo.Task) tgui.Message {
	b := tgui.New().Title("🔢", "Priority").Line(t.Text)
	kb := tgui.NewInline()
	for _, p := range []todo.Priority{todo.PriorityHigh, todo.PriorityMedium, todo.PriorityLow} {
		label := p.Emoji() + " " + p.String()
		if p == t.Priority {
			label += " ✓"
		}
		kb.Row(mustBtn(label, SetPriority{TaskID: t.ID, Priority: p}))
	}
	kb.Row(mustBtn("✖️ none", SetPriority{TaskID: t.ID, Priority: todo.PriorityNone}))
	kb.Row(mustBtn("⬅️ Back", ShowPriorityMenu{}))
	return b.Inline(kb).Build()
}

func remindersView(tasks []todo.Task, now time.Time) tgui.Message {
	b := tgui.New().Title("🔔", "Reminders")
	kb := tgui.NewInline()
	if len(tasks) == 0 {
		b.Line("No reminders set. Add a time to a task, e.g. \"call mom tomorrow 18:00\".")
	}
	for _, t := range tasks {
		when := formatDue(t.Due, now)
		b.HTML(tgui.JoinH(" ", tgui.Code(when), tgui.Esc(t.Text)))
		kb.Row(mustBtn(tgui.TruncRunes("🔔 "+when+" · "+t.Text, buttonTextRunes), ShowReminder{TaskID: t.ID}))
	}
	kb.Row(mustBtn("⬅️ Back", BackToList{}))
	return b.Inline(kb).Build()
}

// snoozeButtons renders reminder actions into one keyboard. prevDue anchors
// the next-day snooze.
func snoozeButtons(kb *tgui.Inline, taskID int64, prevDue time.Time, actions []reminder.NoticeAction) {
	var unix int64
	if !prevDue.IsZero() {
		unix = prevDue.Unix()
	}
	var snooze, rest []tgui.Button
	for _, a := range actions {
		switch a.Kind {
		case reminder.ActionDone:
			rest = append(rest, mustBtn("✅ Done", MarkDone{TaskID: taskID}))
		case reminder.ActionSnoozeMinutes:
			snooze = append(snooze, mustBtn("💤 "+minutesLabel(a.Minutes), Snooze{TaskID: taskID, Minutes: a.Minutes}))
		case reminder.ActionSnoozeTomorrow:
			snooze = append(snooze, mustBtn("🌅 Tomorrow", Snooze{TaskID: taskID, NextDay: true, PrevDue: unix}))
		case reminder.ActionCustom:
			rest = append(rest, mustBtn("🕑 Other time", CustomReminder{TaskID: taskID}))
		case reminder.ActionDeleteReminder:
			rest = append(rest, mustBtn("🔕 Remove", DeleteReminder{TaskID: taskID}))
		}
	}
	kb.Row(snooze...)
	kb.Grid(3, rest)
}

func minutesLabel(m int) string {
	if m >= 60 && m%60 == 0 {
		return strconv.Itoa(m/60) + " h"
	}
	return strconv.Itoa(m) + " min"
}

func reminderView(t todo.Task, now time.Time, actions []reminder.NoticeAction) tgui.Message {
	b := tgui.New().Title("🔔", "Reminder").Line(t.Text)
	kb := tgui.NewInline()
	if t.HasReminder() {
		b.HTML(tgui.JoinH(" ", tgui.Esc("Due"), tgui.Code(formatDue(t.Due, now))))
		snoozeButtons(kb, t.ID, t.Due, actions)
	} else {
		b.Line("No reminder set.")
	}
	kb.Row(mustBtn("⬅️ Back", ShowReminders{}))
	return b.Inline(kb).Build()
}

// noticeMessage is what a due reminder looks like in chat.
func noticeMessage(n reminder.Notice, now time.Time) tgui.Message {
	b := tgui.New().Title("⏰", "Reminder").Line(n.Text)
	if !n.Due.IsZero() {
		b.HTML(tgui.I("due " + formatDue(n.Due, now)))
	}
	kb := tgui.NewInline()
	snoozeButtons(kb, n.TaskID, n.Due, n.Actions)
	return b.Inline(kb).Build()
}

func clearConfirmView() tgui.Message {
	kb := tgui.ConfirmInline(
		mustBtn("🧹 Delete", ClearDone{Confirmed: true}),
		mustBtn("Cancel", BackToList{}),
	)
	return tgui.New().Title("🧹", "Delete completed tasks?").Inline(kb).Build()
}

// addedView confirms tasks created from one submission.
func addedView(tasks []todo.Task, now time.Time) tgui.Message {
	b := tgui.New()
	if len(tasks) == 1 {
		b.Title("➕", "Task added")
	} else {
		b.Title("➕", fmt.Sprintf("%d tasks added", len(tasks)))
	}
	for _, t := range tasks {
		parts := []tgui.H{tgui.Esc("•")}
		if e := t.Priority.Emoji(); e != "" {
			parts = append(parts, tgui.Raw(e))
		}
		parts = append(parts, tgui.Esc(t.Text))
		if t.HasReminder() {
			parts = append(parts, tgui.I("🔔 "+formatDue(t.Due, now)))
		}
		b.HTML(tgui.JoinH(" ", parts...))
	}
	kb := tgui.NewInline().Row(mustBtn("📋 Show list", BackToList{}))
	return b.Inline(kb).Build()
}

func statusView(s reminder.ScannerSnapshot, now time.Time) tgui.Message {
	b := tgui.New().Title("📊", "Status")
	b.Line(fmt.Sprintf("scanner: %s, schedule %s", s.State, s.Schedule))
	if !s.Next.IsZero() {
		b.Line("next scan: " + formatDue(s.Next, now))
	}
	b.Line(fmt.Sprintf("scans: %d (skipped %d, failed %d)", s.Scans, s.Skipped, s.Failures))
	d := s.Dispatch
	b.Line(fmt.Sprintf("delivered: %d, retried: %d", d.Delivered, d.Retried))
	b.Line(fmt.Sprintf("undeliverable: %d, dead-lettered: %d, superseded: %d", d.Permanent, d.DeadLettered, d.Superseded))
	if s.Last != nil {
		line := fmt.Sprintf("last scan: %s, %d due, took %s", formatDue(s.Last.Started, now), s.Last.Due, s.Last.Took.Round(time.Millisecond))
		if s.Last.Err != "" {
			line += ", error: " + s.Last.Err
		}
		b.Line(line)
	}
	return b.Build()
}
