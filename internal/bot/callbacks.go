package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pockettodo/internal/reminder"
	"pockettodo/internal/todo"
	kit "pockettodo/internal/transport"
	logx "pockettodo/pkg/logx"
	"pockettodo/pkg/tgui"
)

func (b *Bot) onCallback(ctx context.Context, req *request, cb *kit.Callback) error {
	act, err := DecodeAction(cb.Data)
	if err != nil {
		req.cmd = "cb:?"
		_ = b.ad.AnswerCallback(ctx, cb.ID, "Unknown button")
		return err
	}
	req.cmd = "cb:" + actionName(act)

	answer, err := b.runAction(ctx, cb, act)
	switch {
	case err == nil:
	case errors.Is(err, todo.ErrNotFound), errors.Is(err, reminder.ErrNoTask):
		answer, err = "This task no longer exists", nil
	default:
		answer = "Something went wrong"
	}
	if aerr := b.ad.AnswerCallback(ctx, cb.ID, answer); aerr != nil {
		req.log.Debug("answer callback failed", logx.Err(aerr))
	}
	return err
}

// actionName is the verb of the encoded action, used in request logs.
func actionName(a Action) string {
	d := strings.TrimPrefix(a.Data(), callbackNS+":")
	name, _, _ := strings.Cut(d, ":")
	return name
}

func (b *Bot) runAction(ctx context.Context, cb *kit.Callback, act Action) (string, error) {
	owner := cb.ChatID
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	now := b.clock.Now()

	switch a := act.(type) {
	case Noop:
		return "", nil

	case BackToList:
		return "", b.editList(ctx, ref, owner, "")

	case FilterCategory:
		return "", b.editList(ctx, ref, owner, a.Name)

	case ToggleTask:
		done, err := b.store.ToggleDone(ctx, a.TaskID, owner)
		if err != nil {
			return "", err
		}
		if err := b.editList(ctx, ref, owner, ""); err != nil {
			return "", err
		}
		if done {
			return "✅ Done", nil
		}
		return "↩️ Reopened", nil

	case ToggleAll:
		tasks, err := b.store.ListTasks(ctx, owner, false)
		if err != nil {
			return "", err
		}
		allDone := len(tasks) > 0
		for _, t := range tasks {
			if !t.Done {
				allDone = false
				break
			}
		}
		if err := b.store.SetAllDone(ctx, owner, !allDone); err != nil {
			return "", err
		}
		return "", b.editList(ctx, ref, owner, "")

	case MarkDone:
		t, err := b.ownedTask(ctx, a.TaskID, owner)
		if err != nil {
			return "", err
		}
		if !t.Done {
			if _, err := b.store.ToggleDone(ctx, t.ID, owner); err != nil {
				return "", err
			}
		}
		msg := tgui.New().HTML(tgui.JoinH(" ", tgui.Esc("✅"), tgui.S(t.Text))).Build()
		return "✅ Done", msg.Edit(ctx, b.ad, ref)

	case ShowCategories:
		tasks, err := b.store.ListTasks(ctx, owner, false)
		if err != nil {
			return "", err
		}
		return "", categoriesView(tasks).Edit(ctx, b.ad, ref)

	case ShowPriorityMenu:
		return "", b.editPriorityMenu(ctx, ref, owner)

	case PickPriority:
		t, err := b.ownedTask(ctx, a.TaskID, owner)
		if err != nil {
			return "", err
		}
		return "", priorityLevelsView(t).Edit(ctx, b.ad, ref)

	case SetPriority:
		if _, err := b.ownedTask(ctx, a.TaskID, owner); err != nil {
			return "", err
		}
		if err := b.store.UpdatePriority(ctx, a.TaskID, a.Priority); err != nil {
			return "", err
		}
		return "Priority: " + a.Priority.String(), b.editPriorityMenu(ctx, ref, owner)

	case ShowReminders:
		tasks, err := b.store.ListWithReminders(ctx, owner)
		if err != nil {
			return "", err
		}
		return "", remindersView(tasks, now).Edit(ctx, b.ad, ref)

	case ShowReminder:
		t, err := b.ownedTask(ctx, a.TaskID, owner)
		if err != nil {
			return "", err
		}
		return "", reminderView(t, now, b.config().Actions).Edit(ctx, b.ad, ref)

	case Snooze:
		t, err := b.ownedTask(ctx, a.TaskID, owner)
		if err != nil {
			return "", err
		}
		sr := reminder.SnoozeRequest{TaskID: t.ID, Minutes: a.Minutes, NextDay: a.NextDay}
		if a.PrevDue > 0 {
			sr.PreviousDue = time.Unix(a.PrevDue, 0)
		}
		due, err := b.snoozer.Snooze(ctx, sr)
		if err != nil {
			return "", err
		}
		return "💤 Snoozed", rescheduledView(t, "💤", due, now).Edit(ctx, b.ad, ref)

	case CustomReminder:
		t, err := b.ownedTask(ctx, a.TaskID, owner)
		if err != nil {
			return "", err
		}
		b.setPending(owner, t.ID)
		prompt := tgui.New().
			HTML(tgui.JoinH(" ", tgui.Esc("🕑 When should I remind you about"), tgui.B(t.Text))).
			Line("Send a time like \"tomorrow 18:00\", \"fri 9:00\" or \"@18:30\". /cancel to stop.").
			Build()
		return "", b.send(ctx, owner, prompt)

	case DeleteReminder:
		t, err := b.ownedTask(ctx, a.TaskID, owner)
		if err != nil {
			return "", err
		}
		if err := b.snoozer.Cancel(ctx, t.ID); err != nil {
			return "", err
		}
		return "🔕 Reminder removed", rescheduledView(t, "🔕", time.Time{}, now).Edit(ctx, b.ad, ref)

	case ClearDone:
		if !a.Confirmed {
			return "", clearConfirmView().Edit(ctx, b.ad, ref)
		}
		n, err := b.store.DeleteCompleted(ctx, owner)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("🧹 Deleted %d", n), b.editList(ctx, ref, owner, "")
	}
	return "", fmt.Errorf("%w: %T", ErrUnknownAction, act)
}

func (b *Bot) editList(ctx context.Context, ref kit.MessageRef, owner int64, filter string) error {
	tasks, err := b.store.ListTasks(ctx, owner, false)
	if err != nil {
		return err
	}
	return listView(tasks, filter).Edit(ctx, b.ad, ref)
}

func (b *Bot) editPriorityMenu(ctx context.Context, ref kit.MessageRef, owner int64) error {
	tasks, err := b.store.ListTasks(ctx, owner, true)
	if err != nil {
		return err
	}
	return priorityMenuView(tasks).Edit(ctx, b.ad, ref)
}

// rescheduledView replaces a reminder message after snooze or removal. A zero
// due means the reminder was removed.
func rescheduledView(t todo.Task, emoji string, due, now time.Time) tgui.Message {
	b := tgui.New().HTML(tgui.JoinH(" ", tgui.Esc(emoji), tgui.B(t.Text)))
	if due.IsZero() {
		b.Line("Reminder removed.")
	} else {
		b.HTML(tgui.JoinH(" ", tgui.Esc("Next reminder:"), tgui.Code(formatDue(due, now))))
	}
	kb := tgui.NewInline().Row(mustBtn("🔔 Reminders", ShowReminders{}), mustBtn("📋 List", BackToList{}))
	return b.Inline(kb).Build()
}
