package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pockettodo/internal/annotate"
	"pockettodo/internal/reminder"
	"pockettodo/internal/todo"
	kit "pockettodo/internal/transport"
	"pockettodo/pkg/tgui"
)

type command struct {
	name   string
	desc   string
	hidden bool
	handle func(ctx context.Context, m *kit.Message, args string) error
}

func (b *Bot) commands() []command {
	return []command{
		{name: "start", desc: "Welcome and quick guide", handle: b.cmdStart},
		{name: "help", desc: "How to write tasks", handle: b.cmdHelp},
		{name: "list", desc: "Show your tasks", handle: b.cmdList},
		{name: "add", desc: "Add tasks: /add buy milk 18:00", handle: b.cmdAdd},
		{name: "reminders", desc: "Upcoming reminders", handle: b.cmdReminders},
		{name: "categories", desc: "Tasks by #category", handle: b.cmdCategories},
		{name: "clear", desc: "Delete completed tasks", handle: b.cmdClear},
		{name: "cancel", desc: "Cancel the current prompt", handle: b.cmdCancel},
		{name: "status", hidden: true, handle: b.cmdStatus},
	}
}

func (b *Bot) menu() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(b.cmds))
	for _, c := range b.commands() {
		if c.hidden {
			continue
		}
		out = append(out, kit.BotCommand{Command: c.name, Description: c.desc})
	}
	return out
}

// parseCommand splits "/name@bot args". ok is false for plain text.
func parseCommand(text string) (name, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

func (b *Bot) onMessage(ctx context.Context, req *request, m *kit.Message) error {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return nil
	}

	var err error
	if name, args, ok := parseCommand(text); ok {
		req.cmd = "/" + name
		b.clearPendingUnless(name, m.ChatID)
		cmd, found := b.cmds[name]
		if !found {
			return b.reply(ctx, m.ChatID, "Unknown command. See /help.")
		}
		err = cmd.handle(ctx, m, args)
	} else if taskID, ok := b.pendingFor(m.ChatID); ok {
		req.cmd = "custom_time"
		err = b.applyCustomTime(ctx, m.ChatID, taskID, text)
	} else {
		req.cmd = "add"
		err = b.addTasks(ctx, m.ChatID, text)
	}
	if err != nil && ctx.Err() == nil {
		_ = b.reply(ctx, m.ChatID, "⚠️ Something went wrong. Please try again.")
	}
	return err
}

// clearPendingUnless drops an armed prompt on any command but /cancel, which
// reports it.
func (b *Bot) clearPendingUnless(name string, chatID int64) {
	if name != "cancel" {
		b.clearPending(chatID)
	}
}

const helpHTML = `<b>Add a task</b> by sending any text. One task per line, or separate them with <code>;</code>.

<b>Due time</b> is read from the text:
<code>18:00</code>, <code>@9:30</code>, <code>today 18:00</code>, <code>tomorrow 9:00</code>,
<code>fri 10:00</code>, <code>monday</code>, <code>24.12 19:00</code>.
Russian keywords work too: <code>завтра 9:00</code>, <code>в пятницу 10:00</code>.

<b>Priority</b>: <code>!high</code>, <code>!urgent</code>, <code>!1</code> · <code>!medium</code>, <code>!2</code> · <code>!low</code>, <code>!3</code>.

<b>Categories</b>: any <code>#tag</code> in the text.

Example: <code>call mom tomorrow 18:00 !urgent #family</code>`

func (b *Bot) helpMessage() tgui.Message {
	tb := tgui.New().HTML(tgui.Raw(helpHTML)).Blank()
	for _, c := range b.commands() {
		if c.hidden {
			continue
		}
		tb.HTML(tgui.JoinH(" ", tgui.Esc("/"+c.name), tgui.I(c.desc)))
	}
	return tb.Build()
}

func (b *Bot) cmdStart(ctx context.Context, m *kit.Message, _ string) error {
	if err := b.send(ctx, m.ChatID, tgui.New().Title("👋", "Hi! I keep your to-do list and remind you on time.").Build()); err != nil {
		return err
	}
	return b.send(ctx, m.ChatID, b.helpMessage())
}

func (b *Bot) cmdHelp(ctx context.Context, m *kit.Message, _ string) error {
	return b.send(ctx, m.ChatID, b.helpMessage())
}

func (b *Bot) cmdList(ctx context.Context, m *kit.Message, _ string) error {
	tasks, err := b.store.ListTasks(ctx, m.ChatID, false)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	return b.send(ctx, m.ChatID, listView(tasks, ""))
}

func (b *Bot) cmdAdd(ctx context.Context, m *kit.Message, args string) error {
	if args == "" {
		return b.reply(ctx, m.ChatID, "Send the task after the command, e.g. /add buy milk 18:00")
	}
	return b.addTasks(ctx, m.ChatID, args)
}

func (b *Bot) cmdReminders(ctx context.Context, m *kit.Message, _ string) error {
	tasks, err := b.store.ListWithReminders(ctx, m.ChatID)
	if err != nil {
		return fmt.Errorf("list reminders: %w", err)
	}
	return b.send(ctx, m.ChatID, remindersView(tasks, b.clock.Now()))
}

func (b *Bot) cmdCategories(ctx context.Context, m *kit.Message, _ string) error {
	tasks, err := b.store.ListTasks(ctx, m.ChatID, false)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	return b.send(ctx, m.ChatID, categoriesView(tasks))
}

func (b *Bot) cmdClear(ctx context.Context, m *kit.Message, _ string) error {
	return b.send(ctx, m.ChatID, clearConfirmView())
}

func (b *Bot) cmdCancel(ctx context.Context, m *kit.Message, _ string) error {
	if b.clearPending(m.ChatID) {
		return b.reply(ctx, m.ChatID, "Cancelled.")
	}
	return b.reply(ctx, m.ChatID, "Nothing to cancel.")
}

func (b *Bot) cmdStatus(ctx context.Context, m *kit.Message, _ string) error {
	if admin := b.config().AdminChatID; admin != 0 && m.ChatID != admin {
		return b.reply(ctx, m.ChatID, "Unknown command. See /help.")
	}
	if b.status == nil {
		return b.reply(ctx, m.ChatID, "Scheduler is not running.")
	}
	return b.send(ctx, m.ChatID, statusView(b.status.Snapshot(), b.clock.Now()))
}

// addTasks turns every entry of a submission into its own task.
func (b *Bot) addTasks(ctx context.Context, chatID int64, text string) error {
	var created []todo.Task
	for _, entry := range annotate.SplitEntries(text) {
		ann := b.parser.Parse(entry)
		// A line that is only markers keeps its own words as the task text.
		if ann.CleanText == "" {
			ann.CleanText = entry
		}
		nt := todo.NewTask{OwnerID: chatID, Text: ann.CleanText, Priority: ann.Priority, Due: ann.Due}
		id, err := b.store.CreateTask(ctx, nt)
		if err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		created = append(created, todo.Task{ID: id, OwnerID: chatID, Text: nt.Text, Priority: nt.Priority, Due: nt.Due})
	}
	if len(created) == 0 {
		return b.reply(ctx, chatID, "Nothing to add. Send the task text, e.g. \"buy milk 18:00\".")
	}
	return b.send(ctx, chatID, addedView(created, b.clock.Now()))
}

// applyCustomTime answers a "send me the new time" prompt. Unparseable input
// keeps the prompt armed.
func (b *Bot) applyCustomTime(ctx context.Context, chatID, taskID int64, text string) error {
	now := b.clock.Now()
	when, _, ok := annotate.ParseTimeExpression(text, now)
	if !ok {
		return b.reply(ctx, chatID, "I could not find a time in that. Try \"tomorrow 18:00\", \"fri 9:00\" or \"@18:30\". /cancel to stop.")
	}
	due, err := b.snoozer.SetCustom(ctx, taskID, when)
	switch {
	case errors.Is(err, reminder.ErrDueNotInFuture):
		return b.reply(ctx, chatID, "That time has already passed. Send a later one or /cancel.")
	case errors.Is(err, reminder.ErrNoTask):
		b.clearPending(chatID)
		return b.reply(ctx, chatID, "That task no longer exists.")
	case err != nil:
		return fmt.Errorf("set custom reminder: %w", err)
	}
	b.clearPending(chatID)
	kb := tgui.NewInline().Row(mustBtn("🔔 Reminders", ShowReminders{}))
	return b.send(ctx, chatID, tgui.New().
		HTML(tgui.JoinH(" ", tgui.Esc("🔔 Reminder set for"), tgui.B(formatDue(due, now)))).
		Inline(kb).
		Build())
}
