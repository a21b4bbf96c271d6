package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"pockettodo/internal/annotate"
	"pockettodo/internal/clock"
	"pockettodo/internal/reminder"
	"pockettodo/internal/storage"
	"pockettodo/internal/todo"
	kit "pockettodo/internal/transport"
	logx "pockettodo/pkg/logx"
)

var msk = time.FixedZone("UTC+03:00", 3*3600)

var errBlocked = errors.New("forbidden: bot was blocked by the user")

type sentMsg struct {
	chatID int64
	text   string
	opt    *kit.SendOptions
}

type editMsg struct {
	ref  kit.MessageRef
	text string
	opt  *kit.SendOptions
}

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []sentMsg
	edits   []editMsg
	answers []string
	menu    []kit.BotCommand
	sendErr error
	nextID  int
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return kit.MessageRef{}, f.sendErr
	}
	f.nextID++
	f.sent = append(f.sent, sentMsg{chatID: to.ChatID, text: text, opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editMsg{ref: ref, text: text, opt: opt})
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeAdapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menu = cmds
	return nil
}

func (f *fakeAdapter) IsPermanent(err error) bool { return errors.Is(err, errBlocked) }

func (f *fakeAdapter) lastSent(t *testing.T) sentMsg {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAdapter) lastEdit(t *testing.T) editMsg {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		t.Fatalf("nothing edited")
	}
	return f.edits[len(f.edits)-1]
}

func (f *fakeAdapter) lastAnswer(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.answers) == 0 {
		t.Fatalf("callback not answered")
	}
	return f.answers[len(f.answers)-1]
}

type status struct{ snap reminder.ScannerSnapshot }

func (s status) Snapshot() reminder.ScannerSnapshot { return s.snap }

type fixture struct {
	ad    *fakeAdapter
	store *storage.Memory
	clock *clock.Fake
	bot   *Bot
}

const chat = int64(100)

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		ad:    &fakeAdapter{},
		store: storage.NewMemory(msk),
		clock: clock.NewFake(time.Date(2024, 1, 1, 10, 0, 0, 0, msk)),
	}
	f.bot = New(f.ad, Deps{
		Store:   f.store,
		Parser:  annotate.NewParser(f.clock),
		Snoozer: reminder.NewSnoozer(f.store, nil, f.clock, logx.Nop()),
		Clock:   f.clock,
		Status:  status{snap: reminder.ScannerSnapshot{State: "idle", Schedule: "@every 1m0s", Scans: 4}},
		Log:     logx.Nop(),
	}, cfg)
	return f
}

func (f *fixture) message(chatID int64, text string) {
	f.bot.HandleUpdate(context.Background(), kit.Update{
		Kind:    kit.UpdateMessage,
		Message: &kit.Message{ID: 1, ChatID: chatID, FromID: chatID, Text: text},
	})
}

func (f *fixture) press(chatID int64, a Action) {
	f.bot.HandleUpdate(context.Background(), kit.Update{
		Kind:     kit.UpdateCallback,
		Callback: &kit.Callback{ID: "cb", ChatID: chatID, FromID: chatID, MessageID: 42, Data: a.Data()},
	})
}

func (f *fixture) create(t *testing.T, nt todo.NewTask) int64 {
	t.Helper()
	id, err := f.store.CreateTask(context.Background(), nt)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return id
}

func (f *fixture) task(t *testing.T, id int64) todo.Task {
	t.Helper()
	tk, err := f.store.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTask(%d): %v", id, err)
	}
	return tk
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in         string
		name, args string
		ok         bool
	}{
		{in: "/list", name: "list", ok: true},
		{in: "/LIST@pocket_bot", name: "list", ok: true},
		{in: "/add buy milk  18:00", name: "add", args: "buy milk  18:00", ok: true},
		{in: "buy milk", ok: false},
		{in: "/", ok: false},
	}
	for _, tt := range tests {
		name, args, ok := parseCommand(tt.in)
		if name != tt.name || args != tt.args || ok != tt.ok {
			t.Fatalf("parseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)", tt.in, name, args, ok, tt.name, tt.args, tt.ok)
		}
	}
}

func TestFreeTextCreatesAnnotatedTasks(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	f.message(chat, "Call mom tomorrow 18:00 !urgent #family\nBuy milk 09:00; ;")

	tasks, err := f.store.ListTasks(context.Background(), chat, false)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}
	// High priority sorts first.
	call, milk := tasks[0], tasks[1]
	if call.Text != "Call mom #family" || call.Priority != todo.PriorityHigh {
		t.Fatalf("first task = %+v", call)
	}
	if want := time.Date(2024, 1, 2, 18, 0, 0, 0, msk); !call.Due.Equal(want) {
		t.Fatalf("call due = %v, want %v", call.Due, want)
	}
	if want := time.Date(2024, 1, 2, 9, 0, 0, 0, msk); milk.Text != "Buy milk" || !milk.Due.Equal(want) {
		t.Fatalf("second task = %+v, want due %v", milk, want)
	}
	if got := f.ad.lastSent(t).text; !strings.Contains(got, "2 tasks added") {
		t.Fatalf("reply = %q", got)
	}
}

func TestMarkerOnlyEntryKeepsItsText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		text string
		due  time.Time
		prio todo.Priority
	}{
		{in: "18:00", text: "18:00", due: time.Date(2024, 1, 1, 18, 0, 0, 0, msk)},
		{in: "tomorrow 18:00", text: "tomorrow 18:00", due: time.Date(2024, 1, 2, 18, 0, 0, 0, msk)},
		{in: "!urgent", text: "!urgent", prio: todo.PriorityHigh},
	}
	for _, tt := range tests {
		f := newFixture(t, Config{})
		f.message(chat, tt.in)
		tasks, err := f.store.ListTasks(context.Background(), chat, false)
		if err != nil {
			t.Fatalf("ListTasks: %v", err)
		}
		if len(tasks) != 1 {
			t.Fatalf("%q: tasks = %d, want 1", tt.in, len(tasks))
		}
		got := tasks[0]
		if got.Text != tt.text || !got.Due.Equal(tt.due) || got.Priority != tt.prio {
			t.Fatalf("%q: task = %+v, want text %q due %v priority %v", tt.in, got, tt.text, tt.due, tt.prio)
		}
	}
}

func TestBlankSubmissionAddsNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	f.message(chat, " ; \n ;")
	if got := f.ad.lastSent(t).text; !strings.Contains(got, "Nothing to add") {
		t.Fatalf("reply = %q", got)
	}
}

func TestStoreFailureRepliesWithError(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	f.store.FailNext = errors.New("disk full")
	f.message(chat, "buy milk")
	if got := f.ad.lastSent(t).text; !strings.Contains(got, "Something went wrong") {
		t.Fatalf("reply = %q", got)
	}
}

func TestToggleTaskEditsList(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	id := f.create(t, todo.NewTask{OwnerID: chat, Text: "buy milk"})

	f.press(chat, ToggleTask{TaskID: id})
	if !f.task(t, id).Done {
		t.Fatalf("task not done after toggle")
	}
	if got := f.ad.lastAnswer(t); got != "✅ Done" {
		t.Fatalf("answer = %q", got)
	}
	e := f.ad.lastEdit(t)
	if e.ref.MessageID != 42 || !strings.Contains(e.text, "1 of 1 done") {
		t.Fatalf("edit = %+v", e)
	}

	f.press(chat, ToggleTask{TaskID: id})
	if f.task(t, id).Done {
		t.Fatalf("task still done after second toggle")
	}
}

func TestToggleAllFlipsEveryTask(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	a := f.create(t, todo.NewTask{OwnerID: chat, Text: "a"})
	b := f.create(t, todo.NewTask{OwnerID: chat, Text: "b"})

	f.press(chat, ToggleAll{})
	if !f.task(t, a).Done || !f.task(t, b).Done {
		t.Fatalf("toggle all did not complete every task")
	}
	f.press(chat, ToggleAll{})
	if f.task(t, a).Done || f.task(t, b).Done {
		t.Fatalf("toggle all did not reopen every task")
	}
}

func TestForeignTaskLooksMissing(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	due := time.Date(2024, 1, 1, 12, 0, 0, 0, msk)
	id := f.create(t, todo.NewTask{OwnerID: chat, Text: "secret", Due: due})

	f.press(chat+1, Snooze{TaskID: id, Minutes: 30})
	if got := f.ad.lastAnswer(t); got != "This task no longer exists" {
		t.Fatalf("answer = %q", got)
	}
	if got := f.task(t, id).Due; !got.Equal(due) {
		t.Fatalf("due = %v, want untouched %v", got, due)
	}
}

func TestSnoozeTomorrowAnchorsToShownDue(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	due := time.Date(2024, 1, 2, 9, 0, 0, 0, msk)
	id := f.create(t, todo.NewTask{OwnerID: chat, Text: "standup", Due: due})
	f.clock.Set(time.Date(2024, 1, 2, 9, 0, 30, 0, msk))

	f.press(chat, Snooze{TaskID: id, NextDay: true, PrevDue: due.Unix()})
	if want := time.Date(2024, 1, 3, 9, 0, 0, 0, msk); !f.task(t, id).Due.Equal(want) {
		t.Fatalf("due = %v, want %v", f.task(t, id).Due, want)
	}
	if got := f.ad.lastAnswer(t); got != "💤 Snoozed" {
		t.Fatalf("answer = %q", got)
	}
	if e := f.ad.lastEdit(t); !strings.Contains(e.text, "tomorrow 09:00") {
		t.Fatalf("edit = %q", e.text)
	}
}

func TestSnoozeMinutesAnchorsToNow(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	id := f.create(t, todo.NewTask{OwnerID: chat, Text: "tea", Due: time.Date(2024, 1, 1, 9, 0, 0, 0, msk)})

	f.press(chat, Snooze{TaskID: id, Minutes: 30})
	if want := time.Date(2024, 1, 1, 10, 30, 0, 0, msk); !f.task(t, id).Due.Equal(want) {
		t.Fatalf("due = %v, want %v", f.task(t, id).Due, want)
	}
}

func TestMarkDoneNeverReopens(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	id := f.create(t, todo.NewTask{OwnerID: chat, Text: "pay rent"})
	f.press(chat, MarkDone{TaskID: id})
	f.press(chat, MarkDone{TaskID: id})
	if !f.task(t, id).Done {
		t.Fatalf("task reopened by a second Done press")
	}
	if e := f.ad.lastEdit(t); !strings.Contains(e.text, "<s>pay rent</s>") {
		t.Fatalf("edit = %q", e.text)
	}
}

func TestDeleteReminderKeepsTask(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	id := f.create(t, todo.NewTask{OwnerID: chat, Text: "gym", Due: time.Date(2024, 1, 1, 19, 0, 0, 0, msk)})
	f.press(chat, DeleteReminder{TaskID: id})
	tk := f.task(t, id)
	if tk.HasReminder() || tk.Done {
		t.Fatalf("task = %+v, want open without reminder", tk)
	}
}

func TestSetPriority(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	id := f.create(t, todo.NewTask{OwnerID: chat, Text: "report"})
	f.press(chat, PickPriority{TaskID: id})
	if e := f.ad.lastEdit(t); !strings.Contains(e.text, "report") {
		t.Fatalf("levels view = %q", e.text)
	}
	f.press(chat, SetPriority{TaskID: id, Priority: todo.PriorityMedium})
	if got := f.task(t, id).Priority; got != todo.PriorityMedium {
		t.Fatalf("priority = %v, want medium", got)
	}
	if got := f.ad.lastAnswer(t); got != "Priority: medium" {
		t.Fatalf("answer = %q", got)
	}
}

func TestCustomTimeFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	id := f.create(t, todo.NewTask{OwnerID: chat, Text: "dentist"})

	f.press(chat, CustomReminder{TaskID: id})
	if got := f.ad.lastSent(t).text; !strings.Contains(got, "dentist") {
		t.Fatalf("prompt = %q", got)
	}

	f.message(chat, "whenever")
	if got := f.ad.lastSent(t).text; !strings.Contains(got, "could not find a time") {
		t.Fatalf("reply = %q", got)
	}
	if f.task(t, id).HasReminder() {
		t.Fatalf("reminder set from unparseable text")
	}

	f.message(chat, "tomorrow 18:00")
	if want := time.Date(2024, 1, 2, 18, 0, 0, 0, msk); !f.task(t, id).Due.Equal(want) {
		t.Fatalf("due = %v, want %v", f.task(t, id).Due, want)
	}
	if _, armed := f.bot.pendingFor(chat); armed {
		t.Fatalf("prompt still armed")
	}

	// The next plain message is a new task again.
	f.message(chat, "buy flowers")
	tasks, _ := f.store.ListTasks(context.Background(), chat, false)
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}
}

func TestCustomPromptExpires(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	id := f.create(t, todo.NewTask{OwnerID: chat, Text: "dentist"})
	f.press(chat, CustomReminder{TaskID: id})
	f.clock.Advance(pendingTTL + time.Minute)
	if _, armed := f.bot.pendingFor(chat); armed {
		t.Fatalf("prompt survived its TTL")
	}
}

func TestCancelDisarmsPrompt(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	id := f.create(t, todo.NewTask{OwnerID: chat, Text: "dentist"})
	f.press(chat, CustomReminder{TaskID: id})
	f.message(chat, "/cancel")
	if got := f.ad.lastSent(t).text; got != "Cancelled." {
		t.Fatalf("reply = %q", got)
	}
	if _, armed := f.bot.pendingFor(chat); armed {
		t.Fatalf("prompt still armed")
	}
}

func TestClearDoneNeedsConfirmation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	id := f.create(t, todo.NewTask{OwnerID: chat, Text: "old"})
	keep := f.create(t, todo.NewTask{OwnerID: chat, Text: "new"})
	if _, err := f.store.ToggleDone(context.Background(), id, chat); err != nil {
		t.Fatalf("ToggleDone: %v", err)
	}

	f.press(chat, ClearDone{})
	if _, err := f.store.GetTask(context.Background(), id); err != nil {
		t.Fatalf("task deleted before confirmation: %v", err)
	}
	f.press(chat, ClearDone{Confirmed: true})
	if _, err := f.store.GetTask(context.Background(), id); !errors.Is(err, todo.ErrNotFound) {
		t.Fatalf("GetTask after clear err = %v, want ErrNotFound", err)
	}
	f.task(t, keep)
	if got := f.ad.lastAnswer(t); got != "🧹 Deleted 1" {
		t.Fatalf("answer = %q", got)
	}
}

func TestUnknownCallbackIsAnswered(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	f.bot.HandleUpdate(context.Background(), kit.Update{
		Kind:     kit.UpdateCallback,
		Callback: &kit.Callback{ID: "cb", ChatID: chat, Data: "legacy_toggle_5"},
	})
	if got := f.ad.lastAnswer(t); got != "Unknown button" {
		t.Fatalf("answer = %q", got)
	}
}

func TestStartPublishesMenu(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	if err := f.bot.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	names := map[string]bool{}
	for _, c := range f.ad.menu {
		names[c.Command] = true
	}
	for _, want := range []string{"start", "help", "list", "reminders", "categories", "clear"} {
		if !names[want] {
			t.Fatalf("menu missing /%s: %+v", want, f.ad.menu)
		}
	}
	if names["status"] {
		t.Fatalf("hidden /status in menu")
	}
}

func TestStatusIsAdminOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{AdminChatID: 7})
	f.message(chat, "/status")
	if got := f.ad.lastSent(t).text; strings.Contains(got, "Status") {
		t.Fatalf("non-admin got status: %q", got)
	}
	f.message(7, "/status")
	if got := f.ad.lastSent(t).text; !strings.Contains(got, "scans: 4") {
		t.Fatalf("admin status = %q", got)
	}
}

func TestDeliveryOutcomes(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 2, 9, 0, 30, 0, msk)
	n := reminder.Notice{
		TaskID:  5,
		ChatID:  chat,
		Text:    "standup",
		Due:     time.Date(2024, 1, 2, 9, 0, 0, 0, msk),
		Actions: reminder.DispatchConfig{}.Actions(),
	}
	tests := []struct {
		name string
		err  error
		want reminder.Outcome
	}{
		{name: "delivered", want: reminder.OutcomeDelivered},
		{name: "blocked", err: errBlocked, want: reminder.OutcomePermanentlyFailed},
		{name: "transient", err: errors.New("telegram: Too Many Requests (429)"), want: reminder.OutcomeRetry},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ad := &fakeAdapter{sendErr: tt.err}
			got, err := NewDelivery(ad, clock.NewFake(now)).Deliver(context.Background(), n)
			if got != tt.want {
				t.Fatalf("Deliver outcome = %v, want %v", got, tt.want)
			}
			if (err != nil) != (tt.err != nil) {
				t.Fatalf("Deliver err = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestNoticeCarriesSnoozeButtons(t *testing.T) {
	t.Parallel()
	due := time.Date(2024, 1, 2, 9, 0, 0, 0, msk)
	msg := noticeMessage(reminder.Notice{
		TaskID:  5,
		Text:    "standup <daily>",
		Due:     due,
		Actions: reminder.DispatchConfig{}.Actions(),
	}, time.Date(2024, 1, 2, 9, 0, 30, 0, msk))

	if !strings.Contains(msg.Text, "standup &lt;daily&gt;") || !strings.Contains(msg.Text, "today 09:00") {
		t.Fatalf("text = %q", msg.Text)
	}
	rm, ok := msg.Opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok {
		t.Fatalf("markup = %T", msg.Opt.ReplyMarkupAdapter)
	}
	var actions []Action
	for _, row := range rm.InlineKeyboard {
		for _, b := range row {
			a, err := DecodeAction(b.Data)
			if err != nil {
				t.Fatalf("button %q: %v", b.Text, err)
			}
			actions = append(actions, a)
		}
	}
	want := []Action{
		Snooze{TaskID: 5, Minutes: 30},
		Snooze{TaskID: 5, Minutes: 60},
		Snooze{TaskID: 5, NextDay: true, PrevDue: due.Unix()},
		MarkDone{TaskID: 5},
		CustomReminder{TaskID: 5},
		DeleteReminder{TaskID: 5},
	}
	if len(actions) != len(want) {
		t.Fatalf("buttons = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("button %d = %#v, want %#v", i, actions[i], want[i])
		}
	}
}

func TestFormatDue(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, msk)
	tests := []struct {
		due  time.Time
		want string
	}{
		{due: time.Date(2024, 1, 1, 18, 0, 0, 0, msk), want: "today 18:00"},
		{due: time.Date(2024, 1, 2, 9, 5, 0, 0, msk), want: "tomorrow 09:05"},
		{due: time.Date(2024, 1, 5, 9, 0, 0, 0, msk), want: "Fri 05.01 09:00"},
		{due: time.Date(2025, 3, 1, 9, 0, 0, 0, msk), want: "Sat 01.03.2025 09:00"},
		// Instants are rendered in the location of now.
		{due: time.Date(2024, 1, 1, 21, 30, 0, 0, time.UTC), want: "tomorrow 00:30"},
	}
	for _, tt := range tests {
		if got := formatDue(tt.due, now); got != tt.want {
			t.Fatalf("formatDue(%v) = %q, want %q", tt.due, got, tt.want)
		}
	}
}
