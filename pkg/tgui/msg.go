package tgui

import (
	"context"
	"strings"

	kit "pockettodo/internal/transport"

	tele "gopkg.in/telebot.v4"
)

// Message is a rendered UI payload: text plus send options.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

// Send sends the message via the adapter.
func (m Message) Send(ctx context.Context, ad kit.Adapter, to kit.ChatTarget) (kit.MessageRef, error) {
	if m.Opt == nil {
		m.Opt = &kit.SendOptions{}
	}
	return ad.SendText(ctx, to, m.Text, m.Opt)
}

// Edit replaces the text and keyboard of the message referred by ref.
func (m Message) Edit(ctx context.Context, ad kit.Adapter, ref kit.MessageRef) error {
	if m.Opt == nil {
		m.Opt = &kit.SendOptions{}
	}
	return ad.EditText(ctx, ref, m.Text, m.Opt)
}

// Builder assembles a Message line by line.
// Default: ParseMode=HTML, DisablePreview=true.
type Builder struct {
	parseMode      string
	disablePreview bool
	rm             *tele.ReplyMarkup
	lines          []string
}

func New() *Builder {
	return &Builder{parseMode: "HTML", disablePreview: true}
}

func (b *Builder) html() bool { return strings.EqualFold(b.parseMode, "HTML") }

// Inline attaches an inline keyboard. A nil or empty keyboard removes it.
func (b *Builder) Inline(kb *Inline) *Builder {
	if kb == nil || kb.Len() == 0 {
		b.rm = nil
		return b
	}
	b.rm = kb.Markup()
	return b
}

// Title adds a bold title line. Emoji is optional.
func (b *Builder) Title(emoji, title string) *Builder {
	e := strings.TrimSpace(emoji)
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	line := t
	if b.html() {
		line = B(t).String()
	}
	if e != "" {
		line = e + " " + line
	}
	b.lines = append(b.lines, line)
	return b
}

// Line adds a single line, escaping when ParseMode is HTML.
func (b *Builder) Line(s string) *Builder {
	if b.html() {
		s = Esc(s).String()
	}
	b.lines = append(b.lines, s)
	return b
}

// HTML appends already-safe markup.
func (b *Builder) HTML(h H) *Builder {
	b.lines = append(b.lines, h.String())
	return b
}

func (b *Builder) Blank() *Builder {
	b.lines = append(b.lines, "")
	return b
}

func (b *Builder) Empty() bool { return len(b.lines) == 0 }

// Build produces a ready-to-send Message.
func (b *Builder) Build() Message {
	text := strings.Trim(strings.Join(b.lines, "\n"), "\n")
	opt := &kit.SendOptions{ParseMode: b.parseMode, DisablePreview: b.disablePreview}
	if b.rm != nil {
		opt.ReplyMarkupAdapter = b.rm
	}
	return Message{Text: text, Opt: opt}
}
