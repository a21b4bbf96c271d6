package tgui

import (
	"strings"
	"testing"
)

func TestDataRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ns, action, payload string
		want                string
	}{
		{ns: "todo", action: "toggle", payload: "42", want: "todo:toggle:42"},
		{ns: " todo ", action: "list", want: "todo:list"},
		{ns: "todo", action: "snooze", payload: "7:30", want: "todo:snooze:7:30"},
	}
	for _, tt := range tests {
		got := Data(tt.ns, tt.action, tt.payload)
		if got != tt.want {
			t.Fatalf("Data = %q, want %q", got, tt.want)
		}
		cd, ok := ParseData(got)
		if !ok {
			t.Fatalf("ParseData(%q) not ok", got)
		}
		if cd.Namespace != strings.TrimSpace(tt.ns) || cd.Action != tt.action || cd.Payload != tt.payload {
			t.Fatalf("ParseData(%q) = %+v", got, cd)
		}
	}
}

func TestParseDataRejects(t *testing.T) {
	t.Parallel()
	for _, data := range []string{"", "todo", ":x", "todo:", strings.Repeat("a", MaxCallbackDataLen-2) + ":b:c"} {
		if _, ok := ParseData(data); ok {
			t.Fatalf("ParseData(%q) should fail", data)
		}
	}
	if err := CheckData(strings.Repeat("x", MaxCallbackDataLen+1)); err != ErrCallbackDataTooLong {
		t.Fatalf("CheckData err = %v", err)
	}
}

func TestBuilderEscapesHTML(t *testing.T) {
	t.Parallel()
	msg := New().Title("📝", "Tasks <all>").Line("a & b").HTML(S("done")).Build()
	want := "📝 <b>Tasks &lt;all&gt;</b>\na &amp; b\n<s>done</s>"
	if msg.Text != want {
		t.Fatalf("Text = %q, want %q", msg.Text, want)
	}
	if msg.Opt.ParseMode != "HTML" || !msg.Opt.DisablePreview || msg.Opt.ReplyMarkupAdapter != nil {
		t.Fatalf("Opt = %+v", msg.Opt)
	}

	kb := NewInline().Grid(2, nil)
	if New().Inline(kb).Build().Opt.ReplyMarkupAdapter != nil {
		t.Fatal("empty keyboard should not be attached")
	}
	kb.Grid(2, []Button{Btn("a", "x:a"), Btn("b", "x:b"), Btn("c", "x:c")})
	if kb.Len() != 2 {
		t.Fatalf("rows = %d, want 2", kb.Len())
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	if got := TruncRunes("привет мир", 7); got != "привет…" {
		t.Fatalf("TruncRunes = %q", got)
	}
	if got := TruncRunes("short", 10); got != "short" {
		t.Fatalf("TruncRunes = %q", got)
	}
	if got := JoinH(" ", B("a"), "", Esc("<")); got != "<b>a</b> &lt;" {
		t.Fatalf("JoinH = %q", got)
	}
}
