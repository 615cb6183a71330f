package mail

import (
	"context"
	"errors"
	"testing"
)

type stubMailer struct {
	err error
}

func (s *stubMailer) Send(context.Context, Message) error { return s.err }

func TestWithMetricsCountsByKindAndOutcome(t *testing.T) {
	type observed struct {
		kind string
		err  error
	}

	var got []observed
	record := func(kind string, err error) {
		got = append(got, observed{kind, err})
	}

	ok := WithMetrics(&stubMailer{}, record)
	if err := ok.Send(context.Background(), Message{Kind: "invite"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	sendErr := errors.New("relay down")
	failing := WithMetrics(&stubMailer{err: sendErr}, record)
	if err := failing.Send(context.Background(), Message{Kind: "reset"}); !errors.Is(err, sendErr) {
		t.Fatalf("send error must propagate, got %v", err)
	}

	// Messages without a kind are still counted.
	if err := ok.Send(context.Background(), Message{}); err != nil {
		t.Fatalf("send: %v", err)
	}

	want := []observed{
		{"invite", nil},
		{"reset", sendErr},
		{"other", nil},
	}
	if len(got) != len(want) {
		t.Fatalf("observed %d sends, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].kind != want[i].kind || !errors.Is(got[i].err, want[i].err) {
			t.Fatalf("observation %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestMessageConstructorsSetKind(t *testing.T) {
	if k := WelcomeMessage("a@b.c", "", "http://x", "").Kind; k != "welcome" {
		t.Errorf("welcome kind = %q", k)
	}
	if k := InviteMessage("Site", "a@b.c", "http://x", "").Kind; k != "invite" {
		t.Errorf("invite kind = %q", k)
	}
	if k := ResetMessage("Site", "a@b.c", "http://x", "").Kind; k != "reset" {
		t.Errorf("reset kind = %q", k)
	}
}
