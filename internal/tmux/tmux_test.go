package tmux

import (
	"testing"
	"time"
)

func TestParseSessionList(t *testing.T) {
	out := "az-1|1700000000\naz-2|1700000100\n\n"
	got := parseSessionList(out)
	if len(got) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(got))
	}
	if got[0].Name != "az-1" || !got[0].CreatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected first session: %+v", got[0])
	}
	if got[1].Name != "az-2" {
		t.Fatalf("unexpected second session: %+v", got[1])
	}
}

func TestParseSessionListEmpty(t *testing.T) {
	if got := parseSessionList(""); got != nil {
		t.Fatalf("expected nil for empty input, got %+v", got)
	}
}

func TestParseSessionListSkipsMalformedLines(t *testing.T) {
	got := parseSessionList("not-a-valid-line\naz-1|1700000000\n")
	if len(got) != 1 || got[0].Name != "az-1" {
		t.Fatalf("expected only well-formed line parsed, got %+v", got)
	}
}
