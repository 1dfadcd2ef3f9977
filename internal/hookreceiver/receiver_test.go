package hookreceiver

import (
	"testing"
	"time"

	"github.com/azedarach-dev/azedarach/internal/bead"
	"github.com/azedarach-dev/azedarach/internal/state"
	"github.com/azedarach-dev/azedarach/internal/tmux"
)

func TestApplyStatePublishesOnChange(t *testing.T) {
	r := New(nil, nil)
	ch, unsub := r.Subscribe()
	defer unsub()

	r.applyState(tmux.Session{Name: "az-1"}, bead.ID("az-1"), state.Busy)
	select {
	case update := <-ch:
		if update.Status != state.Busy || update.SessionName != "az-1" {
			t.Fatalf("unexpected update: %+v", update)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a published update")
	}
}

func TestApplyStateSuppressesNoOp(t *testing.T) {
	r := New(nil, nil)
	ch, unsub := r.Subscribe()
	defer unsub()

	r.applyState(tmux.Session{Name: "az-1"}, bead.ID("az-1"), state.Busy)
	<-ch
	r.applyState(tmux.Session{Name: "az-1"}, bead.ID("az-1"), state.Busy)

	select {
	case update := <-ch:
		t.Fatalf("expected no second update, got %+v", update)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestApplyVanishedEmitsIdleWithZeroCreatedAt(t *testing.T) {
	r := New(nil, nil)
	ch, unsub := r.Subscribe()
	defer unsub()

	r.applyState(tmux.Session{Name: "az-1"}, bead.ID("az-1"), state.Busy)
	<-ch

	r.applyVanished(bead.ID("az-1"))
	select {
	case update := <-ch:
		if update.Status != state.Idle || update.CreatedAt != 0 {
			t.Fatalf("unexpected vanished update: %+v", update)
		}
		if update.WorktreePath != nil || update.ProjectPath != nil {
			t.Fatalf("expected nil paths on disappearance, got %+v", update)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a published update")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	r := New(nil, nil)
	ch, unsub := r.Subscribe()
	defer unsub()

	for i := 0; i < 40; i++ {
		id := bead.ID("az-1")
		sess := tmux.Session{Name: "az-1"}
		if i%2 == 0 {
			r.applyState(sess, id, state.Busy)
		} else {
			r.applyState(sess, id, state.Waiting)
		}
	}
	if len(ch) == 0 {
		t.Fatal("expected some buffered changes")
	}
}
