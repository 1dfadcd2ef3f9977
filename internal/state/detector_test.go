package state

import (
	"testing"
	"time"
)

func TestDetectFromChunkEmpty(t *testing.T) {
	if _, ok := DetectFromChunk(""); ok {
		t.Fatal("expected no detection for empty chunk")
	}
	if _, ok := DetectFromChunk("   \n\t"); ok {
		t.Fatal("expected no detection for whitespace-only chunk")
	}
}

func TestDetectFromChunkPriority(t *testing.T) {
	s, ok := DetectFromChunk("still busy but: Do you want to proceed? (y/n)")
	if !ok || s != Waiting {
		t.Fatalf("expected waiting to win over busy fallback, got %v %v", s, ok)
	}
}

func TestDetectFromChunkFallsBackToBusy(t *testing.T) {
	s, ok := DetectFromChunk("compiling package foo...")
	if !ok || s != Busy {
		t.Fatalf("expected busy fallback, got %v %v", s, ok)
	}
}

func TestStatefulDetectorStickyDone(t *testing.T) {
	d := NewDetector()
	s, ok := d.Detect("All tasks complete")
	if !ok || s != Done {
		t.Fatalf("expected done, got %v %v", s, ok)
	}
	s, ok = d.Detect("just some ordinary busy output")
	if !ok || s != Done {
		t.Fatalf("expected sticky done to persist, got %v %v", s, ok)
	}
}

func TestStatefulDetectorBusyDebounce(t *testing.T) {
	d := NewDetector()
	s, ok := d.Detect("compiling")
	if !ok || s != Busy {
		t.Fatalf("expected first busy report, got %v %v", s, ok)
	}
	if _, ok := d.Detect("still compiling"); ok {
		t.Fatal("expected debounced busy to be suppressed")
	}
	time.Sleep(110 * time.Millisecond)
	s, ok = d.Detect("still compiling")
	if !ok || s != Busy {
		t.Fatalf("expected busy report after debounce window, got %v %v", s, ok)
	}
}

func TestCombinedDetectorPhaseDebounce(t *testing.T) {
	c := NewCombinedDetector()
	res := c.Detect("Let me look at the file")
	if !res.HasPhase || res.Phase != PhasePlanning {
		t.Fatalf("expected planning phase, got %+v", res)
	}
	res = c.Detect("Let me check another thing")
	if res.HasPhase {
		t.Fatalf("expected debounced repeat phase to be suppressed, got %+v", res)
	}
}
