package state

import (
	"sync"
	"time"
)

// busyDebounce is the quiet window for repeated "busy" reports.
const busyDebounce = 100 * time.Millisecond

// phaseDebounce is the quiet window for repeated phase reports of the
// same phase.
const phaseDebounce = 500 * time.Millisecond

// Detector is a stateful SessionState matcher: one instance per
// session. Call Detect once per PTY output chunk. Detect enforces:
//   - done/error are sticky: once observed, every subsequent call
//     returns the same state until a new Detector is built.
//   - waiting/error/done are reported on first match with no debounce.
//   - busy is suppressed if the previous reported state was also busy
//     and less than busyDebounce has elapsed.
type Detector struct {
	mu          sync.Mutex
	sticky      SessionState
	lastState   SessionState
	lastStateAt time.Time
}

// NewDetector returns a fresh Detector with no sticky state.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect reports the state carried by chunk under this detector's
// stickiness/debounce rules, or ("", false) if nothing should be
// reported for this chunk (an empty chunk, or a debounced busy repeat).
func (d *Detector) Detect(chunk string) (SessionState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sticky != "" {
		return d.sticky, true
	}

	s, ok := DetectFromChunk(chunk)
	if !ok {
		return "", false
	}

	now := time.Now()

	switch s {
	case Done, Error:
		d.sticky = s
		d.lastState, d.lastStateAt = s, now
		return s, true
	case Busy:
		if d.lastState == Busy && now.Sub(d.lastStateAt) < busyDebounce {
			return "", false
		}
		d.lastState, d.lastStateAt = Busy, now
		return Busy, true
	default: // Waiting and anything else reported on first match
		d.lastState, d.lastStateAt = s, now
		return s, true
	}
}

// CombinedResult is what CombinedDetector.Detect yields per chunk: a
// (possibly empty) state report and a (possibly empty) phase report.
type CombinedResult struct {
	State    SessionState
	HasState bool
	Phase    AgentPhase
	HasPhase bool
}

// CombinedDetector pairs a stateful SessionState Detector with
// independent phase debouncing.
type CombinedDetector struct {
	state *Detector

	mu          sync.Mutex
	lastPhase   AgentPhase
	lastPhaseAt time.Time
	havePhase   bool
}

// NewCombinedDetector returns a fresh combined detector.
func NewCombinedDetector() *CombinedDetector {
	return &CombinedDetector{state: NewDetector()}
}

// Detect runs both the state and phase matchers over chunk and applies
// each one's own debounce policy independently.
func (c *CombinedDetector) Detect(chunk string) CombinedResult {
	s, sOK := c.state.Detect(chunk)

	c.mu.Lock()
	defer c.mu.Unlock()

	var res CombinedResult
	if sOK {
		res.State, res.HasState = s, true
	}

	phase, pOK := DetectPhaseFromChunk(chunk)
	if !pOK {
		return res
	}

	now := time.Now()
	if !c.havePhase || phase != c.lastPhase || now.Sub(c.lastPhaseAt) >= phaseDebounce {
		c.lastPhase, c.lastPhaseAt, c.havePhase = phase, now, true
		res.Phase, res.HasPhase = phase, true
	}
	return res
}
