// Package state implements the heuristic half of agent state
// inference: a pure, priority-ordered pattern matcher over PTY output
// chunks, plus a stateful wrapper that adds stickiness and debouncing.
// It never touches a subprocess or the filesystem.
package state

import (
	"regexp"
	"strings"
)

// SessionState is the finite set of states a session can be observed
// in via pattern matching (as distinct from the authoritative hook
// signal in package hookreceiver).
type SessionState string

const (
	Idle         SessionState = "idle"
	Initializing SessionState = "initializing"
	Busy         SessionState = "busy"
	Waiting      SessionState = "waiting"
	Done         SessionState = "done"
	Error        SessionState = "error"
	Paused       SessionState = "paused"
)

// AgentPhase is orthogonal to SessionState and debounced independently.
type AgentPhase string

const (
	PhaseIdle         AgentPhase = "idle"
	PhasePlanning     AgentPhase = "planning"
	PhaseAction       AgentPhase = "action"
	PhaseVerification AgentPhase = "verification"
	PhasePlanMode     AgentPhase = "planMode"
)

type statePattern struct {
	state    SessionState
	priority int
	re       *regexp.Regexp
}

// statePatterns is priority-ordered high to low; the first match wins.
// "busy" has no pattern of its own — it is the fallback for any
// non-empty chunk that matches nothing else.
var statePatterns = []statePattern{
	{Waiting, 100, regexp.MustCompile(`(?i)(do you want to|press enter|continue\?|\(y/n\)|yes/no|select an option|choose an option|enter option|\[\d+\]\s*other)`)},
	{Error, 90, regexp.MustCompile(`(?i)(error:|exception:|failed:|\bENOENT\b|\bEACCES\b|command not found|permission denied)`)},
	{Done, 80, regexp.MustCompile(`(?i)(task completed|successfully|\bdone\.|finished|all tasks complete)`)},
}

type phasePattern struct {
	phase    AgentPhase
	priority int
	re       *regexp.Regexp
}

// phasePatterns is priority-ordered high to low; unlike state, there
// is no fallback — a chunk matching none of these yields no phase
// report at all.
var phasePatterns = []phasePattern{
	{PhasePlanMode, 110, regexp.MustCompile(`(?i)(plan mode|ExitPlanMode|read-only mode|\[plan\])`)},
	{PhaseVerification, 100, regexp.MustCompile(`(?i)(\bjest\b|\bvitest\b|\bpytest\b|go test|cargo test|tsc\b|eslint|verifying|validating|tests pass)`)},
	{PhaseAction, 80, regexp.MustCompile(`(?i)(\bEdit\(|\bWrite\(|\bBash\(|\bRead\(|writing to|creating file|editing file|^\x60\x60\x60|\$\s*$)`)},
	{PhasePlanning, 60, regexp.MustCompile(`(?i)(i'll |i will |let me |next i |looking at|analyzing|searching)`)},
}

// DetectFromChunk runs the SessionState pattern list over chunk. It
// returns ("", false) for an empty or whitespace-only chunk; otherwise
// it returns the highest-priority match, falling back to Busy.
func DetectFromChunk(chunk string) (SessionState, bool) {
	if strings.TrimSpace(chunk) == "" {
		return "", false
	}
	for _, p := range statePatterns {
		if p.re.MatchString(chunk) {
			return p.state, true
		}
	}
	return Busy, true
}

// DetectPhaseFromChunk runs the AgentPhase pattern list over chunk. It
// returns ("", false) if nothing matches — there is no phase fallback.
func DetectPhaseFromChunk(chunk string) (AgentPhase, bool) {
	for _, p := range phasePatterns {
		if p.re.MatchString(chunk) {
			return p.phase, true
		}
	}
	return "", false
}
