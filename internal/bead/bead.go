// Package bead defines the stable identifier shared by worktrees,
// branches, multiplexer sessions, and lock-map keys.
package bead

import (
	"fmt"
	"regexp"
)

var idPattern = regexp.MustCompile(`^[a-z]+-[a-z0-9]+$`)

// ErrInvalidID is returned by Parse when a string does not match the
// bead identifier grammar.
var ErrInvalidID = fmt.Errorf("invalid bead id")

// ID is an opaque, validated bead identifier: branch name, worktree
// path suffix, multiplexer session name, and lock-map key all in one.
type ID string

// Parse validates s against the bead identifier grammar
// ([a-z]+-[a-z0-9]+) and returns it as an ID.
func Parse(s string) (ID, error) {
	if !idPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID(s), nil
}

// Valid reports whether s matches the bead identifier grammar without
// allocating an error.
func Valid(s string) bool {
	return idPattern.MatchString(s)
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// sessionNamePattern extracts a beadId from a multiplexer session name;
// session names are the beadId verbatim, but the pattern is named and
// exported as a parse function so callers never inline the grammar.
var sessionNamePattern = regexp.MustCompile(`^([a-z]+-[a-z0-9]+)$`)

// SessionName describes what a parsed multiplexer session name refers
// to: a bead session, or something else the orchestrator doesn't own.
type SessionName struct {
	IsBead bool
	ID     ID
}

// ParseSessionName classifies a multiplexer session name. Session
// names that are not valid bead ids are reported with IsBead=false so
// callers can distinguish orchestrator-owned sessions from unrelated
// ones sharing the same tmux server.
func ParseSessionName(name string) SessionName {
	m := sessionNamePattern.FindStringSubmatch(name)
	if m == nil {
		return SessionName{}
	}
	return SessionName{IsBead: true, ID: ID(m[1])}
}
