// Package beads wraps the external "bd" tracker CLI behind a typed
// Go API, classifying its failure modes (not found, parse error, sync
// required) instead of leaking raw exit codes and stderr to callers.
package beads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Client is a thin facade over the bd CLI. The zero value is not
// usable; construct with New.
type Client struct {
	// Bin is the bd executable name or path. Defaults to "bd".
	Bin string
	// Dir is the default working directory every invocation runs in,
	// unless overridden per call with WithCWD.
	Dir string
}

// New returns a Client rooted at dir, using the "bd" binary on PATH.
func New(dir string) *Client {
	return &Client{Bin: "bd", Dir: dir}
}

// Option customizes a single invocation.
type Option func(*callOpts)

type callOpts struct {
	cwd string
}

// WithCWD overrides the working directory for one call.
func WithCWD(dir string) Option {
	return func(o *callOpts) { o.cwd = dir }
}

func (c *Client) resolveDir(opts []Option) string {
	o := callOpts{cwd: c.Dir}
	for _, apply := range opts {
		apply(&o)
	}
	return o.cwd
}

// run executes bd with args plus --json, returning stdout. It
// classifies failures: a SyncRequiredError is
// recognized in stdout OR stderr regardless of exit code, because the
// daemon can report this condition with exit 0 and empty stdout.
func (c *Client) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	bin := c.Bin
	if bin == "" {
		bin = "bd"
	}
	full := append(append([]string{}, args...), "--json")

	cmd := exec.CommandContext(ctx, bin, full...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	out := stdout.String()
	errOut := stderr.String()

	if containsSyncFingerprint(out) || containsSyncFingerprint(errOut) {
		return nil, &SyncRequiredError{Stdout: out, Stderr: errOut}
	}

	if runErr != nil {
		return nil, &TrackerError{Args: full, Stderr: errOut, Err: runErr}
	}

	return stdout.Bytes(), nil
}

func containsSyncFingerprint(s string) bool {
	for _, f := range syncFingerprints {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

// decodeIssues parses stdout as either a JSON array, a single JSON
// object, or empty.
func decodeIssues(raw []byte) ([]Issue, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var issues []Issue
		if err := json.Unmarshal(trimmed, &issues); err != nil {
			return nil, &ParseError{Raw: string(trimmed), Err: err}
		}
		return issues, nil
	}

	var single Issue
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, &ParseError{Raw: string(trimmed), Err: err}
	}
	return []Issue{single}, nil
}

// filterTombstones drops entries whose status is tombstone;
// list/search/ready/showMultiple never surface them.
func filterTombstones(issues []Issue) []Issue {
	out := issues[:0:0]
	for _, iss := range issues {
		if iss.Status == StatusTombstone {
			continue
		}
		out = append(out, iss)
	}
	return out
}

// List returns issues matching opts, with tombstoned issues filtered.
func (c *Client) List(ctx context.Context, opts ListOptions, o ...Option) ([]Issue, error) {
	args := []string{"list"}
	if opts.Status != "" {
		args = append(args, "--status", string(opts.Status))
	}
	if opts.Priority != 0 {
		args = append(args, "--priority", strconv.Itoa(opts.Priority))
	}
	if opts.Type != "" {
		args = append(args, "--type", string(opts.Type))
	}

	raw, err := c.run(ctx, c.resolveDir(o), args...)
	if err != nil {
		return nil, err
	}
	issues, err := decodeIssues(raw)
	if err != nil {
		return nil, err
	}
	return filterTombstones(issues), nil
}

// Ready returns issues with no unresolved blocking dependencies.
func (c *Client) Ready(ctx context.Context, o ...Option) ([]Issue, error) {
	raw, err := c.run(ctx, c.resolveDir(o), "ready")
	if err != nil {
		return nil, err
	}
	issues, err := decodeIssues(raw)
	if err != nil {
		return nil, err
	}
	return filterTombstones(issues), nil
}

// Search performs a free-text search over issue titles/bodies.
func (c *Client) Search(ctx context.Context, query string, o ...Option) ([]Issue, error) {
	raw, err := c.run(ctx, c.resolveDir(o), "search", query)
	if err != nil {
		return nil, err
	}
	issues, err := decodeIssues(raw)
	if err != nil {
		return nil, err
	}
	return filterTombstones(issues), nil
}

// Show fetches a single issue by id. A tombstoned issue is reported as
// NotFoundError, never returned as an Issue.
func (c *Client) Show(ctx context.Context, id string, o ...Option) (*Issue, error) {
	raw, err := c.run(ctx, c.resolveDir(o), "show", id)
	if err != nil {
		var te *TrackerError
		if errors.As(err, &te) && strings.Contains(strings.ToLower(te.Stderr), "not found") {
			return nil, &NotFoundError{IssueID: id}
		}
		return nil, err
	}
	issues, err := decodeIssues(raw)
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 || issues[0].Status == StatusTombstone {
		return nil, &NotFoundError{IssueID: id}
	}
	return &issues[0], nil
}

// ShowMultiple fetches several issues by id, filtering tombstones.
func (c *Client) ShowMultiple(ctx context.Context, ids []string, o ...Option) ([]Issue, error) {
	args := append([]string{"show"}, ids...)
	raw, err := c.run(ctx, c.resolveDir(o), args...)
	if err != nil {
		return nil, err
	}
	issues, err := decodeIssues(raw)
	if err != nil {
		return nil, err
	}
	return filterTombstones(issues), nil
}

// Create makes a new issue. Labels are joined into a single --labels
// flag.
func (c *Client) Create(ctx context.Context, fields CreateFields, o ...Option) (*Issue, error) {
	args := []string{"create", fields.Title}
	if fields.Type != "" {
		args = append(args, "--type", string(fields.Type))
	}
	if fields.Priority != 0 {
		args = append(args, "--priority", strconv.Itoa(fields.Priority))
	}
	if fields.Description != "" {
		args = append(args, "--description", fields.Description)
	}
	if fields.Design != "" {
		args = append(args, "--design", fields.Design)
	}
	if fields.Notes != "" {
		args = append(args, "--notes", fields.Notes)
	}
	if fields.Acceptance != "" {
		args = append(args, "--acceptance", fields.Acceptance)
	}
	if fields.Assignee != "" {
		args = append(args, "--assignee", fields.Assignee)
	}
	if len(fields.Labels) > 0 {
		args = append(args, "--labels", strings.Join(fields.Labels, ","))
	}

	raw, err := c.run(ctx, c.resolveDir(o), args...)
	if err != nil {
		return nil, err
	}
	issues, err := decodeIssues(raw)
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, &ParseError{Raw: string(raw), Err: fmt.Errorf("create returned no issue")}
	}
	return &issues[0], nil
}

// Update mutates fields on an existing issue. Unlike Create, Labels
// here are emitted one --set-labels flag per label.
func (c *Client) Update(ctx context.Context, id string, fields UpdateFields, o ...Option) error {
	args := []string{"update", id}
	if fields.Title != nil {
		args = append(args, "--title", *fields.Title)
	}
	if fields.Status != nil {
		args = append(args, "--status", string(*fields.Status))
	}
	if fields.Priority != nil {
		args = append(args, "--priority", strconv.Itoa(*fields.Priority))
	}
	if fields.Description != nil {
		args = append(args, "--description", *fields.Description)
	}
	if fields.Design != nil {
		args = append(args, "--design", *fields.Design)
	}
	if fields.Notes != nil {
		args = append(args, "--notes", *fields.Notes)
	}
	if fields.Acceptance != nil {
		args = append(args, "--acceptance", *fields.Acceptance)
	}
	if fields.Assignee != nil {
		args = append(args, "--assignee", *fields.Assignee)
	}
	for _, label := range fields.Labels {
		args = append(args, "--set-labels", label)
	}

	_, err := c.run(ctx, c.resolveDir(o), args...)
	return err
}

// Close marks an issue closed, optionally with a reason.
func (c *Client) Close(ctx context.Context, id string, reason string, o ...Option) error {
	args := []string{"close", id}
	if reason != "" {
		args = append(args, "--reason", reason)
	}
	_, err := c.run(ctx, c.resolveDir(o), args...)
	return err
}

// Delete bypasses the tracker daemon entirely and force-deletes an
// issue.
func (c *Client) Delete(ctx context.Context, id string, o ...Option) error {
	_, err := c.run(ctx, c.resolveDir(o), "delete", id, "--no-daemon", "--force")
	return err
}

// Sync performs a full two-way sync with any configured remote.
func (c *Client) Sync(ctx context.Context, o ...Option) (SyncResult, error) {
	raw, err := c.run(ctx, c.resolveDir(o), "sync")
	if err != nil {
		return SyncResult{}, err
	}
	var res SyncResult
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &res); err != nil {
			return SyncResult{}, &ParseError{Raw: string(raw), Err: err}
		}
	}
	return res, nil
}

// SyncImportOnly reconciles the local database from the on-disk JSONL
// without touching any remote.
func (c *Client) SyncImportOnly(ctx context.Context, o ...Option) error {
	_, err := c.run(ctx, c.resolveDir(o), "sync", "--import-only")
	return err
}

// RecoverTombstones runs the project's .beads/recover-tombstones.sh
// script and parses its "Recovered N issues" output.
func (c *Client) RecoverTombstones(ctx context.Context, o ...Option) (int, error) {
	dir := c.resolveDir(o)
	cmd := exec.CommandContext(ctx, "sh", ".beads/recover-tombstones.sh")
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, &TrackerError{Args: []string{"recover-tombstones.sh"}, Stderr: stderr.String(), Err: err}
	}
	return parseRecoveredCount(stdout.String()), nil
}

func parseRecoveredCount(out string) int {
	const marker = "Recovered "
	idx := strings.Index(out, marker)
	if idx < 0 {
		return 0
	}
	rest := out[idx+len(marker):]
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return n
}

// AddDependency links issueId as depending on dependsOnId.
func (c *Client) AddDependency(ctx context.Context, issueID, dependsOnID string, depType DependencyType, o ...Option) error {
	args := []string{"dep", "add", issueID, dependsOnID}
	if depType != "" {
		args = append(args, "--type", string(depType))
	}
	_, err := c.run(ctx, c.resolveDir(o), args...)
	return err
}

// GetEpicChildren lists an epic's direct children.
func (c *Client) GetEpicChildren(ctx context.Context, epicID string, o ...Option) ([]DependencyRef, error) {
	raw, err := c.run(ctx, c.resolveDir(o), "epic", "children", epicID)
	if err != nil {
		return nil, err
	}
	var refs []DependencyRef
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &refs); err != nil {
			return nil, &ParseError{Raw: string(raw), Err: err}
		}
	}
	return refs, nil
}

// GetEpicWithChildren fetches an epic issue together with its children.
func (c *Client) GetEpicWithChildren(ctx context.Context, epicID string, o ...Option) (*Issue, []DependencyRef, error) {
	issue, err := c.Show(ctx, epicID, o...)
	if err != nil {
		return nil, nil, err
	}
	children, err := c.GetEpicChildren(ctx, epicID, o...)
	if err != nil {
		return nil, nil, err
	}
	return issue, children, nil
}

// GetParentEpic returns the parent epic of issueID, if any.
func (c *Client) GetParentEpic(ctx context.Context, issueID string, o ...Option) (*DependencyRef, error) {
	raw, err := c.run(ctx, c.resolveDir(o), "epic", "parent", issueID)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var ref DependencyRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, &ParseError{Raw: string(raw), Err: err}
	}
	return &ref, nil
}
