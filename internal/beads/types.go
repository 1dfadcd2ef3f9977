package beads

// Status is the finite set of issue lifecycle states the tracker
// reports. "tombstone" means logically deleted: the core filters these
// out of every Issue-returning operation and maps direct fetches of
// one to NotFound.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusClosed     Status = "closed"
	StatusTombstone  Status = "tombstone"
)

// IssueType enumerates the tracker's issue_type field.
type IssueType string

const (
	TypeBug     IssueType = "bug"
	TypeFeature IssueType = "feature"
	TypeTask    IssueType = "task"
	TypeEpic    IssueType = "epic"
	TypeChore   IssueType = "chore"
)

// DependencyType enumerates the relationship an Issue's dependency
// graph edges may carry.
type DependencyType string

const (
	DependencyBlocks         DependencyType = "blocks"
	DependencyRelated        DependencyType = "related"
	DependencyParentChild    DependencyType = "parent-child"
	DependencyDiscoveredFrom DependencyType = "discovered-from"
)

// DependencyRef is one edge in an issue's dependency graph, as returned
// embedded in an Issue or by getEpicChildren/getParentEpic.
type DependencyRef struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Status         Status         `json:"status"`
	DependencyType DependencyType `json:"dependency_type"`
	IssueType      *IssueType     `json:"issue_type,omitempty"`
}

// Issue is the tracker's record shape. Optional fields are pointers so
// the zero value is distinguishable from "explicitly empty".
type Issue struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Status       Status          `json:"status"`
	Priority     int             `json:"priority"`
	IssueType    IssueType       `json:"issue_type"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	Description  *string         `json:"description,omitempty"`
	Design       *string         `json:"design,omitempty"`
	Notes        *string         `json:"notes,omitempty"`
	Acceptance   *string         `json:"acceptance,omitempty"`
	Estimate     *float64        `json:"estimate,omitempty"`
	Assignee     *string         `json:"assignee,omitempty"`
	Labels       []string        `json:"labels,omitempty"`
	Dependents   []DependencyRef `json:"dependents,omitempty"`
	Dependencies []DependencyRef `json:"dependencies,omitempty"`
}

// ListOptions filters the list/ready/search family. Zero values mean
// "no filter" except where noted.
type ListOptions struct {
	Status   Status
	Priority int // 0 means unset; tracker priorities start at 1
	Type     IssueType
}

// CreateFields is the payload accepted by Create. Labels are
// comma-joined into a single --labels flag.
type CreateFields struct {
	Title       string
	Type        IssueType
	Priority    int
	Description string
	Design      string
	Notes       string
	Acceptance  string
	Assignee    string
	Labels      []string
}

// UpdateFields is the payload accepted by Update. Unlike Create, Labels
// here are emitted one flag per label (--set-labels).
type UpdateFields struct {
	Title       *string
	Status      *Status
	Priority    *int
	Description *string
	Design      *string
	Notes       *string
	Acceptance  *string
	Assignee    *string
	Labels      []string
}

// SyncResult reports how many issues moved in each direction during a
// two-way sync.
type SyncResult struct {
	Pushed int `json:"pushed"`
	Pulled int `json:"pulled"`
}
