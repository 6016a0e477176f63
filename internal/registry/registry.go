// Package registry owns the server-side tracked-branch state: which remote
// refs are mirrored, whether an update is pending or running, and the log
// of completed attempts. Each tracked branch is an independent unit of
// concurrency control; the trigger transition uses compare-and-set
// semantics so concurrent trigger requests schedule at most one job.
package registry

import "context"

// Review identifies the review a tracked branch feeds, if any.
type Review struct {
	ID      int64
	Summary string
}

// TrackedBranch mirrors one ref of a remote repository. Pending and
// Updating are mutually exclusive; Disabled takes precedence over both for
// display purposes.
type TrackedBranch struct {
	ID     int64
	Remote string
	Name   string

	// Branch is the local ref the remote is mirrored into.
	Branch string

	Review   *Review
	Disabled bool
	Pending  bool
	Updating bool
}

// LogEntry records one completed update attempt for a specific target
// value. Immutable once written; at most one entry exists per distinct
// value.
type LogEntry struct {
	BranchID   int64
	Value      string
	HookOutput string
	Successful bool
}

// Store is the registry's storage boundary. Lookup misses return (nil, nil)
// rather than an error; errors are reserved for storage trouble.
type Store interface {
	// Lookup finds the tracked branch matching a normalized identity.
	Lookup(ctx context.Context, remote, name string) (*TrackedBranch, error)

	// GetLogEntry returns the completed attempt for the exact target
	// value, or nil if no attempt for that value has finished yet.
	GetLogEntry(ctx context.Context, branchID int64, value string) (*LogEntry, error)

	// TriggerUpdate atomically marks the branch pending. It returns false
	// without side effects when the branch is already pending, updating or
	// disabled, guaranteeing at most one scheduled job per branch.
	TriggerUpdate(ctx context.Context, branchID int64) (bool, error)

	// StartUpdate atomically moves the branch from pending to updating.
	// Returns false when the branch is no longer pending.
	StartUpdate(ctx context.Context, branchID int64) (bool, error)

	// FinishUpdate records the attempt's log entry and clears the
	// updating flag.
	FinishUpdate(ctx context.Context, branchID int64, entry LogEntry) error
}
