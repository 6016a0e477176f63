package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the registry tables. River's own migrations manage the job
// tables separately.
const schema = `
CREATE TABLE IF NOT EXISTS tracked_branches (
    id             BIGSERIAL PRIMARY KEY,
    remote         TEXT NOT NULL,
    name           TEXT NOT NULL,
    branch         TEXT NOT NULL,
    review_id      BIGINT,
    review_summary TEXT,
    disabled       BOOLEAN NOT NULL DEFAULT FALSE,
    pending        BOOLEAN NOT NULL DEFAULT FALSE,
    updating       BOOLEAN NOT NULL DEFAULT FALSE,
    UNIQUE (remote, name)
);

CREATE TABLE IF NOT EXISTS branch_update_log (
    branch_id   BIGINT NOT NULL REFERENCES tracked_branches (id),
    value       TEXT NOT NULL,
    hook_output TEXT NOT NULL,
    successful  BOOLEAN NOT NULL,
    PRIMARY KEY (branch_id, value)
);
`

// PGStore is the postgres-backed Store. The compare-and-set transitions are
// conditional UPDATEs, so concurrent triggers for the same branch race on a
// single row and exactly one wins.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps an existing pool; the pool is shared with the job queue.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// EnsureSchema creates the registry tables if they do not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create registry schema: %w", err)
	}
	return nil
}

// Lookup implements Store.
func (s *PGStore) Lookup(ctx context.Context, remote, name string) (*TrackedBranch, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, remote, name, branch, review_id, review_summary, disabled, pending, updating
		FROM tracked_branches
		WHERE remote = $1 AND name = $2
	`, remote, name)

	var (
		branch        TrackedBranch
		reviewID      *int64
		reviewSummary *string
	)
	err := row.Scan(&branch.ID, &branch.Remote, &branch.Name, &branch.Branch,
		&reviewID, &reviewSummary, &branch.Disabled, &branch.Pending, &branch.Updating)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up tracked branch: %w", err)
	}

	if reviewID != nil {
		review := Review{ID: *reviewID}
		if reviewSummary != nil {
			review.Summary = *reviewSummary
		}
		branch.Review = &review
	}

	return &branch, nil
}

// GetLogEntry implements Store.
func (s *PGStore) GetLogEntry(ctx context.Context, branchID int64, value string) (*LogEntry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT branch_id, value, hook_output, successful
		FROM branch_update_log
		WHERE branch_id = $1 AND value = $2
	`, branchID, value)

	var entry LogEntry
	err := row.Scan(&entry.BranchID, &entry.Value, &entry.HookOutput, &entry.Successful)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up log entry: %w", err)
	}
	return &entry, nil
}

// TriggerUpdate implements Store.
func (s *PGStore) TriggerUpdate(ctx context.Context, branchID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tracked_branches
		SET pending = TRUE
		WHERE id = $1 AND NOT pending AND NOT updating AND NOT disabled
	`, branchID)
	if err != nil {
		return false, fmt.Errorf("failed to trigger update: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// StartUpdate implements Store.
func (s *PGStore) StartUpdate(ctx context.Context, branchID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tracked_branches
		SET pending = FALSE, updating = TRUE
		WHERE id = $1 AND pending
	`, branchID)
	if err != nil {
		return false, fmt.Errorf("failed to start update: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FinishUpdate implements Store.
func (s *PGStore) FinishUpdate(ctx context.Context, branchID int64, entry LogEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO branch_update_log (branch_id, value, hook_output, successful)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (branch_id, value) DO NOTHING
	`, branchID, entry.Value, entry.HookOutput, entry.Successful)
	if err != nil {
		return fmt.Errorf("failed to record log entry: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE tracked_branches SET updating = FALSE WHERE id = $1
	`, branchID)
	if err != nil {
		return fmt.Errorf("failed to clear updating flag: %w", err)
	}

	return tx.Commit(ctx)
}
