/*
Package jobqueue provides the River-based scheduler that performs tracked
branch updates asynchronously. The githook handler only flips a branch to
pending and enqueues a job here; the worker does the git work, records the
attempt's log entry and clears the in-flight flags.

For configuration options and tuning parameters, see queue_config.go.
*/
package jobqueue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/reftrack/internal/registry"
)

// BranchUpdater performs the actual tracking-branch update. Satisfied by
// *gitrepo.Updater; tests substitute a stub.
type BranchUpdater interface {
	Update(ctx context.Context, remote, name, branch string) (output string, ok bool)
}

// BranchUpdateArgs are the job arguments for one update attempt.
type BranchUpdateArgs struct {
	BranchID int64  `json:"branch_id"`
	Remote   string `json:"remote"`
	Name     string `json:"name"`
	Branch   string `json:"branch"`
	Value    string `json:"value"`
}

// Kind returns the job kind for River.
func (BranchUpdateArgs) Kind() string { return "branch_update" }

// InsertOpts deduplicates by args, so re-triggering the same branch/value
// while a job is still queued inserts nothing new.
func (BranchUpdateArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		UniqueOpts: river.UniqueOpts{ByArgs: true},
	}
}

// BranchUpdateWorker handles branch update jobs.
type BranchUpdateWorker struct {
	river.WorkerDefaults[BranchUpdateArgs]
	store   registry.Store
	updater BranchUpdater
}

// Work claims the branch (pending -> updating), runs the update and records
// the result. A branch that is no longer pending was claimed by another
// attempt; the job completes without doing anything.
func (w *BranchUpdateWorker) Work(ctx context.Context, job *river.Job[BranchUpdateArgs]) error {
	return runBranchUpdate(ctx, w.store, w.updater, job.Args)
}

// runBranchUpdate is the shared core of the river worker and the direct
// scheduler.
func runBranchUpdate(ctx context.Context, store registry.Store, updater BranchUpdater, args BranchUpdateArgs) error {
	claimed, err := store.StartUpdate(ctx, args.BranchID)
	if err != nil {
		return fmt.Errorf("failed to claim branch %d: %w", args.BranchID, err)
	}
	if !claimed {
		log.Debug().
			Int64("branch_id", args.BranchID).
			Str("name", args.Name).
			Msg("branch no longer pending, skipping update")
		return nil
	}

	output, ok := updater.Update(ctx, args.Remote, args.Name, args.Branch)

	log.Info().
		Int64("branch_id", args.BranchID).
		Str("remote", args.Remote).
		Str("name", args.Name).
		Str("value", args.Value).
		Bool("successful", ok).
		Msg("branch update finished")

	entry := registry.LogEntry{
		Value:      args.Value,
		HookOutput: output,
		Successful: ok,
	}
	if err := store.FinishUpdate(ctx, args.BranchID, entry); err != nil {
		return fmt.Errorf("failed to record update result for branch %d: %w", args.BranchID, err)
	}

	return nil
}

// JobQueue manages the River job queue.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	config *QueueConfig
}

// NewJobQueue creates a job queue on an existing pool. The pool is shared
// with the postgres registry store so both see the same database.
func NewJobQueue(pool *pgxpool.Pool, store registry.Store, updater BranchUpdater, config *QueueConfig) (*JobQueue, error) {
	if config == nil {
		config = DefaultQueueConfig()
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &BranchUpdateWorker{store: store, updater: updater})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:      config.RiverQueueConfig(),
		Workers:     workers,
		JobTimeout:  config.JobTimeout,
		MaxAttempts: config.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{client: client, config: config}, nil
}

// Start starts the job queue workers.
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers.
func (jq *JobQueue) Stop(ctx context.Context) error {
	return jq.client.Stop(ctx)
}

// ScheduleUpdate enqueues an update job for a branch that was just marked
// pending. Implements the api package's Scheduler.
func (jq *JobQueue) ScheduleUpdate(ctx context.Context, branch *registry.TrackedBranch, value string) error {
	args := BranchUpdateArgs{
		BranchID: branch.ID,
		Remote:   branch.Remote,
		Name:     branch.Name,
		Branch:   branch.Branch,
		Value:    value,
	}

	if _, err := jq.client.Insert(ctx, args, nil); err != nil {
		return fmt.Errorf("failed to queue branch update job: %w", err)
	}
	return nil
}
