package jobqueue

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/reftrack/internal/registry"
)

// DirectScheduler runs updates in-process instead of through River. Used
// when the server runs without postgres (development, tests): the registry
// lives in memory and jobs would not survive a restart anyway.
type DirectScheduler struct {
	store   registry.Store
	updater BranchUpdater
	slots   chan struct{}
}

// NewDirectScheduler creates a scheduler running at most maxConcurrent
// updates at a time.
func NewDirectScheduler(store registry.Store, updater BranchUpdater, maxConcurrent int) *DirectScheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &DirectScheduler{
		store:   store,
		updater: updater,
		slots:   make(chan struct{}, maxConcurrent),
	}
}

// ScheduleUpdate hands the update to a goroutine and returns immediately,
// mirroring the queue's never-block contract.
func (d *DirectScheduler) ScheduleUpdate(ctx context.Context, branch *registry.TrackedBranch, value string) error {
	args := BranchUpdateArgs{
		BranchID: branch.ID,
		Remote:   branch.Remote,
		Name:     branch.Name,
		Branch:   branch.Branch,
		Value:    value,
	}

	go func() {
		d.slots <- struct{}{}
		defer func() { <-d.slots }()

		// Detached from the request context: the update outlives the
		// githook exchange that triggered it.
		if err := runBranchUpdate(context.Background(), d.store, d.updater, args); err != nil {
			log.Error().Err(err).
				Int64("branch_id", args.BranchID).
				Str("name", args.Name).
				Msg("direct branch update failed")
		}
	}()

	return nil
}
