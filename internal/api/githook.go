package api

import (
	"context"
	"regexp"

	"github.com/rs/zerolog/log"

	"github.com/reftrack/internal/identity"
	"github.com/reftrack/internal/protocol"
	"github.com/reftrack/internal/registry"
)

// Scheduler hands a just-triggered branch to the asynchronous update
// machinery. Implemented by jobqueue.JobQueue and jobqueue.DirectScheduler.
type Scheduler interface {
	ScheduleUpdate(ctx context.Context, branch *registry.TrackedBranch, value string) error
}

var valuePattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// HandleGithook builds the reply for one githook request. It is a pure
// function of the request and the registry state: all dependencies are
// explicit and the error branch is a tagged error-status response rather
// than a Go error, because a decoded rejection is a protocol outcome, not
// a server failure.
func HandleGithook(ctx context.Context, store registry.Store, sched Scheduler, req *protocol.UpdateRequest) *protocol.UpdateResponse {
	if req.Remote == "" || req.Name == "" {
		return errorResponse("remote and name are required")
	}
	if !valuePattern.MatchString(req.Value) {
		return errorResponse("value must be a 40-hex object name")
	}

	remote, name := req.Remote, req.Name
	if !req.DisableRemoteTransform {
		ident := identity.Normalize(remote, name)
		remote, name = ident.Remote, ident.Name
	}

	branch, err := store.Lookup(ctx, remote, name)
	if err != nil {
		log.Error().Err(err).Str("remote", remote).Str("name", name).Msg("registry lookup failed")
		return errorResponse("internal error while looking up tracked branch")
	}

	resp := &protocol.UpdateResponse{Status: protocol.StatusOK}
	if branch == nil {
		// Nothing tracked for this identity: an ok reply with neither
		// branch nor review tells the client there is nothing to update.
		return resp
	}

	resp.Branch = &branch.Branch
	if branch.Review != nil {
		resp.Review = &protocol.Review{ID: branch.Review.ID, Summary: branch.Review.Summary}
	}

	switch {
	case branch.Disabled:
		// Disabled wins over pending/updating for display.
		resp.Disabled = present()
	case branch.Updating:
		resp.UpdateOngoing = present()
	case branch.Pending:
		resp.UpdatePending = present()
	case req.Trigger:
		triggered, err := store.TriggerUpdate(ctx, branch.ID)
		if err != nil {
			log.Error().Err(err).Int64("branch_id", branch.ID).Msg("trigger failed")
			return errorResponse("internal error while triggering update")
		}
		if !triggered {
			// Lost the race against a concurrent trigger.
			resp.UpdatePending = present()
			break
		}

		if err := sched.ScheduleUpdate(ctx, branch, req.Value); err != nil {
			log.Error().Err(err).Int64("branch_id", branch.ID).Msg("failed to schedule update")
			return errorResponse("failed to schedule update")
		}
		resp.UpdateTriggered = present()
	}

	// A completed attempt for this exact value is always reported, so a
	// polling client can pick up the hook output.
	entry, err := store.GetLogEntry(ctx, branch.ID, req.Value)
	if err != nil {
		log.Error().Err(err).Int64("branch_id", branch.ID).Msg("log entry lookup failed")
		return errorResponse("internal error while looking up update log")
	}
	if entry != nil {
		resp.HookOutput = &entry.HookOutput
		successful := entry.Successful
		resp.UpdateSuccessful = &successful
	}

	return resp
}

func errorResponse(message string) *protocol.UpdateResponse {
	return &protocol.UpdateResponse{Status: protocol.StatusError, Error: message}
}

func present() *bool {
	v := true
	return &v
}
