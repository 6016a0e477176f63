// Package notify runs the client half of the tracked-branch protocol: for
// each updated ref it normalizes the identity, asks the tracking service to
// trigger a re-synchronization, then polls under a wall-clock deadline until
// the update reports a result or time runs out.
package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/reftrack/internal/client"
	"github.com/reftrack/internal/identity"
	"github.com/reftrack/internal/protocol"
)

const (
	// pollInterval is the sleep between status checks while waiting for an
	// update to complete.
	pollInterval = 500 * time.Millisecond

	// requestGrace is added to every per-request timeout so a request
	// issued just before the deadline still gets a chance to answer.
	requestGrace = 500 * time.Millisecond
)

// RefChange is one updated ref as reported by the invoking hook. Old and
// new values are 40-hex object names; a deleted ref carries 40 zeros as its
// new value.
type RefChange struct {
	Ref      string
	OldValue string
	NewValue string
}

// Sender performs one protocol exchange. Satisfied by *client.Client.
type Sender interface {
	Send(ctx context.Context, req protocol.UpdateRequest, timeout time.Duration) (*protocol.UpdateResponse, error)
}

// Options configure one notify invocation.
type Options struct {
	// RepositoryURL is the raw remote locator identifying this repository
	// to the tracking service. Normalized before it goes on the wire.
	RepositoryURL string

	// ConnectionTimeout bounds the initial trigger request.
	ConnectionTimeout time.Duration

	// UpdateTimeout bounds the whole poll loop, measured from cycle start.
	UpdateTimeout time.Duration

	// SendUsernames attaches Username to requests when set.
	SendUsernames bool
	Username      string

	// ContinueOnError keeps processing later refs after a fatal failure on
	// an earlier one instead of aborting the batch.
	ContinueOnError bool
}

// Controller runs one trigger-then-poll cycle per ref, sequentially.
type Controller struct {
	sender Sender
	log    *RunLog
	opts   Options

	// Injected for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewController builds a controller. Zero timeouts fall back to the
// original's constants: 5s to connect, 30s for the update.
func NewController(sender Sender, log *RunLog, opts Options) *Controller {
	if opts.ConnectionTimeout <= 0 {
		opts.ConnectionTimeout = 5 * time.Second
	}
	if opts.UpdateTimeout <= 0 {
		opts.UpdateTimeout = 30 * time.Second
	}
	return &Controller{
		sender: sender,
		log:    log,
		opts:   opts,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// ProcessAll handles each ref change in order. A fatal failure aborts the
// remaining refs unless ContinueOnError is set; non-fatal outcomes
// (disabled, pending, poll timeout) let the batch continue.
func (c *Controller) ProcessAll(ctx context.Context, changes []RefChange) error {
	for _, change := range changes {
		if err := c.ProcessRef(ctx, change); err != nil {
			if c.opts.ContinueOnError {
				c.log.Error("Failed to process %s: %v", change.Ref, err)
				continue
			}
			return err
		}
	}
	return nil
}

// ProcessRef runs one full cycle for a single ref change.
func (c *Controller) ProcessRef(ctx context.Context, change RefChange) error {
	ident := identity.Normalize(c.opts.RepositoryURL, change.Ref)

	start := c.now()
	connectDeadline := start.Add(c.opts.ConnectionTimeout)

	req := protocol.UpdateRequest{
		Remote:                 ident.Remote,
		Name:                   ident.Name,
		Value:                  change.NewValue,
		Trigger:                true,
		DisableRemoteTransform: true,
	}
	if c.opts.SendUsernames {
		req.Username = c.opts.Username
	}

	resp, err := c.send(ctx, req, connectDeadline)
	if err != nil {
		// The initial contact is not given a second chance: a timeout
		// here fails the ref, as do rejection and transport trouble.
		if client.IsTimeout(err) {
			c.log.Error("Timeout (%v) while notifying the tracking service!", c.opts.ConnectionTimeout)
		}
		return err
	}

	c.debugResponse(resp)

	switch {
	case resp.Review != nil:
		c.log.Progress("Review: %s", reviewLabel(resp.Review))
	case resp.Branch != nil:
		c.log.Progress("Tracked branch: %s", *resp.Branch)
	default:
		c.log.Debug("Nothing to update!")
		return nil
	}

	switch {
	case resp.Disabled != nil:
		c.log.Progress("Tracking is disabled!")
	case resp.UpdateOngoing != nil:
		c.log.Progress("Update already in progress.")
	case resp.UpdatePending != nil:
		c.log.Progress("Update already scheduled.")
	case resp.UpdateTriggered != nil:
		if resp.Review == nil {
			// No review to gate on: fire and forget.
			c.log.Progress("Update scheduled.")
			return nil
		}
		c.log.Progress("Update triggered; waiting for it to complete...")
		return c.poll(ctx, req, start)
	}

	return nil
}

// poll re-queries without the trigger flag until the update reports a
// result or the overall deadline passes. Poll-side timeouts are controlled
// exits, not failures.
func (c *Controller) poll(ctx context.Context, req protocol.UpdateRequest, start time.Time) error {
	req.Trigger = false

	deadline := start.Add(c.opts.UpdateTimeout)
	c.sleep(pollInterval)

	for c.now().Before(deadline) {
		resp, err := c.send(ctx, req, deadline)
		if err != nil {
			if client.IsTimeout(err) {
				// The loop condition is false now, so this falls through
				// to the timeout report below.
				continue
			}
			return err
		}

		c.debugResponse(resp)

		if resp.HookOutput != nil {
			if resp.UpdateSuccessful == nil || !*resp.UpdateSuccessful {
				c.log.Error("Server rejected the update!")
			}
			c.log.Hook(*resp.HookOutput)
			return nil
		}

		if resp.UpdateOngoing == nil && resp.UpdatePending == nil {
			// The job left the queue without logging output.
			c.log.Progress("Update completed without output.")
			return nil
		}

		if remaining := deadline.Sub(c.now()); remaining > 0 {
			c.sleep(minDuration(pollInterval, remaining))
		}
	}

	c.log.Progress("Timeout while waiting for update to complete.")
	return nil
}

// send issues one exchange with a timeout equal to the remaining time until
// deadline plus the grace margin.
func (c *Controller) send(ctx context.Context, req protocol.UpdateRequest, deadline time.Time) (*protocol.UpdateResponse, error) {
	c.debugRequest(req)
	timeout := deadline.Sub(c.now()) + requestGrace
	return c.sender.Send(ctx, req, timeout)
}

func (c *Controller) debugRequest(req protocol.UpdateRequest) {
	if data, err := json.MarshalIndent(req, "", "    "); err == nil {
		c.log.Debug("%s", string(data))
	}
}

func (c *Controller) debugResponse(resp *protocol.UpdateResponse) {
	if data, err := json.MarshalIndent(resp, "", "    "); err == nil {
		c.log.Debug("%s", string(data))
	}
}

func reviewLabel(review *protocol.Review) string {
	if review.Summary != "" {
		return review.Summary
	}
	return "r/" + strconv.FormatInt(review.ID, 10)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
