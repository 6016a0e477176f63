// Package protocol defines the wire types for the githook exchange between
// the notify client and the tracking service. A single request/response pair
// travels as JSON over HTTP POST to one fixed endpoint; the HTTP status is
// always 200 for a decoded exchange and failure is signaled purely in the
// body's status field.
package protocol

// GithookPath is the fixed endpoint path the notify client posts to.
const GithookPath = "/githook"

// Response status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// UpdateRequest asks the tracking service about (and optionally triggers an
// update of) the tracked branch matching a normalized (remote, name) pair.
// Trigger is set only on the first request of a polling cycle.
type UpdateRequest struct {
	Remote string `json:"remote"`
	Name   string `json:"name"`
	Value  string `json:"value"`

	Trigger  bool   `json:"trigger,omitempty"`
	Username string `json:"username,omitempty"`

	// DisableRemoteTransform tells the server the client already
	// normalized the remote locator, so it should not be rewritten again.
	DisableRemoteTransform bool `json:"disable_remote_transform,omitempty"`
}

// Review identifies the review fed by a tracked branch.
type Review struct {
	ID      int64  `json:"id"`
	Summary string `json:"summary"`
}

// UpdateResponse is the structured reply to an UpdateRequest. On the ok
// path, presence of a field carries meaning rather than its value: absent
// means "not currently true". Pointer fields model that presence.
type UpdateResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	Branch *string `json:"branch,omitempty"`
	Review *Review `json:"review,omitempty"`

	Disabled        *bool `json:"disabled,omitempty"`
	UpdateOngoing   *bool `json:"update_ongoing,omitempty"`
	UpdatePending   *bool `json:"update_pending,omitempty"`
	UpdateTriggered *bool `json:"update_triggered,omitempty"`

	HookOutput       *string `json:"hook_output,omitempty"`
	UpdateSuccessful *bool   `json:"update_successful,omitempty"`
}

// Tracked reports whether the response refers to any tracked entity at all.
// A response with neither branch nor review means nothing is tracked for
// the requested identity.
func (r *UpdateResponse) Tracked() bool {
	return r.Branch != nil || r.Review != nil
}
