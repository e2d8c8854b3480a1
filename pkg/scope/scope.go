// Package scope defines the ownership tuple that partitions all memory
// operations.
//
// Every stored memory, graph entity, and graph relationship belongs to
// exactly one scope. Searches and mutations are always restricted to a
// scope; two scopes never observe each other's data even when the stored
// text is identical.
package scope

import "errors"

// ErrEmpty indicates a scope with no identifying fields.
var ErrEmpty = errors.New("scope requires at least one of user_id or agent_id")

// Payload keys used by store adapters when filtering.
const (
	KeyUserID  = "user_id"
	KeyAgentID = "agent_id"
	KeyRunID   = "run_id"
)

// Scope identifies the owner of a set of memories.
// At least one of UserID or AgentID must be set; RunID further narrows a
// scope to a single session.
type Scope struct {
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}

// Validate returns ErrEmpty when the scope has no owner.
func (s Scope) Validate() error {
	if s.UserID == "" && s.AgentID == "" {
		return ErrEmpty
	}
	return nil
}

// IsZero reports whether no field of the scope is set.
func (s Scope) IsZero() bool {
	return s.UserID == "" && s.AgentID == "" && s.RunID == ""
}

// Filters returns the equality filter set for this scope. Only populated
// fields appear; adapters combine the entries with implicit AND.
func (s Scope) Filters() map[string]string {
	f := make(map[string]string, 3)
	if s.UserID != "" {
		f[KeyUserID] = s.UserID
	}
	if s.AgentID != "" {
		f[KeyAgentID] = s.AgentID
	}
	if s.RunID != "" {
		f[KeyRunID] = s.RunID
	}
	return f
}

// Key returns a stable string identifying the scope, used to key per-scope
// work queues. Field order is fixed so equal scopes always collide.
func (s Scope) Key() string {
	return s.UserID + "\x00" + s.AgentID + "\x00" + s.RunID
}

// Owner returns the primary identity used when prompting the model to
// resolve self references ("I", "me"). UserID wins over AgentID.
func (s Scope) Owner() string {
	if s.UserID != "" {
		return s.UserID
	}
	if s.AgentID != "" {
		return s.AgentID
	}
	return "USER"
}
