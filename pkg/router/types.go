// Package router implements the central session state machine: resolving
// an inbound event against a community/entity, applying policy, classifying
// and alias-expanding the message, dispatching to matching modules over the
// event stream, collecting their responses, and emitting platform actions
// (spec.md §4.7).
package router

import (
	"time"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
)

// InboundEvent is the payload accepted at the HTTP boundary's POST /events
// (spec.md §6).
type InboundEvent struct {
	SessionID   string           `json:"session_id,omitempty"`
	EntityID    string           `json:"entity_id"`
	UserID      string           `json:"user_id"`
	Username    string           `json:"username"`
	DisplayName string           `json:"display_name,omitempty"`
	Message     string           `json:"message"`
	MessageType models.MessageType `json:"message_type"`
	Platform    models.Platform  `json:"platform"`
	ChannelID   string           `json:"channel_id"`
	ServerID    string           `json:"server_id,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

// CommandEvent is published to events:commands for every matched module
// (spec.md §4.7 step 6). It carries the full session context so the
// consuming module needs no further lookup.
type CommandEvent struct {
	SessionID   string            `json:"session_id"`
	ModuleName  string            `json:"module_name"`
	CommunityID string            `json:"community_id"`
	EntityID    string            `json:"entity_id"`
	Platform    models.Platform   `json:"platform"`
	ChannelID   string            `json:"channel_id"`
	ServerID    string            `json:"server_id,omitempty"`
	UserID      string            `json:"user_id"`
	Username    string            `json:"username"`
	DisplayName string            `json:"display_name,omitempty"`
	Message     string            `json:"message"`
	MessageType models.MessageType `json:"message_type"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	DispatchedAt time.Time        `json:"dispatched_at"`
}

// ModuleResponse is posted by a module to POST /responses and consumed by
// the router off events:responses (spec.md §6).
type ModuleResponse struct {
	SessionID        string `json:"session_id"`
	ModuleName       string `json:"module_name"`
	Success          bool   `json:"success"`
	ResponseAction   string `json:"response_action,omitempty"`
	ResponseData     map[string]any `json:"response_data,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`

	// PublishSeq is carried through as the module sent it; Collecting does
	// not read it and keeps the first response that arrives per module.
	PublishSeq int64 `json:"publish_seq"`
}

// Outcome is a module slot's terminal state once Collecting finishes.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeTimedOut Outcome = "timed_out"
)

// ModuleResult pairs a module's dispatch slot with its terminal response.
type ModuleResult struct {
	ModuleName string
	Outcome    Outcome
	Response   *ModuleResponse
}

// ActionEvent is published to events:actions:<platform> for each module
// result that carries a platform action (spec.md §4.7 step 8). It always
// carries the originating session id.
type ActionEvent struct {
	SessionID  string         `json:"session_id"`
	ModuleName string         `json:"module_name"`
	Action     string         `json:"action"`
	Data       map[string]any `json:"data,omitempty"`
	Platform   models.Platform `json:"platform"`
}

// Timeouts configures the deadlines spec.md §4.7 names.
type Timeouts struct {
	PerModule time.Duration // default 30s
	Session   time.Duration // default 60s
}

// DefaultTimeouts matches spec.md §4.7's documented defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{PerModule: 30 * time.Second, Session: 60 * time.Second}
}

// SessionResult is the terminal outcome returned to the HTTP boundary once
// a session has finished running through the router (for synchronous
// callers/tests; the HTTP boundary itself only needs {accepted, session_id}).
type SessionResult struct {
	Session       models.Session
	ModuleResults []ModuleResult
	Actions       []ActionEvent
}
