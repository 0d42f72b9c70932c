// Package models defines the core data types shared across the router,
// event stream, translation, and workflow components: Entity, Community,
// Session, Alias, and the supporting value types from spec.md §3.
package models

import "time"

// Community is the tenant boundary. All authorization, rate limiting,
// and most caches are scoped to a Community.
type Community struct {
	ID          string         `json:"id" db:"id"`
	OwnerUserID string         `json:"owner_user_id" db:"owner_user_id"`
	Config      CommunityConfig `json:"config" db:"-"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// CommunityConfig holds the per-community tunables referenced throughout
// the spec: translation settings, AI decision mode, question triggers,
// and rate limits.
type CommunityConfig struct {
	TranslationEnabled bool              `json:"translation_enabled"`
	TargetLanguage     string            `json:"target_language"`
	AIDecisionMode     AIDecisionMode    `json:"ai_decision_mode"`
	QuestionTriggers   []string          `json:"question_triggers,omitempty"`
	RateLimits         map[string]RateLimitConfig `json:"rate_limits,omitempty"` // keyed by module name
}

// AIDecisionMode controls how aggressively the translation preprocessor
// defers uncertain tokens to an AI classifier.
type AIDecisionMode string

const (
	AIDecisionNever     AIDecisionMode = "never"
	AIDecisionUncertain AIDecisionMode = "uncertain"
	AIDecisionAlways    AIDecisionMode = "always"
)

// RateLimitConfig is a per-(community,module) token-bucket/fixed-window
// configuration.
type RateLimitConfig struct {
	Limit  int           `json:"limit"`
	Window time.Duration `json:"window"`
}

// Platform enumerates the supported chat platforms. YouTube is carried per
// spec.md's Open Questions — no receiver exists in this core, but the
// platform tag is accepted so that future receivers need no schema change.
type Platform string

const (
	PlatformTwitch  Platform = "twitch"
	PlatformDiscord Platform = "discord"
	PlatformSlack   Platform = "slack"
	PlatformKick    Platform = "kick"
	PlatformYouTube Platform = "youtube"
)

// Entity is an addressable platform location: platform : server/guild : channel.
// An entity belongs to exactly one community; a community may own many entities.
type Entity struct {
	ID               string    `json:"id" db:"id"`
	CommunityID      string    `json:"community_id" db:"community_id"`
	Platform         Platform  `json:"platform" db:"platform"`
	PlatformEntityID string    `json:"platform_entity_id" db:"platform_entity_id"`
	ChannelID        string    `json:"channel_id" db:"channel_id"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	DestroyedAt      *time.Time `json:"destroyed_at,omitempty" db:"destroyed_at"`
}

// MessageType classifies an inbound event for the router's Classifying phase.
type MessageType string

const (
	MessageTypeChatMessage  MessageType = "chatMessage"
	MessageTypeSlashCommand MessageType = "slashCommand"
	MessageTypeInteraction  MessageType = "interaction"
	MessageTypeEvent        MessageType = "event"
	MessageTypeScheduled    MessageType = "scheduled"
)

// SessionStatus is the session's lifecycle phase (spec.md §4.7).
type SessionStatus string

const (
	SessionReceived        SessionStatus = "received"
	SessionResolving       SessionStatus = "resolving"
	SessionPolicy          SessionStatus = "policy"
	SessionClassifying     SessionStatus = "classifying"
	SessionResolvingAlias  SessionStatus = "resolving_alias"
	SessionDispatching     SessionStatus = "dispatching"
	SessionCollecting      SessionStatus = "collecting"
	SessionEmitting        SessionStatus = "emitting"
	SessionCompleted       SessionStatus = "completed"
	SessionFailed          SessionStatus = "failed"
	SessionRejected        SessionStatus = "rejected"
)

// Session is a single inbound event's execution context. Exactly one
// Session exists per inbound event; all downstream work carries its ID.
type Session struct {
	ID              string        `json:"session_id"`
	EntityID        string        `json:"entity_id"`
	CommunityID     string        `json:"community_id"`
	Platform        Platform      `json:"platform"`
	UserID          string        `json:"user_id"`
	Username        string        `json:"username"`
	DisplayName     string        `json:"display_name,omitempty"`
	Message         string        `json:"message"`
	MessageType     MessageType   `json:"message_type"`
	ChannelID       string        `json:"channel_id"`
	ServerID        string        `json:"server_id,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ArrivedAt       time.Time     `json:"arrived_at"`
	CorrelationID   string        `json:"correlation_id"`
	Status          SessionStatus `json:"status"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
}

// Role is a community membership grade, checked in the Router's Policy phase.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
	RoleVisitor   Role = "visitor"
)

// roleRank orders roles from least to most privileged for >= comparisons.
var roleRank = map[Role]int{
	RoleVisitor:   0,
	RoleMember:    1,
	RoleModerator: 2,
	RoleAdmin:     3,
	RoleOwner:     4,
}

// Satisfies reports whether role r meets or exceeds the required role.
func (r Role) Satisfies(required Role) bool {
	return roleRank[r] >= roleRank[required]
}

// CommandType enumerates alias action kinds (spec.md §6 persisted shapes).
type CommandType string

const (
	CommandTypeText    CommandType = "text"
	CommandTypeAction  CommandType = "action"
	CommandTypeCommand CommandType = "command"
	CommandTypeCounter CommandType = "counter"
)

// Alias is an entity-scoped short command that expands to another command
// at router input. (EntityID, Name) is unique among active aliases.
type Alias struct {
	EntityID      string      `json:"entity_id" db:"entity_id"`
	Name          string      `json:"alias" db:"alias"`
	CommandType   CommandType `json:"command_type" db:"command_type"`
	ResponseText  string      `json:"response_text" db:"response_text"`
	ActionCommand string      `json:"action_command" db:"action_command"`
	CreatedBy     string      `json:"created_by" db:"created_by"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
	UsageCount    int64       `json:"usage_count" db:"usage_count"`
	LastUsed      *time.Time  `json:"last_used,omitempty" db:"last_used"`
	IsActive      bool        `json:"is_active" db:"is_active"`
}

// PlaybackState is one representative stateful module's state (Music
// Player), one row per community.
type PlaybackState struct {
	CommunityID string     `json:"community_id" db:"community_id"`
	CurrentItem string     `json:"current_item,omitempty" db:"current_item"`
	IsPlaying   bool       `json:"is_playing" db:"is_playing"`
	IsPaused    bool       `json:"is_paused" db:"is_paused"`
	Provider    string     `json:"provider" db:"provider"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	LastUpdated time.Time  `json:"last_updated" db:"last_updated"`
}
