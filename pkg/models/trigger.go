package models

// TriggerMatchKind distinguishes how a Trigger is matched against an
// inbound session.
type TriggerMatchKind string

const (
	TriggerMatchPrefix  TriggerMatchKind = "prefix"
	TriggerMatchPattern TriggerMatchKind = "pattern"
	TriggerMatchEvent   TriggerMatchKind = "event_type"
	TriggerMatchWildcard TriggerMatchKind = "wildcard"
)

// Trigger is a registration telling the router which module to invoke.
type Trigger struct {
	ModuleName   string           `json:"module_name"`
	Kind         TriggerMatchKind `json:"kind"`
	Pattern      string           `json:"pattern,omitempty"`       // command prefix or regex, per Kind
	EventType    MessageType      `json:"event_type,omitempty"`
	Priority     int              `json:"priority"`
	RequiredRole Role             `json:"required_role,omitempty"` // defaults to RoleMember
	Registered   int64            `json:"-"`                        // monotonic registration order, tie-breaker
}

// CommandEvent is the payload the router publishes to events:commands for
// each matched module.
type CommandEvent struct {
	SessionID string         `json:"session_id"`
	Session   Session        `json:"session"`
	Module    string         `json:"module"`
	Args      []string       `json:"args,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ModuleResponse is what a module posts back on events:responses.
type ModuleResponse struct {
	SessionID        string         `json:"session_id"`
	ModuleName       string         `json:"module_name"`
	Success          bool           `json:"success"`
	ResponseAction   *ActionPayload `json:"response_action,omitempty"`
	ResponseData     map[string]any `json:"response_data,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	ProcessingTimeMS int64          `json:"processing_time_ms"`
	PublishSeq       int64          `json:"-"` // FIFO ordering within one module
}

// ActionPayload is a platform-targeted action emitted on events:actions:<platform>.
type ActionPayload struct {
	SessionID string         `json:"session_id"`
	Platform  Platform       `json:"platform"`
	ChannelID string         `json:"channel_id"`
	Kind      string         `json:"kind"` // e.g. "chat_message", "reaction"
	Payload   map[string]any `json:"payload,omitempty"`
}
