package router

import (
	"strings"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
)

// TriggerKind enumerates the match strategies spec.md §4.7 lists. The
// router does not rank matches by kind: every matching trigger is returned,
// ordered by Priority and then registration order.
type TriggerKind string

const (
	TriggerPrefix   TriggerKind = "prefix"
	TriggerGreeting TriggerKind = "greeting"
	TriggerFarewell TriggerKind = "farewell"
	TriggerQuestion TriggerKind = "question"
	TriggerWildcard TriggerKind = "wildcard"
	// TriggerEvent matches non-chatMessage families (slashCommand,
	// interaction, event, scheduled) by exact event type.
	TriggerEvent TriggerKind = "event"
)

// Trigger is a registered `{pattern, event_type, module_name, priority}`
// binding (spec.md §4.7). RegisteredAt breaks ties after Priority.
type Trigger struct {
	ModuleName   string
	Kind         TriggerKind
	Pattern      string      // command prefix or keyword; unused for wildcard
	EventType    string      // only meaningful for Kind == TriggerEvent
	Priority     int
	RegisteredAt int64
	RequiredRole models.Role // zero value -> RoleMember default, per spec.md §4.7
}

// Matches reports whether this trigger fires for the given session and
// community configuration. It is a pure predicate: spec.md §8's invariant
// is "the set of modules invoked is exactly the set of triggers whose
// matches(event) returns true, minus those denied by policy" — so every
// trigger is evaluated independently, not first-match-wins.
func (t Trigger) Matches(session models.Session, community models.Community) bool {
	switch t.Kind {
	case TriggerPrefix:
		return session.MessageType == models.MessageTypeChatMessage &&
			strings.HasPrefix(session.Message, t.Pattern)
	case TriggerGreeting, TriggerFarewell:
		return session.MessageType == models.MessageTypeChatMessage &&
			containsWord(session.Message, t.Pattern)
	case TriggerQuestion:
		if session.MessageType != models.MessageTypeChatMessage {
			return false
		}
		if strings.HasSuffix(strings.TrimSpace(session.Message), "?") {
			return true
		}
		for _, q := range community.Config.QuestionTriggers {
			if containsWord(session.Message, q) {
				return true
			}
		}
		return false
	case TriggerWildcard:
		return session.MessageType == models.MessageTypeChatMessage
	case TriggerEvent:
		if session.MessageType != models.MessageTypeSlashCommand &&
			session.MessageType != models.MessageTypeInteraction &&
			session.MessageType != models.MessageTypeEvent &&
			session.MessageType != models.MessageTypeScheduled {
			return false
		}
		if t.EventType == "" {
			return true
		}
		sub, _ := session.Metadata["event_type"].(string)
		return sub == t.EventType || string(session.MessageType) == t.EventType
	default:
		return false
	}
}

func containsWord(message, word string) bool {
	if word == "" {
		return false
	}
	return strings.Contains(strings.ToLower(message), strings.ToLower(word))
}

// Registry holds registered triggers and resolves matches for a session.
type Registry struct {
	triggers []Trigger
	seq      int64
}

// NewRegistry builds an empty trigger registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds t, stamping its registration order for tie-breaking.
func (r *Registry) Register(t Trigger) {
	r.seq++
	t.RegisteredAt = r.seq
	r.triggers = append(r.triggers, t)
}

// All returns every registered trigger (primarily for GET /commands).
func (r *Registry) All() []Trigger {
	out := make([]Trigger, len(r.triggers))
	copy(out, r.triggers)
	return out
}

// Resolve returns every trigger that matches the session, ordered by
// priority (descending) then registration order (ascending) for stable,
// deterministic dispatch ordering.
func (r *Registry) Resolve(session models.Session, community models.Community) []Trigger {
	var matched []Trigger
	for _, t := range r.triggers {
		if t.Matches(session, community) {
			matched = append(matched, t)
		}
	}
	for i := 1; i < len(matched); i++ {
		for j := i; j > 0; j-- {
			a, b := matched[j-1], matched[j]
			if a.Priority < b.Priority || (a.Priority == b.Priority && a.RegisteredAt > b.RegisteredAt) {
				matched[j-1], matched[j] = matched[j], matched[j-1]
				continue
			}
			break
		}
	}
	return matched
}
