package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
)

func chatSession(message string) models.Session {
	return models.Session{MessageType: models.MessageTypeChatMessage, Message: message}
}

func TestTrigger_PrefixMatchesExactCommand(t *testing.T) {
	trig := Trigger{ModuleName: "help_mod", Kind: TriggerPrefix, Pattern: "!help"}
	assert.True(t, trig.Matches(chatSession("!help me"), models.Community{}))
	assert.False(t, trig.Matches(chatSession("hello !help"), models.Community{}))
}

func TestTrigger_QuestionMatchesTrailingMarkOrConfiguredPhrase(t *testing.T) {
	trig := Trigger{ModuleName: "qa_mod", Kind: TriggerQuestion}
	community := models.Community{Config: models.CommunityConfig{QuestionTriggers: []string{"what time"}}}

	assert.True(t, trig.Matches(chatSession("is this thing on?"), community))
	assert.True(t, trig.Matches(chatSession("what time does the show start"), community))
	assert.False(t, trig.Matches(chatSession("just chatting"), community))
}

func TestTrigger_WildcardMatchesAnyChatMessage(t *testing.T) {
	trig := Trigger{ModuleName: "catch_all", Kind: TriggerWildcard}
	assert.True(t, trig.Matches(chatSession("anything at all"), models.Community{}))
	assert.False(t, trig.Matches(models.Session{MessageType: models.MessageTypeEvent}, models.Community{}))
}

func TestTrigger_EventMatchesBySubType(t *testing.T) {
	trig := Trigger{ModuleName: "sub_mod", Kind: TriggerEvent, EventType: "subscribe"}
	session := models.Session{MessageType: models.MessageTypeEvent, Metadata: map[string]any{"event_type": "subscribe"}}
	assert.True(t, trig.Matches(session, models.Community{}))

	other := models.Session{MessageType: models.MessageTypeEvent, Metadata: map[string]any{"event_type": "raid"}}
	assert.False(t, trig.Matches(other, models.Community{}))
}

// ────────────────────────────────────────────────────────────
// spec.md §4.7: ties broken by priority then registration order.
// ────────────────────────────────────────────────────────────

func TestRegistry_ResolveOrdersByPriorityThenRegistration(t *testing.T) {
	r := NewRegistry()
	r.Register(Trigger{ModuleName: "low", Kind: TriggerWildcard, Priority: 0})
	r.Register(Trigger{ModuleName: "high", Kind: TriggerWildcard, Priority: 10})
	r.Register(Trigger{ModuleName: "mid-first", Kind: TriggerWildcard, Priority: 5})
	r.Register(Trigger{ModuleName: "mid-second", Kind: TriggerWildcard, Priority: 5})

	matched := r.Resolve(chatSession("hi"), models.Community{})
	names := make([]string, len(matched))
	for i, t := range matched {
		names[i] = t.ModuleName
	}
	assert.Equal(t, []string{"high", "mid-first", "mid-second", "low"}, names)
}

func TestRegistry_ResolveReturnsOnlyMatchingTriggers(t *testing.T) {
	r := NewRegistry()
	r.Register(Trigger{ModuleName: "help_mod", Kind: TriggerPrefix, Pattern: "!help"})
	r.Register(Trigger{ModuleName: "greet_mod", Kind: TriggerGreeting, Pattern: "hello"})

	matched := r.Resolve(chatSession("!help"), models.Community{})
	assert.Len(t, matched, 1)
	assert.Equal(t, "help_mod", matched[0].ModuleName)
}
