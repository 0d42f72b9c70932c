package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
	"github.com/penguintechinc/waddlebot-core/pkg/streambus"
)

type fakeEntityResolver struct {
	community models.Community
	entity    models.Entity
	found     bool
}

func (f fakeEntityResolver) Resolve(ctx context.Context, platform models.Platform, serverID, channelID string) (models.Community, models.Entity, bool, error) {
	return f.community, f.entity, f.found, nil
}

type fakeRoleResolver struct{ role models.Role }

func (f fakeRoleResolver) RoleFor(ctx context.Context, communityID, userID string) (models.Role, error) {
	return f.role, nil
}

func baseDeps(bus streambus.Bus, registry *Registry) Deps {
	return Deps{
		Bus:      bus,
		Registry: registry,
		Policy:   NewEngine(),
		Entities: fakeEntityResolver{
			community: models.Community{ID: "c1", Config: models.CommunityConfig{}},
			entity:    models.Entity{ID: "e1", CommunityID: "c1"},
			found:     true,
		},
		Roles:        fakeRoleResolver{role: models.RoleMember},
		Timeouts:     Timeouts{PerModule: 2 * time.Second, Session: 3 * time.Second},
		NewSessionID: func() string { return "sess-1" },
		MaxRetries:   1000,
	}
}

// simulateModule consumes one command event for moduleName and publishes a
// success response carrying responseAction, echoing the session id.
func simulateModule(t *testing.T, bus streambus.Bus, moduleName, responseAction string) {
	t.Helper()
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			events, err := bus.Consume(context.Background(), streambus.StreamCommands, moduleName, "w1", 10, 50)
			if err != nil || len(events) == 0 {
				continue
			}
			for _, e := range events {
				var cmd CommandEvent
				_ = json.Unmarshal(e.Payload, &cmd)
				_ = bus.Ack(context.Background(), streambus.StreamCommands, moduleName, e.ID)
				if cmd.ModuleName != moduleName {
					continue
				}
				resp := ModuleResponse{
					SessionID:      cmd.SessionID,
					ModuleName:     moduleName,
					Success:        true,
					ResponseAction: responseAction,
					ResponseData:   map[string]any{"message": cmd.Message},
				}
				payload, _ := json.Marshal(resp)
				_, _ = bus.Publish(context.Background(), streambus.StreamResponses, payload, 1000)
				return
			}
		}
	}()
}

// ────────────────────────────────────────────────────────────
// spec.md §8 end-to-end scenario 1: inbound chat to action.
// ────────────────────────────────────────────────────────────

func TestRouter_InboundChatToAction(t *testing.T) {
	bus := streambus.NewMemoryBus()
	registry := NewRegistry()
	registry.Register(Trigger{ModuleName: "help_mod", Kind: TriggerPrefix, Pattern: "!help"})

	rt := New(baseDeps(bus, registry))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)
	defer rt.Stop()

	simulateModule(t, bus, "help_mod", "reply")

	in := InboundEvent{
		UserID:      "u1",
		Username:    "alice",
		Message:     "!help",
		MessageType: models.MessageTypeChatMessage,
		Platform:    models.PlatformTwitch,
		ChannelID:   "c7",
		ServerID:    "s1",
	}

	result, err := rt.HandleEvent(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompleted, result.Session.Status)
	require.Len(t, result.ModuleResults, 1)
	assert.Equal(t, OutcomeSuccess, result.ModuleResults[0].Outcome)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, result.Session.ID, result.Actions[0].SessionID)
	assert.Equal(t, models.PlatformTwitch, result.Actions[0].Platform)
	assert.Equal(t, "reply", result.Actions[0].Action)
}

func TestRouter_UnknownEntityIsRejected(t *testing.T) {
	bus := streambus.NewMemoryBus()
	registry := NewRegistry()
	deps := baseDeps(bus, registry)
	deps.Entities = fakeEntityResolver{found: false}

	rt := New(deps)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)
	defer rt.Stop()

	result, err := rt.HandleEvent(context.Background(), InboundEvent{
		Platform: models.PlatformDiscord, ChannelID: "missing", ServerID: "missing",
		MessageType: models.MessageTypeChatMessage, Message: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionRejected, result.Session.Status)
	assert.Equal(t, "unknown_entity", result.Session.RejectionReason)
}

// ────────────────────────────────────────────────────────────
// spec.md §4.7 Policy: a denied module is excluded from dispatch entirely,
// distinct from being dispatched and timing out.
// ────────────────────────────────────────────────────────────

func TestRouter_PolicyDenialExcludesModuleFromDispatch(t *testing.T) {
	bus := streambus.NewMemoryBus()
	registry := NewRegistry()
	registry.Register(Trigger{ModuleName: "admin_mod", Kind: TriggerPrefix, Pattern: "!ban"})

	deps := baseDeps(bus, registry)
	deps.Requirements = map[string]ModuleRequirement{
		"admin_mod": {RequiredRole: models.RoleAdmin},
	}
	deps.Timeouts = Timeouts{PerModule: 100 * time.Millisecond, Session: 200 * time.Millisecond}

	rt := New(deps)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)
	defer rt.Stop()

	result, err := rt.HandleEvent(context.Background(), InboundEvent{
		UserID: "u1", Username: "alice", Message: "!ban bob",
		MessageType: models.MessageTypeChatMessage, Platform: models.PlatformDiscord,
		ChannelID: "c7", ServerID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, result.Session.Status)
	assert.Empty(t, result.ModuleResults)
	assert.Empty(t, result.Actions)
}

// ────────────────────────────────────────────────────────────
// A dispatched module that never responds times out without blocking past
// the per-module deadline.
// ────────────────────────────────────────────────────────────

func TestRouter_DispatchedModuleTimesOutWithoutResponse(t *testing.T) {
	bus := streambus.NewMemoryBus()
	registry := NewRegistry()
	registry.Register(Trigger{ModuleName: "silent_mod", Kind: TriggerPrefix, Pattern: "!noop"})

	deps := baseDeps(bus, registry)
	deps.Timeouts = Timeouts{PerModule: 50 * time.Millisecond, Session: 2 * time.Second}

	rt := New(deps)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)
	defer rt.Stop()

	start := time.Now()
	result, err := rt.HandleEvent(context.Background(), InboundEvent{
		UserID: "u1", Username: "alice", Message: "!noop",
		MessageType: models.MessageTypeChatMessage, Platform: models.PlatformDiscord,
		ChannelID: "c7", ServerID: "s1",
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, result.ModuleResults, 1)
	assert.Equal(t, OutcomeTimedOut, result.ModuleResults[0].Outcome)
	assert.Empty(t, result.Actions)
	assert.Less(t, elapsed, 1*time.Second, "should time out at the per-module deadline, not the session deadline")
}

// ────────────────────────────────────────────────────────────
// spec.md end-to-end scenario 2: alias expansion carries through to the
// dispatched command's message.
// ────────────────────────────────────────────────────────────

func TestRouter_AliasExpansionReachesDispatchedModule(t *testing.T) {
	bus := streambus.NewMemoryBus()
	registry := NewRegistry()
	registry.Register(Trigger{ModuleName: "shoutout_mod", Kind: TriggerPrefix, Pattern: "shoutout"})

	aliasStore := &fakeAliasStore{aliases: map[string]*models.Alias{
		"e1|!so": {
			EntityID: "e1", Name: "!so",
			CommandType: models.CommandTypeAction, ActionCommand: "shoutout {arg1}",
			IsActive: true,
		},
	}}

	deps := baseDeps(bus, registry)
	deps.Aliases = aliasStore

	rt := New(deps)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)
	defer rt.Stop()

	var gotMessage string
	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			events, err := bus.Consume(context.Background(), streambus.StreamCommands, "shoutout_mod", "w1", 10, 50)
			if err != nil || len(events) == 0 {
				continue
			}
			var cmd CommandEvent
			_ = json.Unmarshal(events[0].Payload, &cmd)
			gotMessage = cmd.Message
			_ = bus.Ack(context.Background(), streambus.StreamCommands, "shoutout_mod", events[0].ID)
			resp := ModuleResponse{SessionID: cmd.SessionID, ModuleName: "shoutout_mod", Success: true}
			payload, _ := json.Marshal(resp)
			_, _ = bus.Publish(context.Background(), streambus.StreamResponses, payload, 1000)
			return
		}
	}()

	result, err := rt.HandleEvent(context.Background(), InboundEvent{
		UserID: "u1", Username: "alice", Message: "!so bob",
		MessageType: models.MessageTypeChatMessage, Platform: models.PlatformTwitch,
		ChannelID: "c7", ServerID: "s1",
	})
	<-done
	require.NoError(t, err)
	assert.Equal(t, "shoutout bob", gotMessage)
	assert.Equal(t, []string{"e1|!so"}, aliasStore.usageCalls)
	require.Len(t, result.ModuleResults, 1)
	assert.Equal(t, OutcomeSuccess, result.ModuleResults[0].Outcome)
}

// A failed usage-count bookkeeping write must not drop an otherwise
// successfully resolved alias expansion (spec.md §4.7 step 5).
func TestRouter_AliasExpansionSurvivesIncrementUsageFailure(t *testing.T) {
	bus := streambus.NewMemoryBus()
	registry := NewRegistry()
	registry.Register(Trigger{ModuleName: "shoutout_mod", Kind: TriggerPrefix, Pattern: "shoutout"})

	aliasStore := &fakeAliasStore{
		aliases: map[string]*models.Alias{
			"e1|!so": {
				EntityID: "e1", Name: "!so",
				CommandType: models.CommandTypeAction, ActionCommand: "shoutout {arg1}",
				IsActive: true,
			},
		},
		incrementErr: errors.New("db unavailable"),
	}

	deps := baseDeps(bus, registry)
	deps.Aliases = aliasStore

	rt := New(deps)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)
	defer rt.Stop()

	var gotMessage string
	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			events, err := bus.Consume(context.Background(), streambus.StreamCommands, "shoutout_mod", "w1", 10, 50)
			if err != nil || len(events) == 0 {
				continue
			}
			var cmd CommandEvent
			_ = json.Unmarshal(events[0].Payload, &cmd)
			gotMessage = cmd.Message
			_ = bus.Ack(context.Background(), streambus.StreamCommands, "shoutout_mod", events[0].ID)
			resp := ModuleResponse{SessionID: cmd.SessionID, ModuleName: "shoutout_mod", Success: true}
			payload, _ := json.Marshal(resp)
			_, _ = bus.Publish(context.Background(), streambus.StreamResponses, payload, 1000)
			return
		}
	}()

	result, err := rt.HandleEvent(context.Background(), InboundEvent{
		UserID: "u1", Username: "alice", Message: "!so bob",
		MessageType: models.MessageTypeChatMessage, Platform: models.PlatformTwitch,
		ChannelID: "c7", ServerID: "s1",
	})
	<-done
	require.NoError(t, err)
	assert.Equal(t, "shoutout bob", gotMessage, "expansion must apply even though IncrementUsage failed")
	require.Len(t, result.ModuleResults, 1)
	assert.Equal(t, OutcomeSuccess, result.ModuleResults[0].Outcome)
}

// ────────────────────────────────────────────────────────────
// spec.md §5: "if the router shuts down mid-session, the session is marked
// Failed(shutdown) after completing in-flight ack/publish operations."
// ────────────────────────────────────────────────────────────

func TestRouter_ShutdownMidSessionMarksFailedShutdown(t *testing.T) {
	bus := streambus.NewMemoryBus()
	registry := NewRegistry()
	registry.Register(Trigger{ModuleName: "slow_mod", Kind: TriggerPrefix, Pattern: "!slow"})

	deps := baseDeps(bus, registry)
	deps.Timeouts = Timeouts{PerModule: 5 * time.Second, Session: 5 * time.Second}

	rt := New(deps)
	ctx := context.Background()
	rt.Start(ctx)

	resultCh := make(chan *SessionResult, 1)
	go func() {
		result, err := rt.HandleEvent(ctx, InboundEvent{
			UserID: "u1", Username: "alice", Message: "!slow",
			MessageType: models.MessageTypeChatMessage, Platform: models.PlatformDiscord,
			ChannelID: "c7", ServerID: "s1",
		})
		require.NoError(t, err)
		resultCh <- result
	}()

	// Give HandleEvent a moment to reach Collecting before shutdown.
	time.Sleep(50 * time.Millisecond)
	rt.Stop()

	select {
	case result := <-resultCh:
		assert.Equal(t, models.SessionFailed, result.Session.Status)
		assert.Equal(t, "shutdown", result.Session.RejectionReason)
	case <-time.After(2 * time.Second):
		t.Fatal("HandleEvent did not return after shutdown")
	}
}
