package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penguintechinc/waddlebot-core/pkg/auth"
	"github.com/penguintechinc/waddlebot-core/pkg/models"
	"github.com/penguintechinc/waddlebot-core/pkg/router"
	"github.com/penguintechinc/waddlebot-core/pkg/streambus"
)

type fakeEntityResolver struct{}

func (fakeEntityResolver) Resolve(ctx context.Context, platform models.Platform, serverID, channelID string) (models.Community, models.Entity, bool, error) {
	return models.Community{ID: "c1"}, models.Entity{ID: "e1", CommunityID: "c1"}, true, nil
}

type fakeRoleResolver struct{}

func (fakeRoleResolver) RoleFor(ctx context.Context, communityID, userID string) (models.Role, error) {
	return models.RoleMember, nil
}

func newTestServer(t *testing.T) (*Server, streambus.Bus) {
	t.Helper()
	bus := streambus.NewMemoryBus()
	registry := router.NewRegistry()
	registry.Register(router.Trigger{ModuleName: "help_mod", Kind: router.TriggerPrefix, Pattern: "!help"})

	rt := router.New(router.Deps{
		Bus:          bus,
		Registry:     registry,
		Policy:       router.NewEngine(),
		Entities:     fakeEntityResolver{},
		Roles:        fakeRoleResolver{},
		Timeouts:     router.Timeouts{PerModule: time.Second, Session: 2 * time.Second},
		NewSessionID: func() string { return "generated-id" },
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rt.Start(ctx)
	t.Cleanup(rt.Stop)

	verifier := auth.NewVerifier([]byte("test-secret"), "HS256", nil)
	s := NewServer(rt, registry, bus, verifier)
	return s, bus
}

func bearerToken(t *testing.T) string {
	t.Helper()
	token, err := auth.IssueJWT([]byte("test-secret"), "HS256", "u1", "alice", "", []string{"member"}, time.Hour)
	require.NoError(t, err)
	return token
}

func TestHandleEvents_AcceptsAndReturnsSessionID(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(router.InboundEvent{
		UserID: "u1", Username: "alice", Message: "!help",
		MessageType: models.MessageTypeChatMessage, Platform: models.PlatformTwitch,
		ChannelID: "c7", ServerID: "s1",
	})
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearerToken(t))
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out eventsAcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Accepted)
	assert.NotEmpty(t, out.SessionID)
}

func TestHandleEvents_RejectsMissingMessage(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(router.InboundEvent{UserID: "u1", Platform: models.PlatformTwitch})
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearerToken(t))
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestHandleEvents_RejectsUnauthenticated(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(router.InboundEvent{UserID: "u1", Message: "hi", Platform: models.PlatformTwitch})
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleResponses_PublishesToResponseStream(t *testing.T) {
	s, bus := newTestServer(t)

	body, _ := json.Marshal(router.ModuleResponse{
		SessionID: "sess-1", ModuleName: "help_mod", Success: true, ResponseAction: "reply",
	})
	req := httptest.NewRequest(http.MethodPost, "/responses", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearerToken(t))
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	events, err := bus.Consume(context.Background(), streambus.StreamResponses, "test-group", "c1", 10, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	var resp router.ModuleResponse
	require.NoError(t, json.Unmarshal(events[0].Payload, &resp))
	assert.Equal(t, "sess-1", resp.SessionID)
}

func TestHandleCommands_ListsRegisteredTriggers(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/commands", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t))
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "help_mod")
}

func TestHandleHealth_NoAuthRequired(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
