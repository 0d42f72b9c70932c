package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/penguintechinc/waddlebot-core/pkg/errs"
	"github.com/penguintechinc/waddlebot-core/pkg/router"
	"github.com/penguintechinc/waddlebot-core/pkg/streambus"
)

// eventsAcceptedResponse is POST /events' immediate reply (spec.md §6:
// "Async; the router enqueues and returns").
type eventsAcceptedResponse struct {
	Accepted  bool   `json:"accepted"`
	SessionID string `json:"session_id"`
}

// handleEvents implements POST /events. The session id is minted up front
// so it can be returned synchronously; HandleEvent then runs in the
// background and carries the session through to completion independently
// of this request's lifetime.
func (s *Server) handleEvents(c *gin.Context) {
	var in router.InboundEvent
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, errs.NewValidationError("body", err.Error()))
		return
	}
	if in.Message == "" {
		writeError(c, errs.NewValidationError("message", "message is required"))
		return
	}
	if in.SessionID == "" {
		in.SessionID = newRequestID()
	}

	// Detached from the request context: the session must run to
	// completion even after this HTTP response is written.
	go func(in router.InboundEvent) {
		if _, err := s.router.HandleEvent(context.Background(), in); err != nil {
			s.logHandleEventError(in.SessionID, err)
		}
	}(in)

	c.JSON(http.StatusOK, eventsAcceptedResponse{Accepted: true, SessionID: in.SessionID})
}

// handleResponses implements POST /responses. Modules post their result
// here; it is republished onto events:responses for the router's
// aggregator, keeping HTTP and the stream as the only two entry points a
// module needs regardless of whether it reaches the router directly or
// through this boundary (spec.md §6).
func (s *Server) handleResponses(c *gin.Context) {
	var resp router.ModuleResponse
	if err := c.ShouldBindJSON(&resp); err != nil {
		writeError(c, errs.NewValidationError("body", err.Error()))
		return
	}
	if resp.SessionID == "" || resp.ModuleName == "" {
		writeError(c, errs.NewValidationError("session_id/module_name", "both are required"))
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		writeError(c, errs.ErrInternal)
		return
	}
	if _, err := s.bus.Publish(c.Request.Context(), streambus.StreamResponses, payload, 10000); err != nil {
		writeError(c, errs.ErrDependencyUnavailable)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// commandEntry is one GET /commands row: a registered trigger exposed for
// client-side autocomplete (spec.md §6).
type commandEntry struct {
	ModuleName string `json:"module_name"`
	Kind       string `json:"kind"`
	Pattern    string `json:"pattern,omitempty"`
	EventType  string `json:"event_type,omitempty"`
}

// handleCommands implements GET /commands?platform=….
func (s *Server) handleCommands(c *gin.Context) {
	platform := c.Query("platform")

	entries := make([]commandEntry, 0, len(s.registry.All()))
	for _, t := range s.registry.All() {
		if platform != "" && t.Kind == router.TriggerEvent && t.EventType != "" && t.EventType != platform {
			continue
		}
		entries = append(entries, commandEntry{
			ModuleName: t.ModuleName,
			Kind:       string(t.Kind),
			Pattern:    t.Pattern,
			EventType:  t.EventType,
		})
	}

	c.JSON(http.StatusOK, gin.H{"commands": entries})
}

func (s *Server) logHandleEventError(sessionID string, err error) {
	// A HandleEvent failure here means the router itself errored (not a
	// module failure, which it already records on the session) — surface
	// it for operators since the original HTTP caller has already moved on.
	// A downstream module's error string can echo back request headers or
	// webhook config it failed to validate, so it's masked before logging.
	slog.Error("async HandleEvent failed", "session_id", sessionID, "error", s.masker.Mask(err.Error()))
}
