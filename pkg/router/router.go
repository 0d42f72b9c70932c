package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
	"github.com/penguintechinc/waddlebot-core/pkg/streambus"
)

// EntityResolver looks up the community and entity owning a platform
// location (spec.md §4.7 step 2, Resolving).
type EntityResolver interface {
	Resolve(ctx context.Context, platform models.Platform, serverID, channelID string) (models.Community, models.Entity, bool, error)
}

// RoleResolver reports a user's role within a community (spec.md §4.7
// Policy, Community membership / role check).
type RoleResolver interface {
	RoleFor(ctx context.Context, communityID, userID string) (models.Role, error)
}

// CapabilityResolver reports the delegated capabilities a user holds for a
// given resource (spec.md §4.7 Policy, per-event delegated grants).
type CapabilityResolver interface {
	CapabilitiesFor(ctx context.Context, communityID, userID, resource string) (map[string]bool, error)
}

// ModuleRequirement is attached to a Trigger's owning module so the Policy
// phase can enforce it (required role, capability, rate limit).
type ModuleRequirement struct {
	RequiredRole        models.Role
	RequiredCapability   string
	RateLimit            models.RateLimitConfig
	RequiresTranslation  bool
}

// Deps wires every collaborator the Router needs.
type Deps struct {
	Bus          streambus.Bus
	Registry     *Registry
	Policy       *Engine
	Aliases      AliasStore
	Entities     EntityResolver
	Roles        RoleResolver
	Capabilities CapabilityResolver
	Requirements map[string]ModuleRequirement // keyed by module name
	Timeouts     Timeouts
	NewSessionID func() string
	MaxRetries   int64
	ResponsesBlockMS int
}

type sessionWaiter struct {
	ch chan ModuleResponse
}

// Router is the session lifecycle state machine (spec.md §4.7).
type Router struct {
	deps Deps

	mu      sync.Mutex
	waiters map[string]*sessionWaiter
	cancels map[string]context.CancelFunc

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	log *slog.Logger
}

// New builds a Router. Call Start before routing any events so the single
// response-aggregating coroutine is running.
func New(deps Deps) *Router {
	if deps.Timeouts == (Timeouts{}) {
		deps.Timeouts = DefaultTimeouts()
	}
	if deps.ResponsesBlockMS == 0 {
		deps.ResponsesBlockMS = 2000
	}
	if deps.Requirements == nil {
		deps.Requirements = map[string]ModuleRequirement{}
	}
	return &Router{
		deps:    deps,
		waiters: make(map[string]*sessionWaiter),
		cancels: make(map[string]context.CancelFunc),
		stopCh:  make(chan struct{}),
		log:     slog.With("component", "router"),
	}
}

// Start launches the single coroutine that owns the events:responses
// aggregator (spec.md §5: "a session's responses aggregator is owned by
// exactly one coroutine").
func (rt *Router) Start(ctx context.Context) {
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		rt.runResponseDispatcher(ctx)
	}()
	rt.log.Info("router started")
}

// Stop signals the aggregator to stop and cancels every in-flight session's
// context, so HandleEvent calls currently in Collecting finish promptly
// with Failed(shutdown) (spec.md §5).
func (rt *Router) Stop() {
	rt.log.Info("router stopping")
	rt.mu.Lock()
	for id, cancel := range rt.cancels {
		rt.log.Warn("cancelling in-flight session for shutdown", "session_id", id)
		cancel()
	}
	rt.mu.Unlock()

	rt.stopOnce.Do(func() { close(rt.stopCh) })
	rt.wg.Wait()
	rt.log.Info("router stopped")
}

func (rt *Router) runResponseDispatcher(ctx context.Context) {
	const group, consumer = "router-aggregator", "aggregator"
	for {
		select {
		case <-rt.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		events, err := rt.deps.Bus.Consume(ctx, streambus.StreamResponses, group, consumer, 20, rt.deps.ResponsesBlockMS)
		if err != nil {
			rt.log.Error("response dispatcher consume failed", "error", err)
			continue
		}

		for _, e := range events {
			var resp ModuleResponse
			if err := json.Unmarshal(e.Payload, &resp); err != nil {
				rt.log.Error("malformed module response, moving to dlq", "error", err)
				_ = rt.deps.Bus.MoveToDLQ(ctx, streambus.StreamResponses, group, e.ID, "unmarshal: "+err.Error(), e.Payload, e.RetryCount)
				continue
			}

			rt.mu.Lock()
			w, ok := rt.waiters[resp.SessionID]
			rt.mu.Unlock()

			if ok {
				select {
				case w.ch <- resp:
				default:
					rt.log.Warn("session waiter channel full, dropping response", "session_id", resp.SessionID)
				}
			}
			// Responses for sessions that have already completed (waiter
			// gone) are simply acknowledged and discarded: there is no
			// slot left to fill.
			if err := rt.deps.Bus.Ack(ctx, streambus.StreamResponses, group, e.ID); err != nil {
				rt.log.Error("failed to ack module response", "error", err, "event_id", e.ID)
			}
		}
	}
}

// HandleEvent runs one inbound event through the full session lifecycle
// (spec.md §4.7 steps 1-9) and returns its terminal result.
func (rt *Router) HandleEvent(ctx context.Context, in InboundEvent) (*SessionResult, error) {
	session := rt.newSession(in)
	log := rt.log.With("session_id", session.ID, "platform", session.Platform)

	sessionCtx, cancel := context.WithCancel(ctx)
	rt.registerCancel(session.ID, cancel)
	defer func() {
		cancel()
		rt.unregisterCancel(session.ID)
	}()

	// Step 2: Resolving.
	session.Status = models.SessionResolving
	community, entity, found, err := rt.deps.Entities.Resolve(sessionCtx, session.Platform, session.ServerID, session.ChannelID)
	if err != nil {
		return nil, err
	}
	if !found {
		session.Status = models.SessionRejected
		session.RejectionReason = "unknown_entity"
		log.Warn("session rejected: unknown entity", "server_id", session.ServerID, "channel_id", session.ChannelID)
		return &SessionResult{Session: session}, nil
	}
	session.CommunityID = community.ID
	session.EntityID = entity.ID

	// Step 4: Classifying is a no-op beyond the message_type already
	// carried on the inbound event; session.MessageType is authoritative.
	session.Status = models.SessionClassifying

	// Step 5: Resolving Alias.
	session.Status = models.SessionResolvingAlias
	if session.MessageType == models.MessageTypeChatMessage && rt.deps.Aliases != nil {
		expanded, fired, err := ResolveAlias(sessionCtx, rt.deps.Aliases, entity.ID, session.Username, session.Message)
		if err != nil {
			if fired {
				// The alias matched and expanded; only its usage-count
				// bookkeeping failed, which must not drop the expansion.
				log.Warn("alias usage bookkeeping failed", "error", err)
			} else {
				log.Error("alias resolution failed", "error", err)
			}
		}
		if fired {
			session.Message = expanded
			log.Info("alias expanded", "expanded_message", expanded)
		}
	}

	// Step 3 + 6: Policy, then Dispatching. The role is resolved once per
	// session; capabilities, rate limit and feature flags are evaluated per
	// candidate module so a denial on one module never blocks another.
	role := models.RoleMember
	if rt.deps.Roles != nil {
		if r, err := rt.deps.Roles.RoleFor(sessionCtx, community.ID, session.UserID); err == nil {
			role = r
		} else {
			log.Error("role resolution failed, defaulting to member", "error", err)
		}
	}

	session.Status = models.SessionDispatching
	candidates := rt.deps.Registry.Resolve(session, community)

	var dispatched []string
	for _, trig := range candidates {
		req := rt.deps.Requirements[trig.ModuleName]
		requiredRole := req.RequiredRole
		if requiredRole == "" {
			requiredRole = trig.RequiredRole
		}

		var caps map[string]bool
		if req.RequiredCapability != "" && rt.deps.Capabilities != nil {
			caps, _ = rt.deps.Capabilities.CapabilitiesFor(sessionCtx, community.ID, session.UserID, session.ChannelID)
		}

		decision := rt.deps.Policy.Check(sessionCtx, PolicyInput{
			CommunityID:         community.ID,
			UserID:              session.UserID,
			ModuleName:          trig.ModuleName,
			UserRole:            role,
			RequiredRole:        requiredRole,
			RateLimit:           req.RateLimit,
			RequiredCapability:  req.RequiredCapability,
			Capabilities:        caps,
			TranslationEnabled:  community.Config.TranslationEnabled,
			RequiresTranslation: req.RequiresTranslation,
		})

		if !decision.Allowed {
			log.Info("module dispatch denied by policy", "module", trig.ModuleName, "denied_by", decision.DeniedBy, "reason", decision.Reason)
			continue
		}

		cmd := CommandEvent{
			SessionID:    session.ID,
			ModuleName:   trig.ModuleName,
			CommunityID:  community.ID,
			EntityID:     entity.ID,
			Platform:     session.Platform,
			ChannelID:    session.ChannelID,
			ServerID:     session.ServerID,
			UserID:       session.UserID,
			Username:     session.Username,
			DisplayName:  session.DisplayName,
			Message:      session.Message,
			MessageType:  session.MessageType,
			Metadata:     session.Metadata,
			DispatchedAt: time.Now(),
		}
		payload, err := json.Marshal(cmd)
		if err != nil {
			log.Error("failed to marshal command event", "error", err, "module", trig.ModuleName)
			continue
		}
		if _, err := rt.deps.Bus.Publish(sessionCtx, streambus.StreamCommands, payload, 10000); err != nil {
			log.Error("failed to publish command event", "error", err, "module", trig.ModuleName)
			continue
		}
		dispatched = append(dispatched, trig.ModuleName)
	}

	if len(dispatched) == 0 {
		session.Status = models.SessionCompleted
		return &SessionResult{Session: session}, nil
	}

	// Step 7: Collecting.
	session.Status = models.SessionCollecting
	results := rt.collect(sessionCtx, session.ID, dispatched)

	select {
	case <-sessionCtx.Done():
		session.Status = models.SessionFailed
		session.RejectionReason = "shutdown"
		return &SessionResult{Session: session, ModuleResults: results}, nil
	default:
	}

	// Step 8: Emitting.
	session.Status = models.SessionEmitting
	actions := rt.emit(sessionCtx, session, results)

	// Step 9: terminal.
	session.Status = models.SessionCompleted
	for _, r := range results {
		if r.Outcome == OutcomeFailed {
			session.Status = models.SessionFailed
			break
		}
	}

	return &SessionResult{Session: session, ModuleResults: results, Actions: actions}, nil
}

// collect implements spec.md §4.7 step 7: wait for one response per
// dispatched module, up to the per-module deadline, with the whole
// collection bounded by the global session deadline.
func (rt *Router) collect(ctx context.Context, sessionID string, modules []string) []ModuleResult {
	w := &sessionWaiter{ch: make(chan ModuleResponse, len(modules)*4)}
	rt.mu.Lock()
	rt.waiters[sessionID] = w
	rt.mu.Unlock()
	defer func() {
		rt.mu.Lock()
		delete(rt.waiters, sessionID)
		rt.mu.Unlock()
	}()

	slots := make(map[string]*ModuleResult, len(modules))
	deadlines := make(map[string]time.Time, len(modules))
	now := time.Now()
	for _, m := range modules {
		slots[m] = &ModuleResult{ModuleName: m, Outcome: OutcomeTimedOut}
		deadlines[m] = now.Add(rt.deps.Timeouts.PerModule)
	}
	sessionDeadline := now.Add(rt.deps.Timeouts.Session)
	remaining := len(modules)

collectLoop:
	for remaining > 0 {
		next := sessionDeadline
		for m, dl := range deadlines {
			if slots[m].Response == nil && dl.Before(next) {
				next = dl
			}
		}
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}

		select {
		case resp := <-w.ch:
			slot, ok := slots[resp.ModuleName]
			if !ok || slot.Response != nil {
				continue // unexpected module or a duplicate; FIFO keeps the first
			}
			r := resp
			slot.Response = &r
			if resp.Success {
				slot.Outcome = OutcomeSuccess
			} else {
				slot.Outcome = OutcomeFailed
			}
			remaining--

		case <-time.After(wait):
			now := time.Now()
			if !now.Before(sessionDeadline) {
				break collectLoop
			}
			for m, dl := range deadlines {
				if slots[m].Response == nil && !now.Before(dl) {
					delete(deadlines, m)
					remaining--
				}
			}

		case <-ctx.Done():
			break collectLoop
		}
	}

	out := make([]ModuleResult, 0, len(modules))
	for _, m := range modules {
		out = append(out, *slots[m])
	}
	return out
}

// emit implements spec.md §4.7 step 8: publish an action for every
// successful result that carries a response_action.
func (rt *Router) emit(ctx context.Context, session models.Session, results []ModuleResult) []ActionEvent {
	var actions []ActionEvent
	for _, r := range results {
		if r.Outcome != OutcomeSuccess || r.Response == nil || r.Response.ResponseAction == "" {
			continue
		}
		action := ActionEvent{
			SessionID:  session.ID,
			ModuleName: r.ModuleName,
			Action:     r.Response.ResponseAction,
			Data:       r.Response.ResponseData,
			Platform:   session.Platform,
		}
		payload, err := json.Marshal(action)
		if err != nil {
			rt.log.Error("failed to marshal action event", "error", err, "module", r.ModuleName)
			continue
		}
		stream := streambus.ActionStream(string(session.Platform))
		if _, err := rt.deps.Bus.Publish(ctx, stream, payload, 10000); err != nil {
			rt.log.Error("failed to publish action event", "error", err, "module", r.ModuleName)
			continue
		}
		actions = append(actions, action)
	}
	return actions
}

func (rt *Router) newSession(in InboundEvent) models.Session {
	id := in.SessionID
	if id == "" && rt.deps.NewSessionID != nil {
		id = rt.deps.NewSessionID()
	}
	return models.Session{
		ID:            id,
		Platform:      in.Platform,
		UserID:        in.UserID,
		Username:      in.Username,
		DisplayName:   in.DisplayName,
		Message:       in.Message,
		MessageType:   in.MessageType,
		ChannelID:     in.ChannelID,
		ServerID:      in.ServerID,
		Metadata:      in.Metadata,
		ArrivedAt:     time.Now(),
		CorrelationID: id,
		Status:        models.SessionReceived,
	}
}

func (rt *Router) registerCancel(sessionID string, cancel context.CancelFunc) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.cancels[sessionID] = cancel
}

func (rt *Router) unregisterCancel(sessionID string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.cancels, sessionID)
}
