package router

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
)

// PolicyInput is everything a single module-dispatch decision needs
// (spec.md §4.7 Policy & permissions).
type PolicyInput struct {
	CommunityID        string
	UserID             string
	ModuleName         string
	UserRole           models.Role
	RequiredRole       models.Role
	RateLimit          models.RateLimitConfig
	RequiredCapability string          // empty means no delegated grant required
	Capabilities       map[string]bool // capabilities held by the user in this event's scope
	TranslationEnabled bool
	RequiresTranslation bool // true if the module only runs when translation is on
}

// PolicyDecision is the outcome of running the four-kind chain.
type PolicyDecision struct {
	Allowed  bool
	DeniedBy string // "rate_limit" | "role" | "delegated_grant" | "feature_flag"
	Reason   string
}

func allow() PolicyDecision { return PolicyDecision{Allowed: true} }

func deny(by, reason string) PolicyDecision {
	return PolicyDecision{Allowed: false, DeniedBy: by, Reason: reason}
}

// RateLimiter checks a (community, user, module) token bucket.
type RateLimiter interface {
	Allow(community, user, module string, cfg models.RateLimitConfig) bool
}

// TokenBucketLimiter backs RateLimiter with one golang.org/x/time/rate
// limiter per (community, user, module) triple, lazily created from the
// module's configured limit/window.
type TokenBucketLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewTokenBucketLimiter builds an empty limiter registry.
func NewTokenBucketLimiter() *TokenBucketLimiter {
	return &TokenBucketLimiter{limiters: make(map[string]*rate.Limiter)}
}

// Allow reports whether the caller may proceed, creating (and burst-seeding)
// a limiter the first time this triple is seen. cfg.Limit <= 0 means
// unlimited.
func (t *TokenBucketLimiter) Allow(community, user, module string, cfg models.RateLimitConfig) bool {
	if cfg.Limit <= 0 {
		return true
	}
	key := community + "|" + user + "|" + module
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}

	t.mu.Lock()
	lim, ok := t.limiters[key]
	if !ok {
		r := rate.Limit(float64(cfg.Limit) / window.Seconds())
		lim = rate.NewLimiter(r, cfg.Limit)
		t.limiters[key] = lim
	}
	t.mu.Unlock()

	return lim.Allow()
}

// Engine runs the four policy kinds in the fixed order spec.md §4.7
// requires: rate limit, role, delegated grants, feature flags. Any denial
// short-circuits the remaining checks.
type Engine struct {
	Limiter RateLimiter
}

// NewEngine builds an Engine backed by a TokenBucketLimiter.
func NewEngine() *Engine {
	return &Engine{Limiter: NewTokenBucketLimiter()}
}

// Check runs the chain for one candidate module dispatch.
func (e *Engine) Check(ctx context.Context, in PolicyInput) PolicyDecision {
	if e.Limiter != nil && !e.Limiter.Allow(in.CommunityID, in.UserID, in.ModuleName, in.RateLimit) {
		return deny("rate_limit", "rate limit exceeded for "+in.ModuleName)
	}

	required := in.RequiredRole
	if required == "" {
		required = models.RoleMember
	}
	if !in.UserRole.Satisfies(required) {
		return deny("role", "role "+string(in.UserRole)+" does not satisfy required role "+string(required))
	}

	if in.RequiredCapability != "" && !in.Capabilities[in.RequiredCapability] {
		return deny("delegated_grant", "missing delegated capability "+in.RequiredCapability)
	}

	if in.RequiresTranslation && !in.TranslationEnabled {
		return deny("feature_flag", "translation is disabled for this community")
	}

	return allow()
}
