package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
)

func TestEngine_AllowsWhenEverythingSatisfied(t *testing.T) {
	e := NewEngine()
	decision := e.Check(context.Background(), PolicyInput{
		UserRole:     models.RoleMember,
		RequiredRole: models.RoleMember,
	})
	assert.True(t, decision.Allowed)
}

func TestEngine_RoleDenialWhenUserBelowRequired(t *testing.T) {
	e := NewEngine()
	decision := e.Check(context.Background(), PolicyInput{
		UserRole:     models.RoleVisitor,
		RequiredRole: models.RoleModerator,
	})
	assert.False(t, decision.Allowed)
	assert.Equal(t, "role", decision.DeniedBy)
}

func TestEngine_DelegatedGrantDenialWhenCapabilityMissing(t *testing.T) {
	e := NewEngine()
	decision := e.Check(context.Background(), PolicyInput{
		UserRole:           models.RoleMember,
		RequiredRole:       models.RoleMember,
		RequiredCapability: "calendar.admin",
		Capabilities:       map[string]bool{"other.cap": true},
	})
	assert.False(t, decision.Allowed)
	assert.Equal(t, "delegated_grant", decision.DeniedBy)
}

func TestEngine_FeatureFlagDenialWhenTranslationRequiredButDisabled(t *testing.T) {
	e := NewEngine()
	decision := e.Check(context.Background(), PolicyInput{
		UserRole:            models.RoleMember,
		RequiredRole:        models.RoleMember,
		RequiresTranslation: true,
		TranslationEnabled:  false,
	})
	assert.False(t, decision.Allowed)
	assert.Equal(t, "feature_flag", decision.DeniedBy)
}

func TestEngine_RateLimitDenialShortCircuitsBeforeRoleCheck(t *testing.T) {
	e := &Engine{Limiter: denyAllLimiter{}}
	decision := e.Check(context.Background(), PolicyInput{
		UserRole:     models.RoleVisitor, // would also fail role, but rate limit must win
		RequiredRole: models.RoleModerator,
		RateLimit:    models.RateLimitConfig{Limit: 1},
	})
	assert.False(t, decision.Allowed)
	assert.Equal(t, "rate_limit", decision.DeniedBy)
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(community, user, module string, cfg models.RateLimitConfig) bool {
	return false
}

func TestTokenBucketLimiter_UnlimitedWhenLimitIsZero(t *testing.T) {
	l := NewTokenBucketLimiter()
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("c1", "u1", "m1", models.RateLimitConfig{}))
	}
}

func TestTokenBucketLimiter_DeniesAfterBurstExhausted(t *testing.T) {
	l := NewTokenBucketLimiter()
	cfg := models.RateLimitConfig{Limit: 2, Window: 0}
	assert.True(t, l.Allow("c1", "u1", "m1", cfg))
	assert.True(t, l.Allow("c1", "u1", "m1", cfg))
	assert.False(t, l.Allow("c1", "u1", "m1", cfg))
}
