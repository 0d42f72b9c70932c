// Package analytics computes the per-community Bot-Score used to flag
// communities with anomalous, bot-like activity (spec.md §4.9).
//
// The composite score blends four independently-computed components —
// bad-actor prevalence, community reputation, content-security violations,
// and AI-behavioral anomaly detection — each scored 0-100 with 100 meaning
// "clean". Component weights and grade thresholds are grounded on
// original_source/core/analytics_core_module/services/bot_score_service.py.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Component weights applied to the weighted composite (spec.md §4.9).
const (
	weightBadActor     = 0.30
	weightReputation    = 0.25
	weightSecurity      = 0.20
	weightAIBehavioral = 0.25
)

// Grade thresholds, inclusive lower bound.
const (
	gradeThresholdA = 90
	gradeThresholdB = 80
	gradeThresholdC = 70
	gradeThresholdD = 60
)

// Community size category thresholds, by distinct active users.
const (
	sizeThresholdSmall  = 50
	sizeThresholdMedium = 500
)

// activityWindowDays is the lookback used for the bad-actor and security
// components, and for size-category derivation. The original pulled
// distinct-active-user counts from a separate query; SPEC_FULL.md's
// supplement unifies both onto one ActivityWindow so they can never drift
// (e.g. a community straddling the size threshold getting a different
// answer for size_category than for the bad-actor percentage denominator).
// The reputation component does not use this window: it reads the most
// recent community-health row whatever its age. The AI-behavioral component
// uses its own fixed windows (24h for rapid posters, 5 minutes for
// duplicate messages).
const activityWindowDays = 30

// recalculationInterval is how long a computed score stays fresh before a
// read triggers a recompute (spec.md §4.9).
const recalculationInterval = 24 * time.Hour

// ActivityWindow is the single time range every component score and the
// size category are computed against.
type ActivityWindow struct {
	Since time.Time
	Until time.Time
}

// NewActivityWindow builds the standard 30-day trailing window ending now.
func NewActivityWindow(now time.Time) ActivityWindow {
	return ActivityWindow{Since: now.Add(-activityWindowDays * 24 * time.Hour), Until: now}
}

// ComponentScores is the 0-100 breakdown behind the overall score.
type ComponentScores struct {
	BadActor     int `json:"bad_actor_score"`
	Reputation    int `json:"reputation_score"`
	Security      int `json:"security_score"`
	AIBehavioral int `json:"ai_behavioral_score"`
}

// BotScore is the persisted, cacheable result of one calculation.
type BotScore struct {
	CommunityID       string          `json:"community_id"`
	OverallScore      int             `json:"overall_score"`
	Grade             string          `json:"grade"`
	SizeCategory      string          `json:"size_category"`
	Components        ComponentScores `json:"component_scores"`
	CalculatedAt       time.Time       `json:"calculated_at"`
	NextRecalculation time.Time       `json:"next_recalculation"`
}

// Stale reports whether this score should be recomputed before being served.
func (b BotScore) Stale(now time.Time) bool {
	return !b.NextRecalculation.After(now)
}

// ActivitySource answers the raw activity questions a calculation needs.
// A Postgres-backed implementation runs the queries bot_score_service.py
// ran against activity_message_events, analytics_bad_actor_alerts, and
// analytics_community_health; tests substitute a fake.
type ActivitySource interface {
	// ActiveUserCount returns the count of distinct users active in the
	// window. Used both for the bad-actor percentage denominator and for
	// size-category derivation (SPEC_FULL.md §3).
	ActiveUserCount(ctx context.Context, communityID string, window ActivityWindow) (int, error)

	// BadActorCount returns the count of distinct users with a pending
	// bad-actor alert.
	BadActorCount(ctx context.Context, communityID string, window ActivityWindow) (int, error)

	// CommunityHealth returns the most recent health_score and
	// engagement_level recorded for the community. found is false when no
	// row exists, in which case callers fall back to a neutral default.
	CommunityHealth(ctx context.Context, communityID string) (healthScore, engagement float64, found bool, err error)

	// ViolationCounts returns total messages and how many of them were
	// flagged by the content filter, over the window.
	ViolationCounts(ctx context.Context, communityID string, window ActivityWindow) (total, violations int, err error)

	// RapidPosterCount returns the count of distinct users who posted more
	// than 5 messages within a single minute bucket, over the trailing 24h.
	RapidPosterCount(ctx context.Context, communityID string) (int, error)

	// DuplicateMessageUserCount returns the count of distinct users who
	// repeated an identical message 3+ times within a trailing 5-minute
	// window.
	DuplicateMessageUserCount(ctx context.Context, communityID string) (int, error)
}

// Store persists and retrieves the cached BotScore row.
type Store interface {
	Get(ctx context.Context, communityID string) (*BotScore, bool, error)
	Upsert(ctx context.Context, score BotScore) error
}

// Clock returns the current time; overridden in tests to make staleness
// and next_recalculation deterministic.
type Clock func() time.Time

// Service calculates and caches community Bot-Scores.
type Service struct {
	Source ActivitySource
	Store  Store
	Now    Clock
	log    *slog.Logger
}

// NewService wires a Service from its collaborators. now defaults to
// time.Now when nil.
func NewService(source ActivitySource, store Store, now Clock) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{Source: source, Store: store, Now: now, log: slog.With("component", "analytics")}
}

// GetScore returns the cached score for community, recalculating first if
// the cached row is missing or stale (spec.md §4.9).
func (s *Service) GetScore(ctx context.Context, communityID string) (*BotScore, error) {
	cached, found, err := s.Store.Get(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("analytics: get cached score: %w", err)
	}
	if found && !cached.Stale(s.Now()) {
		return cached, nil
	}
	return s.Calculate(ctx, communityID)
}

// Calculate computes every component score from one ActivityWindow, applies
// the weighted composite, and upserts the result.
func (s *Service) Calculate(ctx context.Context, communityID string) (*BotScore, error) {
	now := s.Now()
	window := NewActivityWindow(now)

	activeUsers, err := s.Source.ActiveUserCount(ctx, communityID, window)
	if err != nil {
		return nil, fmt.Errorf("analytics: active user count: %w", err)
	}

	components := ComponentScores{
		BadActor:     s.badActorScore(ctx, communityID, window, activeUsers),
		Reputation:    s.reputationScore(ctx, communityID),
		Security:      s.securityScore(ctx, communityID, window),
		AIBehavioral: s.aiBehavioralScore(ctx, communityID, activeUsers),
	}

	overall := clamp(int(round(
		float64(components.BadActor)*weightBadActor +
			float64(components.Reputation)*weightReputation +
			float64(components.Security)*weightSecurity +
			float64(components.AIBehavioral)*weightAIBehavioral,
	)), 0, 100)

	score := BotScore{
		CommunityID:       communityID,
		OverallScore:      overall,
		Grade:             grade(overall),
		SizeCategory:      sizeCategory(activeUsers),
		Components:        components,
		CalculatedAt:       now,
		NextRecalculation: now.Add(recalculationInterval),
	}

	if err := s.Store.Upsert(ctx, score); err != nil {
		return nil, fmt.Errorf("analytics: upsert score: %w", err)
	}

	s.log.Info("bot score calculated",
		"community_id", communityID, "overall_score", overall, "grade", score.Grade)

	return &score, nil
}

// badActorScore: 100 minus 5x the bad-actor percentage, floored at 0.
// Falls back to a neutral 50 on a query failure — a transient DB error
// calculating one component shouldn't block the whole composite.
func (s *Service) badActorScore(ctx context.Context, communityID string, window ActivityWindow, activeUsers int) int {
	badActors, err := s.Source.BadActorCount(ctx, communityID, window)
	if err != nil {
		s.log.Error("bad actor count failed, using neutral default", "community_id", communityID, "error", err)
		return 50
	}
	denominator := activeUsers
	if denominator <= 0 {
		denominator = 1
	}
	pct := float64(badActors) / float64(denominator) * 100
	return clamp(100-int(pct*5), 0, 100)
}

// reputationScore blends the community health score (70%) with engagement
// level (30%). Falls back to a neutral 50 when no health row exists.
func (s *Service) reputationScore(ctx context.Context, communityID string) int {
	health, engagement, found, err := s.Source.CommunityHealth(ctx, communityID)
	if err != nil {
		s.log.Error("community health lookup failed, using neutral default", "community_id", communityID, "error", err)
		return 50
	}
	if !found {
		return 50
	}
	return clamp(int(health*0.7+engagement*0.3), 0, 100)
}

// securityScore: 100 minus 10x the content-filter violation rate, floored
// at 0. Falls back to a neutral 75 on missing data, matching the original's
// "mostly clean until proven otherwise" default.
func (s *Service) securityScore(ctx context.Context, communityID string, window ActivityWindow) int {
	total, violations, err := s.Source.ViolationCounts(ctx, communityID, window)
	if err != nil {
		s.log.Error("violation count failed, using neutral default", "community_id", communityID, "error", err)
		return 75
	}
	if total <= 0 {
		return 75
	}
	rate := float64(violations) / float64(total) * 100
	return clamp(100-int(rate*10), 0, 100)
}

// aiBehavioralScore: 100 minus 10x the anomaly percentage among active
// users, where anomalies are rapid posters detected over the trailing 24h
// and duplicate-message users detected over the trailing 5 minutes. Falls
// back to a neutral 60.
func (s *Service) aiBehavioralScore(ctx context.Context, communityID string, activeUsers int) int {
	rapid, err := s.Source.RapidPosterCount(ctx, communityID)
	if err != nil {
		s.log.Error("rapid poster count failed, using neutral default", "community_id", communityID, "error", err)
		return 60
	}
	duplicates, err := s.Source.DuplicateMessageUserCount(ctx, communityID)
	if err != nil {
		s.log.Error("duplicate message count failed, using neutral default", "community_id", communityID, "error", err)
		return 60
	}
	denominator := activeUsers
	if denominator <= 0 {
		denominator = 1
	}
	anomalyPct := float64(rapid+duplicates) / float64(denominator) * 100
	return clamp(100-int(anomalyPct*10), 0, 100)
}

func grade(score int) string {
	switch {
	case score >= gradeThresholdA:
		return "A"
	case score >= gradeThresholdB:
		return "B"
	case score >= gradeThresholdC:
		return "C"
	case score >= gradeThresholdD:
		return "D"
	default:
		return "F"
	}
}

func sizeCategory(activeUsers int) string {
	switch {
	case activeUsers < sizeThresholdSmall:
		return "small"
	case activeUsers < sizeThresholdMedium:
		return "medium"
	default:
		return "large"
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round(f float64) float64 {
	if f < 0 {
		return float64(int(f - 0.5))
	}
	return float64(int(f + 0.5))
}
