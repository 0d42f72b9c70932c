package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresSource implements ActivitySource against the
// activity_message_events / analytics_bad_actor_alerts /
// analytics_community_health tables (pkg/database migration 0002),
// mirroring the queries in bot_score_service.py.
type PostgresSource struct {
	DB *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{DB: db}
}

func (p *PostgresSource) ActiveUserCount(ctx context.Context, communityID string, window ActivityWindow) (int, error) {
	const q = `
		SELECT COUNT(DISTINCT hub_user_id)
		FROM activity_message_events
		WHERE community_id = $1 AND created_at >= $2`
	var n int
	if err := p.DB.QueryRowContext(ctx, q, communityID, window.Since).Scan(&n); err != nil {
		return 0, fmt.Errorf("active user count: %w", err)
	}
	return n, nil
}

func (p *PostgresSource) BadActorCount(ctx context.Context, communityID string, window ActivityWindow) (int, error) {
	const q = `
		SELECT COUNT(DISTINCT platform_user_id)
		FROM analytics_bad_actor_alerts
		WHERE community_id = $1 AND status = 'pending' AND created_at >= $2`
	var n int
	if err := p.DB.QueryRowContext(ctx, q, communityID, window.Since).Scan(&n); err != nil {
		return 0, fmt.Errorf("bad actor count: %w", err)
	}
	return n, nil
}

func (p *PostgresSource) CommunityHealth(ctx context.Context, communityID string) (float64, float64, bool, error) {
	const q = `
		SELECT health_score, engagement_level
		FROM analytics_community_health
		WHERE community_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
	var health, engagement float64
	err := p.DB.QueryRowContext(ctx, q, communityID).Scan(&health, &engagement)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("community health: %w", err)
	}
	return health, engagement, true, nil
}

func (p *PostgresSource) ViolationCounts(ctx context.Context, communityID string, window ActivityWindow) (int, int, error) {
	const q = `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE violation_detected)
		FROM activity_message_events
		WHERE community_id = $1 AND created_at >= $2`
	var total, violations int
	if err := p.DB.QueryRowContext(ctx, q, communityID, window.Since).Scan(&total, &violations); err != nil {
		return 0, 0, fmt.Errorf("violation counts: %w", err)
	}
	return total, violations, nil
}

func (p *PostgresSource) RapidPosterCount(ctx context.Context, communityID string) (int, error) {
	const q = `
		SELECT COUNT(DISTINCT hub_user_id) FROM (
			SELECT hub_user_id, date_trunc('minute', created_at) AS minute_bucket, COUNT(*) AS msg_count
			FROM activity_message_events
			WHERE community_id = $1
			AND created_at >= now() - interval '24 hours'
			AND message_text IS NOT NULL
			GROUP BY hub_user_id, minute_bucket
			HAVING COUNT(*) > 5
		) rapid`
	var n int
	if err := p.DB.QueryRowContext(ctx, q, communityID).Scan(&n); err != nil {
		return 0, fmt.Errorf("rapid poster count: %w", err)
	}
	return n, nil
}

func (p *PostgresSource) DuplicateMessageUserCount(ctx context.Context, communityID string) (int, error) {
	const q = `
		SELECT COUNT(DISTINCT hub_user_id) FROM (
			SELECT hub_user_id, message_text, COUNT(*) AS dup_count
			FROM activity_message_events
			WHERE community_id = $1
			AND created_at >= now() - interval '5 minutes'
			AND message_text IS NOT NULL
			AND length(message_text) > 5
			GROUP BY hub_user_id, message_text
			HAVING COUNT(*) >= 3
		) duplicates`
	var n int
	if err := p.DB.QueryRowContext(ctx, q, communityID).Scan(&n); err != nil {
		return 0, fmt.Errorf("duplicate message count: %w", err)
	}
	return n, nil
}

// PostgresStore implements Store against the bot_scores table (pkg/database
// migration 0001).
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (p *PostgresStore) Get(ctx context.Context, communityID string) (*BotScore, bool, error) {
	const q = `
		SELECT overall, grade, size_category, component_scores, calculated_at, next_recalculation
		FROM bot_scores
		WHERE community_id = $1`
	var (
		score      BotScore
		componentsRaw []byte
	)
	score.CommunityID = communityID
	err := p.DB.QueryRowContext(ctx, q, communityID).Scan(
		&score.OverallScore, &score.Grade, &score.SizeCategory, &componentsRaw,
		&score.CalculatedAt, &score.NextRecalculation,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get bot score: %w", err)
	}
	if err := json.Unmarshal(componentsRaw, &score.Components); err != nil {
		return nil, false, fmt.Errorf("get bot score: decode components: %w", err)
	}
	return &score, true, nil
}

func (p *PostgresStore) Upsert(ctx context.Context, score BotScore) error {
	components, err := json.Marshal(score.Components)
	if err != nil {
		return fmt.Errorf("upsert bot score: encode components: %w", err)
	}
	weights, err := json.Marshal(map[string]float64{
		"bad_actor":     weightBadActor,
		"reputation":    weightReputation,
		"security":      weightSecurity,
		"ai_behavioral": weightAIBehavioral,
	})
	if err != nil {
		return fmt.Errorf("upsert bot score: encode weights: %w", err)
	}

	const q = `
		INSERT INTO bot_scores
			(community_id, overall, grade, size_category, component_scores, weights, calculated_at, next_recalculation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (community_id) DO UPDATE SET
			overall = EXCLUDED.overall,
			grade = EXCLUDED.grade,
			size_category = EXCLUDED.size_category,
			component_scores = EXCLUDED.component_scores,
			weights = EXCLUDED.weights,
			calculated_at = EXCLUDED.calculated_at,
			next_recalculation = EXCLUDED.next_recalculation`
	_, err = p.DB.ExecContext(ctx, q,
		score.CommunityID, score.OverallScore, score.Grade, score.SizeCategory,
		components, weights, score.CalculatedAt, score.NextRecalculation,
	)
	if err != nil {
		return fmt.Errorf("upsert bot score: %w", err)
	}
	return nil
}
