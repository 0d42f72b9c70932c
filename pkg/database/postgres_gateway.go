package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
)

// ServerStore implements gateway.ServerStore against platform_servers
// (pkg/database migration 0003), create-if-missing keyed by (platform,
// platform_entity_id).
type ServerStore struct {
	DB *sql.DB
}

func NewServerStore(db *sql.DB) *ServerStore {
	return &ServerStore{DB: db}
}

func (s *ServerStore) EnsureServer(ctx context.Context, platform models.Platform, platformEntityID string) (string, error) {
	const selectQ = `SELECT id FROM platform_servers WHERE platform = $1 AND platform_entity_id = $2`
	var id string
	err := s.DB.QueryRowContext(ctx, selectQ, platform, platformEntityID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("ensure server: lookup: %w", err)
	}

	id, err = newRandomID("srv")
	if err != nil {
		return "", fmt.Errorf("ensure server: %w", err)
	}
	const insertQ = `
		INSERT INTO platform_servers (id, platform, platform_entity_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (platform, platform_entity_id) DO UPDATE SET platform = EXCLUDED.platform
		RETURNING id`
	if err := s.DB.QueryRowContext(ctx, insertQ, id, platform, platformEntityID).Scan(&id); err != nil {
		return "", fmt.Errorf("ensure server: insert: %w", err)
	}
	return id, nil
}

// ActivationCodeStore implements gateway.ActivationCodes against
// pending_activation_codes (pkg/database migration 0003).
type ActivationCodeStore struct {
	DB *sql.DB
}

func NewActivationCodeStore(db *sql.DB) *ActivationCodeStore {
	return &ActivationCodeStore{DB: db}
}

func (s *ActivationCodeStore) Allocate(ctx context.Context, serverID string) (string, error) {
	code, err := newRandomID("act")
	if err != nil {
		return "", fmt.Errorf("allocate activation code: %w", err)
	}
	const q = `INSERT INTO pending_activation_codes (code, server_id) VALUES ($1, $2)`
	if _, err := s.DB.ExecContext(ctx, q, code, serverID); err != nil {
		return "", fmt.Errorf("allocate activation code: %w", err)
	}
	return code, nil
}

func (s *ActivationCodeStore) Revoke(ctx context.Context, code string) error {
	const q = `DELETE FROM pending_activation_codes WHERE code = $1`
	if _, err := s.DB.ExecContext(ctx, q, code); err != nil {
		return fmt.Errorf("revoke activation code: %w", err)
	}
	return nil
}

// GatewayStore implements gateway.GatewayRegistry against the gateways
// table (pkg/database migration 0001).
type GatewayStore struct {
	DB *sql.DB
}

func NewGatewayStore(db *sql.DB) *GatewayStore {
	return &GatewayStore{DB: db}
}

func (s *GatewayStore) Register(ctx context.Context, entity models.Entity, activationCode string) error {
	id, err := newRandomID("gw")
	if err != nil {
		return fmt.Errorf("register gateway: %w", err)
	}
	const q = `
		INSERT INTO gateways (id, community_id, platform, channel_id, activation_code, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')`
	if _, err := s.DB.ExecContext(ctx, q, id, entity.CommunityID, entity.Platform, entity.ChannelID, activationCode); err != nil {
		return fmt.Errorf("register gateway: %w", err)
	}
	return nil
}

func (s *GatewayStore) Unregister(ctx context.Context, entityID string) error {
	// Gateways are keyed by (community_id, platform, channel_id), not
	// entity_id directly; the caller's entity carries those fields, so
	// this deletes by the entity's own channel/platform/community triple.
	const q = `
		DELETE FROM gateways
		WHERE community_id = (SELECT community_id FROM entities WHERE id = $1)
		AND channel_id = (SELECT channel_id FROM entities WHERE id = $1)
		AND platform = (SELECT platform FROM entities WHERE id = $1)`
	if _, err := s.DB.ExecContext(ctx, q, entityID); err != nil {
		return fmt.Errorf("unregister gateway: %w", err)
	}
	return nil
}

func newRandomID(prefix string) (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + "_" + hex.EncodeToString(b), nil
}
