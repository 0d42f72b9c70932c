package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
)

// EntityStore implements router.EntityResolver against the communities
// and entities tables (pkg/database migration 0001). serverID is accepted
// for interface compatibility but not yet part of the lookup key; an
// entity is addressed uniquely by (platform, channel_id).
type EntityStore struct {
	DB *sql.DB
}

func NewEntityStore(db *sql.DB) *EntityStore {
	return &EntityStore{DB: db}
}

func (s *EntityStore) Resolve(ctx context.Context, platform models.Platform, _ string, channelID string) (models.Community, models.Entity, bool, error) {
	const q = `
		SELECT c.id, c.owner_user_id, c.config, c.created_at, c.updated_at,
		       e.id, e.community_id, e.platform, e.platform_entity_id, e.channel_id, e.created_at
		FROM entities e
		JOIN communities c ON c.id = e.community_id
		WHERE e.platform = $1 AND e.channel_id = $2 AND e.destroyed_at IS NULL`

	var (
		community  models.Community
		entity     models.Entity
		configJSON []byte
	)
	err := s.DB.QueryRowContext(ctx, q, platform, channelID).Scan(
		&community.ID, &community.OwnerUserID, &configJSON, &community.CreatedAt, &community.UpdatedAt,
		&entity.ID, &entity.CommunityID, &entity.Platform, &entity.PlatformEntityID, &entity.ChannelID, &entity.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Community{}, models.Entity{}, false, nil
	}
	if err != nil {
		return models.Community{}, models.Entity{}, false, fmt.Errorf("resolve entity: %w", err)
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &community.Config); err != nil {
			return models.Community{}, models.Entity{}, false, fmt.Errorf("resolve entity: decode community config: %w", err)
		}
	}
	return community, entity, true, nil
}

// MemberRoleStore implements router.RoleResolver against community_members
// (pkg/database migration 0003). A user with no membership row is
// RoleVisitor, the floor of the role hierarchy — unrecognized users never
// satisfy a module's default RoleMember requirement.
type MemberRoleStore struct {
	DB *sql.DB
}

func NewMemberRoleStore(db *sql.DB) *MemberRoleStore {
	return &MemberRoleStore{DB: db}
}

func (s *MemberRoleStore) RoleFor(ctx context.Context, communityID, userID string) (models.Role, error) {
	const q = `SELECT role FROM community_members WHERE community_id = $1 AND user_id = $2`
	var role string
	err := s.DB.QueryRowContext(ctx, q, communityID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RoleVisitor, nil
	}
	if err != nil {
		return "", fmt.Errorf("role for user: %w", err)
	}
	return models.Role(role), nil
}

// AliasStore implements router.AliasStore against the aliases table
// (pkg/database migration 0001).
type AliasStore struct {
	DB *sql.DB
}

func NewAliasStore(db *sql.DB) *AliasStore {
	return &AliasStore{DB: db}
}

func (s *AliasStore) Lookup(ctx context.Context, entityID, name string) (*models.Alias, bool, error) {
	const q = `
		SELECT entity_id, alias, command_type, response_text, action_command,
		       created_by, created_at, updated_at, usage_count, last_used, is_active
		FROM aliases
		WHERE entity_id = $1 AND alias = $2 AND is_active`
	var a models.Alias
	err := s.DB.QueryRowContext(ctx, q, entityID, name).Scan(
		&a.EntityID, &a.Name, &a.CommandType, &a.ResponseText, &a.ActionCommand,
		&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt, &a.UsageCount, &a.LastUsed, &a.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup alias: %w", err)
	}
	return &a, true, nil
}

func (s *AliasStore) IncrementUsage(ctx context.Context, entityID, name string) error {
	const q = `
		UPDATE aliases
		SET usage_count = usage_count + 1, last_used = now()
		WHERE entity_id = $1 AND alias = $2 AND is_active`
	if _, err := s.DB.ExecContext(ctx, q, entityID, name); err != nil {
		return fmt.Errorf("increment alias usage: %w", err)
	}
	return nil
}
