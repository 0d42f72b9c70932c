package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/penguintechinc/waddlebot-core/pkg/auth"
)

// APIKeyStore implements auth.APIKeyStore against the api_keys table
// (pkg/database migration 0003).
type APIKeyStore struct {
	DB *sql.DB
}

func NewAPIKeyStore(db *sql.DB) *APIKeyStore {
	return &APIKeyStore{DB: db}
}

func (s *APIKeyStore) Lookup(ctx context.Context, rawKey string) (*auth.APIKeyRecord, bool, error) {
	const q = `
		SELECT api_key, user_id, community_id, roles
		FROM api_keys
		WHERE api_key = $1 AND revoked_at IS NULL`
	var (
		rec       auth.APIKeyRecord
		rolesJSON []byte
	)
	err := s.DB.QueryRowContext(ctx, q, rawKey).Scan(&rec.Key, &rec.UserID, &rec.CommunityID, &rolesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup api key: %w", err)
	}
	if err := json.Unmarshal(rolesJSON, &rec.Roles); err != nil {
		return nil, false, fmt.Errorf("lookup api key: decode roles: %w", err)
	}
	return &rec, true, nil
}
