package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
)

type fakeAliasStore struct {
	aliases      map[string]*models.Alias // keyed by entityID+"|"+name
	usageCalls   []string
	incrementErr error
}

func (f *fakeAliasStore) Lookup(ctx context.Context, entityID, name string) (*models.Alias, bool, error) {
	a, ok := f.aliases[entityID+"|"+name]
	return a, ok, nil
}

func (f *fakeAliasStore) IncrementUsage(ctx context.Context, entityID, name string) error {
	f.usageCalls = append(f.usageCalls, entityID+"|"+name)
	return f.incrementErr
}

// ────────────────────────────────────────────────────────────
// spec.md end-to-end scenario 2: alias expansion with usage increment.
// ────────────────────────────────────────────────────────────

func TestResolveAlias_ExpandsAndInterpolatesArgs(t *testing.T) {
	store := &fakeAliasStore{aliases: map[string]*models.Alias{
		"e1|!so": {
			EntityID:      "e1",
			Name:          "!so",
			CommandType:   models.CommandTypeAction,
			ActionCommand: "shoutout {arg1} from {user}",
			IsActive:      true,
		},
	}}

	expanded, fired, err := ResolveAlias(context.Background(), store, "e1", "alice", "!so bob")
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Equal(t, "shoutout bob from alice", expanded)
	assert.Equal(t, []string{"e1|!so"}, store.usageCalls)
}

func TestResolveAlias_PassesThroughWhenNoAliasMatches(t *testing.T) {
	store := &fakeAliasStore{aliases: map[string]*models.Alias{}}

	expanded, fired, err := ResolveAlias(context.Background(), store, "e1", "alice", "!unknown bob")
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Equal(t, "!unknown bob", expanded)
	assert.Empty(t, store.usageCalls)
}

func TestResolveAlias_IgnoresInactiveAlias(t *testing.T) {
	store := &fakeAliasStore{aliases: map[string]*models.Alias{
		"e1|!old": {EntityID: "e1", Name: "!old", ResponseText: "retired", IsActive: false},
	}}

	expanded, fired, err := ResolveAlias(context.Background(), store, "e1", "alice", "!old")
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Equal(t, "!old", expanded)
}

// A transient usage-count write failure must not erase an otherwise
// successful alias expansion: fired stays true and expanded carries the
// resolved text, with the increment error surfaced separately.
func TestResolveAlias_StillExpandsWhenIncrementUsageFails(t *testing.T) {
	store := &fakeAliasStore{
		aliases: map[string]*models.Alias{
			"e1|!so": {
				EntityID:      "e1",
				Name:          "!so",
				CommandType:   models.CommandTypeAction,
				ActionCommand: "shoutout {arg1} from {user}",
				IsActive:      true,
			},
		},
		incrementErr: errors.New("db unavailable"),
	}

	expanded, fired, err := ResolveAlias(context.Background(), store, "e1", "alice", "!so bob")
	require.Error(t, err)
	assert.True(t, fired)
	assert.Equal(t, "shoutout bob from alice", expanded)
}

func TestResolveAlias_AllArgsPlaceholder(t *testing.T) {
	store := &fakeAliasStore{aliases: map[string]*models.Alias{
		"e1|!echo": {
			EntityID:      "e1",
			Name:          "!echo",
			CommandType:   models.CommandTypeCommand,
			ActionCommand: "say {all_args}",
			IsActive:      true,
		},
	}}

	expanded, fired, err := ResolveAlias(context.Background(), store, "e1", "alice", "!echo hi there world")
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Equal(t, "say hi there world", expanded)
}
