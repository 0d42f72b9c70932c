package router

import (
	"context"
	"strconv"
	"strings"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
)

// AliasStore is the persistence boundary for entity-scoped aliases
// (spec.md §3 Alias, §4.7 step 5).
type AliasStore interface {
	// Lookup returns the active alias named name for entityID, if any.
	Lookup(ctx context.Context, entityID, name string) (*models.Alias, bool, error)
	// IncrementUsage bumps usage_count and stamps last_used for the alias.
	IncrementUsage(ctx context.Context, entityID, name string) error
}

// ResolveAlias implements spec.md §4.7 step 5: if message begins with an
// alias name registered for this entity, substitute the alias's stored
// command text, interpolating {user}, {arg1..n}, and {all_args}, then
// record the use through store.IncrementUsage.
//
// Returns the (possibly unchanged) message and whether an alias fired.
func ResolveAlias(ctx context.Context, store AliasStore, entityID, username, message string) (string, bool, error) {
	fields := strings.Fields(message)
	if len(fields) == 0 {
		return message, false, nil
	}

	name := fields[0]
	alias, found, err := store.Lookup(ctx, entityID, name)
	if err != nil {
		return message, false, err
	}
	if !found || !alias.IsActive {
		return message, false, nil
	}

	args := fields[1:]
	expanded := interpolate(commandText(alias), username, args)

	if err := store.IncrementUsage(ctx, entityID, name); err != nil {
		return expanded, true, err
	}
	return expanded, true, nil
}

// commandText returns the template text an alias expands to: the action
// command for action/command-type aliases, otherwise the stored response.
func commandText(alias *models.Alias) string {
	switch alias.CommandType {
	case models.CommandTypeAction, models.CommandTypeCommand:
		return alias.ActionCommand
	default:
		return alias.ResponseText
	}
}

// interpolate substitutes {user}, {arg1}..{argN}, and {all_args} in text.
func interpolate(text, user string, args []string) string {
	out := strings.ReplaceAll(text, "{user}", user)
	out = strings.ReplaceAll(out, "{all_args}", strings.Join(args, " "))
	for i, a := range args {
		out = strings.ReplaceAll(out, "{arg"+strconv.Itoa(i+1)+"}", a)
	}
	return out
}
