// Package gateway implements the Gateway Creator: a stateless orchestrator
// that brings a platform channel under WaddleBot control (spec.md §4.8).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
)

// ServerStore ensures a platform server record exists for an entity's
// owning scope (create-if-missing, spec.md §4.8 step a).
type ServerStore interface {
	EnsureServer(ctx context.Context, platform models.Platform, platformEntityID string) (serverID string, err error)
}

// ActivationCodes allocates and revokes one-time activation codes (spec.md
// §4.8 step b). Allocation failure is fatal to Create; per the
// supplemented original-source behavior (SPEC_FULL.md §3), nothing else
// about activation-code allocation is best-effort.
type ActivationCodes interface {
	Allocate(ctx context.Context, serverID string) (code string, err error)
	Revoke(ctx context.Context, code string) error
}

// GatewayRegistry persists the {platform, entity, activation code} gateway
// record (spec.md §4.8 step c).
type GatewayRegistry interface {
	Register(ctx context.Context, entity models.Entity, activationCode string) error
	Unregister(ctx context.Context, entityID string) error
}

// Onboarder sends the platform-specific onboarding message via the
// receiver module (spec.md §4.8 step d). Its failure is non-fatal: the
// original implementation warns and continues (SPEC_FULL.md §3).
type Onboarder interface {
	SendOnboarding(ctx context.Context, platform models.Platform, platformEntityID, activationCode string) error
}

// Creator orchestrates the four-step create and its reverse-order,
// partial-cleanup-tolerant delete.
type Creator struct {
	Servers    ServerStore
	Codes      ActivationCodes
	Registry   GatewayRegistry
	Onboarding Onboarder
	log        *slog.Logger
}

// NewCreator wires a Creator from its four collaborators.
func NewCreator(servers ServerStore, codes ActivationCodes, registry GatewayRegistry, onboarding Onboarder) *Creator {
	return &Creator{
		Servers:    servers,
		Codes:      codes,
		Registry:   registry,
		Onboarding: onboarding,
		log:        slog.With("component", "gateway"),
	}
}

// CreateResult reports what Create actually accomplished, including a
// non-fatal onboarding failure the caller may want to surface.
type CreateResult struct {
	Entity         models.Entity
	ActivationCode string
	OnboardingWarning string
}

// Create runs spec.md §4.8's four steps in order. Server creation and
// registry failures are fatal; activation-code allocation failure is
// fatal; onboarding failure only warns. A failure after the first step
// does not remove the server record that step ensured.
func (c *Creator) Create(ctx context.Context, communityID string, platform models.Platform, platformEntityID, channelID string) (*CreateResult, error) {
	log := c.log.With("platform", platform, "platform_entity_id", platformEntityID)

	serverID, err := c.Servers.EnsureServer(ctx, platform, platformEntityID)
	if err != nil {
		return nil, fmt.Errorf("gateway: ensure server: %w", err)
	}

	code, err := c.Codes.Allocate(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("gateway: allocate activation code: %w", err)
	}

	entity := models.Entity{
		CommunityID:      communityID,
		Platform:         platform,
		PlatformEntityID: platformEntityID,
		ChannelID:        channelID,
	}

	if err := c.Registry.Register(ctx, entity, code); err != nil {
		// Tolerate a best-effort code revoke on registration failure so the
		// code isn't left dangling, but the overall operation still fails.
		if revokeErr := c.Codes.Revoke(ctx, code); revokeErr != nil {
			log.Error("failed to revoke activation code after registration failure", "error", revokeErr)
		}
		return nil, fmt.Errorf("gateway: register gateway: %w", err)
	}

	result := &CreateResult{Entity: entity, ActivationCode: code}

	if c.Onboarding != nil {
		if err := c.Onboarding.SendOnboarding(ctx, platform, platformEntityID, code); err != nil {
			log.Warn("onboarding message failed, gateway activation still succeeded", "error", err)
			result.OnboardingWarning = err.Error()
		}
	}

	return result, nil
}

// Delete unregisters the gateway and then revokes the activation code,
// tolerating partial cleanup: both steps are attempted even if the first
// fails, and all failures are collected rather than aborting early. The
// server record ensured by Create is left in place.
func (c *Creator) Delete(ctx context.Context, entity models.Entity, activationCode string) error {
	log := c.log.With("entity_id", entity.ID, "platform", entity.Platform)
	var errs []error

	if err := c.Registry.Unregister(ctx, entity.ID); err != nil {
		log.Error("failed to unregister gateway", "error", err)
		errs = append(errs, fmt.Errorf("unregister gateway: %w", err))
	}

	if activationCode != "" {
		if err := c.Codes.Revoke(ctx, activationCode); err != nil {
			log.Error("failed to revoke activation code", "error", err)
			errs = append(errs, fmt.Errorf("revoke activation code: %w", err))
		}
	}

	return errors.Join(errs...)
}
