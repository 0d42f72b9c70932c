package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
	"github.com/penguintechinc/waddlebot-core/pkg/streambus"
)

// onboardingCommand is a synthetic command event addressed to the
// platform's receiver module, carrying the activation code a human
// operator needs to complete gateway setup. It deliberately reuses
// events:commands rather than a dedicated topic: the receiver already
// consumes that stream for every other module dispatch, so onboarding
// needs no transport of its own.
type onboardingCommand struct {
	ModuleName       string         `json:"module_name"`
	Platform         models.Platform `json:"platform"`
	PlatformEntityID string         `json:"platform_entity_id"`
	ActivationCode   string         `json:"activation_code"`
	DispatchedAt     time.Time      `json:"dispatched_at"`
}

// receiverModuleName maps a platform to the conventional module name its
// receiver listens on for onboarding commands.
func receiverModuleName(platform models.Platform) string {
	return string(platform) + "_receiver"
}

// StreamOnboarder implements gateway.Onboarder by publishing the
// activation code onto events:commands for the owning platform's
// receiver module to deliver however that platform's conventions expect
// (a channel message, a DM, a bot-owner notification).
type StreamOnboarder struct {
	Bus streambus.Bus
}

func NewStreamOnboarder(bus streambus.Bus) *StreamOnboarder {
	return &StreamOnboarder{Bus: bus}
}

func (o *StreamOnboarder) SendOnboarding(ctx context.Context, platform models.Platform, platformEntityID, activationCode string) error {
	cmd := onboardingCommand{
		ModuleName:       receiverModuleName(platform),
		Platform:         platform,
		PlatformEntityID: platformEntityID,
		ActivationCode:   activationCode,
		DispatchedAt:     time.Now(),
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("send onboarding: %w", err)
	}
	if _, err := o.Bus.Publish(ctx, streambus.StreamCommands, payload, 10000); err != nil {
		return fmt.Errorf("send onboarding: %w", err)
	}
	return nil
}
