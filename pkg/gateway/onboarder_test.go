package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
	"github.com/penguintechinc/waddlebot-core/pkg/streambus"
)

func TestStreamOnboarder_PublishesOnboardingCommand(t *testing.T) {
	bus := streambus.NewMemoryBus()
	onboarder := NewStreamOnboarder(bus)

	err := onboarder.SendOnboarding(context.Background(), models.PlatformDiscord, "guild-1", "ACT-CODE-1")
	require.NoError(t, err)

	events, err := bus.Consume(context.Background(), streambus.StreamCommands, "test-group", "c1", 10, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	var cmd onboardingCommand
	require.NoError(t, json.Unmarshal(events[0].Payload, &cmd))
	assert.Equal(t, "discord_receiver", cmd.ModuleName)
	assert.Equal(t, "ACT-CODE-1", cmd.ActivationCode)
	assert.Equal(t, "guild-1", cmd.PlatformEntityID)
}
