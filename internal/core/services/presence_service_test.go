package services_test

import (
	"context"
	"testing"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	"parley/internal/core/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPresence(reg *registryStub, ttl, sweep time.Duration) ports.PresenceService {
	return services.NewPresenceService(reg, ttl, sweep, zap.NewNop())
}

func TestTypingExpiresViaSweep(t *testing.T) {
	reg := newRegistryStub()
	svc := newPresence(reg, 50*time.Millisecond, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	svc.MarkTyping("srv", "ch", "alice", "alice")
	assert.Equal(t, 1, svc.TypingCount())

	// the sweep clears the indicator without any explicit cancel
	deadline := time.Now().Add(2 * time.Second)
	for svc.TypingCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("typing indicator never expired")
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NotEmpty(t, reg.broadcastsOf("typing_stopped"))
}

func TestMarkTypingRefreshesDeadline(t *testing.T) {
	reg := newRegistryStub()
	svc := newPresence(reg, time.Minute, time.Minute)

	svc.MarkTyping("srv", "ch", "alice", "alice")
	svc.MarkTyping("srv", "ch", "alice", "alice")
	assert.Equal(t, 1, svc.TypingCount())

	// same identity, different channel is a distinct indicator
	svc.MarkTyping("srv", "ch-2", "alice", "alice")
	assert.Equal(t, 2, svc.TypingCount())
}

func TestClearTypingBroadcastsImmediately(t *testing.T) {
	reg := newRegistryStub()
	svc := newPresence(reg, time.Minute, time.Minute)

	svc.MarkTyping("srv", "ch", "alice", "alice")
	svc.ClearTyping("ch", "alice")
	assert.Equal(t, 0, svc.TypingCount())
	assert.Len(t, reg.broadcastsOf("typing_stopped"), 1)

	// clearing an absent indicator stays silent
	svc.ClearTyping("ch", "alice")
	assert.Len(t, reg.broadcastsOf("typing_stopped"), 1)
}

func TestPresenceStatusTransitions(t *testing.T) {
	reg := newRegistryStub()
	reg.identityServers = []domain.ServerID{"srv"}
	svc := newPresence(reg, time.Minute, time.Minute)

	assert.Equal(t, domain.PresenceOffline, svc.Status("alice").Status)

	svc.MarkOnline("alice", "alice")
	assert.Equal(t, domain.PresenceOnline, svc.Status("alice").Status)
	assert.Len(t, reg.serverBroadcastsOf("presence_changed"), 1)

	// a second connection of the same identity does not re-announce
	svc.MarkOnline("alice", "alice")
	assert.Len(t, reg.serverBroadcastsOf("presence_changed"), 1)

	svc.SetAway("alice", "alice", true, "lunch")
	presence := svc.Status("alice")
	assert.Equal(t, domain.PresenceAway, presence.Status)
	assert.Equal(t, "lunch", presence.AwayMessage)
	assert.Len(t, reg.serverBroadcastsOf("presence_changed"), 2)

	// setting the same away state again stays silent
	svc.SetAway("alice", "alice", true, "lunch")
	assert.Len(t, reg.serverBroadcastsOf("presence_changed"), 2)

	svc.SetAway("alice", "alice", false, "")
	assert.Equal(t, domain.PresenceOnline, svc.Status("alice").Status)

	svc.MarkOffline("alice", "alice")
	assert.Equal(t, domain.PresenceOffline, svc.Status("alice").Status)
}

func TestMarkOfflineDropsTypingIndicators(t *testing.T) {
	reg := newRegistryStub()
	svc := newPresence(reg, time.Minute, time.Minute)

	svc.MarkOnline("alice", "alice")
	svc.MarkTyping("srv", "ch", "alice", "alice")
	svc.MarkTyping("srv", "ch-2", "alice", "alice")

	svc.MarkOffline("alice", "alice")
	assert.Equal(t, 0, svc.TypingCount())
	assert.Len(t, reg.broadcastsOf("typing_stopped"), 2)
}
