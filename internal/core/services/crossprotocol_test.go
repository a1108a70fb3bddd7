package services_test

import (
	"context"
	"sync"
	"testing"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	"parley/internal/core/services"
	"parley/internal/infrastructure/registry"
	"parley/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeConn is a live connection as the real registry sees one, capturing
// delivered events in arrival order.
type fakeConn struct {
	id       string
	identity domain.IdentityID
	protocol string

	mu     sync.Mutex
	events []domain.Event
}

func (c *fakeConn) ID() string                  { return c.id }
func (c *fakeConn) Identity() domain.IdentityID { return c.identity }
func (c *fakeConn) Protocol() string            { return c.protocol }
func (c *fakeConn) RemoteAddr() string          { return "127.0.0.1" }
func (c *fakeConn) Close(string)                {}

func (c *fakeConn) Enqueue(event domain.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return true
}

func (c *fakeConn) eventsOf(name string) []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Event
	for _, ev := range c.events {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}

// One message sent through the engine reaches a websocket subscriber and an
// IRC subscriber exactly once each, with the same event id and in the same
// per-channel order, regardless of which protocol produced it.
func TestMessageReachesEveryProtocolOnceInOrder(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos()
	cfg := config.DefaultConfig()
	reg := registry.NewInstanceRegistry(cfg, zap.NewNop())
	permissions := services.NewPermissionService(repos.Roles(), repos.Members(), repos.Servers())
	stats := services.NewStatsService(repos, reg, presenceStub{}, nil)
	svc := services.NewChatService(repos, reg, permissions, presenceStub{}, stats, nil, cfg, zap.NewNop())
	require.NoError(t, svc.Bootstrap(ctx))

	server, err := svc.ResolveServer(ctx, "")
	require.NoError(t, err)

	alice := ports.Actor{ID: server.OwnerID, Username: string(server.OwnerID), ConnID: "conn-ws"}
	bob := ports.Actor{ID: "id-bob", Username: "bob", ConnID: "conn-irc"}

	wsConn := &fakeConn{id: "conn-ws", identity: alice.ID, protocol: "websocket"}
	ircConn := &fakeConn{id: "conn-irc", identity: bob.ID, protocol: "irc"}
	reg.Register(wsConn)
	reg.Register(ircConn)

	join := domain.JoinChannel{ChannelRef: domain.ChannelRef{Channel: cfg.Bootstrap.DefaultChannel}}
	_, err = svc.Apply(ctx, alice, join)
	require.NoError(t, err)
	_, err = svc.Apply(ctx, bob, join)
	require.NoError(t, err)

	var replyIDs []string
	for _, content := range []string{"first", "second"} {
		events, err := svc.Apply(ctx, alice, domain.SendMessage{
			ChannelRef: domain.ChannelRef{Channel: cfg.Bootstrap.DefaultChannel},
			Content:    content,
		})
		require.NoError(t, err)
		for _, ev := range events {
			if ev.EventName() == "message_created" {
				replyIDs = append(replyIDs, ev.Meta().ID)
			}
		}
	}
	require.Len(t, replyIDs, 2)

	wsCreated := wsConn.eventsOf("message_created")
	ircCreated := ircConn.eventsOf("message_created")
	require.Len(t, wsCreated, 2, "websocket subscriber must see each message exactly once")
	require.Len(t, ircCreated, 2, "irc subscriber must see each message exactly once")

	for i := range replyIDs {
		assert.Equal(t, replyIDs[i], wsCreated[i].Meta().ID)
		assert.Equal(t, replyIDs[i], ircCreated[i].Meta().ID)
	}

	first, ok := wsCreated[0].(domain.MessageCreated)
	require.True(t, ok)
	assert.Equal(t, "first", first.Message.Content)
	assert.Equal(t, alice.ID, first.Message.Author)
}
