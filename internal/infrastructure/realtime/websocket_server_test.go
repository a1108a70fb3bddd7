package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	"parley/internal/core/services"
	"parley/internal/infrastructure/registry"
	"parley/internal/infrastructure/repositories/memory"
	"parley/pkg/config"
	apperrors "parley/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticIdentity struct {
	token    string
	identity domain.Identity
}

func (s *staticIdentity) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	if token != s.token {
		return nil, errors.New("invalid token")
	}
	id := s.identity
	return &id, nil
}

func (s *staticIdentity) Issue(identity domain.IdentityID, username string) (string, error) {
	return "", errors.New("not supported")
}

type quietPresence struct{}

func (quietPresence) Start(context.Context)                           {}
func (quietPresence) Stop()                                           {}
func (quietPresence) MarkOnline(domain.IdentityID, string)            {}
func (quietPresence) MarkOffline(domain.IdentityID, string)           {}
func (quietPresence) SetAway(domain.IdentityID, string, bool, string) {}
func (quietPresence) MarkTyping(domain.ServerID, domain.ChannelID, domain.IdentityID, string) {
}
func (quietPresence) ClearTyping(domain.ChannelID, domain.IdentityID) {}
func (quietPresence) Status(identity domain.IdentityID) domain.Presence {
	return domain.Presence{Identity: identity}
}
func (quietPresence) TypingCount() int { return 0 }

type wsTestRepos struct {
	servers  ports.ServerRepository
	channels ports.ChannelRepository
	messages ports.MessageRepository
	members  ports.MemberRepository
	roles    ports.RoleRepository
	webhooks ports.WebhookRepository
}

func (r *wsTestRepos) Servers() ports.ServerRepository   { return r.servers }
func (r *wsTestRepos) Channels() ports.ChannelRepository { return r.channels }
func (r *wsTestRepos) Messages() ports.MessageRepository { return r.messages }
func (r *wsTestRepos) Members() ports.MemberRepository   { return r.members }
func (r *wsTestRepos) Roles() ports.RoleRepository       { return r.roles }
func (r *wsTestRepos) Webhooks() ports.WebhookRepository { return r.webhooks }

// dialWS stands up the full websocket stack over a real engine and registry
// and returns a connected client past the hello frame.
func dialWS(t *testing.T) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repos := &wsTestRepos{
		servers:  memory.NewMemoryServerRepository(),
		channels: memory.NewMemoryChannelRepository(),
		messages: memory.NewMemoryMessageRepository(),
		members:  memory.NewMemoryMemberRepository(),
		roles:    memory.NewMemoryRoleRepository(),
		webhooks: memory.NewMemoryWebhookRepository(),
	}
	cfg := config.DefaultConfig()
	reg := registry.NewInstanceRegistry(cfg, zap.NewNop())
	permissions := services.NewPermissionService(repos.Roles(), repos.Members(), repos.Servers())
	stats := services.NewStatsService(repos, reg, quietPresence{}, nil)
	chat := services.NewChatService(repos, reg, permissions, quietPresence{}, stats, nil, cfg, zap.NewNop())
	require.NoError(t, chat.Bootstrap(context.Background()))

	idp := &staticIdentity{
		token:    "eve-token",
		identity: domain.Identity{ID: "id-eve", Username: "eve"},
	}
	server := NewWebSocketServer(cfg, chat, idp, reg, quietPresence{}, repos.Members(), stats, zap.NewNop())

	router := gin.New()
	router.GET("/ws", server.HandleWebSocket)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	url := strings.Replace(ts.URL, "http", "ws", 1) + "/ws?token=eve-token"
	socket, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { socket.Close() })

	socket.SetReadDeadline(time.Now().Add(3 * time.Second))
	var hello outboundFrame
	require.NoError(t, socket.ReadJSON(&hello))
	require.Equal(t, "hello", hello.Type)
	return socket
}

func sendFrame(t *testing.T, socket *websocket.Conn, frameType string, seq int64, data string) {
	t.Helper()
	socket.SetWriteDeadline(time.Now().Add(3 * time.Second))
	require.NoError(t, socket.WriteJSON(inboundFrame{
		Type: frameType,
		Seq:  seq,
		Data: json.RawMessage(data),
	}))
}

// A burst of command frames must be paced by the command-throughput tier,
// not the connection-attempt tier: six commands in quick succession all
// succeed, where the connection tier's burst of five would reject the sixth.
func TestCommandFramesRideCommandThroughputTier(t *testing.T) {
	socket := dialWS(t)

	sendFrame(t, socket, "join_channel", 1, `{"channel":"general"}`)
	for i := int64(2); i <= 6; i++ {
		sendFrame(t, socket, "send_message", i, `{"channel":"general","content":"hello"}`)
	}

	replies := 0
	for replies < 6 {
		socket.SetReadDeadline(time.Now().Add(3 * time.Second))
		var frame outboundFrame
		require.NoError(t, socket.ReadJSON(&frame))
		switch frame.Type {
		case "reply":
			replies++
		case "error":
			require.NotNil(t, frame.Error)
			t.Fatalf("command frame rejected: %s %s", frame.Error.Code, frame.Error.Message)
		}
	}
	assert.Equal(t, 6, replies)
}

// A malformed frame is a protocol violation: the client gets one error
// frame and the connection closes.
func TestMalformedFrameClosesConnection(t *testing.T) {
	socket := dialWS(t)

	socket.SetWriteDeadline(time.Now().Add(3 * time.Second))
	require.NoError(t, socket.WriteMessage(websocket.TextMessage, []byte("{not json")))

	socket.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame outboundFrame
	require.NoError(t, socket.ReadJSON(&frame))
	require.Equal(t, "error", frame.Type)
	require.NotNil(t, frame.Error)
	assert.Equal(t, string(apperrors.ErrCodeProtocol), frame.Error.Code)

	socket.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := socket.ReadMessage(); err != nil {
			return
		}
	}
}
