package irc

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	"parley/internal/core/services"
	"parley/internal/infrastructure/repositories/memory"
	"parley/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

type recordedRegistry struct {
	ports.Registry

	mu           sync.Mutex
	registered   int
	unregistered int
	released     []string
}

func (r *recordedRegistry) Register(conn ports.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered++
}

func (r *recordedRegistry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregistered++
}

func (r *recordedRegistry) JoinServer(connID string, serverID domain.ServerID) bool { return true }

func (r *recordedRegistry) ReleaseAddress(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, addr)
}

func (r *recordedRegistry) snapshot() (registered, unregistered, released int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registered, r.unregistered, len(r.released)
}

type identityStub struct {
	token string

	mu    sync.Mutex
	calls int
}

func (s *identityStub) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if token != s.token {
		return nil, errors.New("invalid token")
	}
	return &domain.Identity{ID: "id-alice", Username: "alice"}, nil
}

func (s *identityStub) Issue(identity domain.IdentityID, username string) (string, error) {
	return "", errors.New("not supported")
}

func (s *identityStub) authCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type trackedPresence struct {
	mu      sync.Mutex
	online  []string
	offline []string
}

func (p *trackedPresence) Start(ctx context.Context) {}
func (p *trackedPresence) Stop()                     {}

func (p *trackedPresence) MarkOnline(identity domain.IdentityID, nick string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = append(p.online, nick)
}

func (p *trackedPresence) MarkOffline(identity domain.IdentityID, nick string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offline = append(p.offline, nick)
}

func (p *trackedPresence) SetAway(identity domain.IdentityID, nick string, away bool, message string) {
}
func (p *trackedPresence) MarkTyping(serverID domain.ServerID, channelID domain.ChannelID, identity domain.IdentityID, nick string) {
}
func (p *trackedPresence) ClearTyping(channelID domain.ChannelID, identity domain.IdentityID) {}
func (p *trackedPresence) Status(identity domain.IdentityID) domain.Presence {
	return domain.Presence{}
}
func (p *trackedPresence) TypingCount() int { return 0 }

type sessionHarness struct {
	client   net.Conn
	reader   *bufio.Reader
	registry *recordedRegistry
	identity *identityStub
	presence *trackedPresence
	done     chan struct{}
}

func startSession(t *testing.T) *sessionHarness {
	t.Helper()

	h := &sessionHarness{
		registry: &recordedRegistry{},
		identity: &identityStub{token: "secret-token"},
		presence: &trackedPresence{},
		done:     make(chan struct{}),
	}

	srv := &Server{
		cfg:      config.DefaultConfig(),
		identity: h.identity,
		registry: h.registry,
		presence: h.presence,
		members:  memory.NewMemoryMemberRepository(),
		stats:    services.NewStatsService(nil, nil, nil, nil),
		logger:   zap.NewNop(),
	}

	client, server := net.Pipe()
	h.client = client
	h.reader = bufio.NewReader(client)

	sess := newSession(srv, server)
	go func() {
		sess.run(context.Background())
		close(h.done)
	}()

	t.Cleanup(func() {
		client.Close()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("session did not terminate")
		}
	})
	return h
}

func (h *sessionHarness) send(t *testing.T, lines ...string) {
	t.Helper()
	for _, line := range lines {
		h.client.SetWriteDeadline(time.Now().Add(2 * time.Second))
		_, err := h.client.Write([]byte(line + "\r\n"))
		require.NoError(t, err)
	}
}

func (h *sessionHarness) readLine(t *testing.T) string {
	t.Helper()
	h.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := h.reader.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\r\n")
}

func (h *sessionHarness) expectClosed(t *testing.T) {
	t.Helper()
	h.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := h.reader.ReadString('\n')
	assert.Error(t, err)
}

func TestSessionOversizedLineClosesBeforeDispatch(t *testing.T) {
	h := startSession(t)

	// No terminator within the framing limit; the write unblocks when the
	// session gives up and closes its end.
	go h.client.Write([]byte(strings.Repeat("a", 2*MaxLineLength)))

	assert.Equal(t, "ERROR :line too long", h.readLine(t))
	h.expectClosed(t)

	<-h.done
	assert.Zero(t, h.identity.authCalls())
	registered, _, released := h.registry.snapshot()
	assert.Zero(t, registered)
	assert.Equal(t, 1, released, "unregistered session must release its address slot")
}

func TestSessionRegistersWithPassCredential(t *testing.T) {
	h := startSession(t)

	h.send(t, "PASS secret-token", "NICK alice", "USER alice 0 * :Alice")

	assert.Equal(t, ":parley 001 alice :Welcome to Parley, alice!", h.readLine(t))
	assert.Equal(t, ":parley 002 alice :Your host is parley, running version 0.1.0", h.readLine(t))
	assert.Equal(t, ":parley 003 alice :This server was created today", h.readLine(t))
	assert.Equal(t, ":parley 004 alice parley 0.1.0 o o", h.readLine(t))
	assert.Equal(t, ":parley 422 alice :MOTD File is missing", h.readLine(t))

	h.send(t, "QUIT")
	h.expectClosed(t)
	<-h.done

	registered, unregistered, _ := h.registry.snapshot()
	assert.Equal(t, 1, registered)
	assert.Equal(t, 1, unregistered)
	assert.Equal(t, []string{"alice"}, h.presence.online)
	assert.Equal(t, []string{"alice"}, h.presence.offline)
}

func TestSessionRegistersWithSASLPlain(t *testing.T) {
	h := startSession(t)

	h.send(t, "NICK alice", "CAP LS 302")
	assert.Equal(t, ":parley CAP alice LS :server-time message-tags sasl", h.readLine(t))

	h.send(t, "USER alice 0 * :Alice", "CAP REQ :sasl")
	assert.Equal(t, ":parley CAP alice ACK sasl", h.readLine(t))

	h.send(t, "AUTHENTICATE PLAIN")
	assert.Equal(t, "AUTHENTICATE +", h.readLine(t))

	payload := base64.StdEncoding.EncodeToString([]byte("\x00alice\x00secret-token"))
	h.send(t, "AUTHENTICATE "+payload)
	assert.Equal(t, ":parley 900 alice alice!alice@parley alice :You are now logged in as alice", h.readLine(t))
	assert.Equal(t, ":parley 903 alice :SASL authentication successful", h.readLine(t))

	h.send(t, "CAP END")
	assert.Equal(t, ":parley 001 alice :Welcome to Parley, alice!", h.readLine(t))
}

func TestSessionRejectsBadPassword(t *testing.T) {
	h := startSession(t)

	h.send(t, "PASS wrong", "NICK alice", "USER alice 0 * :Alice")

	assert.Equal(t, ":parley 464 alice :Password incorrect", h.readLine(t))
	assert.Equal(t, "ERROR :authentication failed", h.readLine(t))
	h.expectClosed(t)

	<-h.done
	registered, _, released := h.registry.snapshot()
	assert.Zero(t, registered)
	assert.Equal(t, 1, released)
}

func TestSessionRequiresCredential(t *testing.T) {
	h := startSession(t)

	h.send(t, "NICK alice", "USER alice 0 * :Alice")

	assert.Equal(t, ":parley 464 alice :Password incorrect", h.readLine(t))
	assert.Equal(t, "ERROR :authentication required", h.readLine(t))
	h.expectClosed(t)

	<-h.done
	assert.Zero(t, h.identity.authCalls())
}
