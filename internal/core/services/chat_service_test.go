package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	"parley/internal/core/services"
	"parley/internal/infrastructure/repositories/memory"
	"parley/pkg/config"
	apperrors "parley/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// registryStub records broadcasts and tracks per-connection room membership
// so join idempotence can be asserted without a real connection registry.
type registryStub struct {
	mu sync.Mutex

	joined       map[string]map[domain.ChannelID]struct{}
	joinedSrv    map[string]map[domain.ServerID]struct{}
	broadcasts   []domain.Event
	srvBroadcast []domain.Event
	consumeOK    bool
	buckets      []string

	// servers reported for any identity, for presence fan-out tests
	identityServers []domain.ServerID
}

func newRegistryStub() *registryStub {
	return &registryStub{
		joined:    make(map[string]map[domain.ChannelID]struct{}),
		joinedSrv: make(map[string]map[domain.ServerID]struct{}),
		consumeOK: true,
	}
}

func (r *registryStub) AdmitAddress(string) bool         { return true }
func (r *registryStub) ReleaseAddress(string)            {}
func (r *registryStub) Register(ports.Connection)        {}
func (r *registryStub) Unregister(string)                {}

func (r *registryStub) Join(connID string, channelID domain.ChannelID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms, ok := r.joined[connID]
	if !ok {
		rooms = make(map[domain.ChannelID]struct{})
		r.joined[connID] = rooms
	}
	if _, present := rooms[channelID]; present {
		return false
	}
	rooms[channelID] = struct{}{}
	return true
}

func (r *registryStub) Leave(connID string, channelID domain.ChannelID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := r.joined[connID]
	if _, present := rooms[channelID]; !present {
		return false
	}
	delete(rooms, channelID)
	return true
}

func (r *registryStub) JoinServer(connID string, serverID domain.ServerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms, ok := r.joinedSrv[connID]
	if !ok {
		rooms = make(map[domain.ServerID]struct{})
		r.joinedSrv[connID] = rooms
	}
	if _, present := rooms[serverID]; present {
		return false
	}
	rooms[serverID] = struct{}{}
	return true
}

func (r *registryStub) LeaveServer(connID string, serverID domain.ServerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := r.joinedSrv[connID]
	if _, present := rooms[serverID]; !present {
		return false
	}
	delete(rooms, serverID)
	return true
}

func (r *registryStub) LeaveAll(domain.IdentityID, domain.ChannelID) bool { return false }
func (r *registryStub) DropChannel(domain.ChannelID)                     {}
func (r *registryStub) DropServer(domain.ServerID)                       {}

func (r *registryStub) Broadcast(channelID domain.ChannelID, event domain.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, event)
	return 1
}

func (r *registryStub) BroadcastServer(serverID domain.ServerID, event domain.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.srvBroadcast = append(r.srvBroadcast, event)
	return 1
}

func (r *registryStub) ForEachMember(domain.ChannelID, func(ports.Connection)) {}
func (r *registryStub) Connections(domain.IdentityID) []ports.Connection      { return nil }
func (r *registryStub) IdentityInChannel(domain.IdentityID, domain.ChannelID) bool {
	return false
}
func (r *registryStub) IdentityServers(domain.IdentityID) []domain.ServerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identityServers
}

func (r *registryStub) TryConsume(bucket string, cost int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets = append(r.buckets, bucket)
	return r.consumeOK
}

func (r *registryStub) Counts() map[string]int { return map[string]int{} }
func (r *registryStub) IdentityCount() int     { return 0 }
func (r *registryStub) BucketCount() int       { return 0 }

func (r *registryStub) broadcastsOf(name string) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, ev := range r.broadcasts {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}

func (r *registryStub) serverBroadcastsOf(name string) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, ev := range r.srvBroadcast {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}

// presenceStub satisfies the presence port without timers or state.
type presenceStub struct{}

func (presenceStub) Start(context.Context)                            {}
func (presenceStub) Stop()                                            {}
func (presenceStub) MarkOnline(domain.IdentityID, string)             {}
func (presenceStub) MarkOffline(domain.IdentityID, string)            {}
func (presenceStub) SetAway(domain.IdentityID, string, bool, string)  {}
func (presenceStub) MarkTyping(domain.ServerID, domain.ChannelID, domain.IdentityID, string) {
}
func (presenceStub) ClearTyping(domain.ChannelID, domain.IdentityID) {}
func (presenceStub) Status(identity domain.IdentityID) domain.Presence {
	return domain.Presence{Identity: identity}
}
func (presenceStub) TypingCount() int { return 0 }

// testRepos bundles in-memory repositories behind the storage port. The
// message repository is swappable so writes can be made to fail.
type testRepos struct {
	servers  ports.ServerRepository
	channels ports.ChannelRepository
	messages ports.MessageRepository
	members  ports.MemberRepository
	roles    ports.RoleRepository
	webhooks ports.WebhookRepository
}

func newTestRepos() *testRepos {
	return &testRepos{
		servers:  memory.NewMemoryServerRepository(),
		channels: memory.NewMemoryChannelRepository(),
		messages: memory.NewMemoryMessageRepository(),
		members:  memory.NewMemoryMemberRepository(),
		roles:    memory.NewMemoryRoleRepository(),
		webhooks: memory.NewMemoryWebhookRepository(),
	}
}

func (r *testRepos) Servers() ports.ServerRepository   { return r.servers }
func (r *testRepos) Channels() ports.ChannelRepository { return r.channels }
func (r *testRepos) Messages() ports.MessageRepository { return r.messages }
func (r *testRepos) Members() ports.MemberRepository   { return r.members }
func (r *testRepos) Roles() ports.RoleRepository       { return r.roles }
func (r *testRepos) Webhooks() ports.WebhookRepository { return r.webhooks }

type failingMessages struct {
	ports.MessageRepository
	saveErr error
}

func (f *failingMessages) Save(ctx context.Context, msg *domain.Message) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MessageRepository.Save(ctx, msg)
}

// recordingSink collects delivered events on a channel so tests can wait for
// the asynchronous fan-out.
type recordingSink struct {
	events chan domain.Event
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, event domain.Event) error {
	select {
	case s.events <- event:
	default:
	}
	return s.err
}

type fixture struct {
	svc   ports.ChatService
	reg   *registryStub
	repos *testRepos
	cfg   *config.Config
}

func newFixture(t *testing.T, sinks ...ports.EventSink) *fixture {
	t.Helper()

	repos := newTestRepos()
	reg := newRegistryStub()
	cfg := config.DefaultConfig()
	permissions := services.NewPermissionService(repos.Roles(), repos.Members(), repos.Servers())
	stats := services.NewStatsService(repos, reg, presenceStub{}, nil)
	svc := services.NewChatService(repos, reg, permissions, presenceStub{}, stats, sinks, cfg, zap.NewNop())

	require.NoError(t, svc.Bootstrap(context.Background()))
	return &fixture{svc: svc, reg: reg, repos: repos, cfg: cfg}
}

func (f *fixture) owner(t *testing.T) ports.Actor {
	t.Helper()
	server, err := f.svc.ResolveServer(context.Background(), "")
	require.NoError(t, err)
	return ports.Actor{ID: server.OwnerID, Username: string(server.OwnerID), ConnID: "conn-owner"}
}

// joinAs makes the identity a member of the bootstrap server by joining the
// default channel from the given connection.
func (f *fixture) joinAs(t *testing.T, actor ports.Actor, channel string) {
	t.Helper()
	_, err := f.svc.Apply(context.Background(), actor, domain.JoinChannel{
		ChannelRef: domain.ChannelRef{Channel: channel},
	})
	require.NoError(t, err)
}

func TestBootstrapProvisionsServerRolesAndChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	server, err := f.svc.ResolveServer(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, f.cfg.Bootstrap.ServerName, server.Name)
	assert.NotEmpty(t, server.OwnerID)

	roles, err := f.repos.Roles().ListByServer(ctx, server.ID)
	require.NoError(t, err)
	require.Len(t, roles, 3)
	names := make(map[string]*domain.Role, len(roles))
	for _, role := range roles {
		names[role.Name] = role
	}
	require.Contains(t, names, domain.EveryoneRoleName)
	assert.True(t, names[domain.EveryoneRoleName].Managed)
	assert.Equal(t, 0, names[domain.EveryoneRoleName].Rank)
	require.Contains(t, names, "Moderator")
	require.Contains(t, names, "Admin")
	assert.Equal(t, domain.CapAll, names["Admin"].Permissions)

	channel, err := f.repos.Channels().GetByName(ctx, server.ID, f.cfg.Bootstrap.DefaultChannel)
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelPublic, channel.Visibility)
	assert.Equal(t, domain.ChannelStateActive, channel.State)

	_, err = f.repos.Members().Get(ctx, server.ID, server.OwnerID)
	require.NoError(t, err)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Bootstrap(ctx))

	servers, err := f.repos.Servers().List(ctx)
	require.NoError(t, err)
	assert.Len(t, servers, 1)
}

func TestJoinChannelReturnsSnapshotAndAnnouncesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := ports.Actor{ID: "alice", Username: "alice", ConnID: "conn-1"}

	events, err := f.svc.Apply(ctx, alice, domain.JoinChannel{
		ChannelRef: domain.ChannelRef{Channel: "general"},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	snap, ok := events[0].(domain.ChannelSnapshot)
	require.True(t, ok, "join reply should be a channel snapshot")
	assert.Equal(t, "general", snap.Channel.Name)

	joins := f.reg.broadcastsOf("member_joined")
	require.Len(t, joins, 1)
	assert.Equal(t, domain.IdentityID("alice"), joins[0].Meta().Actor)

	// joining again from the same connection yields a snapshot but no second
	// announcement
	events, err = f.svc.Apply(ctx, alice, domain.JoinChannel{
		ChannelRef: domain.ChannelRef{Channel: "general"},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Len(t, f.reg.broadcastsOf("member_joined"), 1)
}

func TestJoinChannelCreatesMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := ports.Actor{ID: "alice", Username: "alice", ConnID: "conn-1"}

	f.joinAs(t, alice, "general")

	server, err := f.svc.ResolveServer(ctx, "")
	require.NoError(t, err)
	member, err := f.repos.Members().Get(ctx, server.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", member.Username)
}

func TestSendMessagePersistsBeforeAck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := ports.Actor{ID: "alice", Username: "alice", ConnID: "conn-1"}
	f.joinAs(t, alice, "general")

	events, err := f.svc.Apply(ctx, alice, domain.SendMessage{
		ChannelRef: domain.ChannelRef{Channel: "general"},
		Content:    "hello there",
		Nonce:      "n-1",
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	created, ok := events[0].(domain.MessageCreated)
	require.True(t, ok)
	assert.Equal(t, "n-1", created.Nonce)
	assert.Equal(t, "hello there", created.Message.Content)

	stored, err := f.repos.Messages().GetByID(ctx, created.Message.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IdentityID("alice"), stored.Author)

	// the reply and the room broadcast carry the same event id
	broadcasts := f.reg.broadcastsOf("message_created")
	require.Len(t, broadcasts, 1)
	assert.Equal(t, created.Meta().ID, broadcasts[0].Meta().ID)
}

func TestSendMessageStorageFailureProducesNoEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := ports.Actor{ID: "alice", Username: "alice", ConnID: "conn-1"}
	f.joinAs(t, alice, "general")

	f.repos.messages = &failingMessages{
		MessageRepository: f.repos.messages,
		saveErr:           errors.New("disk full"),
	}

	_, err := f.svc.Apply(ctx, alice, domain.SendMessage{
		ChannelRef: domain.ChannelRef{Channel: "general"},
		Content:    "lost",
	})
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeServiceUnavailable, appErr.Code)
	assert.Empty(t, f.reg.broadcastsOf("message_created"))
}

func TestSendMessageDenyOverridePersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.owner(t)
	alice := ports.Actor{ID: "alice", Username: "alice", ConnID: "conn-1"}
	f.joinAs(t, alice, "general")

	// an explicit identity deny outranks every role grant
	_, err := f.svc.Apply(ctx, owner, domain.SetOverride{
		ChannelRef: domain.ChannelRef{Channel: "general"},
		Identity:   alice.ID,
		Deny:       domain.CapSendMessages,
	})
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, alice, domain.SendMessage{
		ChannelRef: domain.ChannelRef{Channel: "general"},
		Content:    "blocked",
	})
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeForbidden, appErr.Code)

	server, err := f.svc.ResolveServer(ctx, "")
	require.NoError(t, err)
	channel, err := f.repos.Channels().GetByName(ctx, server.ID, "general")
	require.NoError(t, err)
	stored, err := f.repos.Messages().ListBefore(ctx, channel.ID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, stored, "a denied send must not reach storage")
	assert.Empty(t, f.reg.broadcastsOf("message_created"))
}

func TestBanMemberEventNamesBothParties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.owner(t)
	alice := ports.Actor{ID: "alice", Username: "alice", ConnID: "conn-1"}
	f.joinAs(t, alice, "general")

	_, err := f.svc.Apply(ctx, owner, domain.BanMember{
		Identity: alice.ID,
		Reason:   "spam",
	})
	require.NoError(t, err)

	banned := f.reg.serverBroadcastsOf("member_banned")
	require.Len(t, banned, 1)
	ev, ok := banned[0].(domain.MemberBanned)
	require.True(t, ok)
	assert.Equal(t, alice.ID, ev.Target)
	assert.Equal(t, "alice", ev.TargetNick)
	assert.Equal(t, owner.Username, ev.ActorNick)
	assert.Equal(t, "spam", ev.Reason)
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	f := newFixture(t)
	alice := ports.Actor{ID: "alice", Username: "alice", ConnID: "conn-1"}
	f.joinAs(t, alice, "general")

	_, err := f.svc.Apply(context.Background(), alice, domain.SendMessage{
		ChannelRef: domain.ChannelRef{Channel: "general"},
		Content:    "",
	})
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, appErr.Code)
}

func TestSendMessageFromNonMemberLooksLikeMissingChannel(t *testing.T) {
	f := newFixture(t)

	bob := ports.Actor{ID: "bob", Username: "bob", ConnID: "conn-2"}
	_, err := f.svc.Apply(context.Background(), bob, domain.SendMessage{
		ChannelRef: domain.ChannelRef{Channel: "general"},
		Content:    "hi",
	})
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
}

func TestCreateChannelRequiresManageChannels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := ports.Actor{ID: "alice", Username: "alice", ConnID: "conn-1"}
	f.joinAs(t, alice, "general")

	_, err := f.svc.Apply(ctx, alice, domain.CreateChannel{Name: "plans"})
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeForbidden, appErr.Code)

	owner := f.owner(t)
	events, err := f.svc.Apply(ctx, owner, domain.CreateChannel{Name: "plans", Topic: "next steps"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	created, ok := events[0].(domain.ChannelCreated)
	require.True(t, ok)
	assert.Equal(t, "plans", created.Channel.Name)
	assert.Len(t, f.reg.serverBroadcastsOf("channel_created"), 1)
}

func TestCreateChannelRejectsDuplicateName(t *testing.T) {
	f := newFixture(t)
	owner := f.owner(t)

	_, err := f.svc.Apply(context.Background(), owner, domain.CreateChannel{Name: "general"})
	assert.ErrorIs(t, err, domain.ErrChannelNameTaken)
}

func TestPrivateChannelIsInvisibleToOutsiders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.owner(t)
	alice := ports.Actor{ID: "alice", Username: "alice", ConnID: "conn-1"}
	f.joinAs(t, alice, "general")

	events, err := f.svc.Apply(ctx, owner, domain.CreateChannel{Name: "staff", Private: true})
	require.NoError(t, err)
	require.Len(t, events, 1)
	// private channels are never announced to the server room
	assert.Empty(t, f.reg.serverBroadcastsOf("channel_created"))

	// a plain member cannot list it
	listEvents, err := f.svc.Apply(ctx, alice, domain.ListChannels{})
	require.NoError(t, err)
	require.Len(t, listEvents, 1)
	list, ok := listEvents[0].(domain.ChannelList)
	require.True(t, ok)
	for _, channel := range list.Channels {
		assert.NotEqual(t, "staff", channel.Name)
	}

	// and joining it fails as if it did not exist
	_, err = f.svc.Apply(ctx, alice, domain.JoinChannel{
		ChannelRef: domain.ChannelRef{Channel: "staff"},
	})
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
}

func TestSlowModeThrottlesPlainMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.owner(t)
	alice := ports.Actor{ID: "alice", Username: "alice", ConnID: "conn-1"}
	f.joinAs(t, alice, "general")

	_, err := f.svc.Apply(ctx, owner, domain.SetSlowMode{
		ChannelRef: domain.ChannelRef{Channel: "general"},
		Interval:   time.Minute,
	})
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, alice, domain.SendMessage{
		ChannelRef: domain.ChannelRef{Channel: "general"},
		Content:    "first",
	})
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, alice, domain.SendMessage{
		ChannelRef: domain.ChannelRef{Channel: "general"},
		Content:    "second",
	})
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeRateLimit, appErr.Code)
	assert.Greater(t, appErr.RetryAfter(), time.Duration(0))

	// moderation capability exempts the owner
	f.joinAs(t, owner, "general")
	for i := 0; i < 2; i++ {
		_, err = f.svc.Apply(ctx, owner, domain.SendMessage{
			ChannelRef: domain.ChannelRef{Channel: "general"},
			Content:    "mod message",
		})
		require.NoError(t, err)
	}
}

func TestCommandGateThrottlesConnectionsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.reg.consumeOK = false

	alice := ports.Actor{ID: "alice", Username: "alice", ConnID: "conn-1"}
	_, err := f.svc.Apply(ctx, alice, domain.ListChannels{})
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeRateLimit, appErr.Code)

	// internal callers carry no connection and bypass the gate
	internal := ports.Actor{ID: "alice", Username: "alice"}
	_, err = f.svc.Apply(ctx, internal, domain.ListChannels{})
	require.NoError(t, err)
}

func TestGetHistoryPagesOldestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := ports.Actor{ID: "alice", Username: "alice", ConnID: "conn-1"}
	f.joinAs(t, alice, "general")

	server, err := f.svc.ResolveServer(ctx, "")
	require.NoError(t, err)
	channel, err := f.repos.Channels().GetByName(ctx, server.ID, "general")
	require.NoError(t, err)

	base := time.Now().UTC().Add(-time.Hour)
	ids := make([]domain.MessageID, 5)
	for i := range ids {
		ids[i] = domain.MessageID(uuid.NewString())
		require.NoError(t, f.repos.Messages().Save(ctx, &domain.Message{
			ID:        ids[i],
			ServerID:  server.ID,
			ChannelID: channel.ID,
			Author:    "alice",
			Content:   "msg",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	events, err := f.svc.Apply(ctx, alice, domain.GetHistory{
		ChannelRef: domain.ChannelRef{Channel: "general"},
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	slice, ok := events[0].(domain.HistorySlice)
	require.True(t, ok)
	require.Len(t, slice.Messages, 2)
	assert.True(t, slice.HasMore)
	assert.Equal(t, ids[3], slice.Messages[0].ID)
	assert.Equal(t, ids[4], slice.Messages[1].ID)

	// the oldest message's id pages the next slice
	events, err = f.svc.Apply(ctx, alice, domain.GetHistory{
		ChannelRef: domain.ChannelRef{Channel: "general"},
		Before:     ids[3],
		Limit:      2,
	})
	require.NoError(t, err)
	slice, ok = events[0].(domain.HistorySlice)
	require.True(t, ok)
	require.Len(t, slice.Messages, 2)
	assert.True(t, slice.HasMore)
	assert.Equal(t, ids[1], slice.Messages[0].ID)
	assert.Equal(t, ids[2], slice.Messages[1].ID)
}

func TestPartUnknownChannelIsNoOp(t *testing.T) {
	f := newFixture(t)
	alice := ports.Actor{ID: "alice", Username: "alice", ConnID: "conn-1"}
	f.joinAs(t, alice, "general")

	events, err := f.svc.Apply(context.Background(), alice, domain.PartChannel{
		ChannelRef: domain.ChannelRef{Channel: "nowhere"},
	})
	assert.NoError(t, err)
	assert.Nil(t, events)
}

func TestArchivedChannelRejectsSends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.owner(t)
	alice := ports.Actor{ID: "alice", Username: "alice", ConnID: "conn-1"}
	f.joinAs(t, alice, "general")

	_, err := f.svc.Apply(ctx, owner, domain.ArchiveChannel{
		ChannelRef: domain.ChannelRef{Channel: "general"},
	})
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, alice, domain.SendMessage{
		ChannelRef: domain.ChannelRef{Channel: "general"},
		Content:    "too late",
	})
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeForbidden, appErr.Code)

	// moderation capabilities survive archival, so the channel can come back
	_, err = f.svc.Apply(ctx, owner, domain.UnarchiveChannel{
		ChannelRef: domain.ChannelRef{Channel: "general"},
	})
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, alice, domain.SendMessage{
		ChannelRef: domain.ChannelRef{Channel: "general"},
		Content:    "back again",
	})
	assert.NoError(t, err)
}

func TestSinkFailureNeverFailsTheCommand(t *testing.T) {
	sink := &recordingSink{events: make(chan domain.Event, 8), err: errors.New("endpoint down")}
	f := newFixture(t, sink)
	ctx := context.Background()
	alice := ports.Actor{ID: "alice", Username: "alice", ConnID: "conn-1"}
	f.joinAs(t, alice, "general")

	_, err := f.svc.Apply(ctx, alice, domain.SendMessage{
		ChannelRef: domain.ChannelRef{Channel: "general"},
		Content:    "sink me",
	})
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.events:
			if ev.EventName() == "message_created" {
				return
			}
		case <-deadline:
			t.Fatal("sink never received the message event")
		}
	}
}
