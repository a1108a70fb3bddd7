package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	"parley/pkg/cache"
	"parley/pkg/config"
	apperrors "parley/pkg/errors"
	"parley/pkg/tracing"
	"parley/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const lockStripes = 256

// stripedLock serializes mutations per entity key. Two entities may share a
// stripe; that only adds contention, never reordering within one entity.
type stripedLock struct {
	mus [lockStripes]sync.Mutex
}

func (l *stripedLock) lock(key string) func() {
	h := uint32(2166136261)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	mu := &l.mus[h%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// sinkDeliveryTimeout bounds how long one async sink delivery may run.
const sinkDeliveryTimeout = 5 * time.Second

type chatService struct {
	repos       ports.Repositories
	registry    ports.Registry
	permissions ports.PermissionService
	presence    ports.PresenceService
	stats       *StatsService
	sinks       []ports.EventSink
	logger      *zap.Logger

	maxMessageLength int
	historyPageSize  int
	historyPageMax   int
	commandRefill    time.Duration

	bootstrapServerName string
	bootstrapChannel    string
	bootstrapAdmins     []string

	locks    stripedLock
	slowmode *cache.Cache

	bootstrapMu sync.RWMutex
	bootstrapID domain.ServerID
}

func NewChatService(
	repos ports.Repositories,
	registry ports.Registry,
	permissions ports.PermissionService,
	presence ports.PresenceService,
	stats *StatsService,
	sinks []ports.EventSink,
	cfg *config.Config,
	logger *zap.Logger,
) ports.ChatService {
	return &chatService{
		repos:               repos,
		registry:            registry,
		permissions:         permissions,
		presence:            presence,
		stats:               stats,
		sinks:               sinks,
		logger:              logger,
		maxMessageLength:    cfg.Limits.MaxMessageLength,
		historyPageSize:     cfg.Limits.HistoryPageSize,
		historyPageMax:      cfg.Limits.HistoryPageMax,
		commandRefill:       cfg.RateLimiting.Command.RefillEvery,
		bootstrapServerName: cfg.Bootstrap.ServerName,
		bootstrapChannel:    cfg.Bootstrap.DefaultChannel,
		bootstrapAdmins:     cfg.Bootstrap.Admins,
		slowmode:            cache.NewCache(time.Hour),
	}
}

// Apply runs one command through the pipeline: rate gate, validate,
// authorize, persist, update registry, fan out. The returned events answer
// only the origin connection; broadcast events have already been fanned out
// when Apply returns.
func (s *chatService) Apply(ctx context.Context, actor ports.Actor, cmd domain.Command) ([]domain.Event, error) {
	// internal callers (bootstrap, restore tooling) carry no connection and
	// are not throttled
	if actor.ConnID != "" && !s.registry.TryConsume("command:"+string(actor.ID), 1) {
		return nil, apperrors.NewRateLimitError(s.commandRefill)
	}

	ctx, span := tracing.TraceCommand(ctx, cmd.CommandName(), string(actor.ID))
	defer span.End()

	start := time.Now()
	events, err := s.dispatch(ctx, actor, cmd)
	s.stats.RecordCommand(cmd.CommandName(), err, time.Since(start))
	if err != nil {
		tracing.RecordError(ctx, err)
		s.logger.Debug("command rejected",
			zap.String("command", cmd.CommandName()),
			zap.String("identity_id", string(actor.ID)),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Debug("command applied",
		zap.String("command", cmd.CommandName()),
		zap.String("identity_id", string(actor.ID)),
		zap.Duration("took", time.Since(start)),
	)
	return events, nil
}

func (s *chatService) dispatch(ctx context.Context, actor ports.Actor, cmd domain.Command) ([]domain.Event, error) {
	switch c := cmd.(type) {
	case domain.SendMessage:
		return s.sendMessage(ctx, actor, c)
	case domain.EditMessage:
		return s.editMessage(ctx, actor, c)
	case domain.DeleteMessage:
		return s.deleteMessage(ctx, actor, c)
	case domain.GetHistory:
		return s.getHistory(ctx, actor, c)
	case domain.Typing:
		return s.typing(ctx, actor, c)
	case domain.CreateChannel:
		return s.createChannel(ctx, actor, c)
	case domain.DeleteChannel:
		return s.deleteChannel(ctx, actor, c)
	case domain.ArchiveChannel:
		return s.archiveChannel(ctx, actor, c)
	case domain.UnarchiveChannel:
		return s.unarchiveChannel(ctx, actor, c)
	case domain.SetTopic:
		return s.setTopic(ctx, actor, c)
	case domain.SetSlowMode:
		return s.setSlowMode(ctx, actor, c)
	case domain.JoinChannel:
		return s.joinChannel(ctx, actor, c)
	case domain.PartChannel:
		return s.partChannel(ctx, actor, c)
	case domain.ListChannels:
		return s.listChannels(ctx, actor, c)
	case domain.ListMembers:
		return s.listMembers(ctx, actor, c)
	case domain.InviteMember:
		return s.inviteMember(ctx, actor, c)
	case domain.CreateServer:
		return s.createServer(ctx, actor, c)
	case domain.DeleteServer:
		return s.deleteServer(ctx, actor, c)
	case domain.CreateRole:
		return s.createRole(ctx, actor, c)
	case domain.UpdateRole:
		return s.updateRole(ctx, actor, c)
	case domain.DeleteRole:
		return s.deleteRole(ctx, actor, c)
	case domain.AssignRole:
		return s.assignRole(ctx, actor, c)
	case domain.UnassignRole:
		return s.unassignRole(ctx, actor, c)
	case domain.SetOverride:
		return s.setOverride(ctx, actor, c)
	case domain.ClearOverride:
		return s.clearOverride(ctx, actor, c)
	case domain.SetNickname:
		return s.setNickname(ctx, actor, c)
	case domain.KickMember:
		return s.kickMember(ctx, actor, c)
	case domain.BanMember:
		return s.banMember(ctx, actor, c)
	case domain.UnbanMember:
		return s.unbanMember(ctx, actor, c)
	case domain.GetMember:
		return s.getMember(ctx, actor, c)
	case domain.SetAway:
		return s.setAway(ctx, actor, c)
	case domain.CreateWebhook:
		return s.createWebhook(ctx, actor, c)
	case domain.DeleteWebhook:
		return s.deleteWebhook(ctx, actor, c)
	case domain.ListWebhooks:
		return s.listWebhooks(ctx, actor, c)
	default:
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("unknown command %q", cmd.CommandName()))
	}
}

// Bootstrap ensures the configured bootstrap server with its seeded roles
// and default channel exists.
func (s *chatService) Bootstrap(ctx context.Context) error {
	server, err := s.repos.Servers().GetByName(ctx, s.bootstrapServerName)
	if errors.Is(err, domain.ErrServerNotFound) {
		owner := domain.IdentityID("system")
		if len(s.bootstrapAdmins) > 0 {
			owner = domain.IdentityID(s.bootstrapAdmins[0])
		}
		server, err = s.provisionServer(ctx, s.bootstrapServerName, owner, "")
		if err != nil {
			return fmt.Errorf("failed to bootstrap server: %w", err)
		}
		s.logger.Info("bootstrap server created",
			zap.String("server_id", string(server.ID)),
			zap.String("name", server.Name),
		)
	} else if err != nil {
		return fmt.Errorf("failed to look up bootstrap server: %w", err)
	}

	s.bootstrapMu.Lock()
	s.bootstrapID = server.ID
	s.bootstrapMu.Unlock()
	return nil
}

// ResolveServer maps an empty id to the bootstrap server.
func (s *chatService) ResolveServer(ctx context.Context, id domain.ServerID) (*domain.Server, error) {
	if id != "" {
		server, err := s.repos.Servers().GetByID(ctx, id)
		return server, mapRepoErr(err)
	}

	s.bootstrapMu.RLock()
	bootID := s.bootstrapID
	s.bootstrapMu.RUnlock()
	if bootID != "" {
		server, err := s.repos.Servers().GetByID(ctx, bootID)
		return server, mapRepoErr(err)
	}
	server, err := s.repos.Servers().GetByName(ctx, s.bootstrapServerName)
	return server, mapRepoErr(err)
}

// provisionServer creates a server with its seeded roles, default channel
// and owner membership.
func (s *chatService) provisionServer(ctx context.Context, name string, owner domain.IdentityID, ownerName string) (*domain.Server, error) {
	now := time.Now().UTC()
	server := &domain.Server{
		ID:        domain.ServerID(uuid.NewString()),
		Name:      name,
		OwnerID:   owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repos.Servers().Create(ctx, server); err != nil {
		return nil, mapRepoErr(err)
	}

	seeded := []*domain.Role{
		{
			ID:          domain.RoleID(uuid.NewString()),
			ServerID:    server.ID,
			Name:        domain.EveryoneRoleName,
			Permissions: domain.DefaultEveryonePermissions,
			Rank:        0,
			Managed:     true,
			CreatedAt:   now,
		},
		{
			ID:          domain.RoleID(uuid.NewString()),
			ServerID:    server.ID,
			Name:        "Moderator",
			Permissions: domain.DefaultModeratorPermissions,
			Rank:        50,
			CreatedAt:   now,
		},
		{
			ID:          domain.RoleID(uuid.NewString()),
			ServerID:    server.ID,
			Name:        "Admin",
			Permissions: domain.CapAll,
			Rank:        90,
			CreatedAt:   now,
		},
	}
	for _, role := range seeded {
		if err := s.repos.Roles().Create(ctx, role); err != nil {
			return nil, mapRepoErr(err)
		}
	}

	channelName := s.bootstrapChannel
	if channelName == "" {
		channelName = "general"
	}
	channel := &domain.Channel{
		ID:         domain.ChannelID(uuid.NewString()),
		ServerID:   server.ID,
		Name:       channelName,
		Visibility: domain.ChannelPublic,
		State:      domain.ChannelStateActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repos.Channels().Create(ctx, channel); err != nil {
		return nil, mapRepoErr(err)
	}

	if ownerName == "" {
		ownerName = string(owner)
	}
	member := &domain.Member{
		ServerID: server.ID,
		Identity: owner,
		Username: ownerName,
		JoinedAt: now,
	}
	if err := s.repos.Members().Upsert(ctx, member); err != nil {
		return nil, mapRepoErr(err)
	}

	return server, nil
}

// channelCtx is the authorization result a channel-scoped handler works
// with.
type channelCtx struct {
	server  *domain.Server
	channel *domain.Channel
	caps    domain.Capability
}

// loadChannel resolves a channel reference to its server and channel rows.
// Tombstoned channels look missing.
func (s *chatService) loadChannel(ctx context.Context, ref domain.ChannelRef) (*domain.Server, *domain.Channel, error) {
	if ref.ChannelID != "" {
		channel, err := s.repos.Channels().GetByID(ctx, ref.ChannelID)
		if err != nil {
			return nil, nil, mapRepoErr(err)
		}
		if channel.State == domain.ChannelStateDeleted {
			return nil, nil, domain.ErrChannelNotFound
		}
		server, err := s.repos.Servers().GetByID(ctx, channel.ServerID)
		if err != nil {
			return nil, nil, mapRepoErr(err)
		}
		return server, channel, nil
	}

	name := utils.NormalizeChannelName(ref.Channel)
	if name == "" {
		return nil, nil, apperrors.NewInvalidInputError("channel reference required")
	}
	server, err := s.ResolveServer(ctx, ref.ServerID)
	if err != nil {
		return nil, nil, err
	}
	channel, err := s.repos.Channels().GetByName(ctx, server.ID, name)
	if err != nil {
		return nil, nil, mapRepoErr(err)
	}
	if channel.State == domain.ChannelStateDeleted {
		return nil, nil, domain.ErrChannelNotFound
	}
	return server, channel, nil
}

// resolveChannelCtx authorizes the actor against a channel. Channels the
// actor cannot view are reported as missing, so private channels are
// indistinguishable from nonexistent ones.
func (s *chatService) resolveChannelCtx(ctx context.Context, actor ports.Actor, ref domain.ChannelRef, need domain.Capability) (*channelCtx, error) {
	server, channel, err := s.loadChannel(ctx, ref)
	if err != nil {
		return nil, err
	}

	caps, err := s.permissions.Resolve(ctx, server, channel, actor.ID, actor.Admin)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !caps.Has(domain.CapViewChannel) {
		return nil, domain.ErrChannelNotFound
	}
	// archived channels are read only; the mask lives here, not in the pure
	// resolver, so moderation capabilities survive for unarchiving
	if channel.State == domain.ChannelStateArchived {
		caps &^= domain.CapSendMessages
	}
	if need != 0 && !caps.Has(need) {
		return nil, apperrors.NewForbiddenError("insufficient channel permissions")
	}
	return &channelCtx{server: server, channel: channel, caps: caps}, nil
}

// freshChannel reloads a channel by id, typically under the caller's entity
// lock so read-modify-write sequences do not interleave.
func (s *chatService) freshChannel(ctx context.Context, id domain.ChannelID) (*domain.Channel, error) {
	channel, err := s.repos.Channels().GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if channel.State == domain.ChannelStateDeleted {
		return nil, domain.ErrChannelNotFound
	}
	return channel, nil
}

// ensureMember makes the actor a member of the server, honoring bans and
// the invite-only flag. Returns the membership and whether it was created.
func (s *chatService) ensureMember(ctx context.Context, server *domain.Server, actor ports.Actor) (*domain.Member, bool, error) {
	member, err := s.repos.Members().Get(ctx, server.ID, actor.ID)
	if err == nil {
		return member, false, nil
	}
	if !errors.Is(err, domain.ErrMemberNotFound) {
		return nil, false, mapRepoErr(err)
	}

	banned, err := s.repos.Members().IsBanned(ctx, server.ID, actor.ID)
	if err != nil {
		return nil, false, mapRepoErr(err)
	}
	if banned {
		return nil, false, domain.ErrBanned
	}
	if server.Flags.InviteOnly && !actor.Admin && server.OwnerID != actor.ID {
		return nil, false, apperrors.NewForbiddenError("server is invite only")
	}

	member = &domain.Member{
		ServerID: server.ID,
		Identity: actor.ID,
		Username: actor.Username,
		JoinedAt: time.Now().UTC(),
	}
	if err := s.repos.Members().Upsert(ctx, member); err != nil {
		return nil, false, mapRepoErr(err)
	}
	return member, true, nil
}

// displayName returns the member's nick for events, falling back to the
// actor's username when no membership exists yet.
func (s *chatService) displayName(ctx context.Context, serverID domain.ServerID, actor ports.Actor) string {
	member, err := s.repos.Members().Get(ctx, serverID, actor.ID)
	if err != nil {
		return actor.Username
	}
	return member.DisplayName()
}

// fanOutChannel broadcasts to the channel room and feeds the sinks. Callers
// hold the entity lock, so fan-out order matches mutation order.
func (s *chatService) fanOutChannel(channelID domain.ChannelID, event domain.Event) {
	n := s.registry.Broadcast(channelID, event)
	s.stats.RecordBroadcast(event.EventName(), n)
	s.deliverSinks(event)
}

// fanOutServer broadcasts to the server room and feeds the sinks.
func (s *chatService) fanOutServer(serverID domain.ServerID, event domain.Event) {
	n := s.registry.BroadcastServer(serverID, event)
	s.stats.RecordBroadcast(event.EventName(), n)
	s.deliverSinks(event)
}

// deliverSinks pushes the event to every sink asynchronously. A failing
// sink never fails the command that produced the event.
func (s *chatService) deliverSinks(event domain.Event) {
	for _, sink := range s.sinks {
		go func(sk ports.EventSink) {
			ctx, cancel := context.WithTimeout(context.Background(), sinkDeliveryTimeout)
			defer cancel()
			if err := sk.Deliver(ctx, event); err != nil {
				s.logger.Warn("event sink delivery failed",
					zap.String("sink", sk.Name()),
					zap.String("event", event.EventName()),
					zap.Error(err),
				)
			}
		}(sink)
	}
}

func (s *chatService) checkSlowMode(channel *domain.Channel, identity domain.IdentityID, caps domain.Capability) error {
	if channel.SlowMode <= 0 || caps.Has(domain.CapModerateMembers) {
		return nil
	}
	if v, ok := s.slowmode.Get(slowModeKey(channel.ID, identity)); ok {
		if last, ok := v.(time.Time); ok {
			elapsed := time.Since(last)
			if elapsed < channel.SlowMode {
				return apperrors.NewRateLimitError(channel.SlowMode - elapsed)
			}
		}
	}
	return nil
}

func (s *chatService) recordSend(channel *domain.Channel, identity domain.IdentityID) {
	if channel.SlowMode > 0 {
		s.slowmode.SetWithTTL(slowModeKey(channel.ID, identity), time.Now(), channel.SlowMode)
	}
}

func slowModeKey(channelID domain.ChannelID, identity domain.IdentityID) string {
	return "slowmode:" + string(channelID) + ":" + string(identity)
}

func channelLockKey(id domain.ChannelID) string { return "channel:" + string(id) }
func serverLockKey(id domain.ServerID) string   { return "server:" + string(id) }

var repoSentinels = []error{
	domain.ErrServerNotFound,
	domain.ErrChannelNotFound,
	domain.ErrMessageNotFound,
	domain.ErrMemberNotFound,
	domain.ErrRoleNotFound,
	domain.ErrWebhookNotFound,
	domain.ErrChannelDeleted,
	domain.ErrChannelNameTaken,
	domain.ErrNicknameTaken,
	domain.ErrBanned,
}

// mapRepoErr passes domain sentinels and app errors through and wraps
// anything else as storage unavailability.
func mapRepoErr(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range repoSentinels {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "storage unavailable", http.StatusServiceUnavailable)
}
