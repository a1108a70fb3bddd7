package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	apperrors "parley/pkg/errors"
	"parley/pkg/utils"
	"parley/pkg/validation"

	"github.com/google/uuid"
)

// maxSlowModeInterval caps the per-channel slow-mode setting.
const maxSlowModeInterval = 6 * time.Hour

func (s *chatService) createChannel(ctx context.Context, actor ports.Actor, c domain.CreateChannel) ([]domain.Event, error) {
	name := utils.NormalizeChannelName(c.Name)
	if err := validation.ValidateChannelName(name); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	if c.Topic != "" {
		if err := validation.ValidateTopic(c.Topic); err != nil {
			return nil, apperrors.NewInvalidInputError(err.Error())
		}
	}

	server, err := s.ResolveServer(ctx, c.ServerID)
	if err != nil {
		return nil, err
	}
	caps, err := s.permissions.Resolve(ctx, server, nil, actor.ID, actor.Admin)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !caps.Has(domain.CapManageChannels) {
		return nil, apperrors.NewForbiddenError("insufficient server permissions")
	}

	unlock := s.locks.lock(serverLockKey(server.ID))
	defer unlock()

	if _, err := s.repos.Channels().GetByName(ctx, server.ID, name); err == nil {
		return nil, domain.ErrChannelNameTaken
	} else if !errors.Is(err, domain.ErrChannelNotFound) {
		return nil, mapRepoErr(err)
	}

	now := time.Now().UTC()
	visibility := domain.ChannelPublic
	var roster []domain.IdentityID
	if c.Private {
		visibility = domain.ChannelPrivate
		// the creator is the private channel's first access grant
		roster = []domain.IdentityID{actor.ID}
	}
	channel := &domain.Channel{
		ID:         domain.ChannelID(uuid.NewString()),
		ServerID:   server.ID,
		Name:       name,
		Topic:      c.Topic,
		Visibility: visibility,
		State:      domain.ChannelStateActive,
		Members:    roster,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repos.Channels().Create(ctx, channel); err != nil {
		return nil, mapRepoErr(err)
	}

	ev := domain.ChannelCreated{
		EventMeta: domain.NewEventMeta(server.ID, channel.ID, actor.ID),
		Channel:   channel,
	}
	// private channels are announced only to the creator, never to the room
	if channel.IsPrivate() {
		s.deliverSinks(ev)
	} else {
		s.fanOutServer(server.ID, ev)
	}
	return []domain.Event{ev}, nil
}

func (s *chatService) deleteChannel(ctx context.Context, actor ports.Actor, c domain.DeleteChannel) ([]domain.Event, error) {
	cc, err := s.resolveChannelCtx(ctx, actor, c.ChannelRef, domain.CapManageChannels)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(channelLockKey(cc.channel.ID))
	defer unlock()

	channel, err := s.freshChannel(ctx, cc.channel.ID)
	if err != nil {
		return nil, err
	}

	// tombstone first so concurrent commands see the terminal state, then
	// drop the message history
	channel.State = domain.ChannelStateDeleted
	channel.UpdatedAt = time.Now().UTC()
	if err := s.repos.Channels().Update(ctx, channel); err != nil {
		return nil, mapRepoErr(err)
	}
	if err := s.repos.Messages().DeleteByChannel(ctx, channel.ID); err != nil {
		s.logger.Warn("failed to drop messages of deleted channel")
	}
	if err := s.repos.Channels().Delete(ctx, channel.ID); err != nil {
		return nil, mapRepoErr(err)
	}

	ev := domain.ChannelDeleted{
		EventMeta: domain.NewEventMeta(channel.ServerID, channel.ID, actor.ID),
		Name:      channel.Name,
	}
	s.fanOutChannel(channel.ID, ev)
	s.fanOutServer(channel.ServerID, ev)
	s.registry.DropChannel(channel.ID)
	return []domain.Event{ev}, nil
}

func (s *chatService) archiveChannel(ctx context.Context, actor ports.Actor, c domain.ArchiveChannel) ([]domain.Event, error) {
	cc, err := s.resolveChannelCtx(ctx, actor, c.ChannelRef, domain.CapManageChannels)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(channelLockKey(cc.channel.ID))
	defer unlock()

	channel, err := s.freshChannel(ctx, cc.channel.ID)
	if err != nil {
		return nil, err
	}
	if channel.State != domain.ChannelStateActive {
		return nil, apperrors.NewConflictError("channel is not active")
	}

	channel.State = domain.ChannelStateArchived
	channel.UpdatedAt = time.Now().UTC()
	if err := s.repos.Channels().Update(ctx, channel); err != nil {
		return nil, mapRepoErr(err)
	}

	ev := domain.ChannelArchived{EventMeta: domain.NewEventMeta(channel.ServerID, channel.ID, actor.ID)}
	s.fanOutChannel(channel.ID, ev)
	return []domain.Event{ev}, nil
}

func (s *chatService) unarchiveChannel(ctx context.Context, actor ports.Actor, c domain.UnarchiveChannel) ([]domain.Event, error) {
	cc, err := s.resolveChannelCtx(ctx, actor, c.ChannelRef, domain.CapManageChannels)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(channelLockKey(cc.channel.ID))
	defer unlock()

	channel, err := s.freshChannel(ctx, cc.channel.ID)
	if err != nil {
		return nil, err
	}
	if channel.State != domain.ChannelStateArchived {
		return nil, apperrors.NewConflictError("channel is not archived")
	}

	channel.State = domain.ChannelStateActive
	channel.UpdatedAt = time.Now().UTC()
	if err := s.repos.Channels().Update(ctx, channel); err != nil {
		return nil, mapRepoErr(err)
	}

	ev := domain.ChannelUnarchived{EventMeta: domain.NewEventMeta(channel.ServerID, channel.ID, actor.ID)}
	s.fanOutChannel(channel.ID, ev)
	return []domain.Event{ev}, nil
}

func (s *chatService) setTopic(ctx context.Context, actor ports.Actor, c domain.SetTopic) ([]domain.Event, error) {
	if err := validation.ValidateTopic(c.Topic); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	cc, err := s.resolveChannelCtx(ctx, actor, c.ChannelRef, domain.CapManageChannels)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(channelLockKey(cc.channel.ID))
	defer unlock()

	channel, err := s.freshChannel(ctx, cc.channel.ID)
	if err != nil {
		return nil, err
	}
	channel.Topic = c.Topic
	channel.UpdatedAt = time.Now().UTC()
	if err := s.repos.Channels().Update(ctx, channel); err != nil {
		return nil, mapRepoErr(err)
	}

	ev := domain.TopicChanged{
		EventMeta: domain.NewEventMeta(channel.ServerID, channel.ID, actor.ID),
		Topic:     c.Topic,
		Nick:      s.displayName(ctx, channel.ServerID, actor),
	}
	s.fanOutChannel(channel.ID, ev)
	return []domain.Event{ev}, nil
}

func (s *chatService) setSlowMode(ctx context.Context, actor ports.Actor, c domain.SetSlowMode) ([]domain.Event, error) {
	if c.Interval < 0 || c.Interval > maxSlowModeInterval {
		return nil, apperrors.NewInvalidInputError("slow mode interval out of range")
	}
	cc, err := s.resolveChannelCtx(ctx, actor, c.ChannelRef, domain.CapManageChannels)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(channelLockKey(cc.channel.ID))
	defer unlock()

	channel, err := s.freshChannel(ctx, cc.channel.ID)
	if err != nil {
		return nil, err
	}
	channel.SlowMode = c.Interval
	channel.UpdatedAt = time.Now().UTC()
	if err := s.repos.Channels().Update(ctx, channel); err != nil {
		return nil, mapRepoErr(err)
	}

	ev := domain.SlowModeChanged{
		EventMeta: domain.NewEventMeta(channel.ServerID, channel.ID, actor.ID),
		Interval:  c.Interval,
	}
	s.fanOutChannel(channel.ID, ev)
	return []domain.Event{ev}, nil
}

func (s *chatService) joinChannel(ctx context.Context, actor ports.Actor, c domain.JoinChannel) ([]domain.Event, error) {
	server, channel, err := s.loadChannel(ctx, c.ChannelRef)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(channelLockKey(channel.ID))
	defer unlock()

	channel, err = s.freshChannel(ctx, channel.ID)
	if err != nil {
		return nil, err
	}

	// membership first: a first-time visitor holds no roles until the
	// server membership exists, so capabilities resolve against the new
	// membership's @everyone grant
	member, _, err := s.ensureMember(ctx, server, actor)
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

	// joining a private channel additionally requires an existing grant;
	// this covers grants expressed through the roster rather than overrides
	if channel.IsPrivate() && !channel.HasMember(actor.ID) && !actor.Admin && server.OwnerID != actor.ID {
		return nil, domain.ErrChannelNotFound
	}

	if channel.AddMember(actor.ID) {
		if err := s.repos.Channels().Update(ctx, channel); err != nil {
			return nil, mapRepoErr(err)
		}
	}

	if actor.ConnID != "" {
		s.registry.JoinServer(actor.ConnID, channel.ServerID)
		// joining twice from the same connection is idempotent; the broadcast
		// fires only on the identity's first live presence in the room
		if s.registry.Join(actor.ConnID, channel.ID) {
			ev := domain.MemberJoined{
				EventMeta: domain.NewEventMeta(channel.ServerID, channel.ID, actor.ID),
				Nick:      member.DisplayName(),
			}
			s.fanOutChannel(channel.ID, ev)
		}
	}

	return []domain.Event{domain.ChannelSnapshot{
		EventMeta: domain.NewEventMeta(channel.ServerID, channel.ID, actor.ID),
		Channel:   channel,
	}}, nil
}

func (s *chatService) partChannel(ctx context.Context, actor ports.Actor, c domain.PartChannel) ([]domain.Event, error) {
	server, channel, err := s.loadChannel(ctx, c.ChannelRef)
	if err != nil {
		// parting something that does not exist (or is invisible) is a no-op
		if errors.Is(err, domain.ErrChannelNotFound) || errors.Is(err, domain.ErrServerNotFound) {
			return nil, nil
		}
		return nil, err
	}

	unlock := s.locks.lock(channelLockKey(channel.ID))
	defer unlock()

	channel, err = s.freshChannel(ctx, channel.ID)
	if err != nil {
		return nil, nil
	}

	wasPresent := false
	if actor.ConnID != "" {
		wasPresent = s.registry.Leave(actor.ConnID, channel.ID)
	}

	// a private channel's roster doubles as its access grant, so parting
	// detaches the connection but keeps the invitation
	if !channel.IsPrivate() && channel.RemoveMember(actor.ID) {
		if err := s.repos.Channels().Update(ctx, channel); err != nil {
			return nil, mapRepoErr(err)
		}
		wasPresent = true
	}

	if wasPresent {
		ev := domain.MemberParted{
			EventMeta: domain.NewEventMeta(server.ID, channel.ID, actor.ID),
			Nick:      s.displayName(ctx, server.ID, actor),
			Reason:    c.Reason,
		}
		s.fanOutChannel(channel.ID, ev)
	}
	return nil, nil
}

func (s *chatService) listChannels(ctx context.Context, actor ports.Actor, c domain.ListChannels) ([]domain.Event, error) {
	server, err := s.ResolveServer(ctx, c.ServerID)
	if err != nil {
		return nil, err
	}
	channels, err := s.repos.Channels().ListByServer(ctx, server.ID)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	visible := make([]*domain.Channel, 0, len(channels))
	for _, channel := range channels {
		if channel.State == domain.ChannelStateDeleted {
			continue
		}
		caps, err := s.permissions.Resolve(ctx, server, channel, actor.ID, actor.Admin)
		if err != nil {
			return nil, mapRepoErr(err)
		}
		if !caps.Has(domain.CapViewChannel) {
			continue
		}
		if channel.IsPrivate() && !channel.HasMember(actor.ID) && !actor.Admin && server.OwnerID != actor.ID {
			continue
		}
		visible = append(visible, channel)
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i].Name < visible[j].Name })

	return []domain.Event{domain.ChannelList{
		EventMeta: domain.NewEventMeta(server.ID, "", actor.ID),
		Channels:  visible,
	}}, nil
}

func (s *chatService) listMembers(ctx context.Context, actor ports.Actor, c domain.ListMembers) ([]domain.Event, error) {
	cc, err := s.resolveChannelCtx(ctx, actor, c.ChannelRef, 0)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.MemberSummary, 0, len(cc.channel.Members))
	for _, identity := range cc.channel.Members {
		member, err := s.repos.Members().Get(ctx, cc.server.ID, identity)
		if err != nil {
			continue
		}
		presence := s.presence.Status(identity)
		summaries = append(summaries, domain.MemberSummary{
			Identity:    identity,
			Username:    member.Username,
			Nick:        member.DisplayName(),
			Status:      presence.Status,
			AwayMessage: presence.AwayMessage,
			RoleIDs:     member.RoleIDs,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Nick < summaries[j].Nick })

	return []domain.Event{domain.MemberList{
		EventMeta: domain.NewEventMeta(cc.server.ID, cc.channel.ID, actor.ID),
		Members:   summaries,
	}}, nil
}

func (s *chatService) inviteMember(ctx context.Context, actor ports.Actor, c domain.InviteMember) ([]domain.Event, error) {
	cc, err := s.resolveChannelCtx(ctx, actor, c.ChannelRef, domain.CapCreateInvite)
	if err != nil {
		return nil, err
	}

	target, err := s.resolveTarget(ctx, cc.server.ID, c.Identity, c.Nick)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(channelLockKey(cc.channel.ID))
	defer unlock()

	channel, err := s.freshChannel(ctx, cc.channel.ID)
	if err != nil {
		return nil, err
	}
	if channel.AddMember(target.Identity) {
		if err := s.repos.Channels().Update(ctx, channel); err != nil {
			return nil, mapRepoErr(err)
		}
	}

	ev := domain.MemberInvited{
		EventMeta:  domain.NewEventMeta(channel.ServerID, channel.ID, actor.ID),
		Target:     target.Identity,
		TargetNick: target.DisplayName(),
		ActorNick:  s.displayName(ctx, channel.ServerID, actor),
	}
	s.fanOutChannel(channel.ID, ev)
	// the invited identity is not in the room yet; notify its connections
	// directly so both protocols can surface the invite
	for _, conn := range s.registry.Connections(target.Identity) {
		conn.Enqueue(ev)
	}
	return []domain.Event{ev}, nil
}

// resolveTarget finds a server member by identity id or by nickname;
// line-protocol clients only ever know nicknames.
func (s *chatService) resolveTarget(ctx context.Context, serverID domain.ServerID, identity domain.IdentityID, nick string) (*domain.Member, error) {
	if identity != "" {
		member, err := s.repos.Members().Get(ctx, serverID, identity)
		return member, mapRepoErr(err)
	}
	if nick == "" {
		return nil, apperrors.NewInvalidInputError("target identity or nick required")
	}
	member, err := s.repos.Members().GetByNick(ctx, serverID, utils.NormalizeNick(nick))
	return member, mapRepoErr(err)
}
