package services

import (
	"context"
	"errors"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	apperrors "parley/pkg/errors"
	"parley/pkg/utils"
	"parley/pkg/validation"
)

func (s *chatService) setNickname(ctx context.Context, actor ports.Actor, c domain.SetNickname) ([]domain.Event, error) {
	nick := utils.NormalizeNick(c.Nickname)
	if err := validation.ValidateNickname(nick); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}

	server, err := s.ResolveServer(ctx, c.ServerID)
	if err != nil {
		return nil, err
	}
	caps, err := s.permissions.Resolve(ctx, server, nil, actor.ID, actor.Admin)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !caps.Has(domain.CapChangeNickname) {
		return nil, apperrors.NewForbiddenError("insufficient server permissions")
	}

	unlock := s.locks.lock(serverLockKey(server.ID))
	defer unlock()

	member, _, err := s.ensureMember(ctx, server, actor)
	if err != nil {
		return nil, err
	}
	oldNick := member.DisplayName()
	if oldNick == nick {
		return nil, nil
	}

	if other, err := s.repos.Members().GetByNick(ctx, server.ID, nick); err == nil {
		if other.Identity != actor.ID {
			return nil, domain.ErrNicknameTaken
		}
	} else if !errors.Is(err, domain.ErrMemberNotFound) {
		return nil, mapRepoErr(err)
	}

	member.Nickname = nick
	if err := s.repos.Members().Upsert(ctx, member); err != nil {
		return nil, mapRepoErr(err)
	}

	ev := domain.NickChanged{
		EventMeta: domain.NewEventMeta(server.ID, "", actor.ID),
		OldNick:   oldNick,
		NewNick:   nick,
	}
	s.fanOutServer(server.ID, ev)
	return []domain.Event{ev}, nil
}

func (s *chatService) kickMember(ctx context.Context, actor ports.Actor, c domain.KickMember) ([]domain.Event, error) {
	cc, err := s.resolveChannelCtx(ctx, actor, c.ChannelRef, domain.CapKickMembers)
	if err != nil {
		return nil, err
	}

	target, err := s.resolveTarget(ctx, cc.server.ID, c.Identity, c.Nick)
	if err != nil {
		return nil, err
	}
	if err := s.requireOutranks(ctx, cc.server, actor, target.Identity); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(channelLockKey(cc.channel.ID))
	defer unlock()

	channel, err := s.freshChannel(ctx, cc.channel.ID)
	if err != nil {
		return nil, err
	}
	if channel.RemoveMember(target.Identity) {
		if err := s.repos.Channels().Update(ctx, channel); err != nil {
			return nil, mapRepoErr(err)
		}
	}

	ev := domain.MemberKicked{
		EventMeta:  domain.NewEventMeta(channel.ServerID, channel.ID, actor.ID),
		Target:     target.Identity,
		TargetNick: target.DisplayName(),
		ActorNick:  s.displayName(ctx, channel.ServerID, actor),
		Reason:     c.Reason,
	}
	// the target hears the kick before its connections leave the room
	s.fanOutChannel(channel.ID, ev)
	s.registry.LeaveAll(target.Identity, channel.ID)
	return []domain.Event{ev}, nil
}

func (s *chatService) banMember(ctx context.Context, actor ports.Actor, c domain.BanMember) ([]domain.Event, error) {
	server, err := s.ResolveServer(ctx, c.ServerID)
	if err != nil {
		return nil, err
	}
	caps, err := s.permissions.Resolve(ctx, server, nil, actor.ID, actor.Admin)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !caps.Has(domain.CapBanMembers) {
		return nil, apperrors.NewForbiddenError("insufficient server permissions")
	}

	target, err := s.resolveTarget(ctx, server.ID, c.Identity, c.Nick)
	if err != nil {
		return nil, err
	}
	if err := s.requireOutranks(ctx, server, actor, target.Identity); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(serverLockKey(server.ID))
	defer unlock()

	ban := &domain.Ban{
		ServerID:  server.ID,
		Identity:  target.Identity,
		Actor:     actor.ID,
		Reason:    c.Reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repos.Members().Ban(ctx, ban); err != nil {
		return nil, mapRepoErr(err)
	}
	if err := s.repos.Members().Remove(ctx, server.ID, target.Identity); err != nil && !errors.Is(err, domain.ErrMemberNotFound) {
		return nil, mapRepoErr(err)
	}

	ev := domain.MemberBanned{
		EventMeta:  domain.NewEventMeta(server.ID, "", actor.ID),
		Target:     target.Identity,
		TargetNick: target.DisplayName(),
		ActorNick:  s.displayName(ctx, server.ID, actor),
		Reason:     c.Reason,
	}
	s.fanOutServer(server.ID, ev)

	// detach every live connection of the banned identity from the server's
	// rooms; the channel rosters drop the grant as well
	channels, err := s.repos.Channels().ListByServer(ctx, server.ID)
	if err == nil {
		for _, channel := range channels {
			if channel.RemoveMember(target.Identity) {
				_ = s.repos.Channels().Update(ctx, channel)
			}
			s.registry.LeaveAll(target.Identity, channel.ID)
		}
	}
	for _, conn := range s.registry.Connections(target.Identity) {
		s.registry.LeaveServer(conn.ID(), server.ID)
	}
	return []domain.Event{ev}, nil
}

func (s *chatService) unbanMember(ctx context.Context, actor ports.Actor, c domain.UnbanMember) ([]domain.Event, error) {
	server, err := s.ResolveServer(ctx, c.ServerID)
	if err != nil {
		return nil, err
	}
	caps, err := s.permissions.Resolve(ctx, server, nil, actor.ID, actor.Admin)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !caps.Has(domain.CapBanMembers) {
		return nil, apperrors.NewForbiddenError("insufficient server permissions")
	}

	banned, err := s.repos.Members().IsBanned(ctx, server.ID, c.Identity)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !banned {
		return nil, nil
	}
	if err := s.repos.Members().Unban(ctx, server.ID, c.Identity); err != nil {
		return nil, mapRepoErr(err)
	}

	ev := domain.MemberUnbanned{
		EventMeta: domain.NewEventMeta(server.ID, "", actor.ID),
		Target:    c.Identity,
	}
	s.fanOutServer(server.ID, ev)
	return []domain.Event{ev}, nil
}

func (s *chatService) getMember(ctx context.Context, actor ports.Actor, c domain.GetMember) ([]domain.Event, error) {
	server, err := s.ResolveServer(ctx, c.ServerID)
	if err != nil {
		return nil, err
	}
	member, err := s.resolveTarget(ctx, server.ID, c.Identity, c.Nick)
	if err != nil {
		return nil, err
	}

	presence := s.presence.Status(member.Identity)
	return []domain.Event{domain.MemberInfo{
		EventMeta: domain.NewEventMeta(server.ID, "", actor.ID),
		Member: domain.MemberSummary{
			Identity:    member.Identity,
			Username:    member.Username,
			Nick:        member.DisplayName(),
			Status:      presence.Status,
			AwayMessage: presence.AwayMessage,
			RoleIDs:     member.RoleIDs,
		},
		JoinedAt: member.JoinedAt,
	}}, nil
}

func (s *chatService) setAway(ctx context.Context, actor ports.Actor, c domain.SetAway) ([]domain.Event, error) {
	if c.Away && len(c.Message) > 200 {
		return nil, apperrors.NewInvalidInputError("away message too long")
	}
	nick := actor.Username
	if servers := s.registry.IdentityServers(actor.ID); len(servers) > 0 {
		nick = s.displayName(ctx, servers[0], actor)
	}
	s.presence.SetAway(actor.ID, nick, c.Away, c.Message)
	return nil, nil
}

// requireOutranks enforces the moderation hierarchy: the actor's effective
// rank must strictly exceed the target's. Owners and platform admins bypass.
func (s *chatService) requireOutranks(ctx context.Context, server *domain.Server, actor ports.Actor, target domain.IdentityID) error {
	if target == server.OwnerID {
		return apperrors.NewForbiddenError("the server owner cannot be targeted")
	}
	if actor.Admin || actor.ID == server.OwnerID {
		return nil
	}
	actorRank, err := s.permissions.EffectiveRank(ctx, server.ID, actor.ID)
	if err != nil {
		return mapRepoErr(err)
	}
	targetRank, err := s.permissions.EffectiveRank(ctx, server.ID, target)
	if err != nil {
		return mapRepoErr(err)
	}
	if actorRank <= targetRank {
		return apperrors.NewForbiddenError("target outranks or matches you")
	}
	return nil
}
