package services

import (
	"context"
	"errors"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	apperrors "parley/pkg/errors"
	"parley/pkg/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *chatService) createServer(ctx context.Context, actor ports.Actor, c domain.CreateServer) ([]domain.Event, error) {
	if err := validation.ValidateServerName(c.Name); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	if _, err := s.repos.Servers().GetByName(ctx, c.Name); err == nil {
		return nil, apperrors.NewConflictError("server name already in use")
	} else if !errors.Is(err, domain.ErrServerNotFound) {
		return nil, mapRepoErr(err)
	}

	server, err := s.provisionServer(ctx, c.Name, actor.ID, actor.Username)
	if err != nil {
		return nil, err
	}
	if actor.ConnID != "" {
		s.registry.JoinServer(actor.ConnID, server.ID)
	}

	ev := domain.ServerCreated{
		EventMeta: domain.NewEventMeta(server.ID, "", actor.ID),
		Server:    server,
	}
	s.deliverSinks(ev)
	return []domain.Event{ev}, nil
}

func (s *chatService) deleteServer(ctx context.Context, actor ports.Actor, c domain.DeleteServer) ([]domain.Event, error) {
	server, err := s.ResolveServer(ctx, c.ServerID)
	if err != nil {
		return nil, err
	}
	// destruction cascades to everything the server owns, so it stays with
	// the owner and the platform operator
	if server.OwnerID != actor.ID && !actor.Admin {
		return nil, apperrors.NewForbiddenError("only the server owner can delete it")
	}

	unlock := s.locks.lock(serverLockKey(server.ID))
	defer unlock()

	channels, err := s.repos.Channels().ListByServer(ctx, server.ID)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	ev := domain.ServerDeleted{
		EventMeta: domain.NewEventMeta(server.ID, "", actor.ID),
		Name:      server.Name,
	}
	// announce before tearing the rooms down so subscribers still hear it
	s.fanOutServer(server.ID, ev)

	for _, channel := range channels {
		if err := s.repos.Messages().DeleteByChannel(ctx, channel.ID); err != nil {
			s.logger.Warn("failed to drop messages during server delete", zap.Error(err))
		}
		if err := s.repos.Channels().Delete(ctx, channel.ID); err != nil {
			s.logger.Warn("failed to drop channel during server delete", zap.Error(err))
		}
		s.registry.DropChannel(channel.ID)
	}
	if err := s.repos.Roles().DeleteByServer(ctx, server.ID); err != nil {
		return nil, mapRepoErr(err)
	}
	if err := s.repos.Members().DeleteByServer(ctx, server.ID); err != nil {
		return nil, mapRepoErr(err)
	}
	if err := s.repos.Webhooks().DeleteByServer(ctx, server.ID); err != nil {
		return nil, mapRepoErr(err)
	}
	if err := s.repos.Servers().Delete(ctx, server.ID); err != nil {
		return nil, mapRepoErr(err)
	}
	s.registry.DropServer(server.ID)
	return []domain.Event{ev}, nil
}

// roleCtx authorizes a role mutation: the actor needs manage-roles and must
// strictly outrank the rank being touched. Equal ranks are rejected.
func (s *chatService) roleCtx(ctx context.Context, actor ports.Actor, serverID domain.ServerID, touchedRank int) (*domain.Server, error) {
	server, err := s.ResolveServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	caps, err := s.permissions.Resolve(ctx, server, nil, actor.ID, actor.Admin)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !caps.Has(domain.CapManageRoles) {
		return nil, apperrors.NewForbiddenError("insufficient server permissions")
	}
	actorRank, err := s.permissions.EffectiveRank(ctx, server.ID, actor.ID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if actor.Admin {
		actorRank = rankOwner
	}
	if touchedRank >= actorRank {
		return nil, apperrors.NewForbiddenError("cannot manage a role at or above your own rank")
	}
	return server, nil
}

func (s *chatService) createRole(ctx context.Context, actor ports.Actor, c domain.CreateRole) ([]domain.Event, error) {
	if err := validation.ValidateRoleName(c.Name); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	if c.Rank <= 0 || c.Rank >= rankOwner {
		return nil, apperrors.NewInvalidInputError("role rank out of range")
	}
	server, err := s.roleCtx(ctx, actor, c.ServerID, c.Rank)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(serverLockKey(server.ID))
	defer unlock()

	existing, err := s.repos.Roles().ListByServer(ctx, server.ID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	// ranks form a strict total order per server
	for _, role := range existing {
		if role.Rank == c.Rank {
			return nil, apperrors.NewConflictError("a role with this rank already exists")
		}
	}

	role := &domain.Role{
		ID:          domain.RoleID(uuid.NewString()),
		ServerID:    server.ID,
		Name:        c.Name,
		Color:       c.Color,
		Permissions: c.Permissions,
		Rank:        c.Rank,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repos.Roles().Create(ctx, role); err != nil {
		return nil, mapRepoErr(err)
	}

	ev := domain.RoleCreated{
		EventMeta: domain.NewEventMeta(server.ID, "", actor.ID),
		Role:      role,
	}
	s.fanOutServer(server.ID, ev)
	return []domain.Event{ev}, nil
}

func (s *chatService) updateRole(ctx context.Context, actor ports.Actor, c domain.UpdateRole) ([]domain.Event, error) {
	role, err := s.repos.Roles().GetByID(ctx, c.RoleID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	server, err := s.roleCtx(ctx, actor, role.ServerID, role.Rank)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(serverLockKey(server.ID))
	defer unlock()

	role, err = s.repos.Roles().GetByID(ctx, c.RoleID)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	if c.Name != nil {
		if role.Managed {
			return nil, apperrors.NewInvalidInputError("the everyone role cannot be renamed")
		}
		if err := validation.ValidateRoleName(*c.Name); err != nil {
			return nil, apperrors.NewInvalidInputError(err.Error())
		}
		role.Name = *c.Name
	}
	if c.Color != nil {
		role.Color = *c.Color
	}
	if c.Permissions != nil {
		role.Permissions = *c.Permissions
	}
	if c.Rank != nil && *c.Rank != role.Rank {
		if role.Managed {
			return nil, apperrors.NewInvalidInputError("the everyone role keeps rank zero")
		}
		if *c.Rank <= 0 || *c.Rank >= rankOwner {
			return nil, apperrors.NewInvalidInputError("role rank out of range")
		}
		if _, err := s.roleCtx(ctx, actor, role.ServerID, *c.Rank); err != nil {
			return nil, err
		}
		existing, err := s.repos.Roles().ListByServer(ctx, server.ID)
		if err != nil {
			return nil, mapRepoErr(err)
		}
		for _, other := range existing {
			if other.ID != role.ID && other.Rank == *c.Rank {
				return nil, apperrors.NewConflictError("a role with this rank already exists")
			}
		}
		role.Rank = *c.Rank
	}

	if err := s.repos.Roles().Update(ctx, role); err != nil {
		return nil, mapRepoErr(err)
	}

	ev := domain.RoleUpdated{
		EventMeta: domain.NewEventMeta(server.ID, "", actor.ID),
		Role:      role,
	}
	s.fanOutServer(server.ID, ev)
	return []domain.Event{ev}, nil
}

func (s *chatService) deleteRole(ctx context.Context, actor ports.Actor, c domain.DeleteRole) ([]domain.Event, error) {
	role, err := s.repos.Roles().GetByID(ctx, c.RoleID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if role.Managed {
		return nil, apperrors.NewInvalidInputError("the everyone role cannot be deleted")
	}
	server, err := s.roleCtx(ctx, actor, role.ServerID, role.Rank)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(serverLockKey(server.ID))
	defer unlock()

	if err := s.repos.Roles().Delete(ctx, role.ID); err != nil {
		return nil, mapRepoErr(err)
	}
	// strip the assignment from every member so nickname lists and rank
	// queries stop reflecting it; resolution already ignores deleted roles
	members, err := s.repos.Members().ListByServer(ctx, server.ID)
	if err == nil {
		for _, member := range members {
			if member.HasRole(role.ID) {
				member.RemoveRole(role.ID)
				if err := s.repos.Members().Upsert(ctx, member); err != nil {
					s.logger.Warn("failed to strip deleted role from member", zap.Error(err))
				}
			}
		}
	}

	ev := domain.RoleDeleted{
		EventMeta: domain.NewEventMeta(server.ID, "", actor.ID),
		RoleID:    role.ID,
		Name:      role.Name,
	}
	s.fanOutServer(server.ID, ev)
	return []domain.Event{ev}, nil
}

func (s *chatService) assignRole(ctx context.Context, actor ports.Actor, c domain.AssignRole) ([]domain.Event, error) {
	role, err := s.repos.Roles().GetByID(ctx, c.RoleID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if role.Managed {
		return nil, apperrors.NewInvalidInputError("the everyone role is held implicitly")
	}
	server, err := s.roleCtx(ctx, actor, role.ServerID, role.Rank)
	if err != nil {
		return nil, err
	}
	if role.ServerID != server.ID {
		return nil, domain.ErrRoleNotFound
	}

	unlock := s.locks.lock(serverLockKey(server.ID))
	defer unlock()

	member, err := s.repos.Members().Get(ctx, server.ID, c.Identity)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	member.AddRole(role.ID)
	if err := s.repos.Members().Upsert(ctx, member); err != nil {
		return nil, mapRepoErr(err)
	}

	ev := domain.MemberUpdated{
		EventMeta: domain.NewEventMeta(server.ID, "", actor.ID),
		Member:    member,
	}
	s.fanOutServer(server.ID, ev)
	return []domain.Event{ev}, nil
}

func (s *chatService) unassignRole(ctx context.Context, actor ports.Actor, c domain.UnassignRole) ([]domain.Event, error) {
	role, err := s.repos.Roles().GetByID(ctx, c.RoleID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	server, err := s.roleCtx(ctx, actor, role.ServerID, role.Rank)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(serverLockKey(server.ID))
	defer unlock()

	member, err := s.repos.Members().Get(ctx, server.ID, c.Identity)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !member.HasRole(role.ID) {
		return nil, nil
	}
	member.RemoveRole(role.ID)
	if err := s.repos.Members().Upsert(ctx, member); err != nil {
		return nil, mapRepoErr(err)
	}

	ev := domain.MemberUpdated{
		EventMeta: domain.NewEventMeta(server.ID, "", actor.ID),
		Member:    member,
	}
	s.fanOutServer(server.ID, ev)
	return []domain.Event{ev}, nil
}

func (s *chatService) setOverride(ctx context.Context, actor ports.Actor, c domain.SetOverride) ([]domain.Event, error) {
	if (c.RoleID == "") == (c.Identity == "") {
		return nil, apperrors.NewInvalidInputError("exactly one of role_id and identity must be set")
	}
	cc, err := s.resolveChannelCtx(ctx, actor, c.ChannelRef, domain.CapManageRoles)
	if err != nil {
		return nil, err
	}

	if c.RoleID != "" {
		role, err := s.repos.Roles().GetByID(ctx, c.RoleID)
		if err != nil {
			return nil, mapRepoErr(err)
		}
		// overrides never reference a role from another server
		if role.ServerID != cc.server.ID {
			return nil, domain.ErrRoleNotFound
		}
		if !role.Managed {
			if _, err := s.roleCtx(ctx, actor, cc.server.ID, role.Rank); err != nil {
				return nil, err
			}
		}
	}

	unlock := s.locks.lock(channelLockKey(cc.channel.ID))
	defer unlock()

	channel, err := s.freshChannel(ctx, cc.channel.ID)
	if err != nil {
		return nil, err
	}
	channel.SetOverride(domain.PermissionOverride{
		RoleID:     c.RoleID,
		IdentityID: c.Identity,
		Allow:      c.Allow,
		Deny:       c.Deny,
	})
	channel.UpdatedAt = time.Now().UTC()
	if err := s.repos.Channels().Update(ctx, channel); err != nil {
		return nil, mapRepoErr(err)
	}

	ev := domain.ChannelPermissionsChanged{EventMeta: domain.NewEventMeta(channel.ServerID, channel.ID, actor.ID)}
	s.fanOutChannel(channel.ID, ev)
	return []domain.Event{ev}, nil
}

func (s *chatService) clearOverride(ctx context.Context, actor ports.Actor, c domain.ClearOverride) ([]domain.Event, error) {
	if (c.RoleID == "") == (c.Identity == "") {
		return nil, apperrors.NewInvalidInputError("exactly one of role_id and identity must be set")
	}
	cc, err := s.resolveChannelCtx(ctx, actor, c.ChannelRef, domain.CapManageRoles)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(channelLockKey(cc.channel.ID))
	defer unlock()

	channel, err := s.freshChannel(ctx, cc.channel.ID)
	if err != nil {
		return nil, err
	}
	channel.ClearOverride(c.RoleID, c.Identity)
	channel.UpdatedAt = time.Now().UTC()
	if err := s.repos.Channels().Update(ctx, channel); err != nil {
		return nil, mapRepoErr(err)
	}

	ev := domain.ChannelPermissionsChanged{EventMeta: domain.NewEventMeta(channel.ServerID, channel.ID, actor.ID)}
	s.fanOutChannel(channel.ID, ev)
	return []domain.Event{ev}, nil
}
