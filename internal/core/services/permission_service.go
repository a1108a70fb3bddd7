package services

import (
	"context"
	"errors"
	"fmt"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
)

// rankOwner outranks every assignable role. Assignable ranks are validated
// to stay below it.
const rankOwner = 1 << 30

type permissionService struct {
	roleRepo   ports.RoleRepository
	memberRepo ports.MemberRepository
	serverRepo ports.ServerRepository
}

func NewPermissionService(
	roleRepo ports.RoleRepository,
	memberRepo ports.MemberRepository,
	serverRepo ports.ServerRepository,
) ports.PermissionService {
	return &permissionService{
		roleRepo:   roleRepo,
		memberRepo: memberRepo,
		serverRepo: serverRepo,
	}
}

// Resolve computes the capability set the identity holds in the channel.
// Role and membership state is read fresh on every call.
func (s *permissionService) Resolve(ctx context.Context, server *domain.Server, channel *domain.Channel, identity domain.IdentityID, admin bool) (domain.Capability, error) {
	held, err := s.heldRoles(ctx, server.ID, identity)
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			// Non-members hold nothing, unless they own the server or
			// operate the platform.
			if admin || server.OwnerID == identity {
				return domain.CapAll, nil
			}
			return 0, nil
		}
		return 0, err
	}

	query := domain.PermissionQuery{
		Server:   server,
		Channel:  channel,
		Identity: identity,
		Roles:    held,
		Admin:    admin,
	}
	return domain.ResolvePermissions(query), nil
}

// EffectiveRank returns the highest rank the identity holds in the server.
// The server owner outranks everyone.
func (s *permissionService) EffectiveRank(ctx context.Context, serverID domain.ServerID, identity domain.IdentityID) (int, error) {
	server, err := s.serverRepo.GetByID(ctx, serverID)
	if err != nil {
		return 0, err
	}
	if server.OwnerID == identity {
		return rankOwner, nil
	}

	held, err := s.heldRoles(ctx, serverID, identity)
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return domain.HighestRank(held), nil
}

// heldRoles returns the member's roles plus the server's @everyone role,
// which applies to every member regardless of assignments.
func (s *permissionService) heldRoles(ctx context.Context, serverID domain.ServerID, identity domain.IdentityID) ([]*domain.Role, error) {
	member, err := s.memberRepo.Get(ctx, serverID, identity)
	if err != nil {
		return nil, err
	}

	all, err := s.roleRepo.ListByServer(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	held := make([]*domain.Role, 0, len(member.RoleIDs)+1)
	for _, role := range all {
		if role.Name == domain.EveryoneRoleName {
			held = append(held, role)
			continue
		}
		if member.HasRole(role.ID) {
			held = append(held, role)
		}
	}
	return held, nil
}
