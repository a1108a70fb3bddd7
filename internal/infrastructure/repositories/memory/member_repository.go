package memory

import (
	"context"
	"strings"
	"sync"

	"parley/internal/core/domain"
)

type MemoryMemberRepository struct {
	mu      sync.RWMutex
	members map[domain.ServerID]map[domain.IdentityID]*domain.Member
	bans    map[domain.ServerID]map[domain.IdentityID]*domain.Ban
}

func NewMemoryMemberRepository() *MemoryMemberRepository {
	return &MemoryMemberRepository{
		members: make(map[domain.ServerID]map[domain.IdentityID]*domain.Member),
		bans:    make(map[domain.ServerID]map[domain.IdentityID]*domain.Ban),
	}
}

func cloneMember(m *domain.Member) *domain.Member {
	cp := *m
	cp.RoleIDs = append([]domain.RoleID(nil), m.RoleIDs...)
	return &cp
}

func (r *MemoryMemberRepository) Upsert(ctx context.Context, member *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byIdentity, ok := r.members[member.ServerID]
	if !ok {
		byIdentity = make(map[domain.IdentityID]*domain.Member)
		r.members[member.ServerID] = byIdentity
	}
	byIdentity[member.Identity] = cloneMember(member)
	return nil
}

func (r *MemoryMemberRepository) Get(ctx context.Context, serverID domain.ServerID, identity domain.IdentityID) (*domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	member, ok := r.members[serverID][identity]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	return cloneMember(member), nil
}

func (r *MemoryMemberRepository) GetByNick(ctx context.Context, serverID domain.ServerID, nick string) (*domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := strings.ToLower(nick)
	for _, member := range r.members[serverID] {
		if strings.ToLower(member.DisplayName()) == want || strings.ToLower(member.Username) == want {
			return cloneMember(member), nil
		}
	}
	return nil, domain.ErrMemberNotFound
}

func (r *MemoryMemberRepository) Remove(ctx context.Context, serverID domain.ServerID, identity domain.IdentityID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[serverID][identity]; !ok {
		return domain.ErrMemberNotFound
	}
	delete(r.members[serverID], identity)
	return nil
}

func (r *MemoryMemberRepository) ListByServer(ctx context.Context, serverID domain.ServerID) ([]*domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Member, 0, len(r.members[serverID]))
	for _, member := range r.members[serverID] {
		out = append(out, cloneMember(member))
	}
	return out, nil
}

func (r *MemoryMemberRepository) ServersOf(ctx context.Context, identity domain.IdentityID) ([]domain.ServerID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.ServerID
	for serverID, byIdentity := range r.members {
		if _, ok := byIdentity[identity]; ok {
			out = append(out, serverID)
		}
	}
	return out, nil
}

func (r *MemoryMemberRepository) DeleteByServer(ctx context.Context, serverID domain.ServerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.members, serverID)
	delete(r.bans, serverID)
	return nil
}

func (r *MemoryMemberRepository) Ban(ctx context.Context, ban *domain.Ban) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byIdentity, ok := r.bans[ban.ServerID]
	if !ok {
		byIdentity = make(map[domain.IdentityID]*domain.Ban)
		r.bans[ban.ServerID] = byIdentity
	}
	cp := *ban
	byIdentity[ban.Identity] = &cp
	return nil
}

func (r *MemoryMemberRepository) Unban(ctx context.Context, serverID domain.ServerID, identity domain.IdentityID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.bans[serverID], identity)
	return nil
}

func (r *MemoryMemberRepository) IsBanned(ctx context.Context, serverID domain.ServerID, identity domain.IdentityID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.bans[serverID][identity]
	return ok, nil
}

func (r *MemoryMemberRepository) ListBans(ctx context.Context, serverID domain.ServerID) ([]*domain.Ban, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Ban, 0, len(r.bans[serverID]))
	for _, ban := range r.bans[serverID] {
		cp := *ban
		out = append(out, &cp)
	}
	return out, nil
}
