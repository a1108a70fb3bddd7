package memory

import (
	"context"
	"sync"

	"parley/internal/core/domain"
)

type MemoryRoleRepository struct {
	mu       sync.RWMutex
	roles    map[domain.RoleID]*domain.Role
	byServer map[domain.ServerID]map[domain.RoleID]struct{}
}

func NewMemoryRoleRepository() *MemoryRoleRepository {
	return &MemoryRoleRepository{
		roles:    make(map[domain.RoleID]*domain.Role),
		byServer: make(map[domain.ServerID]map[domain.RoleID]struct{}),
	}
}

func cloneRole(role *domain.Role) *domain.Role {
	cp := *role
	return &cp
}

func (r *MemoryRoleRepository) Create(ctx context.Context, role *domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.roles[role.ID] = cloneRole(role)
	ids, ok := r.byServer[role.ServerID]
	if !ok {
		ids = make(map[domain.RoleID]struct{})
		r.byServer[role.ServerID] = ids
	}
	ids[role.ID] = struct{}{}
	return nil
}

func (r *MemoryRoleRepository) GetByID(ctx context.Context, id domain.RoleID) (*domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roles[id]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	return cloneRole(role), nil
}

func (r *MemoryRoleRepository) Update(ctx context.Context, role *domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roles[role.ID]; !ok {
		return domain.ErrRoleNotFound
	}
	r.roles[role.ID] = cloneRole(role)
	return nil
}

func (r *MemoryRoleRepository) Delete(ctx context.Context, id domain.RoleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.roles[id]
	if !ok {
		return domain.ErrRoleNotFound
	}
	delete(r.byServer[role.ServerID], id)
	delete(r.roles, id)
	return nil
}

func (r *MemoryRoleRepository) ListByServer(ctx context.Context, serverID domain.ServerID) ([]*domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Role, 0, len(r.byServer[serverID]))
	for id := range r.byServer[serverID] {
		out = append(out, cloneRole(r.roles[id]))
	}
	return out, nil
}

func (r *MemoryRoleRepository) DeleteByServer(ctx context.Context, serverID domain.ServerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.byServer[serverID] {
		delete(r.roles, id)
	}
	delete(r.byServer, serverID)
	return nil
}
