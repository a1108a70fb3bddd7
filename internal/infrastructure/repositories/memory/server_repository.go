package memory

import (
	"context"
	"strings"
	"sync"

	"parley/internal/core/domain"
)

// MemoryServerRepository is an in-memory server store for single-node and
// test deployments. Values are copied on the way in and out so callers can
// mutate their structs freely.
type MemoryServerRepository struct {
	mu      sync.RWMutex
	servers map[domain.ServerID]*domain.Server
	byName  map[string]domain.ServerID
}

func NewMemoryServerRepository() *MemoryServerRepository {
	return &MemoryServerRepository{
		servers: make(map[domain.ServerID]*domain.Server),
		byName:  make(map[string]domain.ServerID),
	}
}

func cloneServer(s *domain.Server) *domain.Server {
	cp := *s
	return &cp
}

func (r *MemoryServerRepository) Create(ctx context.Context, server *domain.Server) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.servers[server.ID] = cloneServer(server)
	r.byName[strings.ToLower(server.Name)] = server.ID
	return nil
}

func (r *MemoryServerRepository) GetByID(ctx context.Context, id domain.ServerID) (*domain.Server, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	server, ok := r.servers[id]
	if !ok {
		return nil, domain.ErrServerNotFound
	}
	return cloneServer(server), nil
}

func (r *MemoryServerRepository) GetByName(ctx context.Context, name string) (*domain.Server, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, domain.ErrServerNotFound
	}
	return cloneServer(r.servers[id]), nil
}

func (r *MemoryServerRepository) Update(ctx context.Context, server *domain.Server) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.servers[server.ID]
	if !ok {
		return domain.ErrServerNotFound
	}
	if old.Name != server.Name {
		delete(r.byName, strings.ToLower(old.Name))
		r.byName[strings.ToLower(server.Name)] = server.ID
	}
	r.servers[server.ID] = cloneServer(server)
	return nil
}

func (r *MemoryServerRepository) Delete(ctx context.Context, id domain.ServerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	server, ok := r.servers[id]
	if !ok {
		return domain.ErrServerNotFound
	}
	delete(r.byName, strings.ToLower(server.Name))
	delete(r.servers, id)
	return nil
}

func (r *MemoryServerRepository) List(ctx context.Context) ([]*domain.Server, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Server, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, cloneServer(s))
	}
	return out, nil
}
