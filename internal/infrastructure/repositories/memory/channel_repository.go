package memory

import (
	"context"
	"strings"
	"sync"

	"parley/internal/core/domain"
)

type MemoryChannelRepository struct {
	mu       sync.RWMutex
	channels map[domain.ChannelID]*domain.Channel
	byServer map[domain.ServerID]map[string]domain.ChannelID // lowercase name -> id
}

func NewMemoryChannelRepository() *MemoryChannelRepository {
	return &MemoryChannelRepository{
		channels: make(map[domain.ChannelID]*domain.Channel),
		byServer: make(map[domain.ServerID]map[string]domain.ChannelID),
	}
}

func cloneChannel(c *domain.Channel) *domain.Channel {
	cp := *c
	cp.Overrides = append([]domain.PermissionOverride(nil), c.Overrides...)
	cp.Members = append([]domain.IdentityID(nil), c.Members...)
	return &cp
}

func (r *MemoryChannelRepository) Create(ctx context.Context, channel *domain.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.channels[channel.ID] = cloneChannel(channel)
	names, ok := r.byServer[channel.ServerID]
	if !ok {
		names = make(map[string]domain.ChannelID)
		r.byServer[channel.ServerID] = names
	}
	names[strings.ToLower(channel.Name)] = channel.ID
	return nil
}

func (r *MemoryChannelRepository) GetByID(ctx context.Context, id domain.ChannelID) (*domain.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channel, ok := r.channels[id]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}
	return cloneChannel(channel), nil
}

func (r *MemoryChannelRepository) GetByName(ctx context.Context, serverID domain.ServerID, name string) (*domain.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byServer[serverID][strings.ToLower(name)]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}
	return cloneChannel(r.channels[id]), nil
}

func (r *MemoryChannelRepository) Update(ctx context.Context, channel *domain.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.channels[channel.ID]
	if !ok {
		return domain.ErrChannelNotFound
	}
	if old.Name != channel.Name {
		delete(r.byServer[channel.ServerID], strings.ToLower(old.Name))
		r.byServer[channel.ServerID][strings.ToLower(channel.Name)] = channel.ID
	}
	r.channels[channel.ID] = cloneChannel(channel)
	return nil
}

func (r *MemoryChannelRepository) Delete(ctx context.Context, id domain.ChannelID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	channel, ok := r.channels[id]
	if !ok {
		return domain.ErrChannelNotFound
	}
	delete(r.byServer[channel.ServerID], strings.ToLower(channel.Name))
	delete(r.channels, id)
	return nil
}

func (r *MemoryChannelRepository) ListByServer(ctx context.Context, serverID domain.ServerID) ([]*domain.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Channel, 0, len(r.byServer[serverID]))
	for _, id := range r.byServer[serverID] {
		out = append(out, cloneChannel(r.channels[id]))
	}
	return out, nil
}
