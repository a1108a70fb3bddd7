package memory

import (
	"context"
	"sync"

	"parley/internal/core/domain"
)

type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages map[domain.MessageID]*domain.Message
	// per-channel ids in insertion order; Save appends, nothing reorders.
	byChannel map[domain.ChannelID][]domain.MessageID
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		messages:  make(map[domain.MessageID]*domain.Message),
		byChannel: make(map[domain.ChannelID][]domain.MessageID),
	}
}

func cloneMessage(m *domain.Message) *domain.Message {
	cp := *m
	if m.EditedAt != nil {
		t := *m.EditedAt
		cp.EditedAt = &t
	}
	return &cp
}

func (r *MemoryMessageRepository) Save(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.messages[msg.ID]; !ok {
		r.byChannel[msg.ChannelID] = append(r.byChannel[msg.ChannelID], msg.ID)
	}
	r.messages[msg.ID] = cloneMessage(msg)
	return nil
}

func (r *MemoryMessageRepository) GetByID(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, ok := r.messages[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return cloneMessage(msg), nil
}

func (r *MemoryMessageRepository) Update(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.messages[msg.ID]; !ok {
		return domain.ErrMessageNotFound
	}
	r.messages[msg.ID] = cloneMessage(msg)
	return nil
}

func (r *MemoryMessageRepository) ListBefore(ctx context.Context, channelID domain.ChannelID, before domain.MessageID, limit int) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byChannel[channelID]
	end := len(ids)
	if before != "" {
		end = -1
		for i, id := range ids {
			if id == before {
				end = i
				break
			}
		}
		if end < 0 {
			return nil, domain.ErrMessageNotFound
		}
	}

	// Walk backwards collecting non-deleted messages, then reverse so the
	// result reads oldest first.
	out := make([]*domain.Message, 0, limit)
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		msg := r.messages[ids[i]]
		if msg.Deleted {
			continue
		}
		out = append(out, cloneMessage(msg))
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *MemoryMessageRepository) DeleteByChannel(ctx context.Context, channelID domain.ChannelID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.byChannel[channelID] {
		delete(r.messages, id)
	}
	delete(r.byChannel, channelID)
	return nil
}
