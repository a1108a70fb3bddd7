package memory

import (
	"context"
	"sync"

	"parley/internal/core/domain"
)

type MemoryWebhookRepository struct {
	mu       sync.RWMutex
	webhooks map[domain.WebhookID]*domain.Webhook
	byServer map[domain.ServerID]map[domain.WebhookID]struct{}
}

func NewMemoryWebhookRepository() *MemoryWebhookRepository {
	return &MemoryWebhookRepository{
		webhooks: make(map[domain.WebhookID]*domain.Webhook),
		byServer: make(map[domain.ServerID]map[domain.WebhookID]struct{}),
	}
}

func cloneWebhook(w *domain.Webhook) *domain.Webhook {
	cp := *w
	cp.Events = append([]string(nil), w.Events...)
	return &cp
}

func (r *MemoryWebhookRepository) Create(ctx context.Context, webhook *domain.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.webhooks[webhook.ID] = cloneWebhook(webhook)
	ids, ok := r.byServer[webhook.ServerID]
	if !ok {
		ids = make(map[domain.WebhookID]struct{})
		r.byServer[webhook.ServerID] = ids
	}
	ids[webhook.ID] = struct{}{}
	return nil
}

func (r *MemoryWebhookRepository) GetByID(ctx context.Context, id domain.WebhookID) (*domain.Webhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	webhook, ok := r.webhooks[id]
	if !ok {
		return nil, domain.ErrWebhookNotFound
	}
	return cloneWebhook(webhook), nil
}

func (r *MemoryWebhookRepository) Delete(ctx context.Context, id domain.WebhookID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	webhook, ok := r.webhooks[id]
	if !ok {
		return domain.ErrWebhookNotFound
	}
	delete(r.byServer[webhook.ServerID], id)
	delete(r.webhooks, id)
	return nil
}

func (r *MemoryWebhookRepository) ListByServer(ctx context.Context, serverID domain.ServerID) ([]*domain.Webhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Webhook, 0, len(r.byServer[serverID]))
	for id := range r.byServer[serverID] {
		out = append(out, cloneWebhook(r.webhooks[id]))
	}
	return out, nil
}

func (r *MemoryWebhookRepository) DeleteByServer(ctx context.Context, serverID domain.ServerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.byServer[serverID] {
		delete(r.webhooks, id)
	}
	delete(r.byServer, serverID)
	return nil
}
