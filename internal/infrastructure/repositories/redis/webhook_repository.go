package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"parley/internal/core/domain"
	"parley/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisWebhookRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisWebhookRepository(client *redis.Client) ports.WebhookRepository {
	return &RedisWebhookRepository{
		client: client,
		prefix: "parley:webhook:",
	}
}

func (r *RedisWebhookRepository) webhookKey(id domain.WebhookID) string {
	return r.prefix + string(id)
}

func (r *RedisWebhookRepository) serverWebhooksKey(serverID domain.ServerID) string {
	return fmt.Sprintf("parley:server:%s:webhooks", serverID)
}

func (r *RedisWebhookRepository) Create(ctx context.Context, webhook *domain.Webhook) error {
	data, err := json.Marshal(webhook)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook: %w", err)
	}

	if err := r.client.Set(ctx, r.webhookKey(webhook.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set webhook in Redis: %w", err)
	}
	if err := r.client.SAdd(ctx, r.serverWebhooksKey(webhook.ServerID), string(webhook.ID)).Err(); err != nil {
		return fmt.Errorf("failed to add webhook to server set: %w", err)
	}

	return nil
}

func (r *RedisWebhookRepository) GetByID(ctx context.Context, id domain.WebhookID) (*domain.Webhook, error) {
	data, err := r.client.Get(ctx, r.webhookKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrWebhookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook from Redis: %w", err)
	}

	var webhook domain.Webhook
	if err := json.Unmarshal([]byte(data), &webhook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook: %w", err)
	}

	return &webhook, nil
}

func (r *RedisWebhookRepository) Delete(ctx context.Context, id domain.WebhookID) error {
	webhook, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := r.client.Del(ctx, r.webhookKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete webhook from Redis: %w", err)
	}
	if err := r.client.SRem(ctx, r.serverWebhooksKey(webhook.ServerID), string(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove webhook from server set: %w", err)
	}

	return nil
}

func (r *RedisWebhookRepository) ListByServer(ctx context.Context, serverID domain.ServerID) ([]*domain.Webhook, error) {
	ids, err := r.client.SMembers(ctx, r.serverWebhooksKey(serverID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list server webhooks: %w", err)
	}

	webhooks := make([]*domain.Webhook, 0, len(ids))
	for _, id := range ids {
		webhook, err := r.GetByID(ctx, domain.WebhookID(id))
		if err == domain.ErrWebhookNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, webhook)
	}

	return webhooks, nil
}

func (r *RedisWebhookRepository) DeleteByServer(ctx context.Context, serverID domain.ServerID) error {
	ids, err := r.client.SMembers(ctx, r.serverWebhooksKey(serverID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list server webhooks: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, r.webhookKey(domain.WebhookID(id)))
	}
	keys = append(keys, r.serverWebhooksKey(serverID))

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete server webhooks: %w", err)
	}
	return nil
}
