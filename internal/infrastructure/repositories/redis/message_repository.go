package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"parley/internal/core/domain"
	"parley/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisMessageRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisMessageRepository(client *redis.Client) ports.MessageRepository {
	return &RedisMessageRepository{
		client: client,
		prefix: "parley:message:",
	}
}

func (r *RedisMessageRepository) messageKey(id domain.MessageID) string {
	return r.prefix + string(id)
}

func (r *RedisMessageRepository) channelTimelineKey(channelID domain.ChannelID) string {
	return fmt.Sprintf("parley:channel:%s:messages", channelID)
}

func (r *RedisMessageRepository) Save(ctx context.Context, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := r.client.Set(ctx, r.messageKey(msg.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set message in Redis: %w", err)
	}

	// Timeline is a sorted set scored by creation time so history reads
	// become range queries.
	member := redis.Z{
		Score:  float64(msg.CreatedAt.UnixNano()),
		Member: string(msg.ID),
	}
	if err := r.client.ZAdd(ctx, r.channelTimelineKey(msg.ChannelID), member).Err(); err != nil {
		return fmt.Errorf("failed to add message to timeline: %w", err)
	}

	return nil
}

func (r *RedisMessageRepository) GetByID(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	data, err := r.client.Get(ctx, r.messageKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message from Redis: %w", err)
	}

	var msg domain.Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

func (r *RedisMessageRepository) Update(ctx context.Context, msg *domain.Message) error {
	exists, err := r.client.Exists(ctx, r.messageKey(msg.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check message existence: %w", err)
	}
	if exists == 0 {
		return domain.ErrMessageNotFound
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := r.client.Set(ctx, r.messageKey(msg.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set message in Redis: %w", err)
	}

	return nil
}

func (r *RedisMessageRepository) ListBefore(ctx context.Context, channelID domain.ChannelID, before domain.MessageID, limit int) ([]*domain.Message, error) {
	timelineKey := r.channelTimelineKey(channelID)

	max := "+inf"
	if before != "" {
		score, err := r.client.ZScore(ctx, timelineKey, string(before)).Result()
		if err == redis.Nil {
			return nil, domain.ErrMessageNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve cursor score: %w", err)
		}
		max = "(" + strconv.FormatFloat(score, 'f', -1, 64)
	}

	// Soft-deleted messages keep their timeline entry, so page through the
	// set until limit live messages are collected or it runs out.
	out := make([]*domain.Message, 0, limit)
	var offset int64
	for len(out) < limit {
		ids, err := r.client.ZRevRangeByScore(ctx, timelineKey, &redis.ZRangeBy{
			Min:    "-inf",
			Max:    max,
			Offset: offset,
			Count:  int64(limit),
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to range timeline: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		offset += int64(len(ids))

		for _, id := range ids {
			msg, err := r.GetByID(ctx, domain.MessageID(id))
			if err == domain.ErrMessageNotFound {
				continue
			}
			if err != nil {
				return nil, err
			}
			if msg.Deleted {
				continue
			}
			out = append(out, msg)
			if len(out) == limit {
				break
			}
		}
	}

	// Newest-first from Redis, oldest-first for callers.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *RedisMessageRepository) DeleteByChannel(ctx context.Context, channelID domain.ChannelID) error {
	timelineKey := r.channelTimelineKey(channelID)

	ids, err := r.client.ZRange(ctx, timelineKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read timeline: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, r.messageKey(domain.MessageID(id)))
	}
	keys = append(keys, timelineKey)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete channel messages: %w", err)
	}
	return nil
}
