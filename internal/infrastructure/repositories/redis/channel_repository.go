package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"parley/internal/core/domain"
	"parley/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisChannelRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisChannelRepository(client *redis.Client) ports.ChannelRepository {
	return &RedisChannelRepository{
		client: client,
		prefix: "parley:channel:",
	}
}

func (r *RedisChannelRepository) channelKey(id domain.ChannelID) string {
	return r.prefix + string(id)
}

func (r *RedisChannelRepository) serverChannelsKey(serverID domain.ServerID) string {
	return fmt.Sprintf("parley:server:%s:channels", serverID)
}

func (r *RedisChannelRepository) nameKey(serverID domain.ServerID, name string) string {
	return fmt.Sprintf("parley:channel:name:%s:%s", serverID, strings.ToLower(name))
}

func (r *RedisChannelRepository) Create(ctx context.Context, channel *domain.Channel) error {
	data, err := json.Marshal(channel)
	if err != nil {
		return fmt.Errorf("failed to marshal channel: %w", err)
	}

	if err := r.client.Set(ctx, r.channelKey(channel.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set channel in Redis: %w", err)
	}
	if err := r.client.Set(ctx, r.nameKey(channel.ServerID, channel.Name), string(channel.ID), 0).Err(); err != nil {
		return fmt.Errorf("failed to index channel name: %w", err)
	}
	if err := r.client.SAdd(ctx, r.serverChannelsKey(channel.ServerID), string(channel.ID)).Err(); err != nil {
		return fmt.Errorf("failed to add channel to server set: %w", err)
	}

	return nil
}

func (r *RedisChannelRepository) GetByID(ctx context.Context, id domain.ChannelID) (*domain.Channel, error) {
	data, err := r.client.Get(ctx, r.channelKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel from Redis: %w", err)
	}

	var channel domain.Channel
	if err := json.Unmarshal([]byte(data), &channel); err != nil {
		return nil, fmt.Errorf("failed to unmarshal channel: %w", err)
	}

	return &channel, nil
}

func (r *RedisChannelRepository) GetByName(ctx context.Context, serverID domain.ServerID, name string) (*domain.Channel, error) {
	id, err := r.client.Get(ctx, r.nameKey(serverID, name)).Result()
	if err == redis.Nil {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve channel name: %w", err)
	}
	return r.GetByID(ctx, domain.ChannelID(id))
}

func (r *RedisChannelRepository) Update(ctx context.Context, channel *domain.Channel) error {
	old, err := r.GetByID(ctx, channel.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(channel)
	if err != nil {
		return fmt.Errorf("failed to marshal channel: %w", err)
	}
	if err := r.client.Set(ctx, r.channelKey(channel.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set channel in Redis: %w", err)
	}

	if !strings.EqualFold(old.Name, channel.Name) {
		if err := r.client.Del(ctx, r.nameKey(channel.ServerID, old.Name)).Err(); err != nil {
			return fmt.Errorf("failed to drop old name index: %w", err)
		}
		if err := r.client.Set(ctx, r.nameKey(channel.ServerID, channel.Name), string(channel.ID), 0).Err(); err != nil {
			return fmt.Errorf("failed to index channel name: %w", err)
		}
	}

	return nil
}

func (r *RedisChannelRepository) Delete(ctx context.Context, id domain.ChannelID) error {
	channel, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := r.client.Del(ctx, r.channelKey(id), r.nameKey(channel.ServerID, channel.Name)).Err(); err != nil {
		return fmt.Errorf("failed to delete channel from Redis: %w", err)
	}
	if err := r.client.SRem(ctx, r.serverChannelsKey(channel.ServerID), string(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove channel from server set: %w", err)
	}

	return nil
}

func (r *RedisChannelRepository) ListByServer(ctx context.Context, serverID domain.ServerID) ([]*domain.Channel, error) {
	ids, err := r.client.SMembers(ctx, r.serverChannelsKey(serverID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list server channels: %w", err)
	}

	channels := make([]*domain.Channel, 0, len(ids))
	for _, id := range ids {
		channel, err := r.GetByID(ctx, domain.ChannelID(id))
		if err == domain.ErrChannelNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	}

	return channels, nil
}
