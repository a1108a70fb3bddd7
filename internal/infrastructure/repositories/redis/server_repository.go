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

const serversIndexKey = "parley:servers"

type RedisServerRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisServerRepository(client *redis.Client) ports.ServerRepository {
	return &RedisServerRepository{
		client: client,
		prefix: "parley:server:",
	}
}

func (r *RedisServerRepository) serverKey(id domain.ServerID) string {
	return r.prefix + string(id)
}

func (r *RedisServerRepository) nameKey(name string) string {
	return "parley:server:name:" + strings.ToLower(name)
}

func (r *RedisServerRepository) Create(ctx context.Context, server *domain.Server) error {
	data, err := json.Marshal(server)
	if err != nil {
		return fmt.Errorf("failed to marshal server: %w", err)
	}

	if err := r.client.Set(ctx, r.serverKey(server.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set server in Redis: %w", err)
	}
	if err := r.client.Set(ctx, r.nameKey(server.Name), string(server.ID), 0).Err(); err != nil {
		return fmt.Errorf("failed to index server name: %w", err)
	}
	if err := r.client.SAdd(ctx, serversIndexKey, string(server.ID)).Err(); err != nil {
		return fmt.Errorf("failed to add server to index: %w", err)
	}

	return nil
}

func (r *RedisServerRepository) GetByID(ctx context.Context, id domain.ServerID) (*domain.Server, error) {
	data, err := r.client.Get(ctx, r.serverKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrServerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get server from Redis: %w", err)
	}

	var server domain.Server
	if err := json.Unmarshal([]byte(data), &server); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server: %w", err)
	}

	return &server, nil
}

func (r *RedisServerRepository) GetByName(ctx context.Context, name string) (*domain.Server, error) {
	id, err := r.client.Get(ctx, r.nameKey(name)).Result()
	if err == redis.Nil {
		return nil, domain.ErrServerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve server name: %w", err)
	}
	return r.GetByID(ctx, domain.ServerID(id))
}

func (r *RedisServerRepository) Update(ctx context.Context, server *domain.Server) error {
	old, err := r.GetByID(ctx, server.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(server)
	if err != nil {
		return fmt.Errorf("failed to marshal server: %w", err)
	}
	if err := r.client.Set(ctx, r.serverKey(server.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set server in Redis: %w", err)
	}

	if !strings.EqualFold(old.Name, server.Name) {
		if err := r.client.Del(ctx, r.nameKey(old.Name)).Err(); err != nil {
			return fmt.Errorf("failed to drop old name index: %w", err)
		}
		if err := r.client.Set(ctx, r.nameKey(server.Name), string(server.ID), 0).Err(); err != nil {
			return fmt.Errorf("failed to index server name: %w", err)
		}
	}

	return nil
}

func (r *RedisServerRepository) Delete(ctx context.Context, id domain.ServerID) error {
	server, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := r.client.Del(ctx, r.serverKey(id), r.nameKey(server.Name)).Err(); err != nil {
		return fmt.Errorf("failed to delete server from Redis: %w", err)
	}
	if err := r.client.SRem(ctx, serversIndexKey, string(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove server from index: %w", err)
	}

	return nil
}

func (r *RedisServerRepository) List(ctx context.Context) ([]*domain.Server, error) {
	ids, err := r.client.SMembers(ctx, serversIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list server index: %w", err)
	}

	servers := make([]*domain.Server, 0, len(ids))
	for _, id := range ids {
		server, err := r.GetByID(ctx, domain.ServerID(id))
		if err == domain.ErrServerNotFound {
			continue // index can lag behind deletes
		}
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}

	return servers, nil
}
