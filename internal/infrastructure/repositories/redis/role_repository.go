package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"parley/internal/core/domain"
	"parley/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisRoleRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisRoleRepository(client *redis.Client) ports.RoleRepository {
	return &RedisRoleRepository{
		client: client,
		prefix: "parley:role:",
	}
}

func (r *RedisRoleRepository) roleKey(id domain.RoleID) string {
	return r.prefix + string(id)
}

func (r *RedisRoleRepository) serverRolesKey(serverID domain.ServerID) string {
	return fmt.Sprintf("parley:server:%s:roles", serverID)
}

func (r *RedisRoleRepository) Create(ctx context.Context, role *domain.Role) error {
	data, err := json.Marshal(role)
	if err != nil {
		return fmt.Errorf("failed to marshal role: %w", err)
	}

	if err := r.client.Set(ctx, r.roleKey(role.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set role in Redis: %w", err)
	}
	if err := r.client.SAdd(ctx, r.serverRolesKey(role.ServerID), string(role.ID)).Err(); err != nil {
		return fmt.Errorf("failed to add role to server set: %w", err)
	}

	return nil
}

func (r *RedisRoleRepository) GetByID(ctx context.Context, id domain.RoleID) (*domain.Role, error) {
	data, err := r.client.Get(ctx, r.roleKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role from Redis: %w", err)
	}

	var role domain.Role
	if err := json.Unmarshal([]byte(data), &role); err != nil {
		return nil, fmt.Errorf("failed to unmarshal role: %w", err)
	}

	return &role, nil
}

func (r *RedisRoleRepository) Update(ctx context.Context, role *domain.Role) error {
	exists, err := r.client.Exists(ctx, r.roleKey(role.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check role existence: %w", err)
	}
	if exists == 0 {
		return domain.ErrRoleNotFound
	}

	data, err := json.Marshal(role)
	if err != nil {
		return fmt.Errorf("failed to marshal role: %w", err)
	}
	if err := r.client.Set(ctx, r.roleKey(role.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set role in Redis: %w", err)
	}

	return nil
}

func (r *RedisRoleRepository) Delete(ctx context.Context, id domain.RoleID) error {
	role, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := r.client.Del(ctx, r.roleKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete role from Redis: %w", err)
	}
	if err := r.client.SRem(ctx, r.serverRolesKey(role.ServerID), string(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove role from server set: %w", err)
	}

	return nil
}

func (r *RedisRoleRepository) ListByServer(ctx context.Context, serverID domain.ServerID) ([]*domain.Role, error) {
	ids, err := r.client.SMembers(ctx, r.serverRolesKey(serverID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list server roles: %w", err)
	}

	roles := make([]*domain.Role, 0, len(ids))
	for _, id := range ids {
		role, err := r.GetByID(ctx, domain.RoleID(id))
		if err == domain.ErrRoleNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}

	return roles, nil
}

func (r *RedisRoleRepository) DeleteByServer(ctx context.Context, serverID domain.ServerID) error {
	ids, err := r.client.SMembers(ctx, r.serverRolesKey(serverID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list server roles: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, r.roleKey(domain.RoleID(id)))
	}
	keys = append(keys, r.serverRolesKey(serverID))

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete server roles: %w", err)
	}
	return nil
}
