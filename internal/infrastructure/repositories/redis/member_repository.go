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

type RedisMemberRepository struct {
	client *redis.Client
}

func NewRedisMemberRepository(client *redis.Client) ports.MemberRepository {
	return &RedisMemberRepository{client: client}
}

func (r *RedisMemberRepository) memberKey(serverID domain.ServerID, identity domain.IdentityID) string {
	return fmt.Sprintf("parley:member:%s:%s", serverID, identity)
}

func (r *RedisMemberRepository) serverMembersKey(serverID domain.ServerID) string {
	return fmt.Sprintf("parley:server:%s:members", serverID)
}

func (r *RedisMemberRepository) identityServersKey(identity domain.IdentityID) string {
	return fmt.Sprintf("parley:identity:%s:servers", identity)
}

func (r *RedisMemberRepository) banKey(serverID domain.ServerID, identity domain.IdentityID) string {
	return fmt.Sprintf("parley:ban:%s:%s", serverID, identity)
}

func (r *RedisMemberRepository) serverBansKey(serverID domain.ServerID) string {
	return fmt.Sprintf("parley:server:%s:bans", serverID)
}

func (r *RedisMemberRepository) Upsert(ctx context.Context, member *domain.Member) error {
	data, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("failed to marshal member: %w", err)
	}

	if err := r.client.Set(ctx, r.memberKey(member.ServerID, member.Identity), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set member in Redis: %w", err)
	}
	if err := r.client.SAdd(ctx, r.serverMembersKey(member.ServerID), string(member.Identity)).Err(); err != nil {
		return fmt.Errorf("failed to add member to server set: %w", err)
	}
	if err := r.client.SAdd(ctx, r.identityServersKey(member.Identity), string(member.ServerID)).Err(); err != nil {
		return fmt.Errorf("failed to add server to identity set: %w", err)
	}

	return nil
}

func (r *RedisMemberRepository) Get(ctx context.Context, serverID domain.ServerID, identity domain.IdentityID) (*domain.Member, error) {
	data, err := r.client.Get(ctx, r.memberKey(serverID, identity)).Result()
	if err == redis.Nil {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member from Redis: %w", err)
	}

	var member domain.Member
	if err := json.Unmarshal([]byte(data), &member); err != nil {
		return nil, fmt.Errorf("failed to unmarshal member: %w", err)
	}

	return &member, nil
}

func (r *RedisMemberRepository) GetByNick(ctx context.Context, serverID domain.ServerID, nick string) (*domain.Member, error) {
	members, err := r.ListByServer(ctx, serverID)
	if err != nil {
		return nil, err
	}

	want := strings.ToLower(nick)
	for _, member := range members {
		if strings.ToLower(member.DisplayName()) == want || strings.ToLower(member.Username) == want {
			return member, nil
		}
	}
	return nil, domain.ErrMemberNotFound
}

func (r *RedisMemberRepository) Remove(ctx context.Context, serverID domain.ServerID, identity domain.IdentityID) error {
	deleted, err := r.client.Del(ctx, r.memberKey(serverID, identity)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete member from Redis: %w", err)
	}
	if deleted == 0 {
		return domain.ErrMemberNotFound
	}

	if err := r.client.SRem(ctx, r.serverMembersKey(serverID), string(identity)).Err(); err != nil {
		return fmt.Errorf("failed to remove member from server set: %w", err)
	}
	if err := r.client.SRem(ctx, r.identityServersKey(identity), string(serverID)).Err(); err != nil {
		return fmt.Errorf("failed to remove server from identity set: %w", err)
	}

	return nil
}

func (r *RedisMemberRepository) ListByServer(ctx context.Context, serverID domain.ServerID) ([]*domain.Member, error) {
	ids, err := r.client.SMembers(ctx, r.serverMembersKey(serverID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list server members: %w", err)
	}

	members := make([]*domain.Member, 0, len(ids))
	for _, id := range ids {
		member, err := r.Get(ctx, serverID, domain.IdentityID(id))
		if err == domain.ErrMemberNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}

	return members, nil
}

func (r *RedisMemberRepository) ServersOf(ctx context.Context, identity domain.IdentityID) ([]domain.ServerID, error) {
	ids, err := r.client.SMembers(ctx, r.identityServersKey(identity)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list identity servers: %w", err)
	}

	servers := make([]domain.ServerID, 0, len(ids))
	for _, id := range ids {
		servers = append(servers, domain.ServerID(id))
	}
	return servers, nil
}

func (r *RedisMemberRepository) DeleteByServer(ctx context.Context, serverID domain.ServerID) error {
	ids, err := r.client.SMembers(ctx, r.serverMembersKey(serverID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list server members: %w", err)
	}

	for _, id := range ids {
		identity := domain.IdentityID(id)
		if err := r.client.Del(ctx, r.memberKey(serverID, identity)).Err(); err != nil {
			return fmt.Errorf("failed to delete member: %w", err)
		}
		if err := r.client.SRem(ctx, r.identityServersKey(identity), string(serverID)).Err(); err != nil {
			return fmt.Errorf("failed to remove server from identity set: %w", err)
		}
	}

	banned, err := r.client.SMembers(ctx, r.serverBansKey(serverID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list server bans: %w", err)
	}
	for _, id := range banned {
		if err := r.client.Del(ctx, r.banKey(serverID, domain.IdentityID(id))).Err(); err != nil {
			return fmt.Errorf("failed to delete ban: %w", err)
		}
	}

	if err := r.client.Del(ctx, r.serverMembersKey(serverID), r.serverBansKey(serverID)).Err(); err != nil {
		return fmt.Errorf("failed to delete server member sets: %w", err)
	}
	return nil
}

func (r *RedisMemberRepository) Ban(ctx context.Context, ban *domain.Ban) error {
	data, err := json.Marshal(ban)
	if err != nil {
		return fmt.Errorf("failed to marshal ban: %w", err)
	}

	if err := r.client.Set(ctx, r.banKey(ban.ServerID, ban.Identity), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set ban in Redis: %w", err)
	}
	if err := r.client.SAdd(ctx, r.serverBansKey(ban.ServerID), string(ban.Identity)).Err(); err != nil {
		return fmt.Errorf("failed to add ban to server set: %w", err)
	}

	return nil
}

func (r *RedisMemberRepository) Unban(ctx context.Context, serverID domain.ServerID, identity domain.IdentityID) error {
	if err := r.client.Del(ctx, r.banKey(serverID, identity)).Err(); err != nil {
		return fmt.Errorf("failed to delete ban from Redis: %w", err)
	}
	if err := r.client.SRem(ctx, r.serverBansKey(serverID), string(identity)).Err(); err != nil {
		return fmt.Errorf("failed to remove ban from server set: %w", err)
	}
	return nil
}

func (r *RedisMemberRepository) IsBanned(ctx context.Context, serverID domain.ServerID, identity domain.IdentityID) (bool, error) {
	banned, err := r.client.SIsMember(ctx, r.serverBansKey(serverID), string(identity)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check ban: %w", err)
	}
	return banned, nil
}

func (r *RedisMemberRepository) ListBans(ctx context.Context, serverID domain.ServerID) ([]*domain.Ban, error) {
	ids, err := r.client.SMembers(ctx, r.serverBansKey(serverID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list server bans: %w", err)
	}

	bans := make([]*domain.Ban, 0, len(ids))
	for _, id := range ids {
		data, err := r.client.Get(ctx, r.banKey(serverID, domain.IdentityID(id))).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get ban from Redis: %w", err)
		}

		var ban domain.Ban
		if err := json.Unmarshal([]byte(data), &ban); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ban: %w", err)
		}
		bans = append(bans, &ban)
	}

	return bans, nil
}
