package repositories

import (
	"context"

	"parley/internal/core/ports"
	"parley/internal/infrastructure/reliability"
	"parley/internal/infrastructure/repositories/memory"
	redisrepo "parley/internal/infrastructure/repositories/redis"
	"parley/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support. It
// implements ports.Repositories so services take one storage dependency.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger

	servers  ports.ServerRepository
	channels ports.ChannelRepository
	messages ports.MessageRepository
	members  ports.MemberRepository
	roles    ports.RoleRepository
	webhooks ports.WebhookRepository
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	// Try to connect to Redis if enabled
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	if factory.useRedis {
		factory.servers = redisrepo.NewRedisServerRepository(factory.redisClient)
		factory.channels = redisrepo.NewRedisChannelRepository(factory.redisClient)
		factory.messages = redisrepo.NewRedisMessageRepository(factory.redisClient)
		factory.members = redisrepo.NewRedisMemberRepository(factory.redisClient)
		factory.roles = redisrepo.NewRedisRoleRepository(factory.redisClient)
		factory.webhooks = redisrepo.NewRedisWebhookRepository(factory.redisClient)
	} else {
		factory.servers = memory.NewMemoryServerRepository()
		factory.channels = memory.NewMemoryChannelRepository()
		factory.messages = memory.NewMemoryMessageRepository()
		factory.members = memory.NewMemoryMemberRepository()
		factory.roles = memory.NewMemoryRoleRepository()
		factory.webhooks = memory.NewMemoryWebhookRepository()
	}

	// The message path carries nearly all traffic, so it alone gets the
	// breaker-and-retry guard.
	factory.messages = reliability.NewMessageStoreGuard(factory.messages, logger)

	return factory, nil
}

func (f *RepositoryFactory) Servers() ports.ServerRepository    { return f.servers }
func (f *RepositoryFactory) Channels() ports.ChannelRepository  { return f.channels }
func (f *RepositoryFactory) Messages() ports.MessageRepository  { return f.messages }
func (f *RepositoryFactory) Members() ports.MemberRepository    { return f.members }
func (f *RepositoryFactory) Roles() ports.RoleRepository        { return f.roles }
func (f *RepositoryFactory) Webhooks() ports.WebhookRepository  { return f.webhooks }

// RedisClient exposes the underlying client for components that share the
// connection (event relay, presence directory, distributed locks). Nil when
// running on memory repositories.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
