package ports

import (
	"context"

	"parley/internal/core/domain"
)

// Repositories are synchronous: a nil error from a write means the state is
// durably recorded. Missing entities surface as the matching domain sentinel;
// any other error means storage is unavailable. Reads are idempotent and safe
// to retry.

type ServerRepository interface {
	Create(ctx context.Context, server *domain.Server) error
	GetByID(ctx context.Context, id domain.ServerID) (*domain.Server, error)
	GetByName(ctx context.Context, name string) (*domain.Server, error)
	Update(ctx context.Context, server *domain.Server) error
	Delete(ctx context.Context, id domain.ServerID) error
	List(ctx context.Context) ([]*domain.Server, error)
}

type ChannelRepository interface {
	Create(ctx context.Context, channel *domain.Channel) error
	GetByID(ctx context.Context, id domain.ChannelID) (*domain.Channel, error)
	GetByName(ctx context.Context, serverID domain.ServerID, name string) (*domain.Channel, error)
	Update(ctx context.Context, channel *domain.Channel) error
	Delete(ctx context.Context, id domain.ChannelID) error
	ListByServer(ctx context.Context, serverID domain.ServerID) ([]*domain.Channel, error)
}

type MessageRepository interface {
	Save(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id domain.MessageID) (*domain.Message, error)
	Update(ctx context.Context, msg *domain.Message) error
	// ListBefore returns up to limit non-deleted messages older than the
	// cursor (the newest when the cursor is empty), oldest first.
	ListBefore(ctx context.Context, channelID domain.ChannelID, before domain.MessageID, limit int) ([]*domain.Message, error)
	DeleteByChannel(ctx context.Context, channelID domain.ChannelID) error
}

type MemberRepository interface {
	Upsert(ctx context.Context, member *domain.Member) error
	Get(ctx context.Context, serverID domain.ServerID, identity domain.IdentityID) (*domain.Member, error)
	GetByNick(ctx context.Context, serverID domain.ServerID, nick string) (*domain.Member, error)
	Remove(ctx context.Context, serverID domain.ServerID, identity domain.IdentityID) error
	ListByServer(ctx context.Context, serverID domain.ServerID) ([]*domain.Member, error)
	ServersOf(ctx context.Context, identity domain.IdentityID) ([]domain.ServerID, error)
	DeleteByServer(ctx context.Context, serverID domain.ServerID) error

	Ban(ctx context.Context, ban *domain.Ban) error
	Unban(ctx context.Context, serverID domain.ServerID, identity domain.IdentityID) error
	IsBanned(ctx context.Context, serverID domain.ServerID, identity domain.IdentityID) (bool, error)
	ListBans(ctx context.Context, serverID domain.ServerID) ([]*domain.Ban, error)
}

type RoleRepository interface {
	Create(ctx context.Context, role *domain.Role) error
	GetByID(ctx context.Context, id domain.RoleID) (*domain.Role, error)
	Update(ctx context.Context, role *domain.Role) error
	Delete(ctx context.Context, id domain.RoleID) error
	ListByServer(ctx context.Context, serverID domain.ServerID) ([]*domain.Role, error)
	DeleteByServer(ctx context.Context, serverID domain.ServerID) error
}

type WebhookRepository interface {
	Create(ctx context.Context, webhook *domain.Webhook) error
	GetByID(ctx context.Context, id domain.WebhookID) (*domain.Webhook, error)
	Delete(ctx context.Context, id domain.WebhookID) error
	ListByServer(ctx context.Context, serverID domain.ServerID) ([]*domain.Webhook, error)
	DeleteByServer(ctx context.Context, serverID domain.ServerID) error
}

// Repositories bundles the storage surface so services take one dependency
// instead of six. The factory implements it.
type Repositories interface {
	Servers() ServerRepository
	Channels() ChannelRepository
	Messages() MessageRepository
	Members() MemberRepository
	Roles() RoleRepository
	Webhooks() WebhookRepository
}
