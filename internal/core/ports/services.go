package ports

import (
	"context"

	"parley/internal/core/domain"
)

// Actor is the authenticated origin of a command: the identity plus the
// connection it arrived on. ConnID is empty for internal callers (bootstrap,
// restore tooling).
type Actor struct {
	ID       domain.IdentityID
	Username string
	Admin    bool
	ConnID   string
}

// ChatService is the canonical command processor. Apply validates,
// authorizes, persists synchronously, updates the registry, fans broadcast
// events out through the registry, and returns the direct-reply events for
// the origin connection. It never acknowledges a write it has not durably
// recorded.
type ChatService interface {
	Apply(ctx context.Context, actor Actor, cmd domain.Command) ([]domain.Event, error)
	// Bootstrap ensures the configured bootstrap server, its seeded roles and
	// its default channel exist. Run once at startup.
	Bootstrap(ctx context.Context) error
	// ResolveServer maps an empty id to the bootstrap server for
	// line-protocol clients that never see server ids.
	ResolveServer(ctx context.Context, id domain.ServerID) (*domain.Server, error)
}

// PermissionService loads role and membership data and applies the pure
// resolution algorithm. Results are never cached across calls, so a role
// deleted mid-session is excluded from the next resolution.
type PermissionService interface {
	Resolve(ctx context.Context, server *domain.Server, channel *domain.Channel, identity domain.IdentityID, admin bool) (domain.Capability, error)
	EffectiveRank(ctx context.Context, serverID domain.ServerID, identity domain.IdentityID) (int, error)
}

// PresenceService owns ephemeral per-identity state: online/away status and
// typing indicators. Typing entries expire roughly eight seconds after the
// last signal, drained by a periodic sweep independent of any connection.
type PresenceService interface {
	Start(ctx context.Context)
	Stop()
	MarkOnline(identity domain.IdentityID, nick string)
	MarkOffline(identity domain.IdentityID, nick string)
	SetAway(identity domain.IdentityID, nick string, away bool, message string)
	MarkTyping(serverID domain.ServerID, channelID domain.ChannelID, identity domain.IdentityID, nick string)
	ClearTyping(channelID domain.ChannelID, identity domain.IdentityID)
	Status(identity domain.IdentityID) domain.Presence
	TypingCount() int
}

// IdentityProvider exchanges a bearer credential for an authenticated
// identity. The engine trusts the answer without re-validating.
type IdentityProvider interface {
	Authenticate(ctx context.Context, token string) (*domain.Identity, error)
	Issue(identity domain.IdentityID, username string) (string, error)
}

type StatsService interface {
	Snapshot(ctx context.Context) (*domain.InstanceStats, error)
}
