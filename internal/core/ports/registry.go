package ports

import "parley/internal/core/domain"

// Connection is one live client socket as the registry sees it. Enqueue must
// never block: it reports false when the connection's outbound queue is full
// and the event was dropped (the client recovers by re-syncing).
type Connection interface {
	ID() string
	Identity() domain.IdentityID
	Protocol() string
	RemoteAddr() string
	Enqueue(event domain.Event) bool
	Close(reason string)
}

// Registry indexes live connections by channel, server and identity, and
// owns rate-limit admission. Every mutation is a single atomic operation on
// both directions of the index; no method returns a snapshot a caller could
// mutate and write back.
type Registry interface {
	// AdmitAddress reserves a connection slot for a source address, bounded
	// per address. It runs before any protocol registration. A reserved slot
	// is released by Unregister, or by ReleaseAddress when registration never
	// happened.
	AdmitAddress(addr string) bool
	ReleaseAddress(addr string)

	Register(conn Connection)
	// Unregister synchronously removes the connection from every index and
	// releases its address slot before returning.
	Unregister(connID string)

	// Join reports whether the identity was not previously present in the
	// channel through any connection; Leave reports whether it no longer is.
	Join(connID string, channelID domain.ChannelID) bool
	Leave(connID string, channelID domain.ChannelID) bool
	JoinServer(connID string, serverID domain.ServerID) bool
	LeaveServer(connID string, serverID domain.ServerID) bool

	// LeaveAll detaches every connection of an identity from a channel,
	// reporting whether any was attached.
	LeaveAll(identity domain.IdentityID, channelID domain.ChannelID) bool
	DropChannel(channelID domain.ChannelID)
	DropServer(serverID domain.ServerID)

	// Broadcast pushes the event to every connection joined to the channel,
	// in one pass, preserving per-channel delivery order. It returns the
	// number of connections reached.
	Broadcast(channelID domain.ChannelID, event domain.Event) int
	BroadcastServer(serverID domain.ServerID, event domain.Event) int

	ForEachMember(channelID domain.ChannelID, fn func(Connection))
	Connections(identity domain.IdentityID) []Connection
	IdentityInChannel(identity domain.IdentityID, channelID domain.ChannelID) bool
	IdentityServers(identity domain.IdentityID) []domain.ServerID

	// TryConsume takes cost tokens from the named bucket. Bucket keys are
	// "tier:subject"; the tier selects the refill policy.
	TryConsume(bucket string, cost int) bool

	Counts() map[string]int // live connections by protocol
	IdentityCount() int
	BucketCount() int
}
