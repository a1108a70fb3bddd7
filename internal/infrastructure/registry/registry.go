package registry

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	"parley/pkg/config"
	"parley/pkg/optimize"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	shardCount = 32

	fnvOffset32 = 2166136261
	fnvPrime32  = 16777619

	// bucketIdleTTL is how long an untouched rate bucket survives before
	// the janitor reclaims it.
	bucketIdleTTL = 10 * time.Minute
)

func shardFor(key string) uint32 {
	h := uint32(fnvOffset32)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= fnvPrime32
	}
	return h % shardCount
}

// registration is the per-connection bookkeeping record. channels and
// servers are the back-references used to unwind all indexes on teardown.
type registration struct {
	conn     ports.Connection
	addr     string
	closed   atomic.Bool
	channels map[domain.ChannelID]struct{}
	servers  map[domain.ServerID]struct{}
}

type connShard struct {
	mu   sync.RWMutex
	regs map[string]*registration
}

// room tracks the connections subscribed to one channel plus a per-identity
// refcount so first/last presence of an identity is detectable.
type room struct {
	conns      map[string]ports.Connection
	identities map[domain.IdentityID]int
}

func newRoom() *room {
	return &room{
		conns:      make(map[string]ports.Connection),
		identities: make(map[domain.IdentityID]int),
	}
}

type channelShard struct {
	mu    sync.RWMutex
	rooms map[domain.ChannelID]*room
}

type serverShard struct {
	mu    sync.RWMutex
	rooms map[domain.ServerID]*room
}

type identityShard struct {
	mu      sync.RWMutex
	conns   map[domain.IdentityID]map[string]ports.Connection
	servers map[domain.IdentityID]map[domain.ServerID]int
}

type addressShard struct {
	mu     sync.Mutex
	counts map[string]int
}

type bucketEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// tierParams hold the token bucket shape for one rate tier.
type tierParams struct {
	burst  int
	refill time.Duration
}

// InstanceRegistry is the in-process index of live connections. It answers
// "who is in this channel right now" and carries the token buckets used for
// per-subject rate limiting. All composite operations leave the indexes
// consistent when they return.
type InstanceRegistry struct {
	conns      [shardCount]*connShard
	channels   [shardCount]*channelShard
	servers    [shardCount]*serverShard
	identities [shardCount]*identityShard
	addresses  [shardCount]*addressShard

	maxPerAddress int
	limitEnabled  bool
	tiers         map[string]tierParams

	bucketMu sync.Mutex
	buckets  map[string]*bucketEntry

	// scratch slices for broadcast fan-out, recycled across calls
	targets *optimize.SlicePool[ports.Connection]

	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewInstanceRegistry creates the registry with rate tiers taken from config.
func NewInstanceRegistry(cfg *config.Config, logger *zap.Logger) *InstanceRegistry {
	r := &InstanceRegistry{
		maxPerAddress: cfg.RateLimiting.ConnectionsPerAddress,
		limitEnabled:  cfg.RateLimiting.Enabled,
		tiers: map[string]tierParams{
			"command": {burst: cfg.RateLimiting.Command.Burst, refill: cfg.RateLimiting.Command.RefillEvery},
			"auth":    {burst: cfg.RateLimiting.HTTP.Auth.Burst, refill: cfg.RateLimiting.HTTP.Auth.RefillEvery},
			"api":     {burst: cfg.RateLimiting.HTTP.API.Burst, refill: cfg.RateLimiting.HTTP.API.RefillEvery},
			"ws":      {burst: cfg.RateLimiting.HTTP.WS.Burst, refill: cfg.RateLimiting.HTTP.WS.RefillEvery},
		},
		buckets:  make(map[string]*bucketEntry),
		targets:  optimize.NewSlicePool[ports.Connection](64),
		logger:   logger,
		stopChan: make(chan struct{}),
	}
	for i := 0; i < shardCount; i++ {
		r.conns[i] = &connShard{regs: make(map[string]*registration)}
		r.channels[i] = &channelShard{rooms: make(map[domain.ChannelID]*room)}
		r.servers[i] = &serverShard{rooms: make(map[domain.ServerID]*room)}
		r.identities[i] = &identityShard{
			conns:   make(map[domain.IdentityID]map[string]ports.Connection),
			servers: make(map[domain.IdentityID]map[domain.ServerID]int),
		}
		r.addresses[i] = &addressShard{counts: make(map[string]int)}
	}
	return r
}

// Start launches the bucket janitor.
func (r *InstanceRegistry) Start() {
	go r.janitorLoop()
}

// Stop terminates the bucket janitor.
func (r *InstanceRegistry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
}

func (r *InstanceRegistry) connShard(connID string) *connShard {
	return r.conns[shardFor(connID)]
}

func (r *InstanceRegistry) channelShard(id domain.ChannelID) *channelShard {
	return r.channels[shardFor(string(id))]
}

func (r *InstanceRegistry) serverShard(id domain.ServerID) *serverShard {
	return r.servers[shardFor(string(id))]
}

func (r *InstanceRegistry) identityShard(id domain.IdentityID) *identityShard {
	return r.identities[shardFor(string(id))]
}

func (r *InstanceRegistry) addressShard(addr string) *addressShard {
	return r.addresses[shardFor(addr)]
}

// AdmitAddress reserves a connection slot for addr. It must be called before
// any protocol work happens on the socket; a false return means the address
// already holds the maximum number of connections.
func (r *InstanceRegistry) AdmitAddress(addr string) bool {
	sh := r.addressShard(addr)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.counts[addr] >= r.maxPerAddress {
		return false
	}
	sh.counts[addr]++
	return true
}

// ReleaseAddress returns a reserved slot for a connection that never reached
// Register. Registered connections release their slot through Unregister.
func (r *InstanceRegistry) ReleaseAddress(addr string) {
	sh := r.addressShard(addr)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.counts[addr] <= 1 {
		delete(sh.counts, addr)
		return
	}
	sh.counts[addr]--
}

// Register indexes an authenticated connection by ID and identity.
func (r *InstanceRegistry) Register(conn ports.Connection) {
	reg := &registration{
		conn:     conn,
		addr:     conn.RemoteAddr(),
		channels: make(map[domain.ChannelID]struct{}),
		servers:  make(map[domain.ServerID]struct{}),
	}

	cs := r.connShard(conn.ID())
	cs.mu.Lock()
	cs.regs[conn.ID()] = reg
	cs.mu.Unlock()

	is := r.identityShard(conn.Identity())
	is.mu.Lock()
	set := is.conns[conn.Identity()]
	if set == nil {
		set = make(map[string]ports.Connection)
		is.conns[conn.Identity()] = set
	}
	set[conn.ID()] = conn
	is.mu.Unlock()

	r.logger.Debug("connection registered",
		zap.String("connection_id", conn.ID()),
		zap.String("identity_id", string(conn.Identity())),
		zap.String("protocol", conn.Protocol()),
	)
}

// Unregister removes the connection from every index it appears in. All
// removals complete before Unregister returns, so no event can reach the
// connection afterwards through the registry.
func (r *InstanceRegistry) Unregister(connID string) {
	cs := r.connShard(connID)
	cs.mu.Lock()
	reg, ok := cs.regs[connID]
	if ok {
		reg.closed.Store(true)
		delete(cs.regs, connID)
	}
	cs.mu.Unlock()
	if !ok {
		return
	}

	for channelID := range reg.channels {
		r.removeFromChannel(connID, reg.conn.Identity(), channelID)
	}
	for serverID := range reg.servers {
		r.removeFromServer(connID, reg.conn.Identity(), serverID)
	}

	is := r.identityShard(reg.conn.Identity())
	is.mu.Lock()
	if set := is.conns[reg.conn.Identity()]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(is.conns, reg.conn.Identity())
			delete(is.servers, reg.conn.Identity())
		}
	}
	is.mu.Unlock()

	r.ReleaseAddress(reg.addr)

	r.logger.Debug("connection unregistered", zap.String("connection_id", connID))
}

// Join subscribes the connection to a channel. Returns true when this made
// the connection's identity newly present in the channel.
func (r *InstanceRegistry) Join(connID string, channelID domain.ChannelID) bool {
	cs := r.connShard(connID)
	cs.mu.Lock()
	reg, ok := cs.regs[connID]
	if !ok {
		cs.mu.Unlock()
		return false
	}
	if _, dup := reg.channels[channelID]; dup {
		cs.mu.Unlock()
		return false
	}
	reg.channels[channelID] = struct{}{}
	conn := reg.conn
	cs.mu.Unlock()

	sh := r.channelShard(channelID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if reg.closed.Load() {
		// lost the race with Unregister; its sweep already ran or will
		// find nothing, so do not insert
		return false
	}
	rm := sh.rooms[channelID]
	if rm == nil {
		rm = newRoom()
		sh.rooms[channelID] = rm
	}
	rm.conns[connID] = conn
	rm.identities[conn.Identity()]++
	return rm.identities[conn.Identity()] == 1
}

// Leave unsubscribes the connection from a channel. Returns true when the
// connection's identity is no longer present in the channel at all.
func (r *InstanceRegistry) Leave(connID string, channelID domain.ChannelID) bool {
	cs := r.connShard(connID)
	cs.mu.Lock()
	reg, ok := cs.regs[connID]
	if !ok {
		cs.mu.Unlock()
		return false
	}
	if _, member := reg.channels[channelID]; !member {
		cs.mu.Unlock()
		return false
	}
	delete(reg.channels, channelID)
	identity := reg.conn.Identity()
	cs.mu.Unlock()

	return r.removeFromChannel(connID, identity, channelID)
}

// removeFromChannel drops one connection from a channel room and reports
// whether the identity left the channel entirely.
func (r *InstanceRegistry) removeFromChannel(connID string, identity domain.IdentityID, channelID domain.ChannelID) bool {
	sh := r.channelShard(channelID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rm := sh.rooms[channelID]
	if rm == nil {
		return false
	}
	if _, present := rm.conns[connID]; !present {
		return false
	}
	delete(rm.conns, connID)
	rm.identities[identity]--
	gone := rm.identities[identity] <= 0
	if gone {
		delete(rm.identities, identity)
	}
	if len(rm.conns) == 0 {
		delete(sh.rooms, channelID)
	}
	return gone
}

// JoinServer subscribes the connection to server-wide events.
func (r *InstanceRegistry) JoinServer(connID string, serverID domain.ServerID) bool {
	cs := r.connShard(connID)
	cs.mu.Lock()
	reg, ok := cs.regs[connID]
	if !ok {
		cs.mu.Unlock()
		return false
	}
	if _, dup := reg.servers[serverID]; dup {
		cs.mu.Unlock()
		return false
	}
	reg.servers[serverID] = struct{}{}
	conn := reg.conn
	cs.mu.Unlock()

	sh := r.serverShard(serverID)
	sh.mu.Lock()
	if reg.closed.Load() {
		sh.mu.Unlock()
		return false
	}
	rm := sh.rooms[serverID]
	if rm == nil {
		rm = newRoom()
		sh.rooms[serverID] = rm
	}
	rm.conns[connID] = conn
	rm.identities[conn.Identity()]++
	first := rm.identities[conn.Identity()] == 1
	sh.mu.Unlock()

	is := r.identityShard(conn.Identity())
	is.mu.Lock()
	m := is.servers[conn.Identity()]
	if m == nil {
		m = make(map[domain.ServerID]int)
		is.servers[conn.Identity()] = m
	}
	m[serverID]++
	is.mu.Unlock()

	return first
}

// LeaveServer unsubscribes the connection from server-wide events.
func (r *InstanceRegistry) LeaveServer(connID string, serverID domain.ServerID) bool {
	cs := r.connShard(connID)
	cs.mu.Lock()
	reg, ok := cs.regs[connID]
	if !ok {
		cs.mu.Unlock()
		return false
	}
	if _, member := reg.servers[serverID]; !member {
		cs.mu.Unlock()
		return false
	}
	delete(reg.servers, serverID)
	identity := reg.conn.Identity()
	cs.mu.Unlock()

	return r.removeFromServer(connID, identity, serverID)
}

func (r *InstanceRegistry) removeFromServer(connID string, identity domain.IdentityID, serverID domain.ServerID) bool {
	sh := r.serverShard(serverID)
	sh.mu.Lock()
	rm := sh.rooms[serverID]
	gone := false
	if rm != nil {
		if _, present := rm.conns[connID]; present {
			delete(rm.conns, connID)
			rm.identities[identity]--
			gone = rm.identities[identity] <= 0
			if gone {
				delete(rm.identities, identity)
			}
			if len(rm.conns) == 0 {
				delete(sh.rooms, serverID)
			}
		}
	}
	sh.mu.Unlock()
	if rm == nil {
		return false
	}

	is := r.identityShard(identity)
	is.mu.Lock()
	if m := is.servers[identity]; m != nil {
		m[serverID]--
		if m[serverID] <= 0 {
			delete(m, serverID)
		}
	}
	is.mu.Unlock()

	return gone
}

// LeaveAll removes every connection of the identity from a channel. Used
// when a member parts or is removed, so all their sessions drop together.
func (r *InstanceRegistry) LeaveAll(identity domain.IdentityID, channelID domain.ChannelID) bool {
	sh := r.channelShard(channelID)
	sh.mu.Lock()
	rm := sh.rooms[channelID]
	if rm == nil {
		sh.mu.Unlock()
		return false
	}
	var affected []string
	for connID, conn := range rm.conns {
		if conn.Identity() == identity {
			affected = append(affected, connID)
			delete(rm.conns, connID)
		}
	}
	removed := len(affected) > 0
	delete(rm.identities, identity)
	if len(rm.conns) == 0 {
		delete(sh.rooms, channelID)
	}
	sh.mu.Unlock()

	for _, connID := range affected {
		cs := r.connShard(connID)
		cs.mu.Lock()
		if reg, ok := cs.regs[connID]; ok {
			delete(reg.channels, channelID)
		}
		cs.mu.Unlock()
	}
	return removed
}

// DropChannel evicts every connection from a channel room, typically because
// the channel was deleted.
func (r *InstanceRegistry) DropChannel(channelID domain.ChannelID) {
	sh := r.channelShard(channelID)
	sh.mu.Lock()
	rm := sh.rooms[channelID]
	delete(sh.rooms, channelID)
	sh.mu.Unlock()
	if rm == nil {
		return
	}

	for connID := range rm.conns {
		cs := r.connShard(connID)
		cs.mu.Lock()
		if reg, ok := cs.regs[connID]; ok {
			delete(reg.channels, channelID)
		}
		cs.mu.Unlock()
	}
}

// DropServer evicts every connection from a server room.
func (r *InstanceRegistry) DropServer(serverID domain.ServerID) {
	sh := r.serverShard(serverID)
	sh.mu.Lock()
	rm := sh.rooms[serverID]
	delete(sh.rooms, serverID)
	sh.mu.Unlock()
	if rm == nil {
		return
	}

	for connID, conn := range rm.conns {
		cs := r.connShard(connID)
		cs.mu.Lock()
		if reg, ok := cs.regs[connID]; ok {
			delete(reg.servers, serverID)
		}
		cs.mu.Unlock()

		is := r.identityShard(conn.Identity())
		is.mu.Lock()
		if m := is.servers[conn.Identity()]; m != nil {
			delete(m, serverID)
		}
		is.mu.Unlock()
	}
}

// Broadcast enqueues the event to every connection in the channel and
// returns the number of successful deliveries. Connections whose outbound
// queue is full are skipped; the transport owns closing them if they stall.
func (r *InstanceRegistry) Broadcast(channelID domain.ChannelID, event domain.Event) int {
	sh := r.channelShard(channelID)
	sh.mu.RLock()
	rm := sh.rooms[channelID]
	if rm == nil {
		sh.mu.RUnlock()
		return 0
	}
	targets := r.targets.Get()
	for _, conn := range rm.conns {
		targets = append(targets, conn)
	}
	sh.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if conn.Enqueue(event) {
			delivered++
		} else {
			r.logger.Warn("dropping event for slow connection",
				zap.String("connection_id", conn.ID()),
				zap.String("event", event.EventName()),
			)
		}
	}
	r.targets.Put(targets)
	return delivered
}

// BroadcastServer enqueues the event to every connection subscribed to the
// server.
func (r *InstanceRegistry) BroadcastServer(serverID domain.ServerID, event domain.Event) int {
	sh := r.serverShard(serverID)
	sh.mu.RLock()
	rm := sh.rooms[serverID]
	if rm == nil {
		sh.mu.RUnlock()
		return 0
	}
	targets := r.targets.Get()
	for _, conn := range rm.conns {
		targets = append(targets, conn)
	}
	sh.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if conn.Enqueue(event) {
			delivered++
		}
	}
	r.targets.Put(targets)
	return delivered
}

// ForEachMember calls fn for every connection currently in the channel. fn
// runs outside the shard lock.
func (r *InstanceRegistry) ForEachMember(channelID domain.ChannelID, fn func(ports.Connection)) {
	sh := r.channelShard(channelID)
	sh.mu.RLock()
	rm := sh.rooms[channelID]
	if rm == nil {
		sh.mu.RUnlock()
		return
	}
	targets := r.targets.Get()
	for _, conn := range rm.conns {
		targets = append(targets, conn)
	}
	sh.mu.RUnlock()

	for _, conn := range targets {
		fn(conn)
	}
	r.targets.Put(targets)
}

// Connections returns all live connections of an identity.
func (r *InstanceRegistry) Connections(identity domain.IdentityID) []ports.Connection {
	is := r.identityShard(identity)
	is.mu.RLock()
	defer is.mu.RUnlock()
	set := is.conns[identity]
	res := optimize.PreAllocateSlice[ports.Connection](0, len(set))
	for _, conn := range set {
		res = append(res, conn)
	}
	return res
}

// IdentityInChannel reports whether the identity has at least one connection
// in the channel.
func (r *InstanceRegistry) IdentityInChannel(identity domain.IdentityID, channelID domain.ChannelID) bool {
	sh := r.channelShard(channelID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	rm := sh.rooms[channelID]
	return rm != nil && rm.identities[identity] > 0
}

// IdentityServers returns the servers the identity currently has connections
// subscribed to.
func (r *InstanceRegistry) IdentityServers(identity domain.IdentityID) []domain.ServerID {
	is := r.identityShard(identity)
	is.mu.RLock()
	defer is.mu.RUnlock()
	m := is.servers[identity]
	res := optimize.PreAllocateSlice[domain.ServerID](0, len(m))
	for serverID, n := range m {
		if n > 0 {
			res = append(res, serverID)
		}
	}
	return res
}

// TryConsume takes cost tokens from the named bucket. Bucket keys follow the
// "tier:subject" form, e.g. "command:identity-123" or "auth:10.0.0.7". An
// unknown tier falls back to the command tier. Returns true when the caller
// may proceed.
func (r *InstanceRegistry) TryConsume(bucket string, cost int) bool {
	if !r.limitEnabled {
		return true
	}

	tier := "command"
	if i := strings.IndexByte(bucket, ':'); i > 0 {
		tier = bucket[:i]
	}
	params, ok := r.tiers[tier]
	if !ok {
		params = r.tiers["command"]
	}
	if params.burst <= 0 || params.refill <= 0 {
		return true
	}

	r.bucketMu.Lock()
	entry, exists := r.buckets[bucket]
	if !exists {
		entry = &bucketEntry{
			limiter: rate.NewLimiter(rate.Every(params.refill), params.burst),
		}
		r.buckets[bucket] = entry
	}
	entry.lastSeen = time.Now()
	r.bucketMu.Unlock()

	return entry.limiter.AllowN(time.Now(), cost)
}

// Counts returns live connection counts per protocol.
func (r *InstanceRegistry) Counts() map[string]int {
	counts := make(map[string]int)
	for i := 0; i < shardCount; i++ {
		cs := r.conns[i]
		cs.mu.RLock()
		for _, reg := range cs.regs {
			counts[reg.conn.Protocol()]++
		}
		cs.mu.RUnlock()
	}
	return counts
}

// IdentityCount returns the number of distinct identities with at least one
// live connection.
func (r *InstanceRegistry) IdentityCount() int {
	total := 0
	for i := 0; i < shardCount; i++ {
		is := r.identities[i]
		is.mu.RLock()
		total += len(is.conns)
		is.mu.RUnlock()
	}
	return total
}

// BucketCount returns the number of live rate buckets.
func (r *InstanceRegistry) BucketCount() int {
	r.bucketMu.Lock()
	defer r.bucketMu.Unlock()
	return len(r.buckets)
}

func (r *InstanceRegistry) janitorLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweepBuckets()
		case <-r.stopChan:
			return
		}
	}
}

func (r *InstanceRegistry) sweepBuckets() {
	cutoff := time.Now().Add(-bucketIdleTTL)
	r.bucketMu.Lock()
	removed := 0
	for key, entry := range r.buckets {
		if entry.lastSeen.Before(cutoff) {
			delete(r.buckets, key)
			removed++
		}
	}
	r.bucketMu.Unlock()
	if removed > 0 {
		r.logger.Debug("swept idle rate buckets", zap.Int("removed", removed))
	}
}
