package services

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"

	"go.uber.org/zap"
)

type typingKey struct {
	channelID domain.ChannelID
	identity  domain.IdentityID
}

type typingEntry struct {
	key      typingKey
	serverID domain.ServerID
	nick     string
	deadline time.Time
	index    int
}

// typingHeap orders entries by deadline so the sweep only inspects the
// front instead of scanning every entry.
type typingHeap []*typingEntry

func (h typingHeap) Len() int            { return len(h) }
func (h typingHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h typingHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *typingHeap) Push(x interface{}) {
	entry := x.(*typingEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}
func (h *typingHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[:n-1]
	return entry
}

type presenceService struct {
	registry ports.Registry
	logger   *zap.Logger

	typingTTL     time.Duration
	sweepInterval time.Duration

	mu       sync.Mutex
	statuses map[domain.IdentityID]domain.Presence
	typing   map[typingKey]*typingEntry
	heap     typingHeap

	stopChan chan struct{}
	stopOnce sync.Once
}

func NewPresenceService(registry ports.Registry, typingTTL, sweepInterval time.Duration, logger *zap.Logger) ports.PresenceService {
	return &presenceService{
		registry:      registry,
		logger:        logger,
		typingTTL:     typingTTL,
		sweepInterval: sweepInterval,
		statuses:      make(map[domain.IdentityID]domain.Presence),
		typing:        make(map[typingKey]*typingEntry),
		stopChan:      make(chan struct{}),
	}
}

// Start launches the typing sweep loop.
func (s *presenceService) Start(ctx context.Context) {
	go s.sweepLoop(ctx)
}

func (s *presenceService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func (s *presenceService) MarkOnline(identity domain.IdentityID, nick string) {
	s.mu.Lock()
	prev, existed := s.statuses[identity]
	s.statuses[identity] = domain.Presence{
		Identity: identity,
		Status:   domain.PresenceOnline,
		Since:    time.Now().UTC(),
	}
	s.mu.Unlock()

	if !existed || prev.Status != domain.PresenceOnline {
		s.broadcastPresence(identity, nick, domain.PresenceOnline, "")
	}
}

func (s *presenceService) MarkOffline(identity domain.IdentityID, nick string) {
	s.mu.Lock()
	_, existed := s.statuses[identity]
	delete(s.statuses, identity)

	// drop any live typing entries owned by the identity
	var expired []*typingEntry
	for key, entry := range s.typing {
		if key.identity == identity {
			heap.Remove(&s.heap, entry.index)
			delete(s.typing, key)
			expired = append(expired, entry)
		}
	}
	s.mu.Unlock()

	for _, entry := range expired {
		s.broadcastTypingStopped(entry)
	}
	if existed {
		s.broadcastPresence(identity, nick, domain.PresenceOffline, "")
	}
}

func (s *presenceService) SetAway(identity domain.IdentityID, nick string, away bool, message string) {
	status := domain.PresenceOnline
	if away {
		status = domain.PresenceAway
	} else {
		message = ""
	}

	s.mu.Lock()
	prev := s.statuses[identity]
	s.statuses[identity] = domain.Presence{
		Identity:    identity,
		Status:      status,
		AwayMessage: message,
		Since:       time.Now().UTC(),
	}
	changed := prev.Status != status || prev.AwayMessage != message
	s.mu.Unlock()

	if changed {
		s.broadcastPresence(identity, nick, status, message)
	}
}

// MarkTyping records or refreshes a typing indicator. The indicator expires
// typingTTL after the most recent signal.
func (s *presenceService) MarkTyping(serverID domain.ServerID, channelID domain.ChannelID, identity domain.IdentityID, nick string) {
	key := typingKey{channelID: channelID, identity: identity}
	deadline := time.Now().Add(s.typingTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.typing[key]; ok {
		entry.deadline = deadline
		entry.nick = nick
		heap.Fix(&s.heap, entry.index)
		return
	}
	entry := &typingEntry{
		key:      key,
		serverID: serverID,
		nick:     nick,
		deadline: deadline,
	}
	s.typing[key] = entry
	heap.Push(&s.heap, entry)
}

// ClearTyping removes the indicator immediately, e.g. when the identity
// sends the message it was typing.
func (s *presenceService) ClearTyping(channelID domain.ChannelID, identity domain.IdentityID) {
	key := typingKey{channelID: channelID, identity: identity}

	s.mu.Lock()
	entry, ok := s.typing[key]
	if ok {
		heap.Remove(&s.heap, entry.index)
		delete(s.typing, key)
	}
	s.mu.Unlock()

	if ok {
		s.broadcastTypingStopped(entry)
	}
}

func (s *presenceService) Status(identity domain.IdentityID) domain.Presence {
	s.mu.Lock()
	defer s.mu.Unlock()
	if presence, ok := s.statuses[identity]; ok {
		return presence
	}
	return domain.Presence{Identity: identity, Status: domain.PresenceOffline}
}

func (s *presenceService) TypingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.typing)
}

func (s *presenceService) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepTyping()
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweepTyping pops every entry whose deadline has passed and broadcasts the
// stop notification after releasing the lock.
func (s *presenceService) sweepTyping() {
	now := time.Now()

	s.mu.Lock()
	var expired []*typingEntry
	for len(s.heap) > 0 && !s.heap[0].deadline.After(now) {
		entry := heap.Pop(&s.heap).(*typingEntry)
		delete(s.typing, entry.key)
		expired = append(expired, entry)
	}
	s.mu.Unlock()

	for _, entry := range expired {
		s.broadcastTypingStopped(entry)
	}
}

func (s *presenceService) broadcastTypingStopped(entry *typingEntry) {
	event := domain.TypingStopped{
		EventMeta: domain.NewEventMeta(entry.serverID, entry.key.channelID, entry.key.identity),
	}
	s.registry.Broadcast(entry.key.channelID, event)
}

func (s *presenceService) broadcastPresence(identity domain.IdentityID, nick string, status domain.PresenceStatus, message string) {
	for _, serverID := range s.registry.IdentityServers(identity) {
		event := domain.PresenceChanged{
			EventMeta:   domain.NewEventMeta(serverID, "", identity),
			Nick:        nick,
			Status:      status,
			AwayMessage: message,
		}
		s.registry.BroadcastServer(serverID, event)
	}
}
