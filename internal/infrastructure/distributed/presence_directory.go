package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"parley/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	presenceKeyPrefix = "parley:presence:"
	presenceTTL       = 90 * time.Second
	heartbeatInterval = 30 * time.Second
)

// PresenceEntry is the record a directory key holds for one online identity.
type PresenceEntry struct {
	Identity    domain.IdentityID     `json:"identity"`
	Nick        string                `json:"nick"`
	Status      domain.PresenceStatus `json:"status"`
	AwayMessage string                `json:"away_message,omitempty"`
	InstanceID  string                `json:"instance_id"`
	Since       time.Time             `json:"since"`
}

// PresenceDirectory keeps a cluster-wide view of who is online in Redis.
// It consumes presence events as an EventSink and refreshes the TTL of the
// identities this instance owns, so keys expire on their own if an instance
// dies without cleaning up.
type PresenceDirectory struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger

	mu    sync.Mutex
	local map[domain.IdentityID]PresenceEntry
}

func NewPresenceDirectory(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *PresenceDirectory {
	return &PresenceDirectory{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
		local:      make(map[domain.IdentityID]PresenceEntry),
	}
}

func (d *PresenceDirectory) Name() string { return "presence_directory" }

// Deliver tracks presence_changed events; everything else passes through.
func (d *PresenceDirectory) Deliver(ctx context.Context, event domain.Event) error {
	change, ok := event.(domain.PresenceChanged)
	if !ok {
		return nil
	}

	identity := change.Meta().Actor
	if change.Status == domain.PresenceOffline {
		d.mu.Lock()
		delete(d.local, identity)
		d.mu.Unlock()
		if err := d.client.Del(ctx, presenceKeyPrefix+string(identity)).Err(); err != nil {
			return fmt.Errorf("failed to delete presence key: %w", err)
		}
		return nil
	}

	entry := PresenceEntry{
		Identity:    identity,
		Nick:        change.Nick,
		Status:      change.Status,
		AwayMessage: change.AwayMessage,
		InstanceID:  d.instanceID,
		Since:       change.Meta().Time,
	}
	d.mu.Lock()
	d.local[identity] = entry
	d.mu.Unlock()
	return d.write(ctx, entry)
}

func (d *PresenceDirectory) write(ctx context.Context, entry PresenceEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal presence entry: %w", err)
	}
	key := presenceKeyPrefix + string(entry.Identity)
	if err := d.client.Set(ctx, key, data, presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to write presence key: %w", err)
	}
	return nil
}

// Start runs the heartbeat loop until the context ends.
func (d *PresenceDirectory) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.refresh(ctx)
			}
		}
	}()
}

func (d *PresenceDirectory) refresh(ctx context.Context) {
	d.mu.Lock()
	entries := make([]PresenceEntry, 0, len(d.local))
	for _, entry := range d.local {
		entries = append(entries, entry)
	}
	d.mu.Unlock()

	for _, entry := range entries {
		if err := d.write(ctx, entry); err != nil {
			d.logger.Warnw("failed to refresh presence key",
				"identity", entry.Identity,
				"error", err,
			)
		}
	}
}

// OnlineIdentities lists every identity currently online across the cluster.
func (d *PresenceDirectory) OnlineIdentities(ctx context.Context) ([]PresenceEntry, error) {
	var (
		entries []PresenceEntry
		cursor  uint64
	)
	for {
		keys, next, err := d.client.Scan(ctx, cursor, presenceKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan presence keys: %w", err)
		}
		for _, key := range keys {
			data, err := d.client.Get(ctx, key).Result()
			if err == redis.Nil {
				continue // expired between scan and get
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read presence key: %w", err)
			}
			var entry PresenceEntry
			if err := json.Unmarshal([]byte(data), &entry); err != nil {
				d.logger.Warnw("skipping malformed presence entry", "key", key, "error", err)
				continue
			}
			entries = append(entries, entry)
		}
		cursor = next
		if cursor == 0 {
			return entries, nil
		}
	}
}
