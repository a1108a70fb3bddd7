package backup

import (
	"context"
	"fmt"
	"time"

	"parley/internal/core/ports"
	"parley/pkg/backup"
	"parley/pkg/distributed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	leaderLockKey = "parley:backup:leader"
	leaderLockTTL = 5 * time.Minute

	// messagesPerChannel bounds the history captured per channel so one busy
	// channel cannot blow up the archive.
	messagesPerChannel = 1000
)

// Scheduler takes periodic snapshots of the chat state. With Redis enabled
// only the instance holding the leader lock runs a given cycle, so a cluster
// produces one backup per interval rather than one per instance.
type Scheduler struct {
	backupService *backup.BackupService
	repos         ports.Repositories
	redisClient   *redis.Client // nil in single-instance mode
	interval      time.Duration
	retentionDays int
	logger        *zap.SugaredLogger
	stopChan      chan struct{}
}

// Config contains scheduler configuration
type Config struct {
	Interval      time.Duration
	RetentionDays int
}

// NewScheduler creates a new backup scheduler
func NewScheduler(
	backupService *backup.BackupService,
	repos ports.Repositories,
	redisClient *redis.Client,
	cfg Config,
	logger *zap.SugaredLogger,
) *Scheduler {
	return &Scheduler{
		backupService: backupService,
		repos:         repos,
		redisClient:   redisClient,
		interval:      cfg.Interval,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start starts the backup scheduler
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runBackup(ctx)

	for {
		select {
		case <-ticker.C:
			s.runBackup(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the backup scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// RunOnce performs a single backup cycle outside the schedule, for operator
// tooling.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runBackup(ctx)
}

func (s *Scheduler) runBackup(ctx context.Context) {
	if s.redisClient != nil {
		lock := distributed.NewLock(s.redisClient, leaderLockKey, leaderLockTTL)
		acquired, err := lock.TryAcquire(ctx)
		if err != nil {
			s.logger.Warnw("failed to contend for backup leadership", "error", err)
			return
		}
		if !acquired {
			s.logger.Debug("another instance is running this backup cycle")
			return
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				s.logger.Warnw("failed to release backup leader lock", "error", err)
			}
		}()
	}

	s.logger.Info("starting scheduled backup")

	backupData, err := s.collectData(ctx)
	if err != nil {
		s.logger.Errorw("failed to collect backup data", "error", err)
		return
	}

	backupName, err := s.backupService.CreateBackup(ctx, backupData)
	if err != nil {
		s.logger.Errorw("failed to create backup", "error", err)
		return
	}

	s.logger.Infow("backup created successfully", "backup_name", backupName)

	if err := s.cleanupOldBackups(ctx); err != nil {
		s.logger.Warnw("failed to cleanup old backups", "error", err)
	}
}

// collectData walks every server and captures its channels, roles, members,
// webhooks, and recent message history.
func (s *Scheduler) collectData(ctx context.Context) (*backup.BackupData, error) {
	data := &backup.BackupData{
		Servers:  make(map[string]interface{}),
		Channels: make(map[string]interface{}),
		Roles:    make(map[string]interface{}),
		Members:  make(map[string]interface{}),
		Webhooks: make(map[string]interface{}),
		Messages: make(map[string]interface{}),
		Metadata: make(map[string]interface{}),
	}

	servers, err := s.repos.Servers().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}

	messageCount := 0
	for _, server := range servers {
		data.Servers[string(server.ID)] = server

		channels, err := s.repos.Channels().ListByServer(ctx, server.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list channels for server %s: %w", server.ID, err)
		}
		for _, channel := range channels {
			data.Channels[string(channel.ID)] = channel

			msgs, err := s.repos.Messages().ListBefore(ctx, channel.ID, "", messagesPerChannel)
			if err != nil {
				s.logger.Warnw("failed to capture channel history",
					"channel_id", channel.ID,
					"error", err,
				)
				continue
			}
			for _, msg := range msgs {
				data.Messages[string(msg.ID)] = msg
				messageCount++
			}
		}

		roles, err := s.repos.Roles().ListByServer(ctx, server.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list roles for server %s: %w", server.ID, err)
		}
		for _, role := range roles {
			data.Roles[string(role.ID)] = role
		}

		members, err := s.repos.Members().ListByServer(ctx, server.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list members for server %s: %w", server.ID, err)
		}
		for _, member := range members {
			key := string(server.ID) + ":" + string(member.Identity)
			data.Members[key] = member
		}

		webhooks, err := s.repos.Webhooks().ListByServer(ctx, server.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list webhooks for server %s: %w", server.ID, err)
		}
		for _, hook := range webhooks {
			data.Webhooks[string(hook.ID)] = hook
		}
	}

	data.Metadata["server_count"] = len(data.Servers)
	data.Metadata["channel_count"] = len(data.Channels)
	data.Metadata["member_count"] = len(data.Members)
	data.Metadata["message_count"] = messageCount
	data.Metadata["backup_type"] = "scheduled"

	return data, nil
}

// cleanupOldBackups removes backups older than retention period
func (s *Scheduler) cleanupOldBackups(ctx context.Context) error {
	backups, err := s.backupService.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	cutoffTime := time.Now().AddDate(0, 0, -s.retentionDays)

	for _, backupName := range backups {
		// Name format: backup-20060102-150405.json
		if len(backupName) < 22 {
			continue
		}
		timestamp, err := time.Parse("20060102-150405", backupName[7:22])
		if err != nil {
			s.logger.Warnw("failed to parse backup timestamp", "backup_name", backupName, "error", err)
			continue
		}

		if timestamp.Before(cutoffTime) {
			if err := s.backupService.DeleteBackup(ctx, backupName); err != nil {
				s.logger.Warnw("failed to delete old backup", "backup_name", backupName, "error", err)
				continue
			}
			s.logger.Infow("deleted old backup", "backup_name", backupName, "age", time.Since(timestamp))
		}
	}

	return nil
}
