package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	"parley/pkg/backup"

	"go.uber.org/zap"
)

// RestoreService rebuilds chat state from an archive. Entities restore in
// dependency order so a channel never lands before its server.
type RestoreService struct {
	backupService *backup.BackupService
	repos         ports.Repositories
	logger        *zap.SugaredLogger
}

// NewRestoreService creates a new restore service
func NewRestoreService(
	backupService *backup.BackupService,
	repos ports.Repositories,
	logger *zap.SugaredLogger,
) *RestoreService {
	return &RestoreService{
		backupService: backupService,
		repos:         repos,
		logger:        logger,
	}
}

// RestoreOptions contains restore options
type RestoreOptions struct {
	OverwriteExisting bool
	RestoreMessages   bool
	RestoreWebhooks   bool
}

// DefaultRestoreOptions returns default restore options
func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{
		OverwriteExisting: false,
		RestoreMessages:   true,
		RestoreWebhooks:   true,
	}
}

// RestoreFromBackup restores data from a specific backup
func (rs *RestoreService) RestoreFromBackup(ctx context.Context, backupName string, options RestoreOptions) error {
	rs.logger.Infow("starting restore", "backup_name", backupName, "options", options)

	backupData, err := rs.backupService.RestoreBackup(ctx, backupName)
	if err != nil {
		return fmt.Errorf("failed to load backup: %w", err)
	}

	if backupData.Version == "" {
		return fmt.Errorf("invalid backup: missing version")
	}

	if err := rs.restoreServers(ctx, backupData.Servers, options); err != nil {
		return fmt.Errorf("failed to restore servers: %w", err)
	}
	if err := rs.restoreChannels(ctx, backupData.Channels, options); err != nil {
		return fmt.Errorf("failed to restore channels: %w", err)
	}
	if err := rs.restoreRoles(ctx, backupData.Roles, options); err != nil {
		return fmt.Errorf("failed to restore roles: %w", err)
	}
	if err := rs.restoreMembers(ctx, backupData.Members); err != nil {
		return fmt.Errorf("failed to restore members: %w", err)
	}
	if options.RestoreWebhooks {
		if err := rs.restoreWebhooks(ctx, backupData.Webhooks, options); err != nil {
			return fmt.Errorf("failed to restore webhooks: %w", err)
		}
	}
	if options.RestoreMessages {
		if err := rs.restoreMessages(ctx, backupData.Messages, options); err != nil {
			return fmt.Errorf("failed to restore messages: %w", err)
		}
	}

	rs.logger.Infow("restore completed successfully", "backup_name", backupName)
	return nil
}

// decode round-trips the untyped archive entry into the concrete type.
func decode(entry interface{}, out interface{}) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return nil
}

func (rs *RestoreService) restoreServers(ctx context.Context, servers map[string]interface{}, options RestoreOptions) error {
	for idStr, entry := range servers {
		id := domain.ServerID(idStr)

		existing, err := rs.repos.Servers().GetByID(ctx, id)
		if err == nil && existing != nil && !options.OverwriteExisting {
			rs.logger.Debugw("skipping existing server", "server_id", id)
			continue
		}

		var server domain.Server
		if err := decode(entry, &server); err != nil {
			return err
		}

		if existing == nil {
			err = rs.repos.Servers().Create(ctx, &server)
		} else {
			err = rs.repos.Servers().Update(ctx, &server)
		}
		if err != nil {
			return fmt.Errorf("failed to restore server %s: %w", id, err)
		}
		rs.logger.Debugw("restored server", "server_id", id)
	}
	return nil
}

func (rs *RestoreService) restoreChannels(ctx context.Context, channels map[string]interface{}, options RestoreOptions) error {
	for idStr, entry := range channels {
		id := domain.ChannelID(idStr)

		existing, err := rs.repos.Channels().GetByID(ctx, id)
		if err == nil && existing != nil && !options.OverwriteExisting {
			rs.logger.Debugw("skipping existing channel", "channel_id", id)
			continue
		}

		var channel domain.Channel
		if err := decode(entry, &channel); err != nil {
			return err
		}

		if existing == nil {
			err = rs.repos.Channels().Create(ctx, &channel)
		} else {
			err = rs.repos.Channels().Update(ctx, &channel)
		}
		if err != nil {
			return fmt.Errorf("failed to restore channel %s: %w", id, err)
		}
	}
	return nil
}

func (rs *RestoreService) restoreRoles(ctx context.Context, roles map[string]interface{}, options RestoreOptions) error {
	for idStr, entry := range roles {
		id := domain.RoleID(idStr)

		existing, err := rs.repos.Roles().GetByID(ctx, id)
		if err == nil && existing != nil && !options.OverwriteExisting {
			continue
		}

		var role domain.Role
		if err := decode(entry, &role); err != nil {
			return err
		}

		if existing == nil {
			err = rs.repos.Roles().Create(ctx, &role)
		} else {
			err = rs.repos.Roles().Update(ctx, &role)
		}
		if err != nil {
			return fmt.Errorf("failed to restore role %s: %w", id, err)
		}
	}
	return nil
}

func (rs *RestoreService) restoreMembers(ctx context.Context, members map[string]interface{}) error {
	// Upsert already carries overwrite semantics, no existence check needed.
	for key, entry := range members {
		var member domain.Member
		if err := decode(entry, &member); err != nil {
			return err
		}
		if err := rs.repos.Members().Upsert(ctx, &member); err != nil {
			return fmt.Errorf("failed to restore member %s: %w", key, err)
		}
	}
	return nil
}

func (rs *RestoreService) restoreWebhooks(ctx context.Context, webhooks map[string]interface{}, options RestoreOptions) error {
	for idStr, entry := range webhooks {
		id := domain.WebhookID(idStr)

		existing, err := rs.repos.Webhooks().GetByID(ctx, id)
		if err == nil && existing != nil && !options.OverwriteExisting {
			continue
		}

		var hook domain.Webhook
		if err := decode(entry, &hook); err != nil {
			return err
		}
		if existing == nil {
			if err := rs.repos.Webhooks().Create(ctx, &hook); err != nil {
				return fmt.Errorf("failed to restore webhook %s: %w", id, err)
			}
		}
	}
	return nil
}

func (rs *RestoreService) restoreMessages(ctx context.Context, messages map[string]interface{}, options RestoreOptions) error {
	for idStr, entry := range messages {
		id := domain.MessageID(idStr)

		existing, err := rs.repos.Messages().GetByID(ctx, id)
		if err == nil && existing != nil && !options.OverwriteExisting {
			continue
		}

		var msg domain.Message
		if err := decode(entry, &msg); err != nil {
			return err
		}

		if existing == nil {
			err = rs.repos.Messages().Save(ctx, &msg)
		} else {
			err = rs.repos.Messages().Update(ctx, &msg)
		}
		if err != nil {
			return fmt.Errorf("failed to restore message %s: %w", id, err)
		}
	}
	return nil
}

// FindBackupByTime finds the newest backup at or before the given time.
func (rs *RestoreService) FindBackupByTime(ctx context.Context, targetTime time.Time) (string, error) {
	backups, err := rs.backupService.ListBackups(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list backups: %w", err)
	}

	var (
		closestBackup string
		closestTime   time.Time
		found         bool
	)

	for _, backupName := range backups {
		if len(backupName) < 22 {
			continue
		}
		timestamp, err := time.Parse("20060102-150405", backupName[7:22])
		if err != nil {
			continue
		}

		if !timestamp.After(targetTime) {
			if !found || timestamp.After(closestTime) {
				closestBackup = backupName
				closestTime = timestamp
				found = true
			}
		}
	}

	if !found {
		return "", fmt.Errorf("no backup found before or at target time: %v", targetTime)
	}

	return closestBackup, nil
}
