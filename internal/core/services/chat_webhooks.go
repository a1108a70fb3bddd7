package services

import (
	"context"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	apperrors "parley/pkg/errors"
	"parley/pkg/utils"
	"parley/pkg/validation"

	"github.com/google/uuid"
)

func (s *chatService) createWebhook(ctx context.Context, actor ports.Actor, c domain.CreateWebhook) ([]domain.Event, error) {
	if err := validation.ValidateNonEmptyString(c.Name, "name"); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	if err := validation.ValidateWebhookURL(c.URL); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}

	server, err := s.ResolveServer(ctx, c.ServerID)
	if err != nil {
		return nil, err
	}
	caps, err := s.permissions.Resolve(ctx, server, nil, actor.ID, actor.Admin)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !caps.Has(domain.CapManageWebhooks) {
		return nil, apperrors.NewForbiddenError("insufficient server permissions")
	}

	if c.ChannelID != "" {
		channel, err := s.repos.Channels().GetByID(ctx, c.ChannelID)
		if err != nil {
			return nil, mapRepoErr(err)
		}
		if channel.ServerID != server.ID || channel.State == domain.ChannelStateDeleted {
			return nil, domain.ErrChannelNotFound
		}
	}

	webhook := &domain.Webhook{
		ID:        domain.WebhookID(uuid.NewString()),
		ServerID:  server.ID,
		ChannelID: c.ChannelID,
		Name:      c.Name,
		URL:       c.URL,
		Token:     utils.GenerateWebhookToken(),
		Events:    c.Events,
		CreatedBy: actor.ID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repos.Webhooks().Create(ctx, webhook); err != nil {
		return nil, mapRepoErr(err)
	}

	// the secret token is surfaced exactly once, in this reply
	return []domain.Event{domain.WebhookList{
		EventMeta: domain.NewEventMeta(server.ID, c.ChannelID, actor.ID),
		Webhooks:  []*domain.Webhook{webhook},
	}}, nil
}

func (s *chatService) deleteWebhook(ctx context.Context, actor ports.Actor, c domain.DeleteWebhook) ([]domain.Event, error) {
	server, err := s.ResolveServer(ctx, c.ServerID)
	if err != nil {
		return nil, err
	}
	caps, err := s.permissions.Resolve(ctx, server, nil, actor.ID, actor.Admin)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !caps.Has(domain.CapManageWebhooks) {
		return nil, apperrors.NewForbiddenError("insufficient server permissions")
	}

	webhook, err := s.repos.Webhooks().GetByID(ctx, c.WebhookID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if webhook.ServerID != server.ID {
		return nil, domain.ErrWebhookNotFound
	}
	if err := s.repos.Webhooks().Delete(ctx, webhook.ID); err != nil {
		return nil, mapRepoErr(err)
	}
	return nil, nil
}

func (s *chatService) listWebhooks(ctx context.Context, actor ports.Actor, c domain.ListWebhooks) ([]domain.Event, error) {
	server, err := s.ResolveServer(ctx, c.ServerID)
	if err != nil {
		return nil, err
	}
	caps, err := s.permissions.Resolve(ctx, server, nil, actor.ID, actor.Admin)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !caps.Has(domain.CapManageWebhooks) {
		return nil, apperrors.NewForbiddenError("insufficient server permissions")
	}

	webhooks, err := s.repos.Webhooks().ListByServer(ctx, server.ID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	// listing redacts the secret; it was handed out at creation time
	redacted := make([]*domain.Webhook, 0, len(webhooks))
	for _, webhook := range webhooks {
		clone := *webhook
		clone.Token = utils.MaskSensitive(clone.Token, 4)
		redacted = append(redacted, &clone)
	}
	return []domain.Event{domain.WebhookList{
		EventMeta: domain.NewEventMeta(server.ID, "", actor.ID),
		Webhooks:  redacted,
	}}, nil
}
