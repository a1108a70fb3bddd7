package services

import (
	"context"
	"errors"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	apperrors "parley/pkg/errors"
	"parley/pkg/validation"

	"github.com/google/uuid"
)

func (s *chatService) sendMessage(ctx context.Context, actor ports.Actor, c domain.SendMessage) ([]domain.Event, error) {
	if err := validation.ValidateMessageContent(c.Content, s.maxMessageLength); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	cc, err := s.resolveChannelCtx(ctx, actor, c.ChannelRef, domain.CapSendMessages)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(channelLockKey(cc.channel.ID))
	defer unlock()

	channel, err := s.freshChannel(ctx, cc.channel.ID)
	if err != nil {
		return nil, err
	}
	if channel.State != domain.ChannelStateActive {
		return nil, apperrors.NewForbiddenError("channel is archived")
	}
	if err := s.checkSlowMode(channel, actor.ID, cc.caps); err != nil {
		return nil, err
	}

	if c.ReplyTo != "" {
		parent, err := s.repos.Messages().GetByID(ctx, c.ReplyTo)
		if err != nil {
			if errors.Is(err, domain.ErrMessageNotFound) {
				return nil, apperrors.NewInvalidInputError("reply target not found")
			}
			return nil, mapRepoErr(err)
		}
		if parent.ChannelID != channel.ID || parent.Deleted {
			return nil, apperrors.NewInvalidInputError("reply target not found")
		}
	}

	msg := &domain.Message{
		ID:         domain.MessageID(uuid.NewString()),
		ServerID:   channel.ServerID,
		ChannelID:  channel.ID,
		Author:     actor.ID,
		AuthorName: s.displayName(ctx, channel.ServerID, actor),
		Content:    c.Content,
		Action:     c.Action,
		ReplyTo:    c.ReplyTo,
		CreatedAt:  time.Now().UTC(),
	}
	// the ack below only ever confirms a durably recorded message
	if err := s.repos.Messages().Save(ctx, msg); err != nil {
		return nil, mapRepoErr(err)
	}
	s.recordSend(channel, actor.ID)
	s.presence.ClearTyping(channel.ID, actor.ID)
	s.stats.RecordMessage()

	ev := domain.MessageCreated{
		EventMeta: domain.NewEventMeta(channel.ServerID, channel.ID, actor.ID),
		Message:   msg,
		Nonce:     c.Nonce,
	}
	s.fanOutChannel(channel.ID, ev)
	// the reply carries the same event id the broadcast did, so a client
	// connected over both protocols can correlate the ack with the echo
	return []domain.Event{ev}, nil
}

func (s *chatService) editMessage(ctx context.Context, actor ports.Actor, c domain.EditMessage) ([]domain.Event, error) {
	if err := validation.ValidateMessageContent(c.Content, s.maxMessageLength); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	cc, err := s.resolveChannelCtx(ctx, actor, c.ChannelRef, 0)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(channelLockKey(cc.channel.ID))
	defer unlock()

	channel, err := s.freshChannel(ctx, cc.channel.ID)
	if err != nil {
		return nil, err
	}
	if channel.State != domain.ChannelStateActive {
		return nil, apperrors.NewForbiddenError("channel is archived")
	}

	msg, err := s.loadChannelMessage(ctx, channel.ID, c.MessageID)
	if err != nil {
		return nil, err
	}
	// editing stays with the author; moderators delete, they do not rewrite
	if msg.Author != actor.ID {
		return nil, apperrors.NewForbiddenError("only the author can edit a message")
	}

	now := time.Now().UTC()
	msg.Content = c.Content
	msg.EditedAt = &now
	if err := s.repos.Messages().Update(ctx, msg); err != nil {
		return nil, mapRepoErr(err)
	}

	ev := domain.MessageEdited{
		EventMeta: domain.NewEventMeta(channel.ServerID, channel.ID, actor.ID),
		Message:   msg,
	}
	s.fanOutChannel(channel.ID, ev)
	return []domain.Event{ev}, nil
}

func (s *chatService) deleteMessage(ctx context.Context, actor ports.Actor, c domain.DeleteMessage) ([]domain.Event, error) {
	cc, err := s.resolveChannelCtx(ctx, actor, c.ChannelRef, 0)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(channelLockKey(cc.channel.ID))
	defer unlock()

	// deletion is moderation, so it works in archived channels too
	channel, err := s.freshChannel(ctx, cc.channel.ID)
	if err != nil {
		return nil, err
	}

	msg, err := s.loadChannelMessage(ctx, channel.ID, c.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.Author != actor.ID && !cc.caps.Has(domain.CapManageMessages) {
		return nil, apperrors.NewForbiddenError("insufficient channel permissions")
	}

	msg.Deleted = true
	msg.Content = ""
	if err := s.repos.Messages().Update(ctx, msg); err != nil {
		return nil, mapRepoErr(err)
	}

	ev := domain.MessageDeleted{
		EventMeta: domain.NewEventMeta(channel.ServerID, channel.ID, actor.ID),
		MessageID: msg.ID,
	}
	s.fanOutChannel(channel.ID, ev)
	return []domain.Event{ev}, nil
}

func (s *chatService) getHistory(ctx context.Context, actor ports.Actor, c domain.GetHistory) ([]domain.Event, error) {
	cc, err := s.resolveChannelCtx(ctx, actor, c.ChannelRef, domain.CapReadHistory)
	if err != nil {
		return nil, err
	}

	limit := c.Limit
	if limit <= 0 {
		limit = s.historyPageSize
	}
	if limit > s.historyPageMax {
		limit = s.historyPageMax
	}

	// fetch one past the page to learn whether older messages remain
	messages, err := s.repos.Messages().ListBefore(ctx, cc.channel.ID, c.Before, limit+1)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[1:]
	}

	return []domain.Event{domain.HistorySlice{
		EventMeta: domain.NewEventMeta(cc.server.ID, cc.channel.ID, actor.ID),
		Messages:  messages,
		HasMore:   hasMore,
	}}, nil
}

func (s *chatService) typing(ctx context.Context, actor ports.Actor, c domain.Typing) ([]domain.Event, error) {
	cc, err := s.resolveChannelCtx(ctx, actor, c.ChannelRef, domain.CapSendMessages)
	if err != nil {
		return nil, err
	}

	nick := s.displayName(ctx, cc.server.ID, actor)
	s.presence.MarkTyping(cc.server.ID, cc.channel.ID, actor.ID, nick)

	ev := domain.TypingStarted{
		EventMeta: domain.NewEventMeta(cc.server.ID, cc.channel.ID, actor.ID),
		Nick:      nick,
	}
	s.fanOutChannel(cc.channel.ID, ev)
	return nil, nil
}

// loadChannelMessage loads a live message and verifies it belongs to the
// channel. Deleted or foreign messages look missing.
func (s *chatService) loadChannelMessage(ctx context.Context, channelID domain.ChannelID, id domain.MessageID) (*domain.Message, error) {
	msg, err := s.repos.Messages().GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if msg.ChannelID != channelID || msg.Deleted {
		return nil, domain.ErrMessageNotFound
	}
	return msg, nil
}
