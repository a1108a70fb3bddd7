package reliability

import (
	"context"
	"errors"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	"parley/pkg/circuitbreaker"
	"parley/pkg/retry"

	"go.uber.org/zap"
)

// MessageStoreGuard wraps a MessageRepository with a circuit breaker and,
// for idempotent reads, retry with backoff. Message history is the hottest
// storage path; when the backend degrades the breaker fails sends fast
// instead of letting every send block on a dead connection.
type MessageStoreGuard struct {
	inner   ports.MessageRepository
	breaker *circuitbreaker.CircuitBreaker
	retry   retry.Config
	logger  *zap.SugaredLogger
}

func NewMessageStoreGuard(inner ports.MessageRepository, logger *zap.SugaredLogger) *MessageStoreGuard {
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = 2
	retryCfg.InitialDelay = 50 * time.Millisecond
	retryCfg.NonRetryableErrors = []error{
		domain.ErrMessageNotFound,
		domain.ErrChannelNotFound,
	}

	guard := &MessageStoreGuard{
		inner:   inner,
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retry:   retryCfg,
		logger:  logger,
	}
	guard.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		if logger != nil {
			logger.Warnw("message store circuit state changed",
				"from", from.String(),
				"to", to.String(),
			)
		}
	})
	return guard
}

// isNotFound filters sentinel misses out of the breaker's failure count; a
// burst of lookups for unknown ids must not open the circuit.
func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrMessageNotFound) || errors.Is(err, domain.ErrChannelNotFound)
}

// guarded runs op through the breaker, reporting only real storage faults
// as breaker failures. The op's own error is returned unwrapped so domain
// sentinels stay matchable upstream.
func (g *MessageStoreGuard) guarded(ctx context.Context, op func() error) error {
	var opErr error
	err := g.breaker.Execute(ctx, func() error {
		opErr = op()
		if isNotFound(opErr) {
			return nil
		}
		return opErr
	})
	if err != nil && opErr == nil {
		// Rejected by an open circuit before the op ran.
		return err
	}
	return opErr
}

func (g *MessageStoreGuard) Save(ctx context.Context, msg *domain.Message) error {
	return g.guarded(ctx, func() error {
		return g.inner.Save(ctx, msg)
	})
}

func (g *MessageStoreGuard) GetByID(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	var msg *domain.Message
	err := g.guarded(ctx, func() error {
		return retry.Retry(ctx, g.retry, func() error {
			var err error
			msg, err = g.inner.GetByID(ctx, id)
			return err
		})
	})
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

func (g *MessageStoreGuard) Update(ctx context.Context, msg *domain.Message) error {
	return g.guarded(ctx, func() error {
		if err := g.inner.Update(ctx, msg); err != nil {
			if isNotFound(err) {
				return domain.ErrMessageNotFound
			}
			return err
		}
		return nil
	})
}

func (g *MessageStoreGuard) ListBefore(ctx context.Context, channelID domain.ChannelID, before domain.MessageID, limit int) ([]*domain.Message, error) {
	var msgs []*domain.Message
	err := g.guarded(ctx, func() error {
		return retry.Retry(ctx, g.retry, func() error {
			var err error
			msgs, err = g.inner.ListBefore(ctx, channelID, before, limit)
			return err
		})
	})
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return msgs, nil
}

func (g *MessageStoreGuard) DeleteByChannel(ctx context.Context, channelID domain.ChannelID) error {
	return g.guarded(ctx, func() error {
		return g.inner.DeleteByChannel(ctx, channelID)
	})
}
