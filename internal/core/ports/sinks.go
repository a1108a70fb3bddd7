package ports

import (
	"context"

	"parley/internal/core/domain"
)

// EventSink receives every broadcast event the engine produces, decoupled
// from live connections. Delivery runs off the command path; a failing sink
// never fails the command that produced the event.
type EventSink interface {
	Name() string
	Deliver(ctx context.Context, event domain.Event) error
}
