package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const relayChannel = "parley:events"

// envelope wraps one engine event for the wire between instances. The
// instance id suppresses echo: an instance never re-applies its own events.
type envelope struct {
	InstanceID string          `json:"instance_id"`
	Event      string          `json:"event"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
}

// EventRelay is an EventSink that mirrors every broadcast event onto Redis
// pub/sub and replays other instances' events into the local registry, so a
// channel's subscribers see the same stream no matter which instance their
// connection landed on.
type EventRelay struct {
	client     *redis.Client
	registry   ports.Registry
	instanceID string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
}

func NewEventRelay(client *redis.Client, registry ports.Registry, instanceID string, logger *zap.SugaredLogger) *EventRelay {
	return &EventRelay{
		client:     client,
		registry:   registry,
		instanceID: instanceID,
		logger:     logger,
	}
}

func (r *EventRelay) Name() string { return "event_relay" }

// Deliver publishes the event for the other instances.
func (r *EventRelay) Deliver(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	env := envelope{
		InstanceID: r.instanceID,
		Event:      event.EventName(),
		Timestamp:  time.Now().UTC(),
		Payload:    payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := r.client.Publish(ctx, relayChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Start subscribes and replays remote events until the context ends.
func (r *EventRelay) Start(ctx context.Context) {
	r.pubsub = r.client.Subscribe(ctx, relayChannel)
	go r.receiveLoop(ctx)
	r.logger.Infow("event relay started",
		"instance_id", r.instanceID,
		"channel", relayChannel,
	)
}

func (r *EventRelay) Stop() {
	if r.pubsub != nil {
		r.pubsub.Close()
	}
}

func (r *EventRelay) receiveLoop(ctx context.Context) {
	ch := r.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handleMessage(msg.Payload)
		}
	}
}

func (r *EventRelay) handleMessage(data string) {
	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		r.logger.Warnw("failed to unmarshal relayed envelope", "error", err)
		return
	}
	if env.InstanceID == r.instanceID {
		return // our own publication
	}

	event, err := decodeEvent(env.Event, env.Payload)
	if err != nil {
		r.logger.Warnw("failed to decode relayed event",
			"event", env.Event,
			"error", err,
		)
		return
	}

	meta := event.Meta()
	if meta.ChannelID != "" {
		r.registry.Broadcast(meta.ChannelID, event)
	} else if meta.ServerID != "" {
		r.registry.BroadcastServer(meta.ServerID, event)
	}
}

// decodeEvent rebuilds the concrete event variant from its wire name. Reply
// events never cross instances, so only broadcast variants appear here.
func decodeEvent(name string, payload json.RawMessage) (domain.Event, error) {
	var event domain.Event
	switch name {
	case domain.MessageCreated{}.EventName():
		e := domain.MessageCreated{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.MessageEdited{}.EventName():
		e := domain.MessageEdited{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.MessageDeleted{}.EventName():
		e := domain.MessageDeleted{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.TypingStarted{}.EventName():
		e := domain.TypingStarted{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.TypingStopped{}.EventName():
		e := domain.TypingStopped{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.ChannelCreated{}.EventName():
		e := domain.ChannelCreated{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.ChannelDeleted{}.EventName():
		e := domain.ChannelDeleted{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.ChannelArchived{}.EventName():
		e := domain.ChannelArchived{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.ChannelUnarchived{}.EventName():
		e := domain.ChannelUnarchived{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.TopicChanged{}.EventName():
		e := domain.TopicChanged{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.SlowModeChanged{}.EventName():
		e := domain.SlowModeChanged{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.ChannelPermissionsChanged{}.EventName():
		e := domain.ChannelPermissionsChanged{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.MemberJoined{}.EventName():
		e := domain.MemberJoined{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.MemberParted{}.EventName():
		e := domain.MemberParted{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.MemberKicked{}.EventName():
		e := domain.MemberKicked{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.MemberBanned{}.EventName():
		e := domain.MemberBanned{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.MemberUnbanned{}.EventName():
		e := domain.MemberUnbanned{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.MemberInvited{}.EventName():
		e := domain.MemberInvited{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.MemberUpdated{}.EventName():
		e := domain.MemberUpdated{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.NickChanged{}.EventName():
		e := domain.NickChanged{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.PresenceChanged{}.EventName():
		e := domain.PresenceChanged{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.RoleCreated{}.EventName():
		e := domain.RoleCreated{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.RoleUpdated{}.EventName():
		e := domain.RoleUpdated{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.RoleDeleted{}.EventName():
		e := domain.RoleDeleted{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.ServerCreated{}.EventName():
		e := domain.ServerCreated{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	case domain.ServerDeleted{}.EventName():
		e := domain.ServerDeleted{}
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		event = e
	default:
		return nil, fmt.Errorf("unknown event %q", name)
	}
	return event, nil
}
