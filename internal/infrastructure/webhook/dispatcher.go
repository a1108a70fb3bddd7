package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	"parley/pkg/batch"
	"parley/pkg/circuitbreaker"
	"parley/pkg/retry"

	"go.uber.org/zap"
)

const (
	defaultBatchSize     = 20
	defaultBatchInterval = 2 * time.Second
	requestTimeout       = 10 * time.Second
)

// payload is one delivered event as the receiving endpoint sees it. POST
// bodies are JSON arrays of these, so an endpoint gets at most one request
// per flush interval regardless of event volume.
type payload struct {
	Event     string       `json:"event"`
	ServerID  string       `json:"server_id,omitempty"`
	ChannelID string       `json:"channel_id,omitempty"`
	Actor     string       `json:"actor,omitempty"`
	Time      time.Time    `json:"time"`
	Data      domain.Event `json:"data"`
}

// delivery is one event bound for one webhook endpoint.
type delivery struct {
	webhook *domain.Webhook
	body    payload
}

func (d *delivery) Execute(ctx context.Context) error { return nil } // dispatched in batches

// Dispatcher is an EventSink that forwards matching broadcast events to the
// registered webhook endpoints. Deliveries are batched per endpoint, retried
// with backoff, and cut off by a per-endpoint circuit breaker so one dead
// endpoint cannot slow the rest down.
type Dispatcher struct {
	webhooks ports.WebhookRepository
	client   *http.Client
	batcher  *batch.Batcher
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	breakers map[domain.WebhookID]*circuitbreaker.CircuitBreaker
}

func NewDispatcher(webhooks ports.WebhookRepository, logger *zap.SugaredLogger) *Dispatcher {
	d := &Dispatcher{
		webhooks: webhooks,
		client:   &http.Client{Timeout: requestTimeout},
		logger:   logger,
		breakers: make(map[domain.WebhookID]*circuitbreaker.CircuitBreaker),
	}
	d.batcher = batch.NewBatcher(defaultBatchSize, defaultBatchInterval, d)
	return d
}

func (d *Dispatcher) Name() string { return "webhook_dispatcher" }

// Deliver queues the event for every webhook whose scope and event filter
// match. Reply events carry no server scope and are skipped.
func (d *Dispatcher) Deliver(ctx context.Context, event domain.Event) error {
	meta := event.Meta()
	if meta.ServerID == "" {
		return nil
	}

	hooks, err := d.webhooks.ListByServer(ctx, meta.ServerID)
	if err != nil {
		return fmt.Errorf("failed to list webhooks: %w", err)
	}

	name := event.EventName()
	for _, hook := range hooks {
		if !hook.Matches(meta.ServerID, meta.ChannelID, name) {
			continue
		}
		d.batcher.Add(&delivery{
			webhook: hook,
			body: payload{
				Event:     name,
				ServerID:  string(meta.ServerID),
				ChannelID: string(meta.ChannelID),
				Actor:     string(meta.Actor),
				Time:      meta.Time,
				Data:      event,
			},
		})
	}
	return nil
}

// ProcessBatch groups pending deliveries by endpoint and posts each group as
// one JSON array.
func (d *Dispatcher) ProcessBatch(ctx context.Context, operations []batch.Operation) error {
	groups := make(map[domain.WebhookID][]*delivery)
	for _, op := range operations {
		del, ok := op.(*delivery)
		if !ok {
			continue
		}
		groups[del.webhook.ID] = append(groups[del.webhook.ID], del)
	}

	var wg sync.WaitGroup
	for _, group := range groups {
		wg.Add(1)
		go func(group []*delivery) {
			defer wg.Done()
			d.post(ctx, group)
		}(group)
	}
	wg.Wait()
	return nil
}

func (d *Dispatcher) post(ctx context.Context, group []*delivery) {
	hook := group[0].webhook
	bodies := make([]payload, len(group))
	for i, del := range group {
		bodies[i] = del.body
	}

	data, err := json.Marshal(bodies)
	if err != nil {
		d.logger.Errorw("failed to marshal webhook batch", "webhook", hook.ID, "error", err)
		return
	}

	breaker := d.breakerFor(hook.ID)
	err = breaker.Execute(ctx, func() error {
		return retry.Retry(ctx, retryConfig(), func() error {
			return d.send(ctx, hook, data)
		})
	})
	if err != nil {
		d.logger.Warnw("webhook delivery failed",
			"webhook", hook.ID,
			"url", hook.URL,
			"events", len(group),
			"error", err,
		)
	}
}

func (d *Dispatcher) send(ctx context.Context, hook *domain.Webhook, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if hook.Token != "" {
		req.Header.Set("Authorization", "Bearer "+hook.Token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) breakerFor(id domain.WebhookID) *circuitbreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	if breaker, ok := d.breakers[id]; ok {
		return breaker
	}
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig())
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		d.logger.Warnw("webhook circuit state changed",
			"webhook", id,
			"from", from.String(),
			"to", to.String(),
		)
	})
	d.breakers[id] = breaker
	return breaker
}

// Stop flushes pending deliveries.
func (d *Dispatcher) Stop() {
	d.batcher.Stop()
}

func retryConfig() retry.Config {
	return retry.Config{
		Enabled:      true,
		MaxAttempts:  2,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}
