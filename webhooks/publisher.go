package webhooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-delivery/core"
	"github.com/google/uuid"
)

// Publisher fans an event out to every enabled endpoint subscribed to its
// type. One delivery row is enqueued per matching endpoint; an event with no
// subscribers is a no-op, not an error.
type Publisher struct {
	Endpoints  core.EndpointStore
	Deliveries core.DeliveryStore
	Logger     core.Logger
	Metrics    core.MetricsRecorder
	Now        func() time.Time
}

func NewPublisher(endpoints core.EndpointStore, deliveries core.DeliveryStore) (*Publisher, error) {
	if endpoints == nil {
		return nil, fmt.Errorf("webhooks: endpoint store is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("webhooks: delivery store is required")
	}
	return &Publisher{
		Endpoints:  endpoints,
		Deliveries: deliveries,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, event core.Event) ([]core.WebhookDelivery, error) {
	if p == nil || p.Endpoints == nil || p.Deliveries == nil {
		return nil, fmt.Errorf("webhooks: publisher is not configured")
	}
	eventType := strings.TrimSpace(event.Type)
	if eventType == "" {
		return nil, core.NewBadInputError("webhooks: event type is required")
	}
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		eventID = uuid.NewString()
	}

	endpoints, err := p.Endpoints.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	now := p.now()
	deliveries := make([]core.WebhookDelivery, 0, len(endpoints))
	for _, endpoint := range endpoints {
		if !core.MatchesEvent(endpoint, eventType) {
			continue
		}
		deliveries = append(deliveries, core.WebhookDelivery{
			ID:            uuid.NewString(),
			EndpointID:    endpoint.ID,
			EventID:       eventID,
			EventType:     eventType,
			Payload:       append([]byte(nil), event.Payload...),
			Status:        core.DeliveryStatusPending,
			NextAttemptAt: &now,
		})
	}
	if len(deliveries) == 0 {
		p.observe(ctx, "delivery.publish.unmatched", 1)
		return nil, nil
	}
	if err := p.Deliveries.Enqueue(ctx, deliveries); err != nil {
		return nil, err
	}

	if p.Logger != nil {
		p.Logger.WithContext(ctx).Debug(
			"event fanned out",
			"event_id", eventID,
			"event_type", eventType,
			"deliveries", len(deliveries),
		)
	}
	p.observe(ctx, "delivery.publish.enqueued", int64(len(deliveries)))
	return deliveries, nil
}

func (p *Publisher) observe(ctx context.Context, name string, value int64) {
	if p == nil || p.Metrics == nil {
		return
	}
	p.Metrics.IncCounter(ctx, name, value, nil)
}

func (p *Publisher) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}
