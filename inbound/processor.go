package inbound

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-delivery/core"
)

// Handler executes the business reaction to one accepted incoming event.
type Handler interface {
	Handle(ctx context.Context, event core.IncomingEvent) error
}

type HandlerFunc func(ctx context.Context, event core.IncomingEvent) error

func (f HandlerFunc) Handle(ctx context.Context, event core.IncomingEvent) error {
	return f(ctx, event)
}

// Processor drives one event through received -> processing -> processed,
// recording the error message on failure. The processing claim is a
// compare-and-set, so two workers racing for the same event run the handler
// once.
type Processor struct {
	Store   core.IncomingEventStore
	Handler Handler
	Logger  core.Logger
	Metrics core.MetricsRecorder
	Now     func() time.Time
}

func NewProcessor(store core.IncomingEventStore, handler Handler) (*Processor, error) {
	if store == nil {
		return nil, fmt.Errorf("inbound: incoming event store is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("inbound: handler is required")
	}
	return &Processor{
		Store:   store,
		Handler: handler,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Process runs the handler for one event. It returns false without error
// when another worker already owns the event.
func (p *Processor) Process(ctx context.Context, event core.IncomingEvent) (bool, error) {
	if p == nil || p.Store == nil || p.Handler == nil {
		return false, fmt.Errorf("inbound: processor is not configured")
	}
	id := strings.TrimSpace(event.ID)
	if id == "" {
		return false, core.NewBadInputError("inbound: event id is required")
	}

	owned, err := p.Store.MarkProcessing(ctx, id)
	if err != nil {
		return false, err
	}
	if !owned {
		return false, nil
	}

	if err := p.Handler.Handle(ctx, event); err != nil {
		if markErr := p.Store.MarkError(ctx, id, err.Error()); markErr != nil {
			return true, fmt.Errorf("inbound: record handler failure: %w", markErr)
		}
		if p.Logger != nil {
			p.Logger.WithContext(ctx).Error(
				"incoming event processing failed",
				"source", event.Source,
				"event_id", event.EventID,
				"error", err.Error(),
			)
		}
		p.observe(ctx, "delivery.inbound.errored", event.Source)
		return true, err
	}

	if err := p.Store.MarkProcessed(ctx, id, p.now()); err != nil {
		return true, err
	}
	p.observe(ctx, "delivery.inbound.processed", event.Source)
	return true, nil
}

// Retry returns an errored event to received and immediately re-runs it.
func (p *Processor) Retry(ctx context.Context, source string, eventID string) error {
	if p == nil || p.Store == nil {
		return fmt.Errorf("inbound: processor is not configured")
	}
	event, err := p.Store.Get(ctx, source, eventID)
	if err != nil {
		return err
	}
	if event.Status != core.IncomingStatusError {
		return core.NewBadInputError(fmt.Sprintf(
			"inbound: event %q is %s, only errored events can be retried",
			eventID,
			event.Status,
		))
	}
	if err := p.Store.Reset(ctx, event.ID); err != nil {
		return err
	}
	event.Status = core.IncomingStatusReceived
	_, err = p.Process(ctx, event)
	return err
}

func (p *Processor) observe(ctx context.Context, name string, source string) {
	if p == nil || p.Metrics == nil {
		return
	}
	p.Metrics.IncCounter(ctx, name, 1, map[string]string{"source": source})
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}
