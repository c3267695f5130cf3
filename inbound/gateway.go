package inbound

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-delivery/core"
	"github.com/google/uuid"
)

// SecretResolver returns the shared signing secret for a webhook source.
type SecretResolver interface {
	SecretForSource(ctx context.Context, source string) (string, error)
}

// StaticSecrets resolves sources from a fixed map.
type StaticSecrets map[string]string

func (s StaticSecrets) SecretForSource(_ context.Context, source string) (string, error) {
	secret, ok := s[strings.TrimSpace(source)]
	if !ok || strings.TrimSpace(secret) == "" {
		return "", core.NewBadInputError(fmt.Sprintf("inbound: unknown webhook source %q", source))
	}
	return secret, nil
}

// Handoff receives newly accepted events for asynchronous processing. The
// gateway never blocks the provider response on it.
type Handoff func(ctx context.Context, event core.IncomingEvent)

type Request struct {
	Source          string
	EventID         string
	Payload         []byte
	SignatureHeader string
}

type Result struct {
	StatusCode int
	Duplicate  bool
	Event      core.IncomingEvent
}

// Gateway accepts provider webhooks. Verification happens before anything is
// persisted; the durable (source, event_id) insert is the dedup gate.
type Gateway struct {
	Store    core.IncomingEventStore
	Secrets  SecretResolver
	Verifier *core.SignatureEngine
	Handoff  Handoff

	Logger  core.Logger
	Metrics core.MetricsRecorder
	Now     func() time.Time
}

func NewGateway(store core.IncomingEventStore, secrets SecretResolver) (*Gateway, error) {
	if store == nil {
		return nil, fmt.Errorf("inbound: incoming event store is required")
	}
	if secrets == nil {
		return nil, fmt.Errorf("inbound: secret resolver is required")
	}
	return &Gateway{
		Store:    store,
		Secrets:  secrets,
		Verifier: core.NewSignatureEngine(0),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (g *Gateway) Receive(ctx context.Context, req Request) (Result, error) {
	if g == nil || g.Store == nil || g.Secrets == nil {
		return Result{}, fmt.Errorf("inbound: gateway is not configured")
	}
	source := strings.TrimSpace(req.Source)
	eventID := strings.TrimSpace(req.EventID)
	if source == "" {
		return Result{StatusCode: http.StatusBadRequest},
			core.NewBadInputError("inbound: webhook source is required")
	}
	if eventID == "" {
		return Result{StatusCode: http.StatusBadRequest},
			core.NewBadInputError("inbound: event id is required")
	}

	secret, err := g.Secrets.SecretForSource(ctx, source)
	if err != nil {
		return Result{StatusCode: http.StatusBadRequest}, err
	}
	verifier := g.Verifier
	if verifier == nil {
		verifier = core.NewSignatureEngine(0)
	}
	if err := verifier.Verify(req.SignatureHeader, req.Payload, secret); err != nil {
		g.observe(ctx, "delivery.inbound.rejected", source)
		if g.Logger != nil {
			g.Logger.WithContext(ctx).Warn(
				"webhook rejected, signature verification failed",
				"source", source,
				"event_id", eventID,
			)
		}
		return Result{StatusCode: http.StatusBadRequest}, err
	}

	event, inserted, err := g.Store.Insert(ctx, core.IncomingEvent{
		ID:      uuid.NewString(),
		Source:  source,
		EventID: eventID,
		Payload: append([]byte(nil), req.Payload...),
		Status:  core.IncomingStatusReceived,
	})
	if err != nil {
		return Result{StatusCode: http.StatusInternalServerError}, err
	}
	if !inserted {
		// Provider retry of an event already on file: acknowledge without
		// re-entering processing.
		g.observe(ctx, "delivery.inbound.deduped", source)
		return Result{StatusCode: http.StatusOK, Duplicate: true, Event: event}, nil
	}

	g.observe(ctx, "delivery.inbound.accepted", source)
	if g.Handoff != nil {
		g.Handoff(ctx, event)
	}
	return Result{StatusCode: http.StatusOK, Event: event}, nil
}

func (g *Gateway) observe(ctx context.Context, name string, source string) {
	if g == nil || g.Metrics == nil {
		return
	}
	g.Metrics.IncCounter(ctx, name, 1, map[string]string{"source": source})
}
