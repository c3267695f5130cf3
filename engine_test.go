package delivery

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-delivery/core"
	"github.com/goliatone/go-delivery/inbound"
)

type stubStores struct {
	enqueued       []core.WebhookDelivery
	cancelled      []string
	requeued       []string
	endpoints      map[string]core.WebhookEndpoint
	insertedEvents []core.IncomingEvent
}

func newStubStores() *stubStores {
	return &stubStores{endpoints: map[string]core.WebhookEndpoint{}}
}

func (s *stubStores) IdempotencyStore() core.IdempotencyStore    { return stubIdempotencyStore{} }
func (s *stubStores) EndpointStore() core.EndpointStore          { return (*stubEngineEndpointStore)(s) }
func (s *stubStores) DeliveryStore() core.DeliveryStore          { return (*stubEngineDeliveryStore)(s) }
func (s *stubStores) IncomingEventStore() core.IncomingEventStore {
	return (*stubEngineIncomingStore)(s)
}

var _ core.StoreProvider = (*stubStores)(nil)

type stubIdempotencyStore struct{}

func (stubIdempotencyStore) InsertLocked(_ context.Context, record core.IdempotencyRecord) (core.IdempotencyRecord, bool, error) {
	return record, true, nil
}

func (stubIdempotencyStore) StealLock(context.Context, core.IdempotencyScope, string, time.Time, string) (core.IdempotencyRecord, bool, error) {
	return core.IdempotencyRecord{}, false, nil
}

func (stubIdempotencyStore) Complete(context.Context, string, core.CachedResponse) error { return nil }
func (stubIdempotencyStore) Release(context.Context, string) error                       { return nil }

func (stubIdempotencyStore) Get(context.Context, core.IdempotencyScope, string) (core.IdempotencyRecord, error) {
	return core.IdempotencyRecord{}, core.NewNotFoundError("not found")
}

func (stubIdempotencyStore) PurgeExpired(context.Context, time.Time) (int, error) { return 0, nil }

type stubEngineEndpointStore stubStores

func (s *stubEngineEndpointStore) Create(_ context.Context, input core.CreateEndpointInput) (core.WebhookEndpoint, error) {
	endpoint := core.WebhookEndpoint{
		ID:         "ep_" + input.URL,
		OwnerID:    input.OwnerID,
		URL:        input.URL,
		Secret:     "whsec_new",
		EventTypes: input.EventTypes,
		Wildcard:   input.Wildcard,
		Enabled:    true,
	}
	s.endpoints[endpoint.ID] = endpoint
	return endpoint, nil
}

func (s *stubEngineEndpointStore) Get(_ context.Context, id string) (core.WebhookEndpoint, error) {
	endpoint, ok := s.endpoints[id]
	if !ok {
		return core.WebhookEndpoint{}, core.NewNotFoundError("endpoint not found")
	}
	endpoint.Secret = ""
	return endpoint, nil
}

func (s *stubEngineEndpointStore) GetWithSecret(_ context.Context, id string) (core.WebhookEndpoint, error) {
	endpoint, ok := s.endpoints[id]
	if !ok {
		return core.WebhookEndpoint{}, core.NewNotFoundError("endpoint not found")
	}
	return endpoint, nil
}

func (s *stubEngineEndpointStore) ListEnabled(context.Context) ([]core.WebhookEndpoint, error) {
	var out []core.WebhookEndpoint
	for _, endpoint := range s.endpoints {
		if endpoint.Enabled {
			out = append(out, endpoint)
		}
	}
	return out, nil
}

func (s *stubEngineEndpointStore) SetEnabled(_ context.Context, id string, enabled bool) error {
	endpoint, ok := s.endpoints[id]
	if !ok {
		return core.NewNotFoundError("endpoint not found")
	}
	endpoint.Enabled = enabled
	s.endpoints[id] = endpoint
	return nil
}

func (s *stubEngineEndpointStore) RotateSecret(_ context.Context, id string) (core.WebhookEndpoint, error) {
	endpoint, ok := s.endpoints[id]
	if !ok {
		return core.WebhookEndpoint{}, core.NewNotFoundError("endpoint not found")
	}
	endpoint.Secret = "whsec_rotated"
	s.endpoints[id] = endpoint
	return endpoint, nil
}

type stubEngineDeliveryStore stubStores

func (s *stubEngineDeliveryStore) Enqueue(_ context.Context, deliveries []core.WebhookDelivery) error {
	s.enqueued = append(s.enqueued, deliveries...)
	return nil
}

func (s *stubEngineDeliveryStore) ClaimDue(context.Context, int, time.Time) ([]core.WebhookDelivery, error) {
	return nil, nil
}

func (s *stubEngineDeliveryStore) ReleaseClaim(context.Context, string) error { return nil }

func (s *stubEngineDeliveryStore) MarkDelivered(context.Context, string, core.AttemptResult) error {
	return nil
}

func (s *stubEngineDeliveryStore) MarkRetry(context.Context, string, core.AttemptResult, time.Time) error {
	return nil
}

func (s *stubEngineDeliveryStore) MarkExhausted(context.Context, string, core.AttemptResult) error {
	return nil
}

func (s *stubEngineDeliveryStore) Cancel(_ context.Context, id string) error {
	s.cancelled = append(s.cancelled, id)
	return nil
}

func (s *stubEngineDeliveryStore) Get(_ context.Context, id string) (core.WebhookDelivery, error) {
	return core.WebhookDelivery{ID: id, Status: core.DeliveryStatusPending}, nil
}

func (s *stubEngineDeliveryStore) ListExhausted(context.Context, int) ([]core.WebhookDelivery, error) {
	return nil, nil
}

func (s *stubEngineDeliveryStore) Requeue(_ context.Context, id string, _ time.Time) error {
	s.requeued = append(s.requeued, id)
	return nil
}

type stubEngineIncomingStore stubStores

func (s *stubEngineIncomingStore) Insert(_ context.Context, event core.IncomingEvent) (core.IncomingEvent, bool, error) {
	for _, existing := range s.insertedEvents {
		if existing.Source == event.Source && existing.EventID == event.EventID {
			return existing, false, nil
		}
	}
	event.Status = core.IncomingStatusReceived
	s.insertedEvents = append(s.insertedEvents, event)
	return event, true, nil
}

func (s *stubEngineIncomingStore) MarkProcessing(context.Context, string) (bool, error) {
	return true, nil
}

func (s *stubEngineIncomingStore) MarkProcessed(context.Context, string, time.Time) error { return nil }
func (s *stubEngineIncomingStore) MarkError(context.Context, string, string) error        { return nil }

func (s *stubEngineIncomingStore) Get(_ context.Context, source string, eventID string) (core.IncomingEvent, error) {
	for _, existing := range s.insertedEvents {
		if existing.Source == source && existing.EventID == eventID {
			return existing, nil
		}
	}
	return core.IncomingEvent{}, core.NewNotFoundError("incoming event not found")
}

func (s *stubEngineIncomingStore) ListErrors(context.Context, int) ([]core.IncomingEvent, error) {
	return nil, nil
}

func (s *stubEngineIncomingStore) Reset(context.Context, string) error { return nil }

func newTestEngine(t *testing.T, stores *stubStores, options ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithIdempotencyStore(stores.IdempotencyStore()),
		WithEndpointStore(stores.EndpointStore()),
		WithDeliveryStore(stores.DeliveryStore()),
		WithIncomingEventStore(stores.IncomingEventStore()),
	}
	engine, err := NewEngine(DefaultConfig(), append(base, options...)...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestNewEngine_WiresPipelinesFromStores(t *testing.T) {
	stores := newStubStores()
	engine := newTestEngine(t, stores,
		WithIncomingSecrets(inbound.StaticSecrets{"stripe": "whsec_in"}),
		WithIncomingHandler(inbound.HandlerFunc(func(context.Context, core.IncomingEvent) error {
			return nil
		})),
	)

	if engine.Gate() == nil {
		t.Fatalf("expected idempotency gate")
	}
	if engine.Publisher() == nil || engine.Scheduler() == nil {
		t.Fatalf("expected outbound pipeline")
	}
	if engine.Gateway() == nil || engine.Processor() == nil {
		t.Fatalf("expected inbound pipeline")
	}
	if engine.Config().ServiceName != "delivery" {
		t.Fatalf("unexpected service name %q", engine.Config().ServiceName)
	}
}

func TestNewEngine_RuntimeConfigOverridesDefaults(t *testing.T) {
	stores := newStubStores()
	cfg := DefaultConfig()
	cfg.Worker.PoolSize = 8
	cfg.Idempotency.TTL = time.Hour

	engine, err := NewEngine(cfg,
		WithIdempotencyStore(stores.IdempotencyStore()),
		WithEndpointStore(stores.EndpointStore()),
		WithDeliveryStore(stores.DeliveryStore()),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if engine.Scheduler().PoolSize != 8 {
		t.Fatalf("expected pool size 8, got %d", engine.Scheduler().PoolSize)
	}
	if engine.Gate().TTL != time.Hour {
		t.Fatalf("expected 1h idempotency ttl, got %s", engine.Gate().TTL)
	}
}

func TestNewEngine_ResolvesStoresFromProvider(t *testing.T) {
	stores := newStubStores()
	engine, err := NewEngine(DefaultConfig(), WithRepositoryFactory(stores))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	deps := engine.Dependencies()
	if deps.IdempotencyStore == nil || deps.EndpointStore == nil {
		t.Fatalf("expected stores resolved from provider")
	}
	if deps.DeliveryStore == nil || deps.IncomingStore == nil {
		t.Fatalf("expected delivery and incoming stores resolved from provider")
	}
}

func TestNewEngine_RejectsUnknownRepositoryFactory(t *testing.T) {
	_, err := NewEngine(DefaultConfig(), WithRepositoryFactory(struct{}{}))
	if err == nil {
		t.Fatalf("expected unknown factory error")
	}
	if !strings.Contains(err.Error(), "store factory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEngine_PublishEventFansOut(t *testing.T) {
	stores := newStubStores()
	engine := newTestEngine(t, stores)

	endpoint, err := engine.RegisterEndpoint(context.Background(), core.CreateEndpointInput{
		OwnerID:    "org_1",
		URL:        "https://example.com/hooks",
		EventTypes: []string{"invoice.paid"},
	})
	if err != nil {
		t.Fatalf("register endpoint: %v", err)
	}
	if endpoint.Secret == "" {
		t.Fatalf("expected creation to return the secret once")
	}

	deliveries, err := engine.PublishEvent(context.Background(), core.Event{Type: "invoice.paid"})
	if err != nil {
		t.Fatalf("publish event: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected one delivery, got %d", len(deliveries))
	}
	if len(stores.enqueued) != 1 || stores.enqueued[0].EndpointID != endpoint.ID {
		t.Fatalf("expected delivery enqueued for endpoint, got %#v", stores.enqueued)
	}
}

func TestEngine_ReceiveRequiresGateway(t *testing.T) {
	stores := newStubStores()
	engine := newTestEngine(t, stores)

	_, err := engine.Receive(context.Background(), inbound.Request{Source: "stripe", EventID: "evt_1"})
	if err == nil {
		t.Fatalf("expected gateway not configured error")
	}
}

func TestEngine_DeliveryOperationsDelegate(t *testing.T) {
	stores := newStubStores()
	engine := newTestEngine(t, stores)

	if err := engine.CancelDelivery(context.Background(), "d_1"); err != nil {
		t.Fatalf("cancel delivery: %v", err)
	}
	if err := engine.RequeueDelivery(context.Background(), "d_2"); err != nil {
		t.Fatalf("requeue delivery: %v", err)
	}
	if len(stores.cancelled) != 1 || stores.cancelled[0] != "d_1" {
		t.Fatalf("expected cancel delegation, got %#v", stores.cancelled)
	}
	if len(stores.requeued) != 1 || stores.requeued[0] != "d_2" {
		t.Fatalf("expected requeue delegation, got %#v", stores.requeued)
	}
}

type recordingLogger struct {
	name  string
	infos []string
}

func (l *recordingLogger) Trace(string, ...any) {}
func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}
func (l *recordingLogger) Fatal(string, ...any) {}

func (l *recordingLogger) Info(msg string, _ ...any) {
	l.infos = append(l.infos, msg)
}

func (l *recordingLogger) WithContext(context.Context) core.Logger { return l }

type recordingLoggerProvider struct {
	loggers map[string]*recordingLogger
}

func (p *recordingLoggerProvider) GetLogger(name string) core.Logger {
	if logger, ok := p.loggers[name]; ok {
		return logger
	}
	return nil
}

func TestEngine_LoggerResolvesToProviderNamedLogger(t *testing.T) {
	named := &recordingLogger{name: "delivery"}
	provider := &recordingLoggerProvider{
		loggers: map[string]*recordingLogger{"delivery": named},
	}
	stores := newStubStores()
	engine := newTestEngine(t, stores, WithLoggerProvider(provider))

	deps := engine.Dependencies()
	if deps.Logger == nil {
		t.Fatalf("expected resolved logger")
	}
	deps.Logger.Info("resolution check")
	if len(named.infos) != 1 || named.infos[0] != "resolution check" {
		t.Fatalf("expected log routed to the provider's named logger, got %#v", named.infos)
	}
}

func TestEngine_JobLoggingBridgesResolvedStack(t *testing.T) {
	named := &recordingLogger{name: "delivery"}
	provider := &recordingLoggerProvider{
		loggers: map[string]*recordingLogger{"delivery": named},
	}
	stores := newStubStores()
	engine := newTestEngine(t, stores, WithLoggerProvider(provider))

	jobProvider, jobLogger := engine.JobLogging()
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logging bridges")
	}
	jobLogger.Info("worker start")
	if len(named.infos) != 1 || named.infos[0] != "worker start" {
		t.Fatalf("expected bridged log routed to the named logger, got %#v", named.infos)
	}
}
