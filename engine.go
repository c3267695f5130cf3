package delivery

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goliatone/go-delivery/adapters/gologger"
	"github.com/goliatone/go-delivery/core"
	"github.com/goliatone/go-delivery/inbound"
	"github.com/goliatone/go-delivery/ratelimit"
	"github.com/goliatone/go-delivery/webhooks"

	goerrors "github.com/goliatone/go-errors"
	job "github.com/goliatone/go-job"
)

// loggerName scopes every engine logger under one component name.
const loggerName = "delivery"

type ErrorMapper func(err error) *goerrors.Error

// StoreFactory builds the persistence surface from a persistence client.
// *sqlstore.RepositoryFactory satisfies it; custom backends can too.
type StoreFactory interface {
	BuildStores(persistenceClient any) (core.StoreProvider, error)
}

type engineBuilder struct {
	runtimeConfig     Config
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	metricsRecorder   core.MetricsRecorder
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver

	idempotencyStore core.IdempotencyStore
	endpointStore    core.EndpointStore
	deliveryStore    core.DeliveryStore
	incomingStore    core.IncomingEventStore

	httpClient      *http.Client
	sender          webhooks.Sender
	retryPolicy     webhooks.RetryPolicy
	throttlePolicy  *ratelimit.AdaptivePolicy
	incomingSecrets inbound.SecretResolver
	incomingHandler inbound.Handler
	incomingHandoff inbound.Handoff
}

type Option func(*engineBuilder)

func WithLogger(logger core.Logger) Option {
	return func(b *engineBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *engineBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *engineBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *engineBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *engineBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *engineBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *engineBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *engineBuilder) {
		b.optionsResolver = resolver
	}
}

func WithIdempotencyStore(store core.IdempotencyStore) Option {
	return func(b *engineBuilder) {
		b.idempotencyStore = store
	}
}

func WithEndpointStore(store core.EndpointStore) Option {
	return func(b *engineBuilder) {
		b.endpointStore = store
	}
}

func WithDeliveryStore(store core.DeliveryStore) Option {
	return func(b *engineBuilder) {
		b.deliveryStore = store
	}
}

func WithIncomingEventStore(store core.IncomingEventStore) Option {
	return func(b *engineBuilder) {
		b.incomingStore = store
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(b *engineBuilder) {
		b.httpClient = client
	}
}

func WithSender(sender webhooks.Sender) Option {
	return func(b *engineBuilder) {
		b.sender = sender
	}
}

func WithRetryPolicy(policy webhooks.RetryPolicy) Option {
	return func(b *engineBuilder) {
		b.retryPolicy = policy
	}
}

// WithThrottlePolicy makes the scheduler honor 429 holds per endpoint.
func WithThrottlePolicy(policy *ratelimit.AdaptivePolicy) Option {
	return func(b *engineBuilder) {
		b.throttlePolicy = policy
	}
}

func WithIncomingSecrets(secrets inbound.SecretResolver) Option {
	return func(b *engineBuilder) {
		b.incomingSecrets = secrets
	}
}

func WithIncomingHandler(handler inbound.Handler) Option {
	return func(b *engineBuilder) {
		b.incomingHandler = handler
	}
}

func WithIncomingHandoff(handoff inbound.Handoff) Option {
	return func(b *engineBuilder) {
		b.incomingHandoff = handoff
	}
}

// Engine wires the three delivery surfaces over one persistence layer: the
// idempotency gate for mutating requests, the outbound webhook pipeline, and
// the incoming webhook gateway.
type Engine struct {
	config            Config
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	metricsRecorder   core.MetricsRecorder
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver

	idempotencyStore core.IdempotencyStore
	endpointStore    core.EndpointStore
	deliveryStore    core.DeliveryStore
	incomingStore    core.IncomingEventStore

	signature *core.SignatureEngine
	gate      *core.IdempotencyGate
	publisher *webhooks.Publisher
	scheduler *webhooks.Scheduler
	sender    webhooks.Sender
	retry     webhooks.RetryPolicy
	gateway   *inbound.Gateway
	processor *inbound.Processor
}

type Dependencies struct {
	Logger            core.Logger
	LoggerProvider    core.LoggerProvider
	MetricsRecorder   core.MetricsRecorder
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    core.ConfigProvider
	OptionsResolver   core.OptionsResolver
	IdempotencyStore  core.IdempotencyStore
	EndpointStore     core.EndpointStore
	DeliveryStore     core.DeliveryStore
	IncomingStore     core.IncomingEventStore
}

func defaultEngineBuilder(cfg Config) engineBuilder {
	return engineBuilder{runtimeConfig: cfg}
}

func NewEngine(cfg Config, options ...Option) (*Engine, error) {
	builder := defaultEngineBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := gologger.ResolveNamed(loggerName, builder.loggerProvider, builder.logger)

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = core.NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = core.MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = core.NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = core.GoOptionsResolver{}
	}

	defaults := core.DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if err := resolveStores(&builder); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	signature := core.NewSignatureEngine(finalConfig.Signature.Tolerance)

	engine := &Engine{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		idempotencyStore:  builder.idempotencyStore,
		endpointStore:     builder.endpointStore,
		deliveryStore:     builder.deliveryStore,
		incomingStore:     builder.incomingStore,
		signature:         signature,
		sender:            builder.sender,
		retry:             builder.retryPolicy,
	}
	if engine.retry == nil {
		engine.retry = webhooks.DefaultRetryPolicy()
	}

	if engine.idempotencyStore != nil {
		gate := core.NewIdempotencyGate(engine.idempotencyStore)
		gate.TTL = finalConfig.Idempotency.TTL
		gate.Staleness = finalConfig.Idempotency.Staleness
		gate.Logger = logger
		gate.Metrics = engine.metricsRecorder
		engine.gate = gate
	}

	if engine.endpointStore != nil && engine.deliveryStore != nil {
		if engine.sender == nil {
			httpSender := webhooks.NewHTTPSender(signature)
			if builder.httpClient != nil {
				httpSender.Client = builder.httpClient
			}
			if finalConfig.Worker.SendTimeout > 0 {
				httpSender.Timeout = finalConfig.Worker.SendTimeout
			}
			engine.sender = httpSender
		}

		publisher, err := webhooks.NewPublisher(engine.endpointStore, engine.deliveryStore)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		publisher.Logger = logger
		publisher.Metrics = engine.metricsRecorder
		engine.publisher = publisher

		scheduler, err := webhooks.NewScheduler(engine.deliveryStore, engine.endpointStore, engine.sender)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		scheduler.Retry = engine.retry
		scheduler.Throttle = builder.throttlePolicy
		scheduler.Logger = logger
		scheduler.Metrics = engine.metricsRecorder
		if finalConfig.Worker.ClaimBatch > 0 {
			scheduler.ClaimBatch = finalConfig.Worker.ClaimBatch
		}
		if finalConfig.Worker.PoolSize > 0 {
			scheduler.PoolSize = finalConfig.Worker.PoolSize
		}
		if finalConfig.Worker.PollInterval > 0 {
			scheduler.PollInterval = finalConfig.Worker.PollInterval
		}
		scheduler.EndpointConcurrency = finalConfig.Worker.EndpointConcurrency
		engine.scheduler = scheduler
	}

	if engine.incomingStore != nil && builder.incomingSecrets != nil {
		gateway, err := inbound.NewGateway(engine.incomingStore, builder.incomingSecrets)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		gateway.Verifier = signature
		gateway.Logger = logger
		gateway.Metrics = engine.metricsRecorder
		gateway.Handoff = builder.incomingHandoff
		engine.gateway = gateway
	}
	if engine.incomingStore != nil && builder.incomingHandler != nil {
		processor, err := inbound.NewProcessor(engine.incomingStore, builder.incomingHandler)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		processor.Logger = logger
		processor.Metrics = engine.metricsRecorder
		engine.processor = processor
	}

	return engine, nil
}

func Setup(cfg Config, options ...Option) (*Engine, error) {
	return NewEngine(cfg, options...)
}

func resolveStores(builder *engineBuilder) error {
	if builder.repositoryFactory == nil {
		return nil
	}

	var provider core.StoreProvider
	switch factory := builder.repositoryFactory.(type) {
	case StoreFactory:
		built, err := factory.BuildStores(builder.persistenceClient)
		if err != nil {
			return err
		}
		provider = built
	case core.StoreProvider:
		provider = factory
	default:
		return fmt.Errorf("delivery: repository factory %T is not a store factory or provider", builder.repositoryFactory)
	}
	if provider == nil {
		return nil
	}

	if builder.idempotencyStore == nil {
		builder.idempotencyStore = provider.IdempotencyStore()
	}
	if builder.endpointStore == nil {
		builder.endpointStore = provider.EndpointStore()
	}
	if builder.deliveryStore == nil {
		builder.deliveryStore = provider.DeliveryStore()
	}
	if builder.incomingStore == nil {
		builder.incomingStore = provider.IncomingEventStore()
	}
	return nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

func (e *Engine) Dependencies() Dependencies {
	if e == nil {
		return Dependencies{}
	}
	return Dependencies{
		Logger:            e.logger,
		LoggerProvider:    e.loggerProvider,
		MetricsRecorder:   e.metricsRecorder,
		ErrorMapper:       e.errorMapper,
		PersistenceClient: e.persistenceClient,
		RepositoryFactory: e.repositoryFactory,
		ConfigProvider:    e.configProvider,
		OptionsResolver:   e.optionsResolver,
		IdempotencyStore:  e.idempotencyStore,
		EndpointStore:     e.endpointStore,
		DeliveryStore:     e.deliveryStore,
		IncomingStore:     e.incomingStore,
	}
}

// JobLogging exposes the engine's logging stack under the go-job contracts
// for wiring queue workers and worker hooks.
func (e *Engine) JobLogging() (job.LoggerProvider, job.Logger) {
	if e == nil {
		return nil, nil
	}
	_, _, jobProvider, jobLogger := gologger.ResolveForJob(loggerName, e.loggerProvider, e.logger)
	return jobProvider, jobLogger
}

// Gate exposes the idempotency gate for request middleware.
func (e *Engine) Gate() *core.IdempotencyGate {
	if e == nil {
		return nil
	}
	return e.gate
}

func (e *Engine) Signature() *core.SignatureEngine {
	if e == nil {
		return nil
	}
	return e.signature
}

func (e *Engine) Publisher() *webhooks.Publisher {
	if e == nil {
		return nil
	}
	return e.publisher
}

func (e *Engine) Scheduler() *webhooks.Scheduler {
	if e == nil {
		return nil
	}
	return e.scheduler
}

func (e *Engine) Gateway() *inbound.Gateway {
	if e == nil {
		return nil
	}
	return e.gateway
}

func (e *Engine) Processor() *inbound.Processor {
	if e == nil {
		return nil
	}
	return e.processor
}

// Run drives the outbound dispatch loop until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e == nil || e.scheduler == nil {
		return fmt.Errorf("delivery: scheduler is not configured")
	}
	return e.scheduler.Run(ctx)
}

// DispatchDue performs one on-demand dispatch pass. Callers that schedule
// dispatch through a job queue use this instead of Run.
func (e *Engine) DispatchDue(ctx context.Context) (webhooks.DispatchStats, error) {
	if e == nil || e.scheduler == nil {
		return webhooks.DispatchStats{}, fmt.Errorf("delivery: scheduler is not configured")
	}
	return e.scheduler.DispatchDue(ctx)
}

// Sweep purges expired idempotency records and reports how many were removed.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	if e == nil || e.gate == nil {
		return 0, fmt.Errorf("delivery: idempotency gate is not configured")
	}
	return e.gate.Sweep(ctx)
}

// Receive verifies and records an incoming provider webhook.
func (e *Engine) Receive(ctx context.Context, req inbound.Request) (inbound.Result, error) {
	if e == nil || e.gateway == nil {
		return inbound.Result{}, fmt.Errorf("delivery: inbound gateway is not configured")
	}
	return e.gateway.Receive(ctx, req)
}

func (e *Engine) RegisterEndpoint(ctx context.Context, input core.CreateEndpointInput) (core.WebhookEndpoint, error) {
	if e == nil || e.endpointStore == nil {
		return core.WebhookEndpoint{}, fmt.Errorf("delivery: endpoint store is not configured")
	}
	return e.endpointStore.Create(ctx, input)
}

func (e *Engine) SetEndpointEnabled(ctx context.Context, endpointID string, enabled bool) error {
	if e == nil || e.endpointStore == nil {
		return fmt.Errorf("delivery: endpoint store is not configured")
	}
	return e.endpointStore.SetEnabled(ctx, endpointID, enabled)
}

func (e *Engine) RotateEndpointSecret(ctx context.Context, endpointID string) (core.WebhookEndpoint, error) {
	if e == nil || e.endpointStore == nil {
		return core.WebhookEndpoint{}, fmt.Errorf("delivery: endpoint store is not configured")
	}
	return e.endpointStore.RotateSecret(ctx, endpointID)
}

func (e *Engine) PublishEvent(ctx context.Context, event core.Event) ([]core.WebhookDelivery, error) {
	if e == nil || e.publisher == nil {
		return nil, fmt.Errorf("delivery: publisher is not configured")
	}
	return e.publisher.Publish(ctx, event)
}

func (e *Engine) CancelDelivery(ctx context.Context, deliveryID string) error {
	if e == nil || e.deliveryStore == nil {
		return fmt.Errorf("delivery: delivery store is not configured")
	}
	return e.deliveryStore.Cancel(ctx, deliveryID)
}

func (e *Engine) RequeueDelivery(ctx context.Context, deliveryID string) error {
	if e == nil || e.deliveryStore == nil {
		return fmt.Errorf("delivery: delivery store is not configured")
	}
	return e.deliveryStore.Requeue(ctx, deliveryID, time.Now().UTC())
}

func (e *Engine) RetryIncomingEvent(ctx context.Context, source string, eventID string) error {
	if e == nil || e.processor == nil {
		return fmt.Errorf("delivery: incoming processor is not configured")
	}
	return e.processor.Retry(ctx, source, eventID)
}

func (e *Engine) GetEndpoint(ctx context.Context, id string) (core.WebhookEndpoint, error) {
	if e == nil || e.endpointStore == nil {
		return core.WebhookEndpoint{}, fmt.Errorf("delivery: endpoint store is not configured")
	}
	return e.endpointStore.Get(ctx, id)
}

func (e *Engine) GetDelivery(ctx context.Context, id string) (core.WebhookDelivery, error) {
	if e == nil || e.deliveryStore == nil {
		return core.WebhookDelivery{}, fmt.Errorf("delivery: delivery store is not configured")
	}
	return e.deliveryStore.Get(ctx, id)
}

func (e *Engine) ListExhaustedDeliveries(ctx context.Context, limit int) ([]core.WebhookDelivery, error) {
	if e == nil || e.deliveryStore == nil {
		return nil, fmt.Errorf("delivery: delivery store is not configured")
	}
	return e.deliveryStore.ListExhausted(ctx, limit)
}

func (e *Engine) GetIncomingEvent(ctx context.Context, source string, eventID string) (core.IncomingEvent, error) {
	if e == nil || e.incomingStore == nil {
		return core.IncomingEvent{}, fmt.Errorf("delivery: incoming event store is not configured")
	}
	return e.incomingStore.Get(ctx, source, eventID)
}

func (e *Engine) ListIncomingErrors(ctx context.Context, limit int) ([]core.IncomingEvent, error) {
	if e == nil || e.incomingStore == nil {
		return nil, fmt.Errorf("delivery: incoming event store is not configured")
	}
	return e.incomingStore.ListErrors(ctx, limit)
}
