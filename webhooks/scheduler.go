package webhooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-delivery/core"
	"github.com/goliatone/go-delivery/ratelimit"
)

const (
	DefaultClaimBatch   = 25
	DefaultPoolSize     = 4
	DefaultPollInterval = time.Second
)

type DispatchStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Exhausted int
	Skipped   int
}

// Scheduler drains the delivery queue: it claims due rows, sends them through
// the Sender, and records the outcome on the attempt ledger. Claims on
// disabled endpoints are released untouched so the delivery resumes if the
// endpoint comes back.
type Scheduler struct {
	Deliveries core.DeliveryStore
	Endpoints  core.EndpointStore
	Sender     Sender
	Retry      RetryPolicy
	Throttle   *ratelimit.AdaptivePolicy

	MaxAttempts         int
	ClaimBatch          int
	PoolSize            int
	PollInterval        time.Duration
	EndpointConcurrency int

	Logger  core.Logger
	Metrics core.MetricsRecorder
	Now     func() time.Time
}

func NewScheduler(
	deliveries core.DeliveryStore,
	endpoints core.EndpointStore,
	sender Sender,
) (*Scheduler, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("webhooks: delivery store is required")
	}
	if endpoints == nil {
		return nil, fmt.Errorf("webhooks: endpoint store is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("webhooks: sender is required")
	}
	return &Scheduler{
		Deliveries:   deliveries,
		Endpoints:    endpoints,
		Sender:       sender,
		Retry:        DefaultRetryPolicy(),
		MaxAttempts:  MaxDeliveryAttempts,
		ClaimBatch:   DefaultClaimBatch,
		PoolSize:     DefaultPoolSize,
		PollInterval: DefaultPollInterval,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Run polls for due deliveries until the context is cancelled. Dispatch
// errors are logged and the loop keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	if s == nil || s.Deliveries == nil {
		return fmt.Errorf("webhooks: scheduler is not configured")
	}
	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.DispatchDue(ctx); err != nil {
				if s.Logger != nil {
					s.Logger.WithContext(ctx).Error("dispatch pass failed", "error", err.Error())
				}
			}
		}
	}
}

// DispatchDue runs one dispatch pass: claim up to ClaimBatch due deliveries
// and send them through the worker pool.
func (s *Scheduler) DispatchDue(ctx context.Context) (DispatchStats, error) {
	if s == nil || s.Deliveries == nil || s.Endpoints == nil || s.Sender == nil {
		return DispatchStats{}, fmt.Errorf("webhooks: scheduler is not configured")
	}
	batch := s.ClaimBatch
	if batch <= 0 {
		batch = DefaultClaimBatch
	}
	claimed, err := s.Deliveries.ClaimDue(ctx, batch, s.now())
	if err != nil {
		return DispatchStats{}, err
	}

	stats := DispatchStats{Claimed: len(claimed)}
	if len(claimed) == 0 {
		return stats, nil
	}

	pool := s.PoolSize
	if pool <= 0 {
		pool = DefaultPoolSize
	}
	if pool > len(claimed) {
		pool = len(claimed)
	}

	var (
		mu          sync.Mutex
		dispatchErr error
	)
	gates := newEndpointGates(s.EndpointConcurrency)
	queue := make(chan core.WebhookDelivery)
	var wg sync.WaitGroup
	for i := 0; i < pool; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for delivery := range queue {
				outcome, err := s.dispatchOne(ctx, delivery, gates)
				mu.Lock()
				switch outcome {
				case outcomeDelivered:
					stats.Delivered++
				case outcomeRetried:
					stats.Retried++
				case outcomeExhausted:
					stats.Exhausted++
				case outcomeSkipped:
					stats.Skipped++
				}
				if err != nil {
					dispatchErr = joinErrors(dispatchErr, err)
				}
				mu.Unlock()
			}
		}()
	}
	for _, delivery := range claimed {
		queue <- delivery
	}
	close(queue)
	wg.Wait()

	s.observe(ctx, stats)
	return stats, dispatchErr
}

type dispatchOutcome int

const (
	outcomeNone dispatchOutcome = iota
	outcomeDelivered
	outcomeRetried
	outcomeExhausted
	outcomeSkipped
)

func (s *Scheduler) dispatchOne(
	ctx context.Context,
	delivery core.WebhookDelivery,
	gates *endpointGates,
) (dispatchOutcome, error) {
	endpoint, err := s.Endpoints.GetWithSecret(ctx, delivery.EndpointID)
	if err != nil {
		// A deleted endpoint counts as a failed attempt so the delivery walks
		// the ladder and surfaces as exhausted. A store outage releases the
		// claim instead: the five attempts are reserved for actual sends.
		if core.IsNotFound(err) {
			return s.recordFailure(ctx, delivery, core.AttemptResult{Err: err})
		}
		if relErr := s.Deliveries.ReleaseClaim(ctx, delivery.ID); relErr != nil {
			return outcomeNone, joinErrors(err, relErr)
		}
		if s.Logger != nil {
			s.Logger.WithContext(ctx).Warn(
				"delivery skipped, endpoint lookup failed",
				"delivery_id", delivery.ID,
				"endpoint_id", delivery.EndpointID,
				"error", err.Error(),
			)
		}
		return outcomeSkipped, nil
	}
	// Enablement is re-checked at send time: a claim on a disabled endpoint
	// is released with attempts and schedule untouched.
	if !endpoint.Enabled {
		if err := s.Deliveries.ReleaseClaim(ctx, delivery.ID); err != nil {
			return outcomeNone, err
		}
		if s.Logger != nil {
			s.Logger.WithContext(ctx).Debug(
				"delivery skipped, endpoint disabled",
				"delivery_id", delivery.ID,
				"endpoint_id", endpoint.ID,
			)
		}
		return outcomeSkipped, nil
	}

	// Same treatment as a disabled endpoint: a throttled claim is released
	// untouched and picked up again on a later poll.
	if s.Throttle != nil {
		throttleErr := s.Throttle.BeforeSend(ctx, endpoint.ID)
		var throttled ratelimit.ThrottledError
		if errors.As(throttleErr, &throttled) {
			if err := s.Deliveries.ReleaseClaim(ctx, delivery.ID); err != nil {
				return outcomeNone, err
			}
			if s.Logger != nil {
				s.Logger.WithContext(ctx).Debug(
					"delivery skipped, endpoint throttled",
					"delivery_id", delivery.ID,
					"endpoint_id", endpoint.ID,
					"retry_after", throttled.RetryAfter.String(),
				)
			}
			return outcomeSkipped, nil
		}
		if throttleErr != nil {
			return s.recordFailure(ctx, delivery, core.AttemptResult{Err: throttleErr})
		}
	}

	release := gates.acquire(endpoint.ID)
	result := s.Sender.Send(ctx, endpoint, delivery)
	release()

	if s.Throttle != nil {
		if err := s.Throttle.AfterSend(ctx, endpoint.ID, result); err != nil && s.Logger != nil {
			s.Logger.WithContext(ctx).Warn(
				"throttle state update failed",
				"endpoint_id", endpoint.ID,
				"error", err,
			)
		}
	}

	if result.Success() {
		if err := s.Deliveries.MarkDelivered(ctx, delivery.ID, result); err != nil {
			return outcomeNone, err
		}
		return outcomeDelivered, nil
	}
	return s.recordFailure(ctx, delivery, result)
}

func (s *Scheduler) recordFailure(
	ctx context.Context,
	delivery core.WebhookDelivery,
	result core.AttemptResult,
) (dispatchOutcome, error) {
	maxAttempts := s.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = MaxDeliveryAttempts
	}
	attempt := delivery.Attempts + 1
	if attempt >= maxAttempts {
		if err := s.Deliveries.MarkExhausted(ctx, delivery.ID, result); err != nil {
			return outcomeNone, err
		}
		if s.Logger != nil {
			s.Logger.WithContext(ctx).Warn(
				"delivery exhausted",
				"delivery_id", delivery.ID,
				"endpoint_id", delivery.EndpointID,
				"attempts", attempt,
				"last_status", result.StatusCode,
			)
		}
		return outcomeExhausted, nil
	}

	retry := s.Retry
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	nextAttemptAt := s.now().Add(retry.NextDelay(attempt))
	if err := s.Deliveries.MarkRetry(ctx, delivery.ID, result, nextAttemptAt); err != nil {
		return outcomeNone, err
	}
	return outcomeRetried, nil
}

func (s *Scheduler) observe(ctx context.Context, stats DispatchStats) {
	if s == nil || s.Metrics == nil {
		return
	}
	s.Metrics.IncCounter(ctx, "delivery.dispatch.claimed", int64(stats.Claimed), nil)
	s.Metrics.IncCounter(ctx, "delivery.dispatch.delivered", int64(stats.Delivered), nil)
	s.Metrics.IncCounter(ctx, "delivery.dispatch.retried", int64(stats.Retried), nil)
	s.Metrics.IncCounter(ctx, "delivery.dispatch.exhausted", int64(stats.Exhausted), nil)
	s.Metrics.IncCounter(ctx, "delivery.dispatch.skipped", int64(stats.Skipped), nil)
}

func (s *Scheduler) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// endpointGates caps concurrent sends per endpoint so one slow consumer
// cannot monopolize the pool.
type endpointGates struct {
	limit int
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newEndpointGates(limit int) *endpointGates {
	return &endpointGates{
		limit: limit,
		slots: map[string]chan struct{}{},
	}
}

func (g *endpointGates) acquire(endpointID string) func() {
	if g == nil || g.limit <= 0 {
		return func() {}
	}
	endpointID = strings.TrimSpace(endpointID)
	g.mu.Lock()
	slot, ok := g.slots[endpointID]
	if !ok {
		slot = make(chan struct{}, g.limit)
		g.slots[endpointID] = slot
	}
	g.mu.Unlock()
	slot <- struct{}{}
	return func() { <-slot }
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}
