package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-delivery/core"
	goerrors "github.com/goliatone/go-errors"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// State tracks the throttle window for one endpoint. ConsecutiveHits drives
// the escalating hold when the receiver throttles without a Retry-After hint.
type State struct {
	EndpointID      string
	ThrottledUntil  *time.Time
	LastStatus      int
	ConsecutiveHits int
	UpdatedAt       time.Time
}

type StateStore interface {
	Get(ctx context.Context, endpointID string) (State, error)
	Upsert(ctx context.Context, state State) error
}

// ThrottledError tells the scheduler to release the claim instead of burning
// an attempt against an endpoint that just told us to back off.
type ThrottledError struct {
	EndpointID string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: endpoint %q throttled for %s",
		strings.TrimSpace(e.EndpointID),
		e.RetryAfter,
	)
}

func (e ThrottledError) ToDeliveryError() *goerrors.Error {
	metadata := map[string]any{
		"endpoint_id": strings.TrimSpace(e.EndpointID),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ErrorCodeRateLimited).
		WithMetadata(metadata)
}

// AdaptivePolicy holds an endpoint after it answers 429, honoring the
// receiver's Retry-After when present and escalating a local hold when not.
// A successful or non-throttled attempt clears the state.
type AdaptivePolicy struct {
	Store       StateStore
	Now         func() time.Time
	InitialHold time.Duration
	MaxHold     time.Duration
}

func NewAdaptivePolicy(store StateStore) *AdaptivePolicy {
	return &AdaptivePolicy{
		Store:       store,
		Now:         func() time.Time { return time.Now().UTC() },
		InitialHold: time.Second,
		MaxHold:     time.Minute,
	}
}

// BeforeSend reports ThrottledError while the endpoint's hold is still open.
func (p *AdaptivePolicy) BeforeSend(ctx context.Context, endpointID string) error {
	if p == nil || p.Store == nil {
		return nil
	}
	endpointID = strings.TrimSpace(endpointID)
	state, err := p.Store.Get(ctx, endpointID)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}
	now := p.now()
	if until := state.ThrottledUntil; until != nil && now.Before(*until) {
		return ThrottledError{EndpointID: endpointID, RetryAfter: until.Sub(now)}
	}
	return nil
}

// AfterSend folds one attempt result into the endpoint's throttle state.
func (p *AdaptivePolicy) AfterSend(ctx context.Context, endpointID string, result core.AttemptResult) error {
	if p == nil || p.Store == nil {
		return nil
	}
	endpointID = strings.TrimSpace(endpointID)
	now := p.now()

	state, err := p.Store.Get(ctx, endpointID)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return err
	}
	if errors.Is(err, ErrStateNotFound) {
		state = State{EndpointID: endpointID}
	}

	state.LastStatus = result.StatusCode
	state.UpdatedAt = now

	if result.StatusCode != http.StatusTooManyRequests {
		state.ConsecutiveHits = 0
		state.ThrottledUntil = nil
		return p.Store.Upsert(ctx, state)
	}

	state.ConsecutiveHits++
	hold := result.RetryAfter
	if hold <= 0 {
		hold = p.nextHold(state.ConsecutiveHits)
	}
	if max := p.maxHold(); hold > max {
		hold = max
	}
	until := now.Add(hold)
	state.ThrottledUntil = &until
	return p.Store.Upsert(ctx, state)
}

func (p *AdaptivePolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p *AdaptivePolicy) nextHold(hits int) time.Duration {
	initial := p.InitialHold
	if initial <= 0 {
		initial = time.Second
	}
	hold := initial
	for i := 1; i < hits; i++ {
		hold *= 2
		if hold >= p.maxHold() {
			return p.maxHold()
		}
	}
	return hold
}

func (p *AdaptivePolicy) maxHold() time.Duration {
	if p != nil && p.MaxHold > 0 {
		return p.MaxHold
	}
	return time.Minute
}

// MemoryStateStore keeps throttle state in process. Good enough for a single
// dispatcher; a shared store is needed when schedulers scale out.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, endpointID string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[strings.TrimSpace(endpointID)]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	key := strings.TrimSpace(state.EndpointID)
	if key == "" {
		return fmt.Errorf("ratelimit: endpoint id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = state
	return nil
}

var _ StateStore = (*MemoryStateStore)(nil)
