package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultIdempotencyTTL       = 24 * time.Hour
	DefaultStalenessWindow      = 30 * time.Second
	DefaultResponseBodyMaxBytes = 64 * 1024
)

type AcquireOutcome string

const (
	OutcomeProceed  AcquireOutcome = "proceed"
	OutcomeReplay   AcquireOutcome = "replay"
	OutcomeConflict AcquireOutcome = "conflict"
	OutcomeLocked   AcquireOutcome = "locked"
)

type AcquireResult struct {
	Outcome   AcquireOutcome
	LockToken string
	Response  CachedResponse
	Stolen    bool
}

// EnvelopeError maps a non-proceed outcome to the synchronous error surfaced
// to the caller: 422 for key reuse with different parameters, 409 while the
// original request is still in flight.
func (r AcquireResult) EnvelopeError() error {
	switch r.Outcome {
	case OutcomeConflict:
		return NewConflictError("core: idempotency key reused with a different request fingerprint")
	case OutcomeLocked:
		return NewLockedError("core: request with this idempotency key is still in flight")
	default:
		return nil
	}
}

// IdempotencyGate coordinates at-most-once execution of mutating requests.
// All mutual exclusion is delegated to the store's atomic insert and
// compare-and-set operations so gates on different machines cooperate.
type IdempotencyGate struct {
	Store     IdempotencyStore
	TTL       time.Duration
	Staleness time.Duration
	Logger    Logger
	Metrics   MetricsRecorder
	Now       func() time.Time
}

func NewIdempotencyGate(store IdempotencyStore) *IdempotencyGate {
	return &IdempotencyGate{
		Store:     store,
		TTL:       DefaultIdempotencyTTL,
		Staleness: DefaultStalenessWindow,
		Metrics:   NopMetricsRecorder{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Acquire runs the insert-if-absent protocol for (scope, key). Exactly one
// concurrent caller observes Proceed; the rest observe Locked, Replay, or
// Conflict. The returned error is reserved for infrastructure failures.
func (g *IdempotencyGate) Acquire(
	ctx context.Context,
	scope IdempotencyScope,
	key string,
	requestHash string,
) (AcquireResult, error) {
	if g == nil || g.Store == nil {
		return AcquireResult{}, NewBadInputError("core: idempotency gate requires a store")
	}
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	if key == "" || requestHash == "" {
		return AcquireResult{}, NewBadInputError("core: idempotency key and request hash are required")
	}
	if !scope.Validate() {
		return AcquireResult{}, NewBadInputError("core: idempotency scope owner and path are required")
	}

	now := g.now()
	token := uuid.NewString()
	record := IdempotencyRecord{
		ID:          uuid.NewString(),
		Key:         key,
		Scope:       scope,
		RequestHash: requestHash,
		Status:      IdempotencyStatusLocked,
		LockToken:   token,
		LockedAt:    now,
		ExpiresAt:   now.Add(g.ttl()),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	existing, inserted, err := g.Store.InsertLocked(ctx, record)
	if err != nil {
		return AcquireResult{}, err
	}
	if inserted {
		g.observe(ctx, "acquire", string(OutcomeProceed))
		return AcquireResult{Outcome: OutcomeProceed, LockToken: token}, nil
	}

	// The fingerprint is immutable after first write: a mismatch never
	// proceeds, whatever state the original is in.
	if existing.RequestHash != requestHash {
		g.observe(ctx, "acquire", string(OutcomeConflict))
		return AcquireResult{Outcome: OutcomeConflict}, nil
	}

	if existing.Status == IdempotencyStatusCompleted {
		g.observe(ctx, "acquire", string(OutcomeReplay))
		return AcquireResult{
			Outcome: OutcomeReplay,
			Response: CachedResponse{
				Status: existing.ResponseStatus,
				Body:   append([]byte(nil), existing.ResponseBody...),
			},
		}, nil
	}

	staleBefore := now.Add(-g.staleness())
	if existing.LockedAt.Before(staleBefore) {
		stolen, ok, stealErr := g.Store.StealLock(ctx, scope, key, staleBefore, token)
		if stealErr != nil {
			return AcquireResult{}, stealErr
		}
		if ok {
			g.logSteal(ctx, scope, key, stolen.LockedAt)
			g.observe(ctx, "acquire", "steal")
			return AcquireResult{Outcome: OutcomeProceed, LockToken: token, Stolen: true}, nil
		}
	}

	g.observe(ctx, "acquire", string(OutcomeLocked))
	return AcquireResult{Outcome: OutcomeLocked}, nil
}

// Complete caches the response and marks the record completed. The cached
// response is immutable until the record expires.
func (g *IdempotencyGate) Complete(ctx context.Context, lockToken string, response CachedResponse) error {
	if g == nil || g.Store == nil {
		return NewBadInputError("core: idempotency gate requires a store")
	}
	if strings.TrimSpace(lockToken) == "" {
		return NewBadInputError("core: lock token is required")
	}
	if len(response.Body) > DefaultResponseBodyMaxBytes {
		response.Body = response.Body[:DefaultResponseBodyMaxBytes]
	}
	return g.Store.Complete(ctx, lockToken, response)
}

// Release deletes the record after a failed execution so the client can
// retry cleanly with the same key.
func (g *IdempotencyGate) Release(ctx context.Context, lockToken string) error {
	if g == nil || g.Store == nil {
		return NewBadInputError("core: idempotency gate requires a store")
	}
	if strings.TrimSpace(lockToken) == "" {
		return NewBadInputError("core: lock token is required")
	}
	return g.Store.Release(ctx, lockToken)
}

// Sweep purges records past their expiry, locked or completed alike.
func (g *IdempotencyGate) Sweep(ctx context.Context) (int, error) {
	if g == nil || g.Store == nil {
		return 0, NewBadInputError("core: idempotency gate requires a store")
	}
	purged, err := g.Store.PurgeExpired(ctx, g.now())
	if err != nil {
		return 0, err
	}
	if purged > 0 && g.Logger != nil {
		g.Logger.Info("idempotency sweep purged expired records", "purged", purged)
	}
	return purged, nil
}

func (g *IdempotencyGate) logSteal(ctx context.Context, scope IdempotencyScope, key string, lockedAt time.Time) {
	if g == nil || g.Logger == nil {
		return
	}
	logger := g.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Warn("idempotency lock reclaimed from abandoned holder",
		"owner_type", scope.Owner.Type,
		"owner_id", scope.Owner.ID,
		"path", scope.Path,
		"key", key,
		"locked_at", lockedAt,
	)
}

func (g *IdempotencyGate) observe(ctx context.Context, operation string, outcome string) {
	if g == nil || g.Metrics == nil {
		return
	}
	g.Metrics.IncCounter(ctx, "delivery.idempotency."+operation+".total", 1, map[string]string{
		"outcome": outcome,
	})
}

func (g *IdempotencyGate) now() time.Time {
	if g != nil && g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

func (g *IdempotencyGate) ttl() time.Duration {
	if g != nil && g.TTL > 0 {
		return g.TTL
	}
	return DefaultIdempotencyTTL
}

func (g *IdempotencyGate) staleness() time.Duration {
	if g != nil && g.Staleness > 0 {
		return g.Staleness
	}
	return DefaultStalenessWindow
}
