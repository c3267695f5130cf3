package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// IdempotencyStore persists idempotency records. Insert and the lock steal
// must be atomic against concurrent callers; implementations back both with
// compare-and-set operations on the durable store, never in-process locks.
type IdempotencyStore interface {
	// InsertLocked attempts an insert-if-absent of a locked record for
	// (scope, key). It returns the stored record and true when this call
	// created it, or the pre-existing record and false on conflict.
	InsertLocked(ctx context.Context, record IdempotencyRecord) (IdempotencyRecord, bool, error)
	// StealLock reclaims a locked record whose lock predates staleBefore,
	// installing the given lock token. It returns false when the record was
	// completed, released, or re-locked concurrently.
	StealLock(ctx context.Context, scope IdempotencyScope, key string, staleBefore time.Time, lockToken string) (IdempotencyRecord, bool, error)
	// Complete stores the response and flips the record to completed. Only
	// the holder of the lock token may complete.
	Complete(ctx context.Context, lockToken string, response CachedResponse) error
	// Release deletes the record so a clean client retry can start over.
	Release(ctx context.Context, lockToken string) error
	Get(ctx context.Context, scope IdempotencyScope, key string) (IdempotencyRecord, error)
	// PurgeExpired deletes records past expires_at regardless of status and
	// reports how many rows were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

type CreateEndpointInput struct {
	OwnerID    string
	URL        string
	EventTypes []string
	Wildcard   bool
}

type EndpointStore interface {
	// Create stores a new endpoint with a server-generated secret. The
	// secret is returned on the created endpoint exactly once; reads after
	// creation never include it.
	Create(ctx context.Context, input CreateEndpointInput) (WebhookEndpoint, error)
	Get(ctx context.Context, id string) (WebhookEndpoint, error)
	// GetWithSecret is the send-path read; it includes the signing secret.
	GetWithSecret(ctx context.Context, id string) (WebhookEndpoint, error)
	ListEnabled(ctx context.Context) ([]WebhookEndpoint, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	RotateSecret(ctx context.Context, id string) (WebhookEndpoint, error)
}

type DeliveryStore interface {
	Enqueue(ctx context.Context, deliveries []WebhookDelivery) error
	// ClaimDue atomically transitions up to limit due deliveries
	// (pending or pending_retry, next_attempt_at <= now) to in_flight and
	// returns them. Two workers never claim the same row.
	ClaimDue(ctx context.Context, limit int, now time.Time) ([]WebhookDelivery, error)
	// ReleaseClaim returns an in_flight delivery to pending_retry without
	// advancing attempts or the schedule. Used when the endpoint turned out
	// to be disabled at send time.
	ReleaseClaim(ctx context.Context, id string) error
	MarkDelivered(ctx context.Context, id string, result AttemptResult) error
	MarkRetry(ctx context.Context, id string, result AttemptResult, nextAttemptAt time.Time) error
	MarkExhausted(ctx context.Context, id string, result AttemptResult) error
	Cancel(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (WebhookDelivery, error)
	ListExhausted(ctx context.Context, limit int) ([]WebhookDelivery, error)
	// Requeue resets an exhausted delivery for an operator-initiated retry.
	Requeue(ctx context.Context, id string, nextAttemptAt time.Time) error
}

// StoreProvider bundles the persistence surface a fully wired engine needs.
type StoreProvider interface {
	IdempotencyStore() IdempotencyStore
	EndpointStore() EndpointStore
	DeliveryStore() DeliveryStore
	IncomingEventStore() IncomingEventStore
}

// JobExecutionMessage is the transport-neutral envelope handed to the job
// queue for background work (dispatch sweeps, purges, incoming processing).
type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type IncomingEventStore interface {
	// Insert attempts an insert-if-absent keyed by (source, event_id). It
	// returns the stored event and true when this call created it, or the
	// pre-existing event and false on conflict.
	Insert(ctx context.Context, event IncomingEvent) (IncomingEvent, bool, error)
	// MarkProcessing flips received -> processing via compare-and-set; it
	// returns false when another worker already owns the event.
	MarkProcessing(ctx context.Context, id string) (bool, error)
	MarkProcessed(ctx context.Context, id string, processedAt time.Time) error
	MarkError(ctx context.Context, id string, message string) error
	Get(ctx context.Context, source string, eventID string) (IncomingEvent, error)
	ListErrors(ctx context.Context, limit int) ([]IncomingEvent, error)
	// Reset returns an errored event to received for an operator retry.
	Reset(ctx context.Context, id string) error
}
