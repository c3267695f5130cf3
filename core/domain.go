package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const (
	IdempotencyStatusLocked    = "locked"
	IdempotencyStatusCompleted = "completed"
)

const (
	DeliveryStatusPending         = "pending"
	DeliveryStatusInFlight        = "in_flight"
	DeliveryStatusDelivered       = "delivered"
	DeliveryStatusPendingRetry    = "pending_retry"
	DeliveryStatusFailedExhausted = "failed_exhausted"
)

const (
	IncomingStatusReceived   = "received"
	IncomingStatusProcessing = "processing"
	IncomingStatusProcessed  = "processed"
	IncomingStatusError      = "error"
)

const (
	HeaderIdempotencyKey     = "Idempotency-Key"
	HeaderIdempotentReplayed = "Idempotent-Replayed"
	HeaderSignature          = "X-Webhook-Signature"
	HeaderEventType          = "X-Webhook-Event"
	HeaderEventID            = "X-Webhook-Event-Id"
)

// ScopeRef identifies the owner of a record: a user, org, or tenant.
type ScopeRef struct {
	Type string
	ID   string
}

func (s ScopeRef) Validate() bool {
	return strings.TrimSpace(s.Type) != "" && strings.TrimSpace(s.ID) != ""
}

// IdempotencyScope narrows an owner scope to one request path so the same
// client key can be reused across unrelated endpoints.
type IdempotencyScope struct {
	Owner ScopeRef
	Path  string
}

func (s IdempotencyScope) Validate() bool {
	return s.Owner.Validate() && strings.TrimSpace(s.Path) != ""
}

type IdempotencyRecord struct {
	ID             string
	Key            string
	Scope          IdempotencyScope
	RequestHash    string
	Status         string
	LockToken      string
	ResponseStatus int
	ResponseBody   []byte
	LockedAt       time.Time
	CompletedAt    *time.Time
	ExpiresAt      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CachedResponse is the replayable outcome of a completed idempotent request.
type CachedResponse struct {
	Status int
	Body   []byte
}

type WebhookEndpoint struct {
	ID         string
	OwnerID    string
	URL        string
	Secret     string
	EventTypes []string
	Wildcard   bool
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Event is the business occurrence fanned out to subscribed endpoints.
type Event struct {
	ID         string
	Type       string
	Payload    []byte
	OccurredAt time.Time
}

type WebhookDelivery struct {
	ID                 string
	EndpointID         string
	EventID            string
	EventType          string
	Payload            []byte
	Status             string
	Attempts           int
	NextAttemptAt      *time.Time
	LastResponseStatus int
	LastResponseBody   string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (d WebhookDelivery) Terminal() bool {
	return d.Status == DeliveryStatusDelivered || d.Status == DeliveryStatusFailedExhausted
}

type IncomingEvent struct {
	ID           string
	Source       string
	EventID      string
	Payload      []byte
	Status       string
	ErrorMessage string
	ProcessedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AttemptResult captures one outbound send for operator debugging. Body is
// recorded truncated regardless of outcome.
type AttemptResult struct {
	StatusCode int
	Body       string
	Err        error

	// RetryAfter carries the receiver's Retry-After hint on throttled
	// responses. Zero means the receiver gave none.
	RetryAfter time.Duration
}

func (r AttemptResult) Success() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// RequestFingerprint derives the deterministic digest used to detect an
// idempotency key reused with different request parameters.
func RequestFingerprint(method string, path string, body []byte) string {
	digest := sha256.New()
	digest.Write([]byte(strings.ToUpper(strings.TrimSpace(method))))
	digest.Write([]byte{'\n'})
	digest.Write([]byte(strings.TrimSpace(path)))
	digest.Write([]byte{'\n'})
	digest.Write(body)
	return hex.EncodeToString(digest.Sum(nil))
}
