package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type idempotencyKeyRecord struct {
	bun.BaseModel `bun:"table:idempotency_keys,alias:ik"`

	ID             string     `bun:"id,pk"`
	OwnerType      string     `bun:"owner_type,notnull"`
	OwnerID        string     `bun:"owner_id,notnull"`
	Path           string     `bun:"path,notnull"`
	Key            string     `bun:"key,notnull"`
	RequestHash    string     `bun:"request_hash,notnull"`
	Status         string     `bun:"status,notnull"`
	LockToken      string     `bun:"lock_token,notnull"`
	ResponseStatus int        `bun:"response_status"`
	ResponseBody   []byte     `bun:"response_body"`
	LockedAt       time.Time  `bun:"locked_at,notnull"`
	CompletedAt    *time.Time `bun:"completed_at,nullzero"`
	ExpiresAt      time.Time  `bun:"expires_at,notnull"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type webhookEndpointRecord struct {
	bun.BaseModel `bun:"table:webhook_endpoints,alias:we"`

	ID         string    `bun:"id,pk"`
	OwnerID    string    `bun:"owner_id,notnull"`
	URL        string    `bun:"url,notnull"`
	Secret     string    `bun:"secret,notnull"`
	EventTypes []string  `bun:"event_types,type:jsonb,notnull"`
	Wildcard   bool      `bun:"wildcard,notnull"`
	Enabled    bool      `bun:"enabled,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:webhook_deliveries,alias:wd"`

	ID                 string     `bun:"id,pk"`
	EndpointID         string     `bun:"endpoint_id,notnull"`
	EventID            string     `bun:"event_id,notnull"`
	EventType          string     `bun:"event_type,notnull"`
	Payload            []byte     `bun:"payload"`
	Status             string     `bun:"status,notnull"`
	Attempts           int        `bun:"attempts,notnull"`
	NextAttemptAt      *time.Time `bun:"next_attempt_at,nullzero"`
	LastResponseStatus int        `bun:"last_response_status"`
	LastResponseBody   string     `bun:"last_response_body"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type incomingEventRecord struct {
	bun.BaseModel `bun:"table:webhook_events,alias:wev"`

	ID           string     `bun:"id,pk"`
	Source       string     `bun:"source,notnull"`
	EventID      string     `bun:"event_id,notnull"`
	Payload      []byte     `bun:"payload"`
	Status       string     `bun:"status,notnull"`
	ErrorMessage string     `bun:"error_message"`
	ProcessedAt  *time.Time `bun:"processed_at,nullzero"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
