package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-delivery/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type DeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookDeliveryRecord]
}

func NewDeliveryStore(db *bun.DB) (*DeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookDeliveryRecord](db, webhookDeliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery repository wiring: %w", err)
		}
	}
	return &DeliveryStore{db: db, repo: repo}, nil
}

func (s *DeliveryStore) Enqueue(ctx context.Context, deliveries []core.WebhookDelivery) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	if len(deliveries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	records := make([]*webhookDeliveryRecord, 0, len(deliveries))
	for _, delivery := range deliveries {
		endpointID := strings.TrimSpace(delivery.EndpointID)
		eventID := strings.TrimSpace(delivery.EventID)
		eventType := strings.TrimSpace(delivery.EventType)
		if endpointID == "" || eventID == "" || eventType == "" {
			return fmt.Errorf("sqlstore: delivery endpoint id, event id, and event type are required")
		}
		id := strings.TrimSpace(delivery.ID)
		if id == "" {
			id = uuid.NewString()
		}
		nextAttemptAt := now
		if delivery.NextAttemptAt != nil {
			nextAttemptAt = delivery.NextAttemptAt.UTC()
		}
		records = append(records, &webhookDeliveryRecord{
			ID:            id,
			EndpointID:    endpointID,
			EventID:       eventID,
			EventType:     eventType,
			Payload:       append([]byte(nil), delivery.Payload...),
			Status:        core.DeliveryStatusPending,
			Attempts:      0,
			NextAttemptAt: &nextAttemptAt,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	_, err := s.db.NewInsert().Model(&records).Exec(ctx)
	return err
}

// ClaimDue transitions due rows to in_flight inside one statement so
// concurrent workers never claim the same delivery.
func (s *DeliveryStore) ClaimDue(
	ctx context.Context,
	limit int,
	now time.Time,
) ([]core.WebhookDelivery, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	nowUTC := now.UTC()
	var records []webhookDeliveryRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM webhook_deliveries
	WHERE status IN (?, ?)
	  AND next_attempt_at IS NOT NULL
	  AND next_attempt_at <= ?
	ORDER BY next_attempt_at ASC
	LIMIT ?
)
UPDATE webhook_deliveries
SET status = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND status IN (?, ?)
RETURNING
	id,
	endpoint_id,
	event_id,
	event_type,
	payload,
	status,
	attempts,
	next_attempt_at,
	last_response_status,
	last_response_body,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			core.DeliveryStatusPending,
			core.DeliveryStatusPendingRetry,
			nowUTC,
			limit,
			core.DeliveryStatusInFlight,
			nowUTC,
			core.DeliveryStatusPending,
			core.DeliveryStatusPendingRetry,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}
	deliveries := make([]core.WebhookDelivery, 0, len(records))
	for i := range records {
		deliveries = append(deliveries, webhookDeliveryToDomain(&records[i]))
	}
	return deliveries, nil
}

// ReleaseClaim reverts an in_flight row to pending_retry without advancing
// attempts or the schedule. Used when the endpoint is disabled at send time;
// the delivery resumes automatically if the endpoint is re-enabled.
func (s *DeliveryStore) ReleaseClaim(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", core.DeliveryStatusPendingRetry).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("status = ?", core.DeliveryStatusInFlight).
		Exec(ctx)
	return err
}

func (s *DeliveryStore) MarkDelivered(ctx context.Context, id string, result core.AttemptResult) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", core.DeliveryStatusDelivered).
		Set("attempts = attempts + 1").
		Set("next_attempt_at = NULL").
		Set("last_response_status = ?", result.StatusCode).
		Set("last_response_body = ?", truncateBody(result.Body)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("status = ?", core.DeliveryStatusInFlight).
		Exec(ctx)
	return err
}

func (s *DeliveryStore) MarkRetry(
	ctx context.Context,
	id string,
	result core.AttemptResult,
	nextAttemptAt time.Time,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", core.DeliveryStatusPendingRetry).
		Set("attempts = attempts + 1").
		Set("next_attempt_at = ?", nextAttemptAt.UTC()).
		Set("last_response_status = ?", result.StatusCode).
		Set("last_response_body = ?", truncateBody(result.Body)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("status = ?", core.DeliveryStatusInFlight).
		Exec(ctx)
	return err
}

func (s *DeliveryStore) MarkExhausted(ctx context.Context, id string, result core.AttemptResult) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", core.DeliveryStatusFailedExhausted).
		Set("attempts = attempts + 1").
		Set("next_attempt_at = NULL").
		Set("last_response_status = ?", result.StatusCode).
		Set("last_response_body = ?", truncateBody(result.Body)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("status = ?", core.DeliveryStatusInFlight).
		Exec(ctx)
	return err
}

// Cancel removes a delivery that has not reached a terminal state.
func (s *DeliveryStore) Cancel(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.NewBadInputError("sqlstore: delivery id is required")
	}
	result, err := s.db.NewDelete().
		Model((*webhookDeliveryRecord)(nil)).
		Where("id = ?", id).
		Where("status NOT IN (?, ?)", core.DeliveryStatusDelivered, core.DeliveryStatusFailedExhausted).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NewNotFoundError(fmt.Sprintf("sqlstore: cancellable delivery %q not found", id))
	}
	return nil
}

func (s *DeliveryStore) Get(ctx context.Context, id string) (core.WebhookDelivery, error) {
	if s == nil || s.db == nil {
		return core.WebhookDelivery{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	record := &webhookDeliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.WebhookDelivery{}, core.NewNotFoundError(
				fmt.Sprintf("sqlstore: delivery %q not found", id),
			)
		}
		return core.WebhookDelivery{}, err
	}
	return webhookDeliveryToDomain(record), nil
}

func (s *DeliveryStore) ListExhausted(ctx context.Context, limit int) ([]core.WebhookDelivery, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []webhookDeliveryRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", core.DeliveryStatusFailedExhausted).
		Order("updated_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	deliveries := make([]core.WebhookDelivery, 0, len(records))
	for i := range records {
		deliveries = append(deliveries, webhookDeliveryToDomain(&records[i]))
	}
	return deliveries, nil
}

// Requeue resets an exhausted delivery for an operator-initiated retry.
func (s *DeliveryStore) Requeue(ctx context.Context, id string, nextAttemptAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.NewBadInputError("sqlstore: delivery id is required")
	}
	result, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", core.DeliveryStatusPendingRetry).
		Set("attempts = 0").
		Set("next_attempt_at = ?", nextAttemptAt.UTC()).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", core.DeliveryStatusFailedExhausted).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NewNotFoundError(fmt.Sprintf("sqlstore: exhausted delivery %q not found", id))
	}
	return nil
}

func webhookDeliveryToDomain(record *webhookDeliveryRecord) core.WebhookDelivery {
	if record == nil {
		return core.WebhookDelivery{}
	}
	delivery := core.WebhookDelivery{
		ID:                 record.ID,
		EndpointID:         record.EndpointID,
		EventID:            record.EventID,
		EventType:          record.EventType,
		Payload:            append([]byte(nil), record.Payload...),
		Status:             record.Status,
		Attempts:           record.Attempts,
		LastResponseStatus: record.LastResponseStatus,
		LastResponseBody:   record.LastResponseBody,
		CreatedAt:          record.CreatedAt,
		UpdatedAt:          record.UpdatedAt,
	}
	if record.NextAttemptAt != nil {
		value := *record.NextAttemptAt
		delivery.NextAttemptAt = &value
	}
	return delivery
}

var _ core.DeliveryStore = (*DeliveryStore)(nil)
