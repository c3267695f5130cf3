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

type IncomingEventStore struct {
	db   *bun.DB
	repo repository.Repository[*incomingEventRecord]
}

func NewIncomingEventStore(db *bun.DB) (*IncomingEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*incomingEventRecord](db, incomingEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid incoming event repository wiring: %w", err)
		}
	}
	return &IncomingEventStore{db: db, repo: repo}, nil
}

func (s *IncomingEventStore) Insert(
	ctx context.Context,
	event core.IncomingEvent,
) (core.IncomingEvent, bool, error) {
	if s == nil || s.db == nil {
		return core.IncomingEvent{}, false, fmt.Errorf("sqlstore: incoming event store is not configured")
	}
	source := strings.TrimSpace(event.Source)
	eventID := strings.TrimSpace(event.EventID)
	if source == "" || eventID == "" {
		return core.IncomingEvent{}, false, fmt.Errorf("sqlstore: source and event id are required")
	}
	now := time.Now().UTC()
	id := strings.TrimSpace(event.ID)
	if id == "" {
		id = uuid.NewString()
	}
	status := event.Status
	if status == "" {
		status = core.IncomingStatusReceived
	}
	record := &incomingEventRecord{
		ID:        id,
		Source:    source,
		EventID:   eventID,
		Payload:   append([]byte(nil), event.Payload...),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.Get(ctx, source, eventID)
			if getErr != nil {
				return core.IncomingEvent{}, false, getErr
			}
			return existing, false, nil
		}
		return core.IncomingEvent{}, false, err
	}
	return incomingEventToDomain(record), true, nil
}

// MarkProcessing flips received -> processing as a compare-and-set; a second
// worker racing for the same event observes zero rows affected.
func (s *IncomingEventStore) MarkProcessing(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: incoming event store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*incomingEventRecord)(nil)).
		Set("status = ?", core.IncomingStatusProcessing).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("status = ?", core.IncomingStatusReceived).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *IncomingEventStore) MarkProcessed(ctx context.Context, id string, processedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: incoming event store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*incomingEventRecord)(nil)).
		Set("status = ?", core.IncomingStatusProcessed).
		Set("error_message = ?", "").
		Set("processed_at = ?", processedAt.UTC()).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("status = ?", core.IncomingStatusProcessing).
		Exec(ctx)
	return err
}

func (s *IncomingEventStore) MarkError(ctx context.Context, id string, message string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: incoming event store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*incomingEventRecord)(nil)).
		Set("status = ?", core.IncomingStatusError).
		Set("error_message = ?", truncateBody(strings.TrimSpace(message))).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	return err
}

func (s *IncomingEventStore) Get(
	ctx context.Context,
	source string,
	eventID string,
) (core.IncomingEvent, error) {
	if s == nil || s.db == nil {
		return core.IncomingEvent{}, fmt.Errorf("sqlstore: incoming event store is not configured")
	}
	record := &incomingEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.source = ?", strings.TrimSpace(source)).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(eventID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.IncomingEvent{}, core.NewNotFoundError(fmt.Sprintf(
				"sqlstore: incoming event not found for source %q event %q",
				source,
				eventID,
			))
		}
		return core.IncomingEvent{}, err
	}
	return incomingEventToDomain(record), nil
}

func (s *IncomingEventStore) ListErrors(ctx context.Context, limit int) ([]core.IncomingEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: incoming event store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []incomingEventRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", core.IncomingStatusError).
		Order("updated_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	events := make([]core.IncomingEvent, 0, len(records))
	for i := range records {
		events = append(events, incomingEventToDomain(&records[i]))
	}
	return events, nil
}

// Reset returns an errored event to received so an operator can re-run it.
func (s *IncomingEventStore) Reset(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: incoming event store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.NewBadInputError("sqlstore: incoming event id is required")
	}
	result, err := s.db.NewUpdate().
		Model((*incomingEventRecord)(nil)).
		Set("status = ?", core.IncomingStatusReceived).
		Set("error_message = ?", "").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", core.IncomingStatusError).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NewNotFoundError(fmt.Sprintf("sqlstore: errored incoming event %q not found", id))
	}
	return nil
}

func incomingEventToDomain(record *incomingEventRecord) core.IncomingEvent {
	if record == nil {
		return core.IncomingEvent{}
	}
	event := core.IncomingEvent{
		ID:           record.ID,
		Source:       record.Source,
		EventID:      record.EventID,
		Payload:      append([]byte(nil), record.Payload...),
		Status:       record.Status,
		ErrorMessage: record.ErrorMessage,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
	if record.ProcessedAt != nil {
		value := *record.ProcessedAt
		event.ProcessedAt = &value
	}
	return event
}

var _ core.IncomingEventStore = (*IncomingEventStore)(nil)
