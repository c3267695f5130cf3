package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-delivery/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type IdempotencyStore struct {
	db   *bun.DB
	repo repository.Repository[*idempotencyKeyRecord]
}

func NewIdempotencyStore(db *bun.DB) (*IdempotencyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*idempotencyKeyRecord](db, idempotencyKeyHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid idempotency repository wiring: %w", err)
		}
	}
	return &IdempotencyStore{db: db, repo: repo}, nil
}

func (s *IdempotencyStore) InsertLocked(
	ctx context.Context,
	record core.IdempotencyRecord,
) (core.IdempotencyRecord, bool, error) {
	if s == nil || s.db == nil {
		return core.IdempotencyRecord{}, false, fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	stored := newIdempotencyKeyRecord(record)
	if _, err := s.db.NewInsert().Model(stored).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.Get(ctx, record.Scope, record.Key)
			if getErr != nil {
				return core.IdempotencyRecord{}, false, getErr
			}
			return existing, false, nil
		}
		return core.IdempotencyRecord{}, false, err
	}
	return idempotencyKeyToDomain(stored), true, nil
}

// StealLock installs a new lock token on a stale locked row. The predicate
// on status and locked_at makes the takeover a compare-and-set: a concurrent
// completion, release, or steal leaves zero rows affected.
func (s *IdempotencyStore) StealLock(
	ctx context.Context,
	scope core.IdempotencyScope,
	key string,
	staleBefore time.Time,
	lockToken string,
) (core.IdempotencyRecord, bool, error) {
	if s == nil || s.db == nil {
		return core.IdempotencyRecord{}, false, fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	lockToken = strings.TrimSpace(lockToken)
	if lockToken == "" {
		return core.IdempotencyRecord{}, false, fmt.Errorf("sqlstore: lock token is required")
	}
	now := time.Now().UTC()
	result, err := s.db.NewUpdate().
		Model((*idempotencyKeyRecord)(nil)).
		Set("lock_token = ?", lockToken).
		Set("locked_at = ?", now).
		Set("updated_at = ?", now).
		Where("owner_type = ?", strings.TrimSpace(scope.Owner.Type)).
		Where("owner_id = ?", strings.TrimSpace(scope.Owner.ID)).
		Where("path = ?", strings.TrimSpace(scope.Path)).
		Where("key = ?", strings.TrimSpace(key)).
		Where("status = ?", core.IdempotencyStatusLocked).
		Where("locked_at < ?", staleBefore.UTC()).
		Exec(ctx)
	if err != nil {
		return core.IdempotencyRecord{}, false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.IdempotencyRecord{}, false, err
	}
	if affected == 0 {
		return core.IdempotencyRecord{}, false, nil
	}
	stolen, err := s.Get(ctx, scope, key)
	if err != nil {
		return core.IdempotencyRecord{}, false, err
	}
	return stolen, true, nil
}

func (s *IdempotencyStore) Complete(
	ctx context.Context,
	lockToken string,
	response core.CachedResponse,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	lockToken = strings.TrimSpace(lockToken)
	if lockToken == "" {
		return fmt.Errorf("sqlstore: lock token is required")
	}
	now := time.Now().UTC()
	result, err := s.db.NewUpdate().
		Model((*idempotencyKeyRecord)(nil)).
		Set("status = ?", core.IdempotencyStatusCompleted).
		Set("response_status = ?", response.Status).
		Set("response_body = ?", response.Body).
		Set("completed_at = ?", now).
		Set("updated_at = ?", now).
		Where("lock_token = ?", lockToken).
		Where("status = ?", core.IdempotencyStatusLocked).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: lock token %q does not hold an active lock", lockToken)
	}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, lockToken string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	lockToken = strings.TrimSpace(lockToken)
	if lockToken == "" {
		return fmt.Errorf("sqlstore: lock token is required")
	}
	_, err := s.db.NewDelete().
		Model((*idempotencyKeyRecord)(nil)).
		Where("lock_token = ?", lockToken).
		Where("status = ?", core.IdempotencyStatusLocked).
		Exec(ctx)
	return err
}

func (s *IdempotencyStore) Get(
	ctx context.Context,
	scope core.IdempotencyScope,
	key string,
) (core.IdempotencyRecord, error) {
	if s == nil || s.db == nil {
		return core.IdempotencyRecord{}, fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	record := &idempotencyKeyRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.owner_type = ?", strings.TrimSpace(scope.Owner.Type)).
		Where("?TableAlias.owner_id = ?", strings.TrimSpace(scope.Owner.ID)).
		Where("?TableAlias.path = ?", strings.TrimSpace(scope.Path)).
		Where("?TableAlias.key = ?", strings.TrimSpace(key)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.IdempotencyRecord{}, fmt.Errorf(
				"sqlstore: idempotency record not found for key %q",
				key,
			)
		}
		return core.IdempotencyRecord{}, err
	}
	return idempotencyKeyToDomain(record), nil
}

func (s *IdempotencyStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*idempotencyKeyRecord)(nil)).
		Where("expires_at <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func newIdempotencyKeyRecord(record core.IdempotencyRecord) *idempotencyKeyRecord {
	now := time.Now().UTC()
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &idempotencyKeyRecord{
		ID:             strings.TrimSpace(record.ID),
		OwnerType:      strings.TrimSpace(record.Scope.Owner.Type),
		OwnerID:        strings.TrimSpace(record.Scope.Owner.ID),
		Path:           strings.TrimSpace(record.Scope.Path),
		Key:            strings.TrimSpace(record.Key),
		RequestHash:    strings.TrimSpace(record.RequestHash),
		Status:         record.Status,
		LockToken:      strings.TrimSpace(record.LockToken),
		ResponseStatus: record.ResponseStatus,
		ResponseBody:   append([]byte(nil), record.ResponseBody...),
		LockedAt:       record.LockedAt.UTC(),
		ExpiresAt:      record.ExpiresAt.UTC(),
		CreatedAt:      createdAt,
		UpdatedAt:      now,
	}
}

func idempotencyKeyToDomain(record *idempotencyKeyRecord) core.IdempotencyRecord {
	if record == nil {
		return core.IdempotencyRecord{}
	}
	result := core.IdempotencyRecord{
		ID:  record.ID,
		Key: record.Key,
		Scope: core.IdempotencyScope{
			Owner: core.ScopeRef{Type: record.OwnerType, ID: record.OwnerID},
			Path:  record.Path,
		},
		RequestHash:    record.RequestHash,
		Status:         record.Status,
		LockToken:      record.LockToken,
		ResponseStatus: record.ResponseStatus,
		ResponseBody:   append([]byte(nil), record.ResponseBody...),
		LockedAt:       record.LockedAt,
		ExpiresAt:      record.ExpiresAt,
		CreatedAt:      record.CreatedAt,
		UpdatedAt:      record.UpdatedAt,
	}
	if record.CompletedAt != nil {
		value := *record.CompletedAt
		result.CompletedAt = &value
	}
	return result
}

var _ core.IdempotencyStore = (*IdempotencyStore)(nil)
