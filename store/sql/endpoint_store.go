package sqlstore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-delivery/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const endpointSecretPrefix = "whsec_"

type EndpointStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookEndpointRecord]
}

func NewEndpointStore(db *bun.DB) (*EndpointStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookEndpointRecord](db, webhookEndpointHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid endpoint repository wiring: %w", err)
		}
	}
	return &EndpointStore{db: db, repo: repo}, nil
}

// Create stores a new endpoint with a freshly generated secret. The returned
// endpoint carries the secret; every later read redacts it.
func (s *EndpointStore) Create(
	ctx context.Context,
	input core.CreateEndpointInput,
) (core.WebhookEndpoint, error) {
	if s == nil || s.repo == nil {
		return core.WebhookEndpoint{}, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	ownerID := strings.TrimSpace(input.OwnerID)
	if ownerID == "" {
		return core.WebhookEndpoint{}, core.NewBadInputError("sqlstore: endpoint owner id is required")
	}
	endpointURL, err := validateEndpointURL(input.URL)
	if err != nil {
		return core.WebhookEndpoint{}, err
	}
	eventTypes, wildcard := core.NormalizeEventTypes(input.EventTypes)
	if input.Wildcard {
		wildcard = true
	}
	if !wildcard && len(eventTypes) == 0 {
		return core.WebhookEndpoint{}, core.NewBadInputError(
			"sqlstore: endpoint requires subscribed event types or the wildcard",
		)
	}

	secret, err := generateEndpointSecret()
	if err != nil {
		return core.WebhookEndpoint{}, err
	}

	now := time.Now().UTC()
	record := &webhookEndpointRecord{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		URL:        endpointURL,
		Secret:     secret,
		EventTypes: eventTypes,
		Wildcard:   wildcard,
		Enabled:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.repo.Create(ctx, record); err != nil {
		return core.WebhookEndpoint{}, err
	}
	return webhookEndpointToDomain(record, true), nil
}

func (s *EndpointStore) Get(ctx context.Context, id string) (core.WebhookEndpoint, error) {
	record, err := s.get(ctx, id)
	if err != nil {
		return core.WebhookEndpoint{}, err
	}
	return webhookEndpointToDomain(record, false), nil
}

func (s *EndpointStore) GetWithSecret(ctx context.Context, id string) (core.WebhookEndpoint, error) {
	record, err := s.get(ctx, id)
	if err != nil {
		return core.WebhookEndpoint{}, err
	}
	return webhookEndpointToDomain(record, true), nil
}

func (s *EndpointStore) ListEnabled(ctx context.Context) ([]core.WebhookEndpoint, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	var records []webhookEndpointRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.enabled = ?", true).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	endpoints := make([]core.WebhookEndpoint, 0, len(records))
	for i := range records {
		endpoints = append(endpoints, webhookEndpointToDomain(&records[i], false))
	}
	return endpoints, nil
}

func (s *EndpointStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.NewBadInputError("sqlstore: endpoint id is required")
	}
	result, err := s.db.NewUpdate().
		Model((*webhookEndpointRecord)(nil)).
		Set("enabled = ?", enabled).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NewNotFoundError(fmt.Sprintf("sqlstore: endpoint %q not found", id))
	}
	return nil
}

// RotateSecret replaces the signing secret and returns the endpoint with the
// new secret visible exactly once.
func (s *EndpointStore) RotateSecret(ctx context.Context, id string) (core.WebhookEndpoint, error) {
	if s == nil || s.db == nil {
		return core.WebhookEndpoint{}, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.WebhookEndpoint{}, core.NewBadInputError("sqlstore: endpoint id is required")
	}
	secret, err := generateEndpointSecret()
	if err != nil {
		return core.WebhookEndpoint{}, err
	}
	result, err := s.db.NewUpdate().
		Model((*webhookEndpointRecord)(nil)).
		Set("secret = ?", secret).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return core.WebhookEndpoint{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.WebhookEndpoint{}, err
	}
	if affected == 0 {
		return core.WebhookEndpoint{}, core.NewNotFoundError(fmt.Sprintf("sqlstore: endpoint %q not found", id))
	}
	record, err := s.get(ctx, id)
	if err != nil {
		return core.WebhookEndpoint{}, err
	}
	return webhookEndpointToDomain(record, true), nil
}

func (s *EndpointStore) get(ctx context.Context, id string) (*webhookEndpointRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, core.NewBadInputError("sqlstore: endpoint id is required")
	}
	record := &webhookEndpointRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NewNotFoundError(fmt.Sprintf("sqlstore: endpoint %q not found", id))
		}
		return nil, err
	}
	return record, nil
}

func validateEndpointURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", core.NewBadInputError("sqlstore: endpoint url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", core.NewBadInputError("sqlstore: endpoint url is malformed")
	}
	if !strings.EqualFold(parsed.Scheme, "https") {
		return "", core.NewBadInputError("sqlstore: endpoint url must use https")
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return "", core.NewBadInputError("sqlstore: endpoint url requires a host")
	}
	return raw, nil
}

func generateEndpointSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("sqlstore: generate endpoint secret: %w", err)
	}
	return endpointSecretPrefix + hex.EncodeToString(raw), nil
}

func webhookEndpointToDomain(record *webhookEndpointRecord, includeSecret bool) core.WebhookEndpoint {
	if record == nil {
		return core.WebhookEndpoint{}
	}
	endpoint := core.WebhookEndpoint{
		ID:         record.ID,
		OwnerID:    record.OwnerID,
		URL:        record.URL,
		EventTypes: append([]string(nil), record.EventTypes...),
		Wildcard:   record.Wildcard,
		Enabled:    record.Enabled,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
	if includeSecret {
		endpoint.Secret = record.Secret
	}
	return endpoint
}

var _ core.EndpointStore = (*EndpointStore)(nil)
