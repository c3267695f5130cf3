package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-delivery/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const endpointCacheKeyPrefix = "go-delivery::webhook_endpoint::v1"

// CachedEndpointStore fronts endpoint reads with a cache. Fan-out consults
// the enabled list on every published event, so this is the hot path; every
// mutation invalidates the affected keys before delegating.
type CachedEndpointStore struct {
	base  core.EndpointStore
	cache repositorycache.CacheService
}

func NewCachedEndpointStore(
	base core.EndpointStore,
	cacheService repositorycache.CacheService,
) (*CachedEndpointStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base endpoint store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: endpoint cache service is required")
	}
	return &CachedEndpointStore{base: base, cache: cacheService}, nil
}

func endpointCacheKey(id string) string {
	return endpointCacheKeyPrefix + "::" + url.PathEscape(strings.TrimSpace(id))
}

func enabledEndpointsCacheKey() string {
	return endpointCacheKeyPrefix + "::enabled"
}

func (s *CachedEndpointStore) Create(
	ctx context.Context,
	input core.CreateEndpointInput,
) (core.WebhookEndpoint, error) {
	if s == nil || s.base == nil {
		return core.WebhookEndpoint{}, fmt.Errorf("sqlstore: cached endpoint store is not configured")
	}
	created, err := s.base.Create(ctx, input)
	if err != nil {
		return core.WebhookEndpoint{}, err
	}
	if err := s.invalidate(ctx, created.ID); err != nil {
		return core.WebhookEndpoint{}, err
	}
	return created, nil
}

func (s *CachedEndpointStore) Get(ctx context.Context, id string) (core.WebhookEndpoint, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.WebhookEndpoint{}, fmt.Errorf("sqlstore: cached endpoint store is not configured")
	}
	return repositorycache.GetOrFetch(ctx, s.cache, endpointCacheKey(id),
		func(ctx context.Context) (core.WebhookEndpoint, error) {
			return s.base.Get(ctx, id)
		})
}

// GetWithSecret always reads through: the signing secret never enters the
// cache.
func (s *CachedEndpointStore) GetWithSecret(ctx context.Context, id string) (core.WebhookEndpoint, error) {
	if s == nil || s.base == nil {
		return core.WebhookEndpoint{}, fmt.Errorf("sqlstore: cached endpoint store is not configured")
	}
	return s.base.GetWithSecret(ctx, id)
}

func (s *CachedEndpointStore) ListEnabled(ctx context.Context) ([]core.WebhookEndpoint, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached endpoint store is not configured")
	}
	return repositorycache.GetOrFetch(ctx, s.cache, enabledEndpointsCacheKey(),
		func(ctx context.Context) ([]core.WebhookEndpoint, error) {
			return s.base.ListEnabled(ctx)
		})
}

func (s *CachedEndpointStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if s == nil || s.base == nil {
		return fmt.Errorf("sqlstore: cached endpoint store is not configured")
	}
	if err := s.base.SetEnabled(ctx, id, enabled); err != nil {
		return err
	}
	return s.invalidate(ctx, id)
}

func (s *CachedEndpointStore) RotateSecret(ctx context.Context, id string) (core.WebhookEndpoint, error) {
	if s == nil || s.base == nil {
		return core.WebhookEndpoint{}, fmt.Errorf("sqlstore: cached endpoint store is not configured")
	}
	rotated, err := s.base.RotateSecret(ctx, id)
	if err != nil {
		return core.WebhookEndpoint{}, err
	}
	if err := s.invalidate(ctx, id); err != nil {
		return core.WebhookEndpoint{}, err
	}
	return rotated, nil
}

func (s *CachedEndpointStore) invalidate(ctx context.Context, id string) error {
	if s == nil || s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, endpointCacheKey(id)); err != nil {
		return err
	}
	return s.cache.Delete(ctx, enabledEndpointsCacheKey())
}

var _ core.EndpointStore = (*CachedEndpointStore)(nil)
