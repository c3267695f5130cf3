package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-delivery/core"
	"github.com/goliatone/go-delivery/inbound"
)

const DefaultEnvPrefix = "DELIVERY_SECRET_"

// EnvResolver reads source secrets from the process environment. The lookup
// key is Prefix plus the source name uppercased with separators flattened,
// so "stripe" becomes DELIVERY_SECRET_STRIPE.
type EnvResolver struct {
	Prefix string
}

func (r EnvResolver) SecretForSource(_ context.Context, source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", core.NewBadInputError("secrets: webhook source is required")
	}
	prefix := r.Prefix
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultEnvPrefix
	}
	secret := os.Getenv(prefix + envKey(source))
	if strings.TrimSpace(secret) == "" {
		return "", core.NewBadInputError(fmt.Sprintf("secrets: no secret configured for source %q", source))
	}
	return secret, nil
}

func envKey(source string) string {
	key := strings.ToUpper(source)
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, ".", "_")
	return key
}

type FailurePolicy string

const (
	FailurePolicyStrict   FailurePolicy = "strict_fail"
	FailurePolicyFallback FailurePolicy = "fallback_allowed"
)

type Diagnostic struct {
	OccurredAt time.Time
	Source     string
	Policy     FailurePolicy
	Outcome    string
	Error      string
}

type DiagnosticHook func(event Diagnostic)

type FailoverOption func(*FailoverResolver)

// FailoverResolver asks the primary resolver first and, when the policy
// allows it, falls through to a fallback. Strict mode surfaces the primary
// failure so a misconfigured secret store is loud instead of silently served
// from the fallback.
type FailoverResolver struct {
	primary        inbound.SecretResolver
	fallback       inbound.SecretResolver
	policy         FailurePolicy
	diagnosticHook DiagnosticHook
	now            func() time.Time
}

func NewFailoverResolver(primary inbound.SecretResolver, opts ...FailoverOption) (*FailoverResolver, error) {
	if primary == nil {
		return nil, fmt.Errorf("secrets: primary resolver is required")
	}
	resolver := &FailoverResolver{
		primary: primary,
		policy:  FailurePolicyStrict,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(resolver)
	}
	resolver.policy = normalizeFailurePolicy(resolver.policy)
	if resolver.policy == FailurePolicyFallback && resolver.fallback == nil {
		return nil, fmt.Errorf("secrets: fallback policy requires a configured fallback resolver")
	}
	if resolver.now == nil {
		resolver.now = func() time.Time { return time.Now().UTC() }
	}
	return resolver, nil
}

func WithFallbackResolver(resolver inbound.SecretResolver) FailoverOption {
	return func(f *FailoverResolver) {
		if f == nil {
			return
		}
		f.fallback = resolver
	}
}

func WithFailurePolicy(policy FailurePolicy) FailoverOption {
	return func(f *FailoverResolver) {
		if f == nil {
			return
		}
		f.policy = normalizeFailurePolicy(policy)
	}
}

func WithDiagnostics(hook DiagnosticHook) FailoverOption {
	return func(f *FailoverResolver) {
		if f == nil {
			return
		}
		f.diagnosticHook = hook
	}
}

func WithFailoverClock(now func() time.Time) FailoverOption {
	return func(f *FailoverResolver) {
		if f == nil {
			return
		}
		f.now = now
	}
}

func (f *FailoverResolver) SecretForSource(ctx context.Context, source string) (string, error) {
	if f == nil {
		return "", fmt.Errorf("secrets: resolver is nil")
	}
	secret, err := f.primary.SecretForSource(ctx, source)
	if err == nil {
		return secret, nil
	}
	f.emit(source, "primary_failed", err)
	if f.policy == FailurePolicyStrict || f.fallback == nil {
		return "", fmt.Errorf("secrets: primary resolver failed with %s policy: %w", f.policy, err)
	}
	secret, fallbackErr := f.fallback.SecretForSource(ctx, source)
	if fallbackErr != nil {
		f.emit(source, "fallback_failed", fallbackErr)
		return "", fmt.Errorf("secrets: primary resolver failed: %v; fallback failed: %w", err, fallbackErr)
	}
	f.emit(source, "fallback_succeeded", err)
	return secret, nil
}

func (f *FailoverResolver) emit(source string, outcome string, err error) {
	if f == nil || f.diagnosticHook == nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	f.diagnosticHook(Diagnostic{
		OccurredAt: f.now().UTC(),
		Source:     source,
		Policy:     f.policy,
		Outcome:    outcome,
		Error:      msg,
	})
}

func normalizeFailurePolicy(policy FailurePolicy) FailurePolicy {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(string(policy)))) {
	case FailurePolicyFallback:
		return FailurePolicyFallback
	default:
		return FailurePolicyStrict
	}
}

// CachedResolver memoizes resolved secrets for TTL so the gateway does not hit
// a remote secret store on every webhook. Failures are never cached.
type CachedResolver struct {
	Source inbound.SecretResolver
	TTL    time.Duration
	Now    func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	secret    string
	expiresAt time.Time
}

const DefaultCacheTTL = 5 * time.Minute

func NewCachedResolver(source inbound.SecretResolver, ttl time.Duration) (*CachedResolver, error) {
	if source == nil {
		return nil, fmt.Errorf("secrets: source resolver is required")
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedResolver{
		Source:  source,
		TTL:     ttl,
		Now:     func() time.Time { return time.Now().UTC() },
		entries: map[string]cacheEntry{},
	}, nil
}

func (c *CachedResolver) SecretForSource(ctx context.Context, source string) (string, error) {
	if c == nil || c.Source == nil {
		return "", fmt.Errorf("secrets: resolver is not configured")
	}
	key := strings.ToLower(strings.TrimSpace(source))
	now := c.clock()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.secret, nil
	}

	secret, err := c.Source.SecretForSource(ctx, source)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{secret: secret, expiresAt: now.Add(c.ttl())}
	c.mu.Unlock()
	return secret, nil
}

// Invalidate drops one source from the cache, for use after a rotation.
func (c *CachedResolver) Invalidate(source string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, strings.ToLower(strings.TrimSpace(source)))
	c.mu.Unlock()
}

func (c *CachedResolver) clock() time.Time {
	if c != nil && c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

func (c *CachedResolver) ttl() time.Duration {
	if c != nil && c.TTL > 0 {
		return c.TTL
	}
	return DefaultCacheTTL
}

var (
	_ inbound.SecretResolver = EnvResolver{}
	_ inbound.SecretResolver = (*FailoverResolver)(nil)
	_ inbound.SecretResolver = (*CachedResolver)(nil)
)
