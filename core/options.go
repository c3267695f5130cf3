package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct{}

func (staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return map[string]any{}, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver merges defaults < loaded config < runtime overrides via
// a layered options stack and re-validates the result.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	worker := map[string]any{}
	if includeZero || cfg.Worker.PoolSize != 0 {
		worker["pool_size"] = cfg.Worker.PoolSize
	}
	if includeZero || cfg.Worker.ClaimBatch != 0 {
		worker["claim_batch"] = cfg.Worker.ClaimBatch
	}
	if includeZero || cfg.Worker.PollInterval != 0 {
		worker["poll_interval"] = cfg.Worker.PollInterval
	}
	if includeZero || cfg.Worker.SendTimeout != 0 {
		worker["send_timeout"] = cfg.Worker.SendTimeout
	}
	if includeZero || cfg.Worker.EndpointConcurrency != 0 {
		worker["endpoint_concurrency"] = cfg.Worker.EndpointConcurrency
	}
	if includeZero || len(cfg.Worker.Queues) > 0 {
		queues := make(map[string]int, len(cfg.Worker.Queues))
		for name, limit := range cfg.Worker.Queues {
			queues[name] = limit
		}
		worker["queues"] = queues
	}
	if len(worker) > 0 {
		layer["worker"] = worker
	}

	idempotency := map[string]any{}
	if includeZero || cfg.Idempotency.TTL != 0 {
		idempotency["ttl"] = cfg.Idempotency.TTL
	}
	if includeZero || cfg.Idempotency.Staleness != 0 {
		idempotency["staleness"] = cfg.Idempotency.Staleness
	}
	if len(idempotency) > 0 {
		layer["idempotency"] = idempotency
	}

	signature := map[string]any{}
	if includeZero || cfg.Signature.Tolerance != 0 {
		signature["tolerance"] = cfg.Signature.Tolerance
	}
	if len(signature) > 0 {
		layer["signature"] = signature
	}

	return layer
}
