package core

import (
	"fmt"
	"strings"
	"time"
)

type WorkerConfig struct {
	PoolSize            int            `koanf:"pool_size" mapstructure:"pool_size"`
	ClaimBatch          int            `koanf:"claim_batch" mapstructure:"claim_batch"`
	PollInterval        time.Duration  `koanf:"poll_interval" mapstructure:"poll_interval"`
	SendTimeout         time.Duration  `koanf:"send_timeout" mapstructure:"send_timeout"`
	EndpointConcurrency int            `koanf:"endpoint_concurrency" mapstructure:"endpoint_concurrency"`
	Queues              map[string]int `koanf:"queues" mapstructure:"queues"`
}

type IdempotencyConfig struct {
	TTL       time.Duration `koanf:"ttl" mapstructure:"ttl"`
	Staleness time.Duration `koanf:"staleness" mapstructure:"staleness"`
}

type SignatureConfig struct {
	Tolerance time.Duration `koanf:"tolerance" mapstructure:"tolerance"`
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	Worker      WorkerConfig      `koanf:"worker" mapstructure:"worker"`
	Idempotency IdempotencyConfig `koanf:"idempotency" mapstructure:"idempotency"`
	Signature   SignatureConfig   `koanf:"signature" mapstructure:"signature"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "delivery",
		Worker: WorkerConfig{
			PoolSize:     4,
			ClaimBatch:   25,
			PollInterval: time.Second,
			SendTimeout:  30 * time.Second,
			Queues:       map[string]int{},
		},
		Idempotency: IdempotencyConfig{
			TTL:       DefaultIdempotencyTTL,
			Staleness: DefaultStalenessWindow,
		},
		Signature: SignatureConfig{
			Tolerance: DefaultSignatureTolerance,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Worker.PoolSize < 0 {
		return fmt.Errorf("core: worker.pool_size must not be negative")
	}
	if c.Worker.ClaimBatch < 0 {
		return fmt.Errorf("core: worker.claim_batch must not be negative")
	}
	if c.Worker.EndpointConcurrency < 0 {
		return fmt.Errorf("core: worker.endpoint_concurrency must not be negative")
	}
	for queue, limit := range c.Worker.Queues {
		if strings.TrimSpace(queue) == "" {
			return fmt.Errorf("core: worker.queues contains an empty queue name")
		}
		if limit <= 0 {
			return fmt.Errorf("core: worker.queues[%s] must be positive", queue)
		}
	}
	if c.Idempotency.TTL < 0 {
		return fmt.Errorf("core: idempotency.ttl must not be negative")
	}
	if c.Idempotency.Staleness < 0 {
		return fmt.Errorf("core: idempotency.staleness must not be negative")
	}
	if c.Signature.Tolerance < 0 {
		return fmt.Errorf("core: signature.tolerance must not be negative")
	}
	return nil
}
