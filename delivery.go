package delivery

import "github.com/goliatone/go-delivery/core"

type Config = core.Config

type WorkerConfig = core.WorkerConfig

type IdempotencyConfig = core.IdempotencyConfig

type SignatureConfig = core.SignatureConfig

type IdempotencyStore = core.IdempotencyStore
type EndpointStore = core.EndpointStore
type DeliveryStore = core.DeliveryStore
type IncomingEventStore = core.IncomingEventStore
type StoreProvider = core.StoreProvider
type MetricsRecorder = core.MetricsRecorder

type IdempotencyScope = core.IdempotencyScope
type IdempotencyRecord = core.IdempotencyRecord
type CachedResponse = core.CachedResponse
type AcquireResult = core.AcquireResult

type WebhookEndpoint = core.WebhookEndpoint
type CreateEndpointInput = core.CreateEndpointInput

type Event = core.Event
type WebhookDelivery = core.WebhookDelivery
type AttemptResult = core.AttemptResult
type IncomingEvent = core.IncomingEvent

func DefaultConfig() Config {
	return core.DefaultConfig()
}
