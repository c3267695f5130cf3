package query

import (
	"context"

	"github.com/goliatone/go-delivery/core"
)

type EndpointReader interface {
	GetEndpoint(ctx context.Context, id string) (core.WebhookEndpoint, error)
}

type DeliveryReader interface {
	GetDelivery(ctx context.Context, id string) (core.WebhookDelivery, error)
	ListExhaustedDeliveries(ctx context.Context, limit int) ([]core.WebhookDelivery, error)
}

type IncomingEventReader interface {
	GetIncomingEvent(ctx context.Context, source string, eventID string) (core.IncomingEvent, error)
	ListIncomingErrors(ctx context.Context, limit int) ([]core.IncomingEvent, error)
}

type GetEndpointQuery struct {
	reader EndpointReader
}

func NewGetEndpointQuery(reader EndpointReader) *GetEndpointQuery {
	return &GetEndpointQuery{reader: reader}
}

func (q *GetEndpointQuery) Query(ctx context.Context, msg GetEndpointMessage) (core.WebhookEndpoint, error) {
	if q == nil || q.reader == nil {
		return core.WebhookEndpoint{}, queryDependencyError("query: endpoint reader is required")
	}
	return q.reader.GetEndpoint(ctx, msg.EndpointID)
}

type GetDeliveryQuery struct {
	reader DeliveryReader
}

func NewGetDeliveryQuery(reader DeliveryReader) *GetDeliveryQuery {
	return &GetDeliveryQuery{reader: reader}
}

func (q *GetDeliveryQuery) Query(ctx context.Context, msg GetDeliveryMessage) (core.WebhookDelivery, error) {
	if q == nil || q.reader == nil {
		return core.WebhookDelivery{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.GetDelivery(ctx, msg.DeliveryID)
}

type ListExhaustedDeliveriesQuery struct {
	reader DeliveryReader
}

func NewListExhaustedDeliveriesQuery(reader DeliveryReader) *ListExhaustedDeliveriesQuery {
	return &ListExhaustedDeliveriesQuery{reader: reader}
}

func (q *ListExhaustedDeliveriesQuery) Query(
	ctx context.Context,
	msg ListExhaustedDeliveriesMessage,
) ([]core.WebhookDelivery, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.ListExhaustedDeliveries(ctx, msg.Limit)
}

type ListIncomingErrorsQuery struct {
	reader IncomingEventReader
}

func NewListIncomingErrorsQuery(reader IncomingEventReader) *ListIncomingErrorsQuery {
	return &ListIncomingErrorsQuery{reader: reader}
}

func (q *ListIncomingErrorsQuery) Query(
	ctx context.Context,
	msg ListIncomingErrorsMessage,
) ([]core.IncomingEvent, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: incoming event reader is required")
	}
	return q.reader.ListIncomingErrors(ctx, msg.Limit)
}

type GetIncomingEventQuery struct {
	reader IncomingEventReader
}

func NewGetIncomingEventQuery(reader IncomingEventReader) *GetIncomingEventQuery {
	return &GetIncomingEventQuery{reader: reader}
}

func (q *GetIncomingEventQuery) Query(ctx context.Context, msg GetIncomingEventMessage) (core.IncomingEvent, error) {
	if q == nil || q.reader == nil {
		return core.IncomingEvent{}, queryDependencyError("query: incoming event reader is required")
	}
	return q.reader.GetIncomingEvent(ctx, msg.Source, msg.EventID)
}
