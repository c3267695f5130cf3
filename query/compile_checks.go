package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-delivery/core"
)

var (
	_ gocmd.Querier[GetEndpointMessage, core.WebhookEndpoint]                   = (*GetEndpointQuery)(nil)
	_ gocmd.Querier[GetDeliveryMessage, core.WebhookDelivery]                   = (*GetDeliveryQuery)(nil)
	_ gocmd.Querier[ListExhaustedDeliveriesMessage, []core.WebhookDelivery]     = (*ListExhaustedDeliveriesQuery)(nil)
	_ gocmd.Querier[ListIncomingErrorsMessage, []core.IncomingEvent]            = (*ListIncomingErrorsQuery)(nil)
	_ gocmd.Querier[GetIncomingEventMessage, core.IncomingEvent]                = (*GetIncomingEventQuery)(nil)
)
