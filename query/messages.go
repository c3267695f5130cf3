package query

import (
	"fmt"
	"strings"
)

const (
	TypeGetEndpoint             = "delivery.query.endpoint.get"
	TypeGetDelivery             = "delivery.query.delivery.get"
	TypeListExhaustedDeliveries = "delivery.query.delivery.list_exhausted"
	TypeListIncomingErrors      = "delivery.query.incoming.list_errors"
	TypeGetIncomingEvent        = "delivery.query.incoming.get"
)

type GetEndpointMessage struct {
	EndpointID string
}

func (GetEndpointMessage) Type() string { return TypeGetEndpoint }

func (m GetEndpointMessage) Validate() error {
	if strings.TrimSpace(m.EndpointID) == "" {
		return fmt.Errorf("query: endpoint id is required")
	}
	return nil
}

type GetDeliveryMessage struct {
	DeliveryID string
}

func (GetDeliveryMessage) Type() string { return TypeGetDelivery }

func (m GetDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return fmt.Errorf("query: delivery id is required")
	}
	return nil
}

type ListExhaustedDeliveriesMessage struct {
	Limit int
}

func (ListExhaustedDeliveriesMessage) Type() string { return TypeListExhaustedDeliveries }

func (m ListExhaustedDeliveriesMessage) Validate() error {
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	return nil
}

type ListIncomingErrorsMessage struct {
	Limit int
}

func (ListIncomingErrorsMessage) Type() string { return TypeListIncomingErrors }

func (m ListIncomingErrorsMessage) Validate() error {
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	return nil
}

type GetIncomingEventMessage struct {
	Source  string
	EventID string
}

func (GetIncomingEventMessage) Type() string { return TypeGetIncomingEvent }

func (m GetIncomingEventMessage) Validate() error {
	if strings.TrimSpace(m.Source) == "" {
		return fmt.Errorf("query: event source is required")
	}
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("query: event id is required")
	}
	return nil
}
