package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-delivery/core"
)

const (
	TypeRegisterEndpoint   = "delivery.command.endpoint.register"
	TypeSetEndpointEnabled = "delivery.command.endpoint.set_enabled"
	TypeRotateSecret       = "delivery.command.endpoint.rotate_secret"
	TypePublishEvent       = "delivery.command.event.publish"
	TypeCancelDelivery     = "delivery.command.delivery.cancel"
	TypeRequeueDelivery    = "delivery.command.delivery.requeue"
	TypeRetryIncoming      = "delivery.command.incoming.retry"
)

type RegisterEndpointMessage struct {
	Input core.CreateEndpointInput
}

func (RegisterEndpointMessage) Type() string { return TypeRegisterEndpoint }

func (m RegisterEndpointMessage) Validate() error {
	if strings.TrimSpace(m.Input.URL) == "" {
		return commandValidationError("url", "endpoint url is required")
	}
	if !m.Input.Wildcard && len(m.Input.EventTypes) == 0 {
		return commandValidationError("event_types", "endpoint needs event types or the wildcard")
	}
	return nil
}

type SetEndpointEnabledMessage struct {
	EndpointID string
	Enabled    bool
}

func (SetEndpointEnabledMessage) Type() string { return TypeSetEndpointEnabled }

func (m SetEndpointEnabledMessage) Validate() error {
	if strings.TrimSpace(m.EndpointID) == "" {
		return fmt.Errorf("command: endpoint id is required")
	}
	return nil
}

type RotateSecretMessage struct {
	EndpointID string
}

func (RotateSecretMessage) Type() string { return TypeRotateSecret }

func (m RotateSecretMessage) Validate() error {
	if strings.TrimSpace(m.EndpointID) == "" {
		return fmt.Errorf("command: endpoint id is required")
	}
	return nil
}

type PublishEventMessage struct {
	Event core.Event
}

func (PublishEventMessage) Type() string { return TypePublishEvent }

func (m PublishEventMessage) Validate() error {
	if strings.TrimSpace(m.Event.Type) == "" {
		return fmt.Errorf("command: event type is required")
	}
	return nil
}

type CancelDeliveryMessage struct {
	DeliveryID string
}

func (CancelDeliveryMessage) Type() string { return TypeCancelDelivery }

func (m CancelDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return fmt.Errorf("command: delivery id is required")
	}
	return nil
}

type RequeueDeliveryMessage struct {
	DeliveryID string
}

func (RequeueDeliveryMessage) Type() string { return TypeRequeueDelivery }

func (m RequeueDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return fmt.Errorf("command: delivery id is required")
	}
	return nil
}

type RetryIncomingMessage struct {
	Source  string
	EventID string
}

func (RetryIncomingMessage) Type() string { return TypeRetryIncoming }

func (m RetryIncomingMessage) Validate() error {
	if strings.TrimSpace(m.Source) == "" {
		return fmt.Errorf("command: event source is required")
	}
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("command: event id is required")
	}
	return nil
}
