package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-delivery/core"
)

type MutatingService interface {
	RegisterEndpoint(ctx context.Context, input core.CreateEndpointInput) (core.WebhookEndpoint, error)
	SetEndpointEnabled(ctx context.Context, endpointID string, enabled bool) error
	RotateEndpointSecret(ctx context.Context, endpointID string) (core.WebhookEndpoint, error)
	PublishEvent(ctx context.Context, event core.Event) ([]core.WebhookDelivery, error)
	CancelDelivery(ctx context.Context, deliveryID string) error
	RequeueDelivery(ctx context.Context, deliveryID string) error
	RetryIncomingEvent(ctx context.Context, source string, eventID string) error
}

type RegisterEndpointCommand struct {
	service MutatingService
}

func NewRegisterEndpointCommand(service MutatingService) *RegisterEndpointCommand {
	return &RegisterEndpointCommand{service: service}
}

func (c *RegisterEndpointCommand) Execute(ctx context.Context, msg RegisterEndpointMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: endpoint service is required")
	}
	out, err := c.service.RegisterEndpoint(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SetEndpointEnabledCommand struct {
	service MutatingService
}

func NewSetEndpointEnabledCommand(service MutatingService) *SetEndpointEnabledCommand {
	return &SetEndpointEnabledCommand{service: service}
}

func (c *SetEndpointEnabledCommand) Execute(ctx context.Context, msg SetEndpointEnabledMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: endpoint service is required")
	}
	return c.service.SetEndpointEnabled(ctx, msg.EndpointID, msg.Enabled)
}

type RotateSecretCommand struct {
	service MutatingService
}

func NewRotateSecretCommand(service MutatingService) *RotateSecretCommand {
	return &RotateSecretCommand{service: service}
}

func (c *RotateSecretCommand) Execute(ctx context.Context, msg RotateSecretMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: endpoint service is required")
	}
	out, err := c.service.RotateEndpointSecret(ctx, msg.EndpointID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PublishEventCommand struct {
	service MutatingService
}

func NewPublishEventCommand(service MutatingService) *PublishEventCommand {
	return &PublishEventCommand{service: service}
}

func (c *PublishEventCommand) Execute(ctx context.Context, msg PublishEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: publish service is required")
	}
	out, err := c.service.PublishEvent(ctx, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CancelDeliveryCommand struct {
	service MutatingService
}

func NewCancelDeliveryCommand(service MutatingService) *CancelDeliveryCommand {
	return &CancelDeliveryCommand{service: service}
}

func (c *CancelDeliveryCommand) Execute(ctx context.Context, msg CancelDeliveryMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	return c.service.CancelDelivery(ctx, msg.DeliveryID)
}

type RequeueDeliveryCommand struct {
	service MutatingService
}

func NewRequeueDeliveryCommand(service MutatingService) *RequeueDeliveryCommand {
	return &RequeueDeliveryCommand{service: service}
}

func (c *RequeueDeliveryCommand) Execute(ctx context.Context, msg RequeueDeliveryMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	return c.service.RequeueDelivery(ctx, msg.DeliveryID)
}

type RetryIncomingCommand struct {
	service MutatingService
}

func NewRetryIncomingCommand(service MutatingService) *RetryIncomingCommand {
	return &RetryIncomingCommand{service: service}
}

func (c *RetryIncomingCommand) Execute(ctx context.Context, msg RetryIncomingMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: incoming event service is required")
	}
	return c.service.RetryIncomingEvent(ctx, msg.Source, msg.EventID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
