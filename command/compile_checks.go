package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[RegisterEndpointMessage]   = (*RegisterEndpointCommand)(nil)
	_ gocmd.Commander[SetEndpointEnabledMessage] = (*SetEndpointEnabledCommand)(nil)
	_ gocmd.Commander[RotateSecretMessage]       = (*RotateSecretCommand)(nil)
	_ gocmd.Commander[PublishEventMessage]       = (*PublishEventCommand)(nil)
	_ gocmd.Commander[CancelDeliveryMessage]     = (*CancelDeliveryCommand)(nil)
	_ gocmd.Commander[RequeueDeliveryMessage]    = (*RequeueDeliveryCommand)(nil)
	_ gocmd.Commander[RetryIncomingMessage]      = (*RetryIncomingCommand)(nil)
)
