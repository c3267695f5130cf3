package delivery

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	"github.com/goliatone/go-delivery/adapters/gocommand"
	deliverycommand "github.com/goliatone/go-delivery/command"
	deliveryquery "github.com/goliatone/go-delivery/query"
)

type CommandQueryService interface {
	deliverycommand.MutatingService
	deliveryquery.EndpointReader
	deliveryquery.DeliveryReader
	deliveryquery.IncomingEventReader
}

type Commands struct {
	RegisterEndpoint   *deliverycommand.RegisterEndpointCommand
	SetEndpointEnabled *deliverycommand.SetEndpointEnabledCommand
	RotateSecret       *deliverycommand.RotateSecretCommand
	PublishEvent       *deliverycommand.PublishEventCommand
	CancelDelivery     *deliverycommand.CancelDeliveryCommand
	RequeueDelivery    *deliverycommand.RequeueDeliveryCommand
	RetryIncoming      *deliverycommand.RetryIncomingCommand
}

type Queries struct {
	GetEndpoint             *deliveryquery.GetEndpointQuery
	GetDelivery             *deliveryquery.GetDeliveryQuery
	ListExhaustedDeliveries *deliveryquery.ListExhaustedDeliveriesQuery
	ListIncomingErrors      *deliveryquery.ListIncomingErrorsQuery
	GetIncomingEvent        *deliveryquery.GetIncomingEventQuery
}

// Facade bundles the command and query handlers for one engine so hosts can
// register them on a dispatcher in a single pass.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("delivery: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		RegisterEndpoint:   deliverycommand.NewRegisterEndpointCommand(service),
		SetEndpointEnabled: deliverycommand.NewSetEndpointEnabledCommand(service),
		RotateSecret:       deliverycommand.NewRotateSecretCommand(service),
		PublishEvent:       deliverycommand.NewPublishEventCommand(service),
		CancelDelivery:     deliverycommand.NewCancelDeliveryCommand(service),
		RequeueDelivery:    deliverycommand.NewRequeueDeliveryCommand(service),
		RetryIncoming:      deliverycommand.NewRetryIncomingCommand(service),
	}
	facade.queries = Queries{
		GetEndpoint:             deliveryquery.NewGetEndpointQuery(service),
		GetDelivery:             deliveryquery.NewGetDeliveryQuery(service),
		ListExhaustedDeliveries: deliveryquery.NewListExhaustedDeliveriesQuery(service),
		ListIncomingErrors:      deliveryquery.NewListIncomingErrorsQuery(service),
		GetIncomingEvent:        deliveryquery.NewGetIncomingEventQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

// Subscribe registers every facade handler on the shared dispatcher and on
// the adapter's registry in one pass, so hosts can route messages with
// gocommand.Dispatch and gocommand.Query. Call adapter.Initialize afterwards
// to run resolver hooks. On failure the subscriptions created so far are
// torn down.
func (f *Facade) Subscribe(
	adapter *gocommand.RegistryAdapter,
	runnerOpts ...runner.Option,
) ([]commanddispatcher.Subscription, error) {
	if f == nil {
		return nil, fmt.Errorf("delivery: facade is required")
	}
	if adapter == nil {
		return nil, fmt.Errorf("delivery: registry adapter is required")
	}

	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return gocommand.RegisterAndSubscribe(adapter, f.commands.RegisterEndpoint, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommand.RegisterAndSubscribe(adapter, f.commands.SetEndpointEnabled, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommand.RegisterAndSubscribe(adapter, f.commands.RotateSecret, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommand.RegisterAndSubscribe(adapter, f.commands.PublishEvent, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommand.RegisterAndSubscribe(adapter, f.commands.CancelDelivery, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommand.RegisterAndSubscribe(adapter, f.commands.RequeueDelivery, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommand.RegisterAndSubscribe(adapter, f.commands.RetryIncoming, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommand.RegisterAndSubscribeQuery(adapter, f.queries.GetEndpoint, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommand.RegisterAndSubscribeQuery(adapter, f.queries.GetDelivery, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommand.RegisterAndSubscribeQuery(adapter, f.queries.ListExhaustedDeliveries, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommand.RegisterAndSubscribeQuery(adapter, f.queries.ListIncomingErrors, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return gocommand.RegisterAndSubscribeQuery(adapter, f.queries.GetIncomingEvent, runnerOpts...)
		},
	}

	subscriptions := make([]commanddispatcher.Subscription, 0, len(steps))
	for _, register := range steps {
		subscription, err := register()
		if err != nil {
			for _, active := range subscriptions {
				if active != nil {
					active.Unsubscribe()
				}
			}
			return nil, err
		}
		subscriptions = append(subscriptions, subscription)
	}
	return subscriptions, nil
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*Engine)(nil)
