package delivery

import (
	"context"
	"testing"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-delivery/adapters/gocommand"
	deliverycommand "github.com/goliatone/go-delivery/command"
	"github.com/goliatone/go-delivery/core"
	deliveryquery "github.com/goliatone/go-delivery/query"
)

type stubFacadeService struct {
	registered []core.CreateEndpointInput
	enabled    map[string]bool
	published  []core.Event
	retried    []string
	gotten     []string
}

func newStubFacadeService() *stubFacadeService {
	return &stubFacadeService{enabled: map[string]bool{}}
}

func (s *stubFacadeService) RegisterEndpoint(_ context.Context, input core.CreateEndpointInput) (core.WebhookEndpoint, error) {
	s.registered = append(s.registered, input)
	return core.WebhookEndpoint{ID: "ep_1", URL: input.URL}, nil
}

func (s *stubFacadeService) SetEndpointEnabled(_ context.Context, endpointID string, enabled bool) error {
	s.enabled[endpointID] = enabled
	return nil
}

func (s *stubFacadeService) RotateEndpointSecret(_ context.Context, endpointID string) (core.WebhookEndpoint, error) {
	return core.WebhookEndpoint{ID: endpointID, Secret: "whsec_rotated"}, nil
}

func (s *stubFacadeService) PublishEvent(_ context.Context, event core.Event) ([]core.WebhookDelivery, error) {
	s.published = append(s.published, event)
	return []core.WebhookDelivery{{ID: "d_1", EventType: event.Type}}, nil
}

func (s *stubFacadeService) CancelDelivery(context.Context, string) error  { return nil }
func (s *stubFacadeService) RequeueDelivery(context.Context, string) error { return nil }

func (s *stubFacadeService) RetryIncomingEvent(_ context.Context, source string, eventID string) error {
	s.retried = append(s.retried, source+"/"+eventID)
	return nil
}

func (s *stubFacadeService) GetEndpoint(_ context.Context, id string) (core.WebhookEndpoint, error) {
	s.gotten = append(s.gotten, id)
	return core.WebhookEndpoint{ID: id}, nil
}

func (s *stubFacadeService) GetDelivery(_ context.Context, id string) (core.WebhookDelivery, error) {
	return core.WebhookDelivery{ID: id}, nil
}

func (s *stubFacadeService) ListExhaustedDeliveries(context.Context, int) ([]core.WebhookDelivery, error) {
	return []core.WebhookDelivery{{ID: "d_dead"}}, nil
}

func (s *stubFacadeService) GetIncomingEvent(_ context.Context, source string, eventID string) (core.IncomingEvent, error) {
	return core.IncomingEvent{Source: source, EventID: eventID}, nil
}

func (s *stubFacadeService) ListIncomingErrors(context.Context, int) ([]core.IncomingEvent, error) {
	return nil, nil
}

var _ CommandQueryService = (*stubFacadeService)(nil)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, err := NewFacade(newStubFacadeService())
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.RegisterEndpoint == nil || commands.SetEndpointEnabled == nil {
		t.Fatalf("expected endpoint commands wired")
	}
	if commands.RotateSecret == nil || commands.PublishEvent == nil {
		t.Fatalf("expected publish commands wired")
	}
	if commands.CancelDelivery == nil || commands.RequeueDelivery == nil || commands.RetryIncoming == nil {
		t.Fatalf("expected delivery commands wired")
	}

	queries := facade.Queries()
	if queries.GetEndpoint == nil || queries.GetDelivery == nil || queries.GetIncomingEvent == nil {
		t.Fatalf("expected lookup queries wired")
	}
	if queries.ListExhaustedDeliveries == nil || queries.ListIncomingErrors == nil {
		t.Fatalf("expected list queries wired")
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected missing service error")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	service := newStubFacadeService()
	facade, err := NewFacade(service)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	ctx := context.Background()
	commands := facade.Commands()

	err = commands.PublishEvent.Execute(ctx, deliverycommand.PublishEventMessage{
		Event: core.Event{Type: "invoice.paid"},
	})
	if err != nil {
		t.Fatalf("publish command: %v", err)
	}
	if len(service.published) != 1 || service.published[0].Type != "invoice.paid" {
		t.Fatalf("expected publish delegation, got %#v", service.published)
	}

	err = commands.RetryIncoming.Execute(ctx, deliverycommand.RetryIncomingMessage{
		Source:  "stripe",
		EventID: "evt_1",
	})
	if err != nil {
		t.Fatalf("retry command: %v", err)
	}
	if len(service.retried) != 1 || service.retried[0] != "stripe/evt_1" {
		t.Fatalf("expected retry delegation, got %#v", service.retried)
	}

	endpoint, err := facade.Queries().GetEndpoint.Query(ctx, deliveryquery.GetEndpointMessage{EndpointID: "ep_9"})
	if err != nil {
		t.Fatalf("get endpoint query: %v", err)
	}
	if endpoint.ID != "ep_9" {
		t.Fatalf("expected ep_9, got %q", endpoint.ID)
	}
	if len(service.gotten) != 1 {
		t.Fatalf("expected one endpoint lookup, got %d", len(service.gotten))
	}
}

func TestFacade_SubscribeRoutesDispatchedMessages(t *testing.T) {
	service := newStubFacadeService()
	facade, err := NewFacade(service)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	subscriptions, err := facade.Subscribe(adapter)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer func() {
		for _, subscription := range subscriptions {
			if subscription != nil {
				subscription.Unsubscribe()
			}
		}
	}()
	if len(subscriptions) != 12 {
		t.Fatalf("expected 12 subscriptions, got %d", len(subscriptions))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	ctx := context.Background()
	err = gocommand.Dispatch(ctx, deliverycommand.PublishEventMessage{
		Event: core.Event{Type: "invoice.paid"},
	})
	if err != nil {
		t.Fatalf("dispatch publish: %v", err)
	}
	if len(service.published) != 1 || service.published[0].Type != "invoice.paid" {
		t.Fatalf("expected publish routed to service, got %#v", service.published)
	}

	endpoint, err := gocommand.Query[deliveryquery.GetEndpointMessage, core.WebhookEndpoint](
		ctx,
		deliveryquery.GetEndpointMessage{EndpointID: "ep_42"},
	)
	if err != nil {
		t.Fatalf("query endpoint: %v", err)
	}
	if endpoint.ID != "ep_42" {
		t.Fatalf("expected ep_42, got %q", endpoint.ID)
	}
	if len(service.gotten) != 1 || service.gotten[0] != "ep_42" {
		t.Fatalf("expected endpoint lookup routed to service, got %#v", service.gotten)
	}
}

func TestFacade_SubscribeRequiresAdapter(t *testing.T) {
	facade, err := NewFacade(newStubFacadeService())
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	if _, err := facade.Subscribe(nil); err == nil {
		t.Fatalf("expected missing adapter error")
	}
}

func TestFacade_NilReceiverIsSafe(t *testing.T) {
	var facade *Facade
	if facade.Service() != nil {
		t.Fatalf("expected nil service")
	}
	if facade.Commands().PublishEvent != nil {
		t.Fatalf("expected empty commands")
	}
	if facade.Queries().GetEndpoint != nil {
		t.Fatalf("expected empty queries")
	}
}
