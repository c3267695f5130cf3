package webhooks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-delivery/core"
	"github.com/goliatone/go-delivery/ratelimit"
)

type stubSender struct {
	results map[string]core.AttemptResult
	sent    []string
}

func (s *stubSender) Send(
	_ context.Context,
	_ core.WebhookEndpoint,
	delivery core.WebhookDelivery,
) core.AttemptResult {
	s.sent = append(s.sent, delivery.ID)
	if result, ok := s.results[delivery.ID]; ok {
		return result
	}
	return core.AttemptResult{StatusCode: 200}
}

func newTestScheduler(
	t *testing.T,
	deliveries *stubDeliveryStore,
	endpoints *stubEndpointStore,
	sender Sender,
) *Scheduler {
	t.Helper()
	scheduler, err := NewScheduler(deliveries, endpoints, sender)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	scheduler.Now = func() time.Time {
		return time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	}
	return scheduler
}

func TestScheduler_DeliversSuccessfulAttempts(t *testing.T) {
	endpoints := &stubEndpointStore{
		withSecret: map[string]core.WebhookEndpoint{
			"ep_1": testEndpoint("ep_1", []string{"order.created"}, false),
		},
	}
	deliveries := newStubDeliveryStore()
	deliveries.claimable = []core.WebhookDelivery{
		{ID: "del_1", EndpointID: "ep_1", EventID: "evt_1", EventType: "order.created"},
	}
	sender := &stubSender{results: map[string]core.AttemptResult{
		"del_1": {StatusCode: 200, Body: "ok"},
	}}

	scheduler := newTestScheduler(t, deliveries, endpoints, sender)
	stats, err := scheduler.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if stats.Claimed != 1 || stats.Delivered != 1 {
		t.Fatalf("expected 1 claimed and delivered, got %+v", stats)
	}
	if _, ok := deliveries.delivered["del_1"]; !ok {
		t.Fatalf("expected del_1 marked delivered")
	}
}

func TestScheduler_FailedAttemptSchedulesBackoff(t *testing.T) {
	endpoints := &stubEndpointStore{
		withSecret: map[string]core.WebhookEndpoint{
			"ep_1": testEndpoint("ep_1", []string{"order.created"}, false),
		},
	}
	deliveries := newStubDeliveryStore()
	deliveries.claimable = []core.WebhookDelivery{
		{ID: "del_1", EndpointID: "ep_1", EventID: "evt_1", EventType: "order.created", Attempts: 0},
	}
	sender := &stubSender{results: map[string]core.AttemptResult{
		"del_1": {StatusCode: 500, Body: "boom"},
	}}

	scheduler := newTestScheduler(t, deliveries, endpoints, sender)
	stats, err := scheduler.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if stats.Retried != 1 {
		t.Fatalf("expected 1 retried, got %+v", stats)
	}

	next, ok := deliveries.retried["del_1"]
	if !ok {
		t.Fatalf("expected del_1 scheduled for retry")
	}
	want := scheduler.Now().Add(time.Minute)
	if !next.Equal(want) {
		t.Fatalf("expected first retry after 1m at %s, got %s", want, next)
	}
}

func TestScheduler_SecondFailureUsesSecondRung(t *testing.T) {
	endpoints := &stubEndpointStore{
		withSecret: map[string]core.WebhookEndpoint{
			"ep_1": testEndpoint("ep_1", []string{"order.created"}, false),
		},
	}
	deliveries := newStubDeliveryStore()
	deliveries.claimable = []core.WebhookDelivery{
		{ID: "del_1", EndpointID: "ep_1", EventID: "evt_1", EventType: "order.created", Attempts: 1},
	}
	sender := &stubSender{results: map[string]core.AttemptResult{
		"del_1": {StatusCode: 503},
	}}

	scheduler := newTestScheduler(t, deliveries, endpoints, sender)
	if _, err := scheduler.DispatchDue(context.Background()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	next := deliveries.retried["del_1"]
	want := scheduler.Now().Add(5 * time.Minute)
	if !next.Equal(want) {
		t.Fatalf("expected second retry after 5m at %s, got %s", want, next)
	}
}

func TestScheduler_FifthFailureExhaustsDelivery(t *testing.T) {
	endpoints := &stubEndpointStore{
		withSecret: map[string]core.WebhookEndpoint{
			"ep_1": testEndpoint("ep_1", []string{"order.created"}, false),
		},
	}
	deliveries := newStubDeliveryStore()
	deliveries.claimable = []core.WebhookDelivery{
		{ID: "del_1", EndpointID: "ep_1", EventID: "evt_1", EventType: "order.created", Attempts: 4},
	}
	sender := &stubSender{results: map[string]core.AttemptResult{
		"del_1": {StatusCode: 500, Body: "still down"},
	}}

	scheduler := newTestScheduler(t, deliveries, endpoints, sender)
	stats, err := scheduler.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if stats.Exhausted != 1 {
		t.Fatalf("expected 1 exhausted, got %+v", stats)
	}
	result, ok := deliveries.exhausted["del_1"]
	if !ok {
		t.Fatalf("expected del_1 marked exhausted")
	}
	if result.StatusCode != 500 {
		t.Fatalf("expected final attempt recorded, got %+v", result)
	}
	if len(deliveries.retried) != 0 {
		t.Fatalf("expected no further retries after exhaustion")
	}
}

func TestScheduler_DisabledEndpointReleasesClaimUntouched(t *testing.T) {
	disabled := testEndpoint("ep_1", []string{"order.created"}, false)
	disabled.Enabled = false
	endpoints := &stubEndpointStore{
		withSecret: map[string]core.WebhookEndpoint{"ep_1": disabled},
	}
	deliveries := newStubDeliveryStore()
	deliveries.claimable = []core.WebhookDelivery{
		{ID: "del_1", EndpointID: "ep_1", EventID: "evt_1", EventType: "order.created", Attempts: 2},
	}
	sender := &stubSender{}

	scheduler := newTestScheduler(t, deliveries, endpoints, sender)
	stats, err := scheduler.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if stats.Skipped != 1 {
		t.Fatalf("expected 1 skipped, got %+v", stats)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no send attempt for disabled endpoint")
	}
	if len(deliveries.released) != 1 || deliveries.released[0] != "del_1" {
		t.Fatalf("expected claim released, got %v", deliveries.released)
	}
	if len(deliveries.retried) != 0 && len(deliveries.exhausted) != 0 {
		t.Fatalf("expected attempts untouched for skipped delivery")
	}
}

func TestScheduler_MissingEndpointFollowsRetryLadder(t *testing.T) {
	endpoints := &stubEndpointStore{withSecret: map[string]core.WebhookEndpoint{}}
	deliveries := newStubDeliveryStore()
	deliveries.claimable = []core.WebhookDelivery{
		{ID: "del_1", EndpointID: "ep_gone", EventID: "evt_1", EventType: "order.created"},
	}

	scheduler := newTestScheduler(t, deliveries, endpoints, &stubSender{})
	stats, err := scheduler.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if stats.Retried != 1 {
		t.Fatalf("expected missing endpoint to count as failed attempt, got %+v", stats)
	}
}

func TestScheduler_EndpointStoreOutageReleasesClaim(t *testing.T) {
	endpoints := &stubEndpointStore{
		secretErr: fmt.Errorf("connection refused"),
	}
	deliveries := newStubDeliveryStore()
	deliveries.claimable = []core.WebhookDelivery{
		{ID: "del_1", EndpointID: "ep_1", EventID: "evt_1", EventType: "order.created", Attempts: 3},
	}
	sender := &stubSender{}

	scheduler := newTestScheduler(t, deliveries, endpoints, sender)
	stats, err := scheduler.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if stats.Skipped != 1 {
		t.Fatalf("expected store outage to skip, got %+v", stats)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no send attempt during store outage")
	}
	if len(deliveries.released) != 1 || deliveries.released[0] != "del_1" {
		t.Fatalf("expected claim released, got %v", deliveries.released)
	}
	if len(deliveries.retried) != 0 || len(deliveries.exhausted) != 0 {
		t.Fatalf("expected attempt budget untouched during store outage")
	}
}

func TestScheduler_DispatchesBatchAcrossWorkerPool(t *testing.T) {
	endpoints := &stubEndpointStore{withSecret: map[string]core.WebhookEndpoint{}}
	deliveries := newStubDeliveryStore()
	sender := &stubSender{results: map[string]core.AttemptResult{}}
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("del_%d", i)
		endpointID := fmt.Sprintf("ep_%d", i%3)
		endpoints.withSecret[endpointID] = testEndpoint(endpointID, nil, true)
		deliveries.claimable = append(deliveries.claimable, core.WebhookDelivery{
			ID:         id,
			EndpointID: endpointID,
			EventID:    "evt_1",
			EventType:  "order.created",
		})
		sender.results[id] = core.AttemptResult{StatusCode: 200}
	}

	scheduler := newTestScheduler(t, deliveries, endpoints, sender)
	scheduler.PoolSize = 4
	scheduler.EndpointConcurrency = 1
	stats, err := scheduler.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if stats.Claimed != 12 || stats.Delivered != 12 {
		t.Fatalf("expected all 12 delivered, got %+v", stats)
	}
	if len(deliveries.delivered) != 12 {
		t.Fatalf("expected 12 delivered records, got %d", len(deliveries.delivered))
	}
}

func TestScheduler_ThrottledEndpointReleasesClaimUntouched(t *testing.T) {
	endpoints := &stubEndpointStore{
		withSecret: map[string]core.WebhookEndpoint{
			"ep_1": testEndpoint("ep_1", []string{"order.created"}, false),
		},
	}
	deliveries := newStubDeliveryStore()
	deliveries.claimable = []core.WebhookDelivery{
		{ID: "del_1", EndpointID: "ep_1", EventID: "evt_1", EventType: "order.created"},
		{ID: "del_2", EndpointID: "ep_1", EventID: "evt_2", EventType: "order.created"},
	}
	sender := &stubSender{results: map[string]core.AttemptResult{
		"del_1": {StatusCode: 429, RetryAfter: 30 * time.Second},
		"del_2": {StatusCode: 200},
	}}

	scheduler := newTestScheduler(t, deliveries, endpoints, sender)
	throttle := ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore())
	throttle.Now = scheduler.Now
	scheduler.Throttle = throttle
	scheduler.PoolSize = 1
	scheduler.ClaimBatch = 1

	stats, err := scheduler.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if stats.Retried != 1 {
		t.Fatalf("expected throttled attempt to schedule a retry, got %+v", stats)
	}

	stats, err = scheduler.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if stats.Skipped != 1 {
		t.Fatalf("expected held endpoint to skip, got %+v", stats)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected no send while throttled, got %v", sender.sent)
	}
	if len(deliveries.released) != 1 || deliveries.released[0] != "del_2" {
		t.Fatalf("expected del_2 claim released, got %v", deliveries.released)
	}
}

func TestScheduler_ThrottleClearsAfterHold(t *testing.T) {
	endpoints := &stubEndpointStore{
		withSecret: map[string]core.WebhookEndpoint{
			"ep_1": testEndpoint("ep_1", []string{"order.created"}, false),
		},
	}
	deliveries := newStubDeliveryStore()
	deliveries.claimable = []core.WebhookDelivery{
		{ID: "del_1", EndpointID: "ep_1", EventID: "evt_1", EventType: "order.created"},
	}
	sender := &stubSender{}

	scheduler := newTestScheduler(t, deliveries, endpoints, sender)
	now := scheduler.Now()
	throttle := ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore())
	throttle.Now = func() time.Time { return now }
	scheduler.Throttle = throttle

	if err := throttle.AfterSend(context.Background(), "ep_1", core.AttemptResult{
		StatusCode: 429,
		RetryAfter: 30 * time.Second,
	}); err != nil {
		t.Fatalf("seed throttle state: %v", err)
	}
	now = now.Add(time.Minute)

	stats, err := scheduler.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if stats.Delivered != 1 {
		t.Fatalf("expected delivery after hold expired, got %+v", stats)
	}
}

func TestScheduler_RunStopsOnContextCancel(t *testing.T) {
	endpoints := &stubEndpointStore{withSecret: map[string]core.WebhookEndpoint{}}
	deliveries := newStubDeliveryStore()
	scheduler := newTestScheduler(t, deliveries, endpoints, &stubSender{})
	scheduler.PollInterval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := scheduler.Run(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
