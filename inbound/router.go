package inbound

import (
	"context"
	"strings"

	"github.com/goliatone/go-delivery/core"
)

// SourceRouter returns a handler that dispatches each event to the handler
// registered for its source. Events from an unmapped source fail so they land
// in the error ledger instead of being silently acknowledged.
func SourceRouter(routes map[string]Handler) Handler {
	normalized := make(map[string]Handler, len(routes))
	for source, handler := range routes {
		normalized[strings.TrimSpace(strings.ToLower(source))] = handler
	}
	return HandlerFunc(func(ctx context.Context, event core.IncomingEvent) error {
		handler, ok := normalized[strings.TrimSpace(strings.ToLower(event.Source))]
		if ok && handler != nil {
			return handler.Handle(ctx, event)
		}
		return core.NewBadInputError("inbound: no handler registered for source " + event.Source)
	})
}
