package core

import "strings"

// EventTypeWildcard is the stored marker meaning "all event types".
const EventTypeWildcard = "*"

// MatchesEvent reports whether an endpoint subscribes to the event type.
// Disabled endpoints never match.
func MatchesEvent(endpoint WebhookEndpoint, eventType string) bool {
	if !endpoint.Enabled {
		return false
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return false
	}
	if endpoint.Wildcard {
		return true
	}
	for _, subscribed := range endpoint.EventTypes {
		subscribed = strings.TrimSpace(subscribed)
		if subscribed == EventTypeWildcard {
			return true
		}
		if strings.EqualFold(subscribed, eventType) {
			return true
		}
	}
	return false
}

// NormalizeEventTypes trims and dedupes a subscription list, collapsing a
// wildcard entry into the wildcard flag.
func NormalizeEventTypes(types []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(types))
	out := make([]string, 0, len(types))
	wildcard := false
	for _, t := range types {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if t == EventTypeWildcard {
			wildcard = true
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out, wildcard
}
