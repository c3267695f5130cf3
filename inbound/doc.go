// Package inbound is the receiving side of the webhook pipeline: it verifies
// provider signatures, dedupes events on (source, event_id), and hands new
// events to asynchronous processing.
//
// Duplicates acknowledge with 200 and never re-enter processing, so provider
// retries stay cheap and side effects run at most once.
package inbound
