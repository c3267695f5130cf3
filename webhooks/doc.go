// Package webhooks implements the outbound delivery pipeline: fan-out of
// events to subscribed endpoints, signed HTTP sends, and the retry scheduler
// that drains the delivery queue.
package webhooks
