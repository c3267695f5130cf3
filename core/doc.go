// Package core defines the domain model and contracts for the delivery
// engine: idempotency records and the request gate, webhook endpoints and
// deliveries, incoming events, and the HMAC signature scheme shared by the
// outbound and inbound paths.
package core
