package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-delivery/core"
)

const (
	DefaultSendTimeout      = 30 * time.Second
	defaultResponseCapBytes = 4 * 1024
)

// Sender performs one outbound attempt. Implementations never retry; the
// scheduler owns the retry ladder.
type Sender interface {
	Send(ctx context.Context, endpoint core.WebhookEndpoint, delivery core.WebhookDelivery) core.AttemptResult
}

// HTTPSender posts the delivery payload to the endpoint URL with the signed
// envelope headers. The response body is captured truncated for the attempt
// ledger regardless of outcome.
type HTTPSender struct {
	Client       *http.Client
	Signer       *core.SignatureEngine
	Timeout      time.Duration
	MaxBodyBytes int
	Now          func() time.Time
}

func NewHTTPSender(signer *core.SignatureEngine) *HTTPSender {
	return &HTTPSender{
		Client:       &http.Client{Timeout: DefaultSendTimeout},
		Signer:       signer,
		Timeout:      DefaultSendTimeout,
		MaxBodyBytes: defaultResponseCapBytes,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *HTTPSender) Send(
	ctx context.Context,
	endpoint core.WebhookEndpoint,
	delivery core.WebhookDelivery,
) core.AttemptResult {
	if s == nil {
		return core.AttemptResult{Err: fmt.Errorf("webhooks: sender is not configured")}
	}
	url := strings.TrimSpace(endpoint.URL)
	if url == "" {
		return core.AttemptResult{Err: fmt.Errorf("webhooks: endpoint url is required")}
	}
	secret := strings.TrimSpace(endpoint.Secret)
	if secret == "" {
		return core.AttemptResult{Err: fmt.Errorf("webhooks: endpoint secret is required for signing")}
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(delivery.Payload))
	if err != nil {
		return core.AttemptResult{Err: fmt.Errorf("webhooks: build request: %w", err)}
	}

	signer := s.Signer
	if signer == nil {
		signer = core.NewSignatureEngine(0)
	}
	signature, err := signer.Sign(delivery.Payload, secret, s.now())
	if err != nil {
		return core.AttemptResult{Err: fmt.Errorf("webhooks: sign payload: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(core.HeaderSignature, signature)
	req.Header.Set(core.HeaderEventType, delivery.EventType)
	req.Header.Set(core.HeaderEventID, delivery.EventID)

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return core.AttemptResult{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	limit := s.MaxBodyBytes
	if limit <= 0 {
		limit = defaultResponseCapBytes
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, int64(limit)))
	if readErr != nil {
		return core.AttemptResult{StatusCode: resp.StatusCode, Err: readErr}
	}
	result := core.AttemptResult{
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		result.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), s.now())
	}
	return result
}

// parseRetryAfter accepts both delay-seconds and HTTP-date forms. Unparseable
// or past values yield zero so the scheduler falls back to its own hold.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	at, err := http.ParseTime(value)
	if err != nil || !at.After(now) {
		return 0
	}
	return at.Sub(now)
}

func (s *HTTPSender) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

var _ Sender = (*HTTPSender)(nil)
