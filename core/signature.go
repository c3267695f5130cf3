package core

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DefaultSignatureTolerance = 5 * time.Minute

const signatureVersion = "v1"

// SignatureEngine produces and verifies the shared webhook signature scheme:
// t=<unix_ts>,v1=<hex(HMAC-SHA256(secret, "<ts>.<payload>"))>.
type SignatureEngine struct {
	Tolerance time.Duration
	Now       func() time.Time
}

func NewSignatureEngine(tolerance time.Duration) *SignatureEngine {
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	return &SignatureEngine{
		Tolerance: tolerance,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (e *SignatureEngine) Sign(payload []byte, secret string, ts time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", NewBadInputError("core: signing secret is required")
	}
	if ts.IsZero() {
		ts = e.now()
	}
	unix := ts.Unix()
	return fmt.Sprintf("t=%d,%s=%s", unix, signatureVersion, computeSignature(payload, secret, unix)), nil
}

// Verify parses the header, recomputes the MAC in constant time, and rejects
// timestamps outside the tolerance window even when the MAC itself matches.
// A verification failure is terminal for the request.
func (e *SignatureEngine) Verify(header string, payload []byte, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return NewSignatureError("core: verification secret is required")
	}
	ts, candidates, err := ParseSignatureHeader(header)
	if err != nil {
		return err
	}

	expected := computeSignature(payload, secret, ts)
	matched := false
	for _, candidate := range candidates {
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			matched = true
		}
	}
	if !matched {
		return NewSignatureError("core: signature mismatch")
	}

	skew := e.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > e.tolerance() {
		return NewSignatureError("core: signature timestamp outside tolerance")
	}
	return nil
}

// ParseSignatureHeader splits a signature header into its timestamp and the
// v1 candidate signatures. Multiple v1 entries are legal during secret
// rotation; all are checked.
func ParseSignatureHeader(header string) (int64, []string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, nil, NewSignatureError("core: signature header is required")
	}

	var ts int64
	var seenTimestamp bool
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return 0, nil, NewSignatureError("core: signature timestamp is malformed")
			}
			ts = parsed
			seenTimestamp = true
		case signatureVersion:
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				candidates = append(candidates, trimmed)
			}
		}
	}
	if !seenTimestamp {
		return 0, nil, NewSignatureError("core: signature timestamp is required")
	}
	if len(candidates) == 0 {
		return 0, nil, NewSignatureError("core: signature value is required")
	}
	return ts, candidates, nil
}

func computeSignature(payload []byte, secret string, unix int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(unix, 10)))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (e *SignatureEngine) now() time.Time {
	if e != nil && e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *SignatureEngine) tolerance() time.Duration {
	if e != nil && e.Tolerance > 0 {
		return e.Tolerance
	}
	return DefaultSignatureTolerance
}
