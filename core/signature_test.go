package core

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestSignatureEngine_SignAndVerify(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	engine := NewSignatureEngine(5 * time.Minute)
	engine.Now = func() time.Time { return now }

	header, err := engine.Sign([]byte(`{"id":"evt_1"}`), "whsec_test", now)
	if err != nil {
		t.Fatalf("sign payload: %v", err)
	}
	if !strings.HasPrefix(header, fmt.Sprintf("t=%d,v1=", now.Unix())) {
		t.Fatalf("unexpected header shape %q", header)
	}

	if err := engine.Verify(header, []byte(`{"id":"evt_1"}`), "whsec_test"); err != nil {
		t.Fatalf("verify signed payload: %v", err)
	}
}

func TestSignatureEngine_RejectsTamperedPayload(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	engine := NewSignatureEngine(5 * time.Minute)
	engine.Now = func() time.Time { return now }

	header, err := engine.Sign([]byte("original"), "whsec_test", now)
	if err != nil {
		t.Fatalf("sign payload: %v", err)
	}
	if err := engine.Verify(header, []byte("tampered"), "whsec_test"); err == nil {
		t.Fatalf("expected signature mismatch for tampered payload")
	}
	if err := engine.Verify(header, []byte("original"), "whsec_other"); err == nil {
		t.Fatalf("expected signature mismatch for wrong secret")
	}
}

func TestSignatureEngine_RejectsExpiredTimestampEvenWithValidMAC(t *testing.T) {
	signedAt := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	engine := NewSignatureEngine(5 * time.Minute)
	engine.Now = func() time.Time { return signedAt }

	header, err := engine.Sign([]byte("payload"), "whsec_test", signedAt)
	if err != nil {
		t.Fatalf("sign payload: %v", err)
	}

	engine.Now = func() time.Time { return signedAt.Add(301 * time.Second) }
	if err := engine.Verify(header, []byte("payload"), "whsec_test"); err == nil {
		t.Fatalf("expected rejection beyond tolerance window")
	}

	engine.Now = func() time.Time { return signedAt.Add(299 * time.Second) }
	if err := engine.Verify(header, []byte("payload"), "whsec_test"); err != nil {
		t.Fatalf("expected acceptance inside tolerance window: %v", err)
	}

	// Skew is symmetric: a timestamp from the future is rejected too.
	engine.Now = func() time.Time { return signedAt.Add(-301 * time.Second) }
	if err := engine.Verify(header, []byte("payload"), "whsec_test"); err == nil {
		t.Fatalf("expected rejection for future timestamp beyond tolerance")
	}
}

func TestSignatureEngine_AcceptsRotationCandidate(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	engine := NewSignatureEngine(5 * time.Minute)
	engine.Now = func() time.Time { return now }

	oldHeader, err := engine.Sign([]byte("payload"), "whsec_old", now)
	if err != nil {
		t.Fatalf("sign with old secret: %v", err)
	}
	newHeader, err := engine.Sign([]byte("payload"), "whsec_new", now)
	if err != nil {
		t.Fatalf("sign with new secret: %v", err)
	}
	_, oldCandidates, err := ParseSignatureHeader(oldHeader)
	if err != nil {
		t.Fatalf("parse old header: %v", err)
	}

	combined := newHeader + ",v1=" + oldCandidates[0]
	if err := engine.Verify(combined, []byte("payload"), "whsec_new"); err != nil {
		t.Fatalf("verify against rotated header: %v", err)
	}
	if err := engine.Verify(combined, []byte("payload"), "whsec_old"); err != nil {
		t.Fatalf("verify old secret against rotated header: %v", err)
	}
}

func TestParseSignatureHeader_RejectsMalformedHeaders(t *testing.T) {
	cases := []string{
		"",
		"v1=deadbeef",
		"t=notanumber,v1=deadbeef",
		"t=1700000000",
		"junk",
	}
	for _, header := range cases {
		if _, _, err := ParseSignatureHeader(header); err == nil {
			t.Fatalf("expected parse failure for %q", header)
		}
	}
}
