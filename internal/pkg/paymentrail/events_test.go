package paymentrail

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"
)

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment.authorized"}`)
	secret := "top-secret"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	validSig := hex.EncodeToString(mac.Sum(nil))

	if !VerifyWebhookSignature(payload, validSig, secret) {
		t.Fatalf("expected signature to validate")
	}
	if !VerifyWebhookSignature(payload, strings.ToUpper(validSig), secret) {
		t.Fatalf("expected uppercase hex signature to validate")
	}
	if VerifyWebhookSignature(payload, "deadbeef", secret) {
		t.Fatalf("expected invalid signature to fail")
	}
	if VerifyWebhookSignature(payload, "not-hex!", secret) {
		t.Fatalf("expected non-hex signature to fail")
	}
	if VerifyWebhookSignature(payload, validSig, "") {
		t.Fatalf("expected empty secret to fail")
	}
	if VerifyWebhookSignature(payload, "", secret) {
		t.Fatalf("expected empty signature to fail")
	}
}

func TestParseWebhookEvent(t *testing.T) {
	raw := []byte(`{
		"id": "evt_8fa4c21b",
		"type": "payment.authorized",
		"occurred_at": "2026-03-01T10:00:00Z",
		"data": {
			"purchase_id": "ord-2816-aa81",
			"event_id": "ev-berlin-2026",
			"buyer_ref": "buyer-77",
			"base_price_cents": 10000,
			"currency": "USD"
		}
	}`)

	ev, err := ParseWebhookEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.ProviderEventID != "evt_8fa4c21b" || ev.EventType != EventTypePaymentAuthorized {
		t.Fatalf("unexpected envelope: id=%q type=%q", ev.ProviderEventID, ev.EventType)
	}
	if ev.PurchaseUUID != "ord-2816-aa81" || ev.EventID != "ev-berlin-2026" || ev.BuyerRef != "buyer-77" {
		t.Fatalf("unexpected data: purchase=%q event=%q buyer=%q", ev.PurchaseUUID, ev.EventID, ev.BuyerRef)
	}
	if ev.BasePriceCents != 10000 || ev.Currency != "USD" {
		t.Fatalf("unexpected price: cents=%d currency=%q", ev.BasePriceCents, ev.Currency)
	}
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if ev.OccurredAt == nil || !ev.OccurredAt.Equal(want) {
		t.Fatalf("unexpected occurred_at: %v", ev.OccurredAt)
	}
}

func TestParseWebhookEventRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{"id": "evt_1"`},
		{name: "missing type", raw: `{"id": "evt_1", "data": {"purchase_id": "ord-1"}}`},
		{name: "missing purchase id", raw: `{"id": "evt_1", "type": "purchase.activated", "data": {}}`},
		{name: "bad timestamp", raw: `{"id": "evt_1", "type": "purchase.activated", "occurred_at": "yesterday", "data": {"purchase_id": "ord-1"}}`},
	}

	for _, tt := range tests {
		if _, err := ParseWebhookEvent([]byte(tt.raw)); err == nil {
			t.Fatalf("%s: expected parse error", tt.name)
		}
	}
}

func TestParseWebhookEventWithoutTimestamp(t *testing.T) {
	ev, err := ParseWebhookEvent([]byte(`{"id": "evt_2", "type": "payment.cancelled", "data": {"purchase_id": "ord-9"}}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.OccurredAt != nil {
		t.Fatalf("expected nil occurred_at, got %v", ev.OccurredAt)
	}
}

func TestIsLifecycleEvent(t *testing.T) {
	for _, eventType := range []string{
		EventTypePaymentAuthorized,
		EventTypePurchaseActivated,
		EventTypeSettlementStarted,
		EventTypeSettlementCompleted,
		EventTypePaymentCancelled,
	} {
		if !IsLifecycleEvent(eventType) {
			t.Fatalf("expected %q to be a lifecycle event", eventType)
		}
	}

	for _, eventType := range []string{"", "member.updated", "payment.refunded", "authorized"} {
		if IsLifecycleEvent(eventType) {
			t.Fatalf("expected %q to not be a lifecycle event", eventType)
		}
	}
}
