package paymentrail

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Lifecycle event types delivered by the payment rail. Authorization creates
// the purchase; the remaining events move it through its states.
const (
	EventTypePaymentAuthorized   = "payment.authorized"
	EventTypePurchaseActivated   = "purchase.activated"
	EventTypeSettlementStarted   = "settlement.started"
	EventTypeSettlementCompleted = "settlement.completed"
	EventTypePaymentCancelled    = "payment.cancelled"
)

// DefaultProvider is the journal provider name used when the rail does not
// identify itself in the X-Payment-Provider header.
const DefaultProvider = "payment_rail"

// Event is the normalized shape of one payment-rail webhook delivery.
// EventID is the ticketed event the purchase belongs to, not the delivery id;
// that one is ProviderEventID.
type Event struct {
	ProviderEventID string
	EventType       string
	OccurredAt      *time.Time
	PurchaseUUID    string
	EventID         string
	BuyerRef        string
	BasePriceCents  int64
	Currency        string
}

// IsLifecycleEvent reports whether the engine applies deliveries of this
// type. Everything else is journaled and ignored.
func IsLifecycleEvent(eventType string) bool {
	switch strings.TrimSpace(eventType) {
	case EventTypePaymentAuthorized,
		EventTypePurchaseActivated,
		EventTypeSettlementStarted,
		EventTypeSettlementCompleted,
		EventTypePaymentCancelled:
		return true
	}
	return false
}

// ParseWebhookEvent decodes a raw delivery body. The rail wraps the purchase
// reference in a data object:
//
//	{
//	  "id": "evt_8fa4c21b",
//	  "type": "payment.authorized",
//	  "occurred_at": "2026-03-01T10:00:00Z",
//	  "data": {
//	    "purchase_id": "ord-2816-aa81",
//	    "event_id": "ev-berlin-2026",
//	    "buyer_ref": "buyer-77",
//	    "base_price_cents": 10000,
//	    "currency": "USD"
//	  }
//	}
func ParseWebhookEvent(payload []byte) (*Event, error) {
	type rawPayload struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		OccurredAt string `json:"occurred_at"`
		Data       struct {
			PurchaseID     string `json:"purchase_id"`
			EventID        string `json:"event_id"`
			BuyerRef       string `json:"buyer_ref"`
			BasePriceCents int64  `json:"base_price_cents"`
			Currency       string `json:"currency"`
		} `json:"data"`
	}

	var raw rawPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}

	out := &Event{
		ProviderEventID: strings.TrimSpace(raw.ID),
		EventType:       strings.TrimSpace(raw.Type),
		PurchaseUUID:    strings.TrimSpace(raw.Data.PurchaseID),
		EventID:         strings.TrimSpace(raw.Data.EventID),
		BuyerRef:        strings.TrimSpace(raw.Data.BuyerRef),
		BasePriceCents:  raw.Data.BasePriceCents,
		Currency:        strings.TrimSpace(raw.Data.Currency),
	}
	if ts := strings.TrimSpace(raw.OccurredAt); ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, errors.New("webhook payload has a malformed occurred_at timestamp")
		}
		out.OccurredAt = &parsed
	}

	if out.EventType == "" {
		return nil, errors.New("webhook payload missing event type")
	}
	if out.PurchaseUUID == "" {
		return nil, errors.New("webhook payload missing purchase id")
	}
	return out, nil
}
