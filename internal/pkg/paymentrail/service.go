package paymentrail

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/QuestPassApp/QuestPass/app/models"
	"github.com/QuestPassApp/QuestPass/app/repository"
	"github.com/QuestPassApp/QuestPass/internal/pkg/purchase"
)

// ErrInvalidEvent marks deliveries whose payload cannot be applied as-is.
var ErrInvalidEvent = errors.New("webhook event failed validation")

// EventInput is the normalized input for webhook event persistence.
type EventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PurchaseUUID    string
	PayloadJSON     string
	SignatureValid  bool
}

// Service journals payment-rail deliveries and applies the purchase
// transitions they describe. Journaling comes first so redeliveries replay
// the stored row instead of re-running transitions.
type Service struct {
	events    repository.WebhookEventRepository
	purchases *purchase.Service
}

// NewService creates a payment-rail service. Both collaborators are required.
func NewService(events repository.WebhookEventRepository, purchases *purchase.Service) *Service {
	if events == nil {
		panic("paymentrail: Service requires the webhook event repository")
	}
	if purchases == nil {
		panic("paymentrail: Service requires the purchase service")
	}
	return &Service{events: events, purchases: purchases}
}

// RecordEvent persists a delivery idempotently. Deliveries without a provider
// event id are keyed by a hash of their payload so replays still dedupe.
func (s *Service) RecordEvent(ctx context.Context, in EventInput) (bool, *models.PaymentWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		provider = DefaultProvider
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.PaymentWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PurchaseUUID:    strings.TrimSpace(in.PurchaseUUID),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.events.CreateIfNotExists(event)
}

// MarkEventProcessed marks a journaled event as handled and stores an
// optional error.
func (s *Service) MarkEventProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.events.MarkProcessed(webhookEventID, errMsg)
}

// Apply runs the purchase transition a lifecycle event describes. Errors from
// the purchase service pass through untouched so callers can map the
// sentinels.
func (s *Service) Apply(ctx context.Context, ev *Event) error {
	if ev == nil {
		return errors.New("event is required")
	}

	switch ev.EventType {
	case EventTypePaymentAuthorized:
		if ev.BasePriceCents <= 0 {
			return fmt.Errorf("%w: payment.authorized requires a positive base_price_cents", ErrInvalidEvent)
		}
		_, err := s.purchases.RegisterAuthorized(ctx, ev.PurchaseUUID, ev.EventID, ev.BuyerRef, ev.BasePriceCents, ev.Currency)
		return err

	case EventTypePurchaseActivated:
		return s.purchases.Activate(ctx, ev.PurchaseUUID)

	case EventTypeSettlementStarted:
		quote, err := s.purchases.BeginSettlement(ctx, ev.PurchaseUUID)
		if err != nil {
			return err
		}
		log.Infof("[PaymentRail] Settlement started for purchase %s: %d bps, net %d cents", ev.PurchaseUUID, quote.TotalBps, quote.NetPriceCents)
		return nil

	case EventTypeSettlementCompleted:
		return s.purchases.MarkSettled(ctx, ev.PurchaseUUID)

	case EventTypePaymentCancelled:
		return s.purchases.Cancel(ctx, ev.PurchaseUUID)

	default:
		return fmt.Errorf("unsupported event type: %s", ev.EventType)
	}
}
