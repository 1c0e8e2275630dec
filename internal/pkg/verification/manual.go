package verification

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/QuestPassApp/QuestPass/app/models"
)

// ManualConfig carries the per-definition settings for the manual adapter.
type ManualConfig struct {
	// Type is the incentive type this instance serves; manual by default.
	// Sponsor-session attendance uses the same adapter under its own key.
	Type models.IncentiveType
	// DefinitionUUID tags enqueued review items with the definition they
	// belong to.
	DefinitionUUID string
}

// ManualVerifier is the fallback for incentive types that cannot be
// automated. It never verifies by itself: every plausible claim is enqueued
// for a human reviewer and parked as pending_manual.
type ManualVerifier struct {
	queue          ReviewQueue
	incentiveType  models.IncentiveType
	definitionUUID string
}

// NewManualVerifier creates the manual-review adapter.
func NewManualVerifier(queue ReviewQueue, cfg ManualConfig) *ManualVerifier {
	if queue == nil {
		panic("verification: ManualVerifier requires a ReviewQueue")
	}
	incentiveType := cfg.Type
	if incentiveType == "" {
		incentiveType = models.IncentiveTypeManual
	}
	return &ManualVerifier{
		queue:          queue,
		incentiveType:  incentiveType,
		definitionUUID: cfg.DefinitionUUID,
	}
}

func (v *ManualVerifier) IncentiveType() models.IncentiveType {
	return v.incentiveType
}

// Verify enqueues the claim for review. An unavailable queue is reported as
// retriable, never as an internal fault.
func (v *ManualVerifier) Verify(ctx context.Context, purchaseID string, ev Evidence) Result {
	if ev.Manual == nil || strings.TrimSpace(ev.Manual.Description) == "" {
		return Rejected("missing description of the completed action")
	}

	item := ReviewItem{
		PurchaseID:     purchaseID,
		DefinitionUUID: v.definitionUUID,
		IncentiveType:  string(v.incentiveType),
		Description:    strings.TrimSpace(ev.Manual.Description),
		EvidenceURL:    strings.TrimSpace(ev.Manual.EvidenceURL),
		SubmittedAt:    time.Now(),
	}
	if err := v.queue.Enqueue(ctx, item); err != nil {
		log.Errorf("[ManualVerifier] Failed to enqueue review item for purchase %s: %v", purchaseID, err)
		return PendingManual("claim could not be queued for review right now; please retry")
	}

	return PendingManual("claim queued for manual review")
}
