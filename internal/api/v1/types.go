package apiv1

import (
	"time"

	"github.com/QuestPassApp/QuestPass/app/models"
	"github.com/QuestPassApp/QuestPass/internal/pkg/campaign"
	"github.com/QuestPassApp/QuestPass/internal/pkg/discount"
	"github.com/QuestPassApp/QuestPass/internal/pkg/reviewqueue"
	"github.com/QuestPassApp/QuestPass/internal/pkg/verification"
)

// Pong is the health check response
type Pong struct {
	Ping string `json:"ping"`
}

// VerificationResponse carries the outcome of one evidence submission.
type VerificationResponse struct {
	PurchaseID   string                 `json:"purchase_id"`
	DefinitionID string                 `json:"definition_id"`
	Status       string                 `json:"status"`
	Reason       string                 `json:"reason,omitempty"`
	AwardedBps   int                    `json:"awarded_bps,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// PurchaseResponse is the buyer-facing purchase view: the purchase row with
// its per-incentive results plus the current discount quote.
type PurchaseResponse struct {
	Purchase *models.Purchase `json:"purchase"`
	Quote    discount.Quote   `json:"quote"`
}

// IngestRequest is the campaign editor's payload: the full definition set for
// one event. Definitions absent from the list are deactivated.
type IngestRequest struct {
	Definitions []campaign.DefinitionInput `json:"definitions" validate:"required,min=1,dive"`
}

// IngestResponse returns the stored definition set after an ingest.
type IngestResponse struct {
	EventID     string                       `json:"event_id"`
	Definitions []models.IncentiveDefinition `json:"definitions"`
}

// SeedCodesRequest asks for a batch of venue check-in codes. CodeLength zero
// picks the default length.
type SeedCodesRequest struct {
	Count      int        `json:"count" validate:"required,gte=1,lte=5000"`
	CodeLength int        `json:"code_length" validate:"gte=0,lte=32"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// SeedCodesResponse returns the generated batch.
type SeedCodesResponse struct {
	EventID string               `json:"event_id"`
	Codes   []models.CheckInCode `json:"codes"`
}

// CodeListResponse lists an event's check-in codes with the number still
// unredeemed.
type CodeListResponse struct {
	EventID string               `json:"event_id"`
	Codes   []models.CheckInCode `json:"codes"`
	Unused  int64                `json:"unused"`
}

// ReviewListResponse is the reviewer's work list.
type ReviewListResponse struct {
	Reviews []reviewqueue.Task `json:"reviews"`
	Count   int                `json:"count"`
}

// ResolutionRequest is the reviewer's verdict on one open review.
type ResolutionRequest struct {
	Resolution string `json:"resolution" validate:"required,oneof=approved rejected"`
	Note       string `json:"note" validate:"max=2000"`
}

// ResolutionResponse reports what the verdict did to the purchase. Applied is
// false when the purchase left the active state while the claim sat in
// review; the verdict is then recorded but changes nothing.
type ResolutionResponse struct {
	ReviewID string               `json:"review_id"`
	Applied  bool                 `json:"applied"`
	Result   *verification.Result `json:"result,omitempty"`
	Message  string               `json:"message,omitempty"`
}
