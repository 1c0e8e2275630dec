package verification

import (
	"context"
	"time"

	"github.com/QuestPassApp/QuestPass/app/models"
)

// Verifier evaluates submitted evidence for one incentive type.
//
// Contract: Verify is safe to call more than once with identical inputs; it
// never panics or errors for buyer-supplied input. Malformed evidence is a
// rejected result and an unreachable dependency is a pending_manual result,
// so a transient outage can never permanently disqualify a legitimate claim.
// Constructors panic when a required dependency is missing; that is a
// programming error, not a runtime condition.
type Verifier interface {
	IncentiveType() models.IncentiveType
	Verify(ctx context.Context, purchaseID string, ev Evidence) Result
}

// CodeValidator confirms and consumes a single-use check-in code. Returns
// false when the code is unknown, expired or already used. An error means the
// backing store could not answer, which the adapter maps to pending_manual.
type CodeValidator interface {
	Validate(ctx context.Context, purchaseID, code string) (bool, error)
}

// ClaimStore is the durable claimed-set for referral dedup. Claim is an
// atomic insert-if-absent: of any number of concurrent callers claiming the
// same referee, exactly one gets true.
type ClaimStore interface {
	Contains(ctx context.Context, refereePurchaseID string) (bool, error)
	Claim(ctx context.Context, referrerPurchaseID, refereePurchaseID string) (bool, error)
}

// PurchaseDirectory answers whether a purchase exists and is in a state that
// qualifies it as a referee.
type PurchaseDirectory interface {
	QualifiesAsReferee(ctx context.Context, purchaseID string) (bool, error)
}

// ReviewItem is what the manual adapter hands to the human-review workflow.
type ReviewItem struct {
	PurchaseID     string    `json:"purchase_id"`
	DefinitionUUID string    `json:"definition_uuid"`
	IncentiveType  string    `json:"incentive_type"`
	Description    string    `json:"description"`
	EvidenceURL    string    `json:"evidence_url,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// ReviewQueue accepts items for manual review.
type ReviewQueue interface {
	Enqueue(ctx context.Context, item ReviewItem) error
}
