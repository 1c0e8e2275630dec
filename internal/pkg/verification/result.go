package verification

import (
	"encoding/json"

	"github.com/QuestPassApp/QuestPass/app/models"
)

// Result is the outcome of one verification attempt. Adapters only decide the
// status, reason and evidence metadata; AwardedBps is filled in by the engine
// when a verified result is committed against its definition.
type Result struct {
	Status     string                 `json:"status"`
	Reason     string                 `json:"reason,omitempty"`
	AwardedBps int                    `json:"awarded_bps,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Verified builds a result for accepted evidence.
func Verified(reason string, metadata map[string]interface{}) Result {
	return Result{
		Status:   models.VerificationStatusVerified,
		Reason:   reason,
		Metadata: metadata,
	}
}

// Rejected builds a result for deterministically invalid evidence. Rejections
// are retriable with corrected evidence until the incentive expires.
func Rejected(reason string) Result {
	return Result{
		Status: models.VerificationStatusRejected,
		Reason: reason,
	}
}

// PendingManual builds a result for claims that need a human decision, either
// by design or because a dependency was unreachable.
func PendingManual(reason string) Result {
	return Result{
		Status: models.VerificationStatusPendingManual,
		Reason: reason,
	}
}

// IsVerified reports whether the evidence was accepted.
func (r Result) IsVerified() bool {
	return r.Status == models.VerificationStatusVerified
}

// IsRejected reports whether the evidence was deterministically invalid.
func (r Result) IsRejected() bool {
	return r.Status == models.VerificationStatusRejected
}

// IsPendingManual reports whether the claim is parked for human review.
func (r Result) IsPendingManual() bool {
	return r.Status == models.VerificationStatusPendingManual
}

// MetadataJSON serializes the metadata map for persistence. An empty map
// serializes to the empty string.
func (r Result) MetadataJSON() string {
	if len(r.Metadata) == 0 {
		return ""
	}
	raw, err := json.Marshal(r.Metadata)
	if err != nil {
		return ""
	}
	return string(raw)
}
