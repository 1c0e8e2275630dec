package verification

import (
	"encoding/json"
	"fmt"

	"github.com/QuestPassApp/QuestPass/app/models"
)

// SocialShareEvidence is the wire shape for social_share claims.
type SocialShareEvidence struct {
	URL string `json:"url"`
}

// CheckInEvidence is the wire shape for check_in claims.
type CheckInEvidence struct {
	Code string `json:"code"`
}

// ReferralEvidence is the wire shape for referral claims.
type ReferralEvidence struct {
	RefereePurchaseID string `json:"refereePurchaseId"`
}

// FeedbackEvidence is the wire shape for feedback claims.
type FeedbackEvidence struct {
	Text        string  `json:"text"`
	Rating      float64 `json:"rating"`
	SubmittedAt string  `json:"submittedAt"`
}

// ManualEvidence is the wire shape for manual and sponsor_session claims.
type ManualEvidence struct {
	Description string `json:"description"`
	EvidenceURL string `json:"evidenceUrl,omitempty"`
}

// Evidence is a tagged union over the per-type wire shapes. Exactly the arm
// matching Type is non-nil; adapters read their own arm and never have to
// shape-check a raw payload.
type Evidence struct {
	Type        models.IncentiveType
	SocialShare *SocialShareEvidence
	CheckIn     *CheckInEvidence
	Referral    *ReferralEvidence
	Feedback    *FeedbackEvidence
	Manual      *ManualEvidence
}

// ParseEvidence decodes a raw evidence payload into the typed arm for the
// given incentive type. A payload that does not decode into the expected
// shape is an error; callers map that to a rejected result rather than a
// fault.
func ParseEvidence(incentiveType models.IncentiveType, raw []byte) (Evidence, error) {
	ev := Evidence{Type: incentiveType}
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	switch incentiveType {
	case models.IncentiveTypeSocialShare:
		var arm SocialShareEvidence
		if err := json.Unmarshal(raw, &arm); err != nil {
			return Evidence{}, fmt.Errorf("invalid social_share evidence: %w", err)
		}
		ev.SocialShare = &arm
	case models.IncentiveTypeCheckIn:
		var arm CheckInEvidence
		if err := json.Unmarshal(raw, &arm); err != nil {
			return Evidence{}, fmt.Errorf("invalid check_in evidence: %w", err)
		}
		ev.CheckIn = &arm
	case models.IncentiveTypeReferral:
		var arm ReferralEvidence
		if err := json.Unmarshal(raw, &arm); err != nil {
			return Evidence{}, fmt.Errorf("invalid referral evidence: %w", err)
		}
		ev.Referral = &arm
	case models.IncentiveTypeFeedback:
		var arm FeedbackEvidence
		if err := json.Unmarshal(raw, &arm); err != nil {
			return Evidence{}, fmt.Errorf("invalid feedback evidence: %w", err)
		}
		ev.Feedback = &arm
	case models.IncentiveTypeManual, models.IncentiveTypeSponsorSession:
		var arm ManualEvidence
		if err := json.Unmarshal(raw, &arm); err != nil {
			return Evidence{}, fmt.Errorf("invalid manual evidence: %w", err)
		}
		ev.Manual = &arm
	default:
		return Evidence{}, fmt.Errorf("unknown incentive type %q", incentiveType)
	}

	return ev, nil
}
