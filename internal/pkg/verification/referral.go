package verification

import (
	"context"
	"fmt"
	"strings"

	"github.com/QuestPassApp/QuestPass/app/models"
)

// ReferralVerifier checks that a claimed referee purchase is real, was not
// referred by itself and has not been used for a referral before. The
// claimed-set lives in a durable shared store; the concluding atomic Claim is
// what makes a referee usable at most once across the whole system, no matter
// how many instances verify concurrently.
type ReferralVerifier struct {
	claims    ClaimStore
	directory PurchaseDirectory
}

// NewReferralVerifier creates the referral adapter.
func NewReferralVerifier(claims ClaimStore, directory PurchaseDirectory) *ReferralVerifier {
	if claims == nil {
		panic("verification: ReferralVerifier requires a ClaimStore")
	}
	if directory == nil {
		panic("verification: ReferralVerifier requires a PurchaseDirectory")
	}
	return &ReferralVerifier{claims: claims, directory: directory}
}

func (v *ReferralVerifier) IncentiveType() models.IncentiveType {
	return models.IncentiveTypeReferral
}

// Verify checks the referee in order: present, not a self-referral, not
// already claimed, exists in a qualifying state, then claims it atomically.
func (v *ReferralVerifier) Verify(ctx context.Context, purchaseID string, ev Evidence) Result {
	if ev.Referral == nil || strings.TrimSpace(ev.Referral.RefereePurchaseID) == "" {
		return Rejected("missing referee purchase id")
	}

	referee := strings.TrimSpace(ev.Referral.RefereePurchaseID)
	if referee == purchaseID {
		return Rejected("self-referral is not allowed")
	}

	claimed, err := v.claims.Contains(ctx, referee)
	if err != nil {
		return PendingManual("referral records are unavailable right now; please retry")
	}
	if claimed {
		return Rejected(fmt.Sprintf("purchase %s was already used for a referral", referee))
	}

	qualifies, err := v.directory.QualifiesAsReferee(ctx, referee)
	if err != nil {
		return PendingManual("referee purchase could not be checked right now; please retry")
	}
	if !qualifies {
		return Rejected(fmt.Sprintf("purchase %s does not exist or does not qualify as a referee", referee))
	}

	won, err := v.claims.Claim(ctx, purchaseID, referee)
	if err != nil {
		return PendingManual("referral could not be recorded right now; please retry")
	}
	if !won {
		// Another referrer claimed the referee between the Contains
		// check and here.
		return Rejected(fmt.Sprintf("purchase %s was already used for a referral", referee))
	}

	return Verified("referral accepted", map[string]interface{}{
		"refereePurchaseId": referee,
	})
}
