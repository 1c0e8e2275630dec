package verification

import (
	"context"
	"strings"

	"github.com/QuestPassApp/QuestPass/app/models"
)

// CheckInVerifier validates a single-use venue code. How codes are issued and
// stored (QR scan, NFC tap, kiosk entry) is entirely behind the injected
// CodeValidator.
type CheckInVerifier struct {
	validator CodeValidator
}

// NewCheckInVerifier creates the check-in adapter.
func NewCheckInVerifier(validator CodeValidator) *CheckInVerifier {
	if validator == nil {
		panic("verification: CheckInVerifier requires a CodeValidator")
	}
	return &CheckInVerifier{validator: validator}
}

func (v *CheckInVerifier) IncentiveType() models.IncentiveType {
	return models.IncentiveTypeCheckIn
}

// Verify consumes the submitted code through the validator. A validator
// outage is treated as recoverable, not as proof of fraud.
func (v *CheckInVerifier) Verify(ctx context.Context, purchaseID string, ev Evidence) Result {
	if ev.CheckIn == nil || strings.TrimSpace(ev.CheckIn.Code) == "" {
		return Rejected("missing check-in code")
	}

	code := strings.TrimSpace(ev.CheckIn.Code)
	ok, err := v.validator.Validate(ctx, purchaseID, code)
	if err != nil {
		return PendingManual("check-in code could not be validated right now; please retry")
	}
	if !ok {
		return Rejected("check-in code is invalid or already used")
	}

	return Verified("check-in code accepted", map[string]interface{}{
		"code": code,
	})
}
