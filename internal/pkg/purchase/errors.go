package purchase

import "errors"

var (
	// ErrPurchaseNotFound means no purchase exists for the given UUID.
	ErrPurchaseNotFound = errors.New("purchase not found")
	// ErrDefinitionNotFound means the incentive definition does not exist
	// or belongs to a different event than the purchase.
	ErrDefinitionNotFound = errors.New("incentive definition not found for this purchase")
	// ErrDefinitionInactive means the campaign editor disabled the
	// definition.
	ErrDefinitionInactive = errors.New("incentive definition is not active")
	// ErrPurchaseNotAccepting means the purchase is not in the active
	// state, which is the only state accepting verification submissions.
	ErrPurchaseNotAccepting = errors.New("purchase does not accept verification submissions in its current state")
	// ErrRateLimited means the buyer exceeded the attempt limit for this
	// incentive.
	ErrRateLimited = errors.New("too many verification attempts, slow down")
	// ErrResultDiscarded means the purchase left the active state while
	// the verification was in flight, so its outcome was discarded rather
	// than applied.
	ErrResultDiscarded = errors.New("verification outcome discarded: purchase no longer accepts results")
	// ErrInvalidTransition means the requested lifecycle change is not
	// allowed from the purchase's current state.
	ErrInvalidTransition = errors.New("invalid purchase state transition")
	// ErrResultNotFound means no verification attempt exists for the given
	// purchase and definition.
	ErrResultNotFound = errors.New("verification result not found")
	// ErrAlreadyResolved means a reviewer tried to overturn a result that
	// is already terminally verified.
	ErrAlreadyResolved = errors.New("verification result is already verified and cannot be overturned")
)
