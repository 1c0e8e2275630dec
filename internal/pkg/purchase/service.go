package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/QuestPassApp/QuestPass/app/models"
	"github.com/QuestPassApp/QuestPass/app/repository"
	"github.com/QuestPassApp/QuestPass/internal/pkg/discount"
	"github.com/QuestPassApp/QuestPass/internal/pkg/verification"
)

// RegistrySource provides the verifier registry configured for an event's
// campaign.
type RegistrySource interface {
	RegistryFor(ctx context.Context, eventID string) (*verification.Registry, error)
}

// AttemptLimiter caps how often a buyer may retry a single incentive. An
// error from the limiter is treated as "allow": a limiter outage must never
// reject a legitimate claim.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// OutcomeTracker records per-definition attempt and outcome counts for
// campaign analytics. Implementations must be cheap; tracking runs inline
// with request handling.
type OutcomeTracker interface {
	TrackAttempt(definitionUUID string)
	TrackOutcome(definitionUUID, status string)
}

// Service owns the purchase lifecycle and is the correctness boundary for
// verification: it gates submissions on purchase state, keeps awards
// idempotent and discards results that arrive after the purchase left the
// active state.
type Service struct {
	purchases  repository.PurchaseRepository
	incentives repository.IncentiveRepository
	claims     repository.ReferralClaimRepository
	registries RegistrySource
	limiter    AttemptLimiter
	tracker    OutcomeTracker
}

// NewService creates a purchase service. The limiter and tracker are
// optional; pass nil to disable attempt limiting or outcome tracking.
func NewService(repos *repository.Repositories, registries RegistrySource, limiter AttemptLimiter, tracker OutcomeTracker) *Service {
	if repos == nil {
		panic("purchase: Service requires repositories")
	}
	if registries == nil {
		panic("purchase: Service requires a RegistrySource")
	}
	return &Service{
		purchases:  repos.Purchase,
		incentives: repos.Incentive,
		claims:     repos.ReferralClaim,
		registries: registries,
		limiter:    limiter,
		tracker:    tracker,
	}
}

// RegisterAuthorized records a purchase reported by the payment rail in the
// authorized state. Redeliveries of the same purchase are a no-op returning
// the stored row.
func (s *Service) RegisterAuthorized(ctx context.Context, purchaseUUID, eventID, buyerRef string, basePriceCents int64, currency string) (*models.Purchase, error) {
	_ = ctx
	purchaseUUID = strings.TrimSpace(purchaseUUID)
	eventID = strings.TrimSpace(eventID)
	if purchaseUUID == "" || eventID == "" {
		return nil, errors.New("purchase_uuid and event_id are required")
	}
	if currency == "" {
		currency = "USD"
	}

	if existing, err := s.purchases.GetByUUID(purchaseUUID); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up purchase %s: %w", purchaseUUID, err)
	}

	p := &models.Purchase{
		PurchaseUUID:   purchaseUUID,
		EventID:        eventID,
		BuyerRef:       strings.TrimSpace(buyerRef),
		BasePriceCents: basePriceCents,
		Currency:       strings.ToUpper(currency),
		Status:         models.PurchaseStatusAuthorized,
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid purchase: %w", err)
	}
	if err := s.purchases.Create(p); err != nil {
		// Lost a race against a concurrent delivery of the same purchase.
		if existing, lookupErr := s.purchases.GetByUUID(purchaseUUID); lookupErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create purchase %s: %w", purchaseUUID, err)
	}

	log.Infof("[PurchaseService] Registered purchase %s for event %s (%d cents)", purchaseUUID, eventID, basePriceCents)
	return p, nil
}

// GetPurchase loads a purchase with its verification results.
func (s *Service) GetPurchase(ctx context.Context, purchaseUUID string) (*models.Purchase, error) {
	_ = ctx
	p, err := s.purchases.GetByUUIDWithResults(purchaseUUID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase %s: %w", purchaseUUID, err)
	}
	return p, nil
}

// SubmitVerification runs one verification attempt end to end: gate on
// purchase state, resolve the definition, dispatch to the matching adapter
// and commit the outcome. It returns the resulting verification outcome; the
// error return is reserved for request-level failures (unknown purchase,
// closed purchase, rate limit), never for bad evidence.
func (s *Service) SubmitVerification(ctx context.Context, purchaseUUID, definitionUUID string, rawEvidence []byte) (verification.Result, error) {
	p, err := s.purchases.GetByUUID(purchaseUUID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return verification.Result{}, ErrPurchaseNotFound
	}
	if err != nil {
		return verification.Result{}, fmt.Errorf("failed to load purchase %s: %w", purchaseUUID, err)
	}

	def, err := s.incentives.GetDefinitionByUUID(definitionUUID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return verification.Result{}, ErrDefinitionNotFound
	}
	if err != nil {
		return verification.Result{}, fmt.Errorf("failed to load definition %s: %w", definitionUUID, err)
	}
	if def.EventID != p.EventID {
		return verification.Result{}, ErrDefinitionNotFound
	}
	if !def.Active {
		return verification.Result{}, ErrDefinitionInactive
	}

	if !p.AcceptsVerifications() {
		return verification.Result{}, ErrPurchaseNotAccepting
	}

	if s.limiter != nil {
		key := fmt.Sprintf("verify:%s:%s", p.PurchaseUUID, def.DefinitionUUID)
		allowed, limitErr := s.limiter.Allow(ctx, key)
		if limitErr != nil {
			log.Warnf("[PurchaseService] Attempt limiter unavailable, failing open: %v", limitErr)
		} else if !allowed {
			return verification.Result{}, ErrRateLimited
		}
	}

	slot, _, err := s.incentives.GetOrCreateResult(p.ID, def.ID)
	if err != nil {
		return verification.Result{}, fmt.Errorf("failed to prepare result slot: %w", err)
	}

	// Idempotence: a verified slot is terminal. Resubmitting returns the
	// stored outcome and never awards twice.
	if slot.IsVerified() {
		return s.storedResult(slot), nil
	}

	now := time.Now()
	if def.IsExpired(now) {
		reason := "incentive expired; no further attempts accepted"
		if _, markErr := s.incentives.MarkResultRejected(slot.ID, reason, slot.MetadataJSON); markErr != nil {
			log.Errorf("[PurchaseService] Failed to store expiry rejection for purchase %s: %v", purchaseUUID, markErr)
		}
		s.trackOutcome(def.DefinitionUUID, models.VerificationStatusRejected)
		return verification.Rejected(reason), nil
	}

	if err := s.incentives.IncrementResultAttempt(slot.ID, now); err != nil {
		log.Warnf("[PurchaseService] Failed to count attempt for purchase %s: %v", purchaseUUID, err)
	}
	s.trackAttempt(def.DefinitionUUID)

	ev, parseErr := verification.ParseEvidence(def.IncentiveType, rawEvidence)
	if parseErr != nil {
		result := verification.Rejected(fmt.Sprintf("malformed evidence: %v", parseErr))
		if _, markErr := s.incentives.MarkResultRejected(slot.ID, result.Reason, ""); markErr != nil {
			log.Errorf("[PurchaseService] Failed to store rejection for purchase %s: %v", purchaseUUID, markErr)
		}
		s.trackOutcome(def.DefinitionUUID, result.Status)
		return result, nil
	}

	registry, err := s.registries.RegistryFor(ctx, p.EventID)
	if err != nil {
		log.Errorf("[PurchaseService] Failed to build verifier registry for event %s: %v", p.EventID, err)
		result := verification.PendingManual("verification is temporarily unavailable; please retry")
		if _, markErr := s.incentives.MarkResultPendingManual(slot.ID, result.Reason, ""); markErr != nil {
			log.Errorf("[PurchaseService] Failed to store pending result for purchase %s: %v", purchaseUUID, markErr)
		}
		s.trackOutcome(def.DefinitionUUID, result.Status)
		return result, nil
	}

	result := registry.Verify(ctx, def.IncentiveType, p.PurchaseUUID, ev)
	return s.commitResult(ctx, p, def, slot, ev, result)
}

// commitResult persists an adapter outcome under the idempotence and
// cancellation guards.
func (s *Service) commitResult(ctx context.Context, p *models.Purchase, def *models.IncentiveDefinition, slot *models.IncentiveResult, ev verification.Evidence, result verification.Result) (verification.Result, error) {
	switch {
	case result.IsVerified():
		applied, err := s.incentives.MarkResultVerified(slot.ID, def.DiscountBps, result.Reason, result.MetadataJSON())
		if err != nil {
			return verification.Result{}, fmt.Errorf("failed to commit verified result: %w", err)
		}
		if !applied {
			if stored, lookupErr := s.incentives.GetResult(p.ID, def.ID); lookupErr == nil && stored.IsVerified() {
				// A concurrent attempt won; its award stands.
				return s.storedResult(stored), nil
			}
			// The purchase left active while the verification was in
			// flight; the outcome is discarded, not applied.
			s.releaseDiscardedClaim(ctx, p, ev)
			log.Infof("[PurchaseService] Discarded verified result for purchase %s definition %s", p.PurchaseUUID, def.DefinitionUUID)
			return verification.Result{}, ErrResultDiscarded
		}
		result.AwardedBps = def.DiscountBps
		s.trackOutcome(def.DefinitionUUID, result.Status)
		return result, nil

	case result.IsRejected():
		applied, err := s.incentives.MarkResultRejected(slot.ID, result.Reason, result.MetadataJSON())
		if err != nil {
			return verification.Result{}, fmt.Errorf("failed to commit rejected result: %w", err)
		}
		if !applied {
			if stored, lookupErr := s.incentives.GetResult(p.ID, def.ID); lookupErr == nil && stored.IsVerified() {
				return s.storedResult(stored), nil
			}
		}
		s.trackOutcome(def.DefinitionUUID, result.Status)
		return result, nil

	default:
		applied, err := s.incentives.MarkResultPendingManual(slot.ID, result.Reason, result.MetadataJSON())
		if err != nil {
			return verification.Result{}, fmt.Errorf("failed to commit pending result: %w", err)
		}
		if !applied {
			if stored, lookupErr := s.incentives.GetResult(p.ID, def.ID); lookupErr == nil && stored.IsVerified() {
				return s.storedResult(stored), nil
			}
		}
		s.trackOutcome(def.DefinitionUUID, result.Status)
		return result, nil
	}
}

// releaseDiscardedClaim undoes the referral claim of a verified-then-discarded
// attempt so the referee stays usable. Other side effects stay as they are: a
// consumed check-in code belongs to this purchase either way.
func (s *Service) releaseDiscardedClaim(ctx context.Context, p *models.Purchase, ev verification.Evidence) {
	_ = ctx
	if ev.Type != models.IncentiveTypeReferral || ev.Referral == nil {
		return
	}
	referee := strings.TrimSpace(ev.Referral.RefereePurchaseID)
	if referee == "" {
		return
	}
	claim, err := s.claims.GetByReferee(referee)
	if err != nil || claim.ReferrerPurchaseUUID != p.PurchaseUUID {
		return
	}
	if err := s.claims.Release(referee); err != nil {
		log.Errorf("[PurchaseService] Failed to release discarded referral claim for referee %s: %v", referee, err)
	}
}

// ResolveReview is the callback path for the manual-review workflow: it
// promotes a pending_manual result to verified or rejected under the same
// guards as automated verification.
func (s *Service) ResolveReview(ctx context.Context, purchaseUUID, definitionUUID string, approve bool, note string) (verification.Result, error) {
	_ = ctx
	p, err := s.purchases.GetByUUID(purchaseUUID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return verification.Result{}, ErrPurchaseNotFound
	}
	if err != nil {
		return verification.Result{}, fmt.Errorf("failed to load purchase %s: %w", purchaseUUID, err)
	}

	def, err := s.incentives.GetDefinitionByUUID(definitionUUID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return verification.Result{}, ErrDefinitionNotFound
	}
	if err != nil {
		return verification.Result{}, fmt.Errorf("failed to load definition %s: %w", definitionUUID, err)
	}
	if def.EventID != p.EventID {
		return verification.Result{}, ErrDefinitionNotFound
	}

	slot, err := s.incentives.GetResult(p.ID, def.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return verification.Result{}, ErrResultNotFound
	}
	if err != nil {
		return verification.Result{}, fmt.Errorf("failed to load result: %w", err)
	}

	if slot.IsVerified() {
		if approve {
			return s.storedResult(slot), nil
		}
		return verification.Result{}, ErrAlreadyResolved
	}

	if approve {
		reason := reviewReason("approved by reviewer", note)
		applied, err := s.incentives.MarkResultVerified(slot.ID, def.DiscountBps, reason, slot.MetadataJSON)
		if err != nil {
			return verification.Result{}, fmt.Errorf("failed to apply review approval: %w", err)
		}
		if !applied {
			// The purchase closed while the claim sat in review; the
			// frozen settlement number must not change anymore.
			return verification.Result{}, ErrResultDiscarded
		}
		s.trackOutcome(def.DefinitionUUID, models.VerificationStatusVerified)
		log.Infof("[PurchaseService] Review approved incentive %s for purchase %s (+%d bps)", definitionUUID, purchaseUUID, def.DiscountBps)
		result := verification.Verified(reason, nil)
		result.AwardedBps = def.DiscountBps
		return result, nil
	}

	reason := reviewReason("rejected by reviewer", note)
	applied, err := s.incentives.MarkResultRejected(slot.ID, reason, slot.MetadataJSON)
	if err != nil {
		return verification.Result{}, fmt.Errorf("failed to apply review rejection: %w", err)
	}
	if !applied {
		return verification.Result{}, ErrAlreadyResolved
	}
	s.trackOutcome(def.DefinitionUUID, models.VerificationStatusRejected)
	log.Infof("[PurchaseService] Review rejected incentive %s for purchase %s", definitionUUID, purchaseUUID)
	return verification.Rejected(reason), nil
}

// Quote returns the current discount picture for a purchase. Once settlement
// has started the frozen numbers are returned instead of a live computation.
func (s *Service) Quote(ctx context.Context, purchaseUUID string) (discount.Quote, error) {
	p, err := s.GetPurchase(ctx, purchaseUUID)
	if err != nil {
		return discount.Quote{}, err
	}
	if q, frozen := frozenQuote(p); frozen {
		return q, nil
	}
	return discount.QuoteFor(p.BasePriceCents, p.IncentiveResults), nil
}

// Activate opens the verification window ('authorized' → 'active').
func (s *Service) Activate(ctx context.Context, purchaseUUID string) error {
	now := time.Now()
	return s.transition(ctx, purchaseUUID, models.PurchaseStatusActive, map[string]interface{}{
		"activated_at": &now,
	})
}

// BeginSettlement closes the verification window, computes the discount once
// and freezes it for settlement ('active' → 'settling'). Calling it again
// returns the already frozen numbers.
func (s *Service) BeginSettlement(ctx context.Context, purchaseUUID string) (discount.Quote, error) {
	p, err := s.GetPurchase(ctx, purchaseUUID)
	if err != nil {
		return discount.Quote{}, err
	}

	if p.Status == models.PurchaseStatusSettling || p.Status == models.PurchaseStatusSettled {
		if q, frozen := frozenQuote(p); frozen {
			return q, nil
		}
		return discount.QuoteFor(p.BasePriceCents, p.IncentiveResults), nil
	}
	if !p.CanTransitionTo(models.PurchaseStatusSettling) {
		return discount.Quote{}, ErrInvalidTransition
	}

	q := discount.QuoteFor(p.BasePriceCents, p.IncentiveResults)
	applied, err := s.purchases.TransitionStatus(purchaseUUID, p.Status, models.PurchaseStatusSettling, map[string]interface{}{
		"frozen_discount_bps":    q.TotalBps,
		"frozen_net_price_cents": q.NetPriceCents,
	})
	if err != nil {
		return discount.Quote{}, fmt.Errorf("failed to begin settlement for %s: %w", purchaseUUID, err)
	}
	if !applied {
		// Another instance froze first; its numbers stand.
		refreshed, refErr := s.GetPurchase(ctx, purchaseUUID)
		if refErr != nil {
			return discount.Quote{}, refErr
		}
		if fq, frozen := frozenQuote(refreshed); frozen {
			return fq, nil
		}
		return discount.Quote{}, ErrInvalidTransition
	}

	log.Infof("[PurchaseService] Settlement started for purchase %s: %d bps frozen, net %d cents", purchaseUUID, q.TotalBps, q.NetPriceCents)
	return q, nil
}

// MarkSettled completes settlement ('settling' → 'settled').
func (s *Service) MarkSettled(ctx context.Context, purchaseUUID string) error {
	now := time.Now()
	return s.transition(ctx, purchaseUUID, models.PurchaseStatusSettled, map[string]interface{}{
		"settled_at": &now,
	})
}

// Cancel aborts a purchase from any state before settled and discards any
// accumulated or frozen discounts.
func (s *Service) Cancel(ctx context.Context, purchaseUUID string) error {
	for attempt := 0; attempt < 2; attempt++ {
		p, err := s.purchases.GetByUUID(purchaseUUID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPurchaseNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load purchase %s: %w", purchaseUUID, err)
		}
		if p.Status == models.PurchaseStatusCancelled {
			return nil
		}
		if !p.CanTransitionTo(models.PurchaseStatusCancelled) {
			return ErrInvalidTransition
		}

		now := time.Now()
		applied, err := s.purchases.TransitionStatus(purchaseUUID, p.Status, models.PurchaseStatusCancelled, map[string]interface{}{
			"cancelled_at":           &now,
			"frozen_discount_bps":    nil,
			"frozen_net_price_cents": nil,
		})
		if err != nil {
			return fmt.Errorf("failed to cancel purchase %s: %w", purchaseUUID, err)
		}
		if applied {
			log.Infof("[PurchaseService] Cancelled purchase %s", purchaseUUID)
			return nil
		}
		// Lost a race against another transition; re-read and try once more.
	}
	return ErrInvalidTransition
}

// transition performs a single-step lifecycle change, tolerating redelivery
// (already in the target state) and concurrent writers.
func (s *Service) transition(ctx context.Context, purchaseUUID, target string, extra map[string]interface{}) error {
	_ = ctx
	p, err := s.purchases.GetByUUID(purchaseUUID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrPurchaseNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load purchase %s: %w", purchaseUUID, err)
	}
	if p.Status == target {
		return nil
	}
	if !p.CanTransitionTo(target) {
		return ErrInvalidTransition
	}

	applied, err := s.purchases.TransitionStatus(purchaseUUID, p.Status, target, extra)
	if err != nil {
		return fmt.Errorf("failed to transition purchase %s to %s: %w", purchaseUUID, target, err)
	}
	if !applied {
		refreshed, refErr := s.purchases.GetByUUID(purchaseUUID)
		if refErr == nil && refreshed.Status == target {
			return nil
		}
		return ErrInvalidTransition
	}

	log.Infof("[PurchaseService] Purchase %s is now %s", purchaseUUID, target)
	return nil
}

// storedResult converts a persisted slot back into a result value.
func (s *Service) storedResult(slot *models.IncentiveResult) verification.Result {
	result := verification.Result{
		Status:     slot.Status,
		Reason:     slot.Reason,
		AwardedBps: slot.AwardedBps,
	}
	if slot.MetadataJSON != "" {
		var metadata map[string]interface{}
		if err := json.Unmarshal([]byte(slot.MetadataJSON), &metadata); err == nil {
			result.Metadata = metadata
		}
	}
	return result
}

func (s *Service) trackAttempt(definitionUUID string) {
	if s.tracker != nil {
		s.tracker.TrackAttempt(definitionUUID)
	}
}

func (s *Service) trackOutcome(definitionUUID, status string) {
	if s.tracker != nil {
		s.tracker.TrackOutcome(definitionUUID, status)
	}
}

func frozenQuote(p *models.Purchase) (discount.Quote, bool) {
	if p.FrozenDiscountBps == nil || p.FrozenNetPriceCents == nil {
		return discount.Quote{}, false
	}
	return discount.Quote{
		BasePriceCents: p.BasePriceCents,
		TotalBps:       *p.FrozenDiscountBps,
		DiscountCents:  p.BasePriceCents - *p.FrozenNetPriceCents,
		NetPriceCents:  *p.FrozenNetPriceCents,
	}, true
}

func reviewReason(prefix, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return prefix
	}
	return fmt.Sprintf("%s: %s", prefix, note)
}
