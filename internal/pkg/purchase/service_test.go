package purchase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/QuestPassApp/QuestPass/app/models"
	"github.com/QuestPassApp/QuestPass/app/repository"
	"github.com/QuestPassApp/QuestPass/internal/pkg/verification"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&models.Purchase{},
		&models.IncentiveDefinition{},
		&models.IncentiveResult{},
		&models.ReferralClaim{},
		&models.CheckInCode{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// scriptedVerifier lets a test decide the adapter outcome per call.
type scriptedVerifier struct {
	incentiveType models.IncentiveType
	fn            func(ctx context.Context, purchaseID string, ev verification.Evidence) verification.Result
}

func (s *scriptedVerifier) IncentiveType() models.IncentiveType {
	return s.incentiveType
}

func (s *scriptedVerifier) Verify(ctx context.Context, purchaseID string, ev verification.Evidence) verification.Result {
	return s.fn(ctx, purchaseID, ev)
}

type fixedRegistrySource struct {
	registry *verification.Registry
	err      error
}

func (f *fixedRegistrySource) RegistryFor(ctx context.Context, eventID string) (*verification.Registry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.registry, nil
}

type fixedLimiter struct {
	allow bool
	err   error
}

func (l *fixedLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.allow, l.err
}

type recordingTracker struct {
	attempts []string
	outcomes []string
}

func (r *recordingTracker) TrackAttempt(definitionUUID string) {
	r.attempts = append(r.attempts, definitionUUID)
}

func (r *recordingTracker) TrackOutcome(definitionUUID, status string) {
	r.outcomes = append(r.outcomes, definitionUUID+":"+status)
}

func newTestService(t *testing.T) (*Service, *repository.Repositories, *verification.Registry, *recordingTracker) {
	t.Helper()
	db := setupTestDB(t)
	repos := repository.NewRepositories(db)
	registry := verification.NewRegistry()
	tracker := &recordingTracker{}
	svc := NewService(repos, &fixedRegistrySource{registry: registry}, nil, tracker)
	return svc, repos, registry, tracker
}

func createPurchase(t *testing.T, repos *repository.Repositories, purchaseUUID, eventID, status string, basePriceCents int64) *models.Purchase {
	t.Helper()
	p := &models.Purchase{
		PurchaseUUID:   purchaseUUID,
		EventID:        eventID,
		BasePriceCents: basePriceCents,
		Currency:       "USD",
		Status:         status,
	}
	if err := repos.Purchase.Create(p); err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	return p
}

func createDefinition(t *testing.T, repos *repository.Repositories, definitionUUID, eventID string, incentiveType models.IncentiveType, bps int, expiresAt *time.Time) *models.IncentiveDefinition {
	t.Helper()
	def := &models.IncentiveDefinition{
		DefinitionUUID: definitionUUID,
		EventID:        eventID,
		IncentiveType:  incentiveType,
		DiscountBps:    bps,
		Description:    "test incentive",
		ExpiresAt:      expiresAt,
		Active:         true,
	}
	if err := repos.Incentive.CreateDefinition(def); err != nil {
		t.Fatalf("create definition: %v", err)
	}
	return def
}

func feedbackRaw() []byte {
	text := strings.Repeat("x", 60)
	return []byte(fmt.Sprintf(`{"text":%q,"rating":4,"submittedAt":"2026-05-01T12:00:00Z"}`, text))
}

func TestSubmitVerification_OnlyActivePurchasesAccept(t *testing.T) {
	svc, repos, registry, _ := newTestService(t)
	registry.Register(verification.NewFeedbackVerifier(verification.FeedbackConfig{}))

	createPurchase(t, repos, "p-1", "ev-1", models.PurchaseStatusAuthorized, 10000)
	createDefinition(t, repos, "def-fb", "ev-1", models.IncentiveTypeFeedback, 500, nil)

	_, err := svc.SubmitVerification(context.Background(), "p-1", "def-fb", feedbackRaw())
	if !errors.Is(err, ErrPurchaseNotAccepting) {
		t.Fatalf("expected ErrPurchaseNotAccepting for authorized purchase, got %v", err)
	}

	if err := svc.Activate(context.Background(), "p-1"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	result, err := svc.SubmitVerification(context.Background(), "p-1", "def-fb", feedbackRaw())
	if err != nil {
		t.Fatalf("submit after activation: %v", err)
	}
	if !result.IsVerified() {
		t.Fatalf("expected verified, got %q (%s)", result.Status, result.Reason)
	}

	if err := svc.Cancel(context.Background(), "p-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err = svc.SubmitVerification(context.Background(), "p-1", "def-fb", feedbackRaw())
	if !errors.Is(err, ErrPurchaseNotAccepting) {
		t.Fatalf("expected ErrPurchaseNotAccepting for cancelled purchase, got %v", err)
	}
}

func TestSubmitVerification_UnknownPurchaseAndDefinition(t *testing.T) {
	svc, repos, registry, _ := newTestService(t)
	registry.Register(verification.NewFeedbackVerifier(verification.FeedbackConfig{}))

	_, err := svc.SubmitVerification(context.Background(), "nope", "def-fb", feedbackRaw())
	if !errors.Is(err, ErrPurchaseNotFound) {
		t.Fatalf("expected ErrPurchaseNotFound, got %v", err)
	}

	createPurchase(t, repos, "p-1", "ev-1", models.PurchaseStatusActive, 10000)
	_, err = svc.SubmitVerification(context.Background(), "p-1", "missing-def", feedbackRaw())
	if !errors.Is(err, ErrDefinitionNotFound) {
		t.Fatalf("expected ErrDefinitionNotFound, got %v", err)
	}

	// A definition of a different event must not be claimable.
	createDefinition(t, repos, "def-other", "ev-2", models.IncentiveTypeFeedback, 500, nil)
	_, err = svc.SubmitVerification(context.Background(), "p-1", "def-other", feedbackRaw())
	if !errors.Is(err, ErrDefinitionNotFound) {
		t.Fatalf("expected ErrDefinitionNotFound for foreign event, got %v", err)
	}
}

func TestSubmitVerification_VerifiedIsIdempotent(t *testing.T) {
	svc, repos, registry, tracker := newTestService(t)
	registry.Register(verification.NewFeedbackVerifier(verification.FeedbackConfig{}))

	p := createPurchase(t, repos, "p-1", "ev-1", models.PurchaseStatusActive, 10000)
	def := createDefinition(t, repos, "def-fb", "ev-1", models.IncentiveTypeFeedback, 750, nil)

	first, err := svc.SubmitVerification(context.Background(), "p-1", "def-fb", feedbackRaw())
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if !first.IsVerified() || first.AwardedBps != 750 {
		t.Fatalf("expected verified with 750 bps, got %q (%d bps)", first.Status, first.AwardedBps)
	}

	second, err := svc.SubmitVerification(context.Background(), "p-1", "def-fb", feedbackRaw())
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if !second.IsVerified() || second.AwardedBps != 750 {
		t.Fatalf("resubmission must return the stored award, got %q (%d bps)", second.Status, second.AwardedBps)
	}

	slot, err := repos.Incentive.GetResult(p.ID, def.ID)
	if err != nil {
		t.Fatalf("load slot: %v", err)
	}
	if slot.AwardedBps != 750 {
		t.Fatalf("expected a single award of 750 bps, got %d", slot.AwardedBps)
	}
	if slot.AttemptCount != 1 {
		t.Fatalf("resubmission of a verified slot must not count as an attempt, got %d", slot.AttemptCount)
	}
	if len(tracker.attempts) != 1 {
		t.Fatalf("expected 1 tracked attempt, got %d", len(tracker.attempts))
	}
}

func TestSubmitVerification_MalformedEvidenceIsRejected(t *testing.T) {
	svc, repos, registry, _ := newTestService(t)
	registry.Register(verification.NewFeedbackVerifier(verification.FeedbackConfig{}))

	p := createPurchase(t, repos, "p-1", "ev-1", models.PurchaseStatusActive, 10000)
	def := createDefinition(t, repos, "def-fb", "ev-1", models.IncentiveTypeFeedback, 500, nil)

	result, err := svc.SubmitVerification(context.Background(), "p-1", "def-fb", []byte(`{"rating":"four"}`))
	if err != nil {
		t.Fatalf("malformed evidence must not be an error: %v", err)
	}
	if !result.IsRejected() {
		t.Fatalf("expected rejected, got %q", result.Status)
	}

	slot, err := repos.Incentive.GetResult(p.ID, def.ID)
	if err != nil {
		t.Fatalf("load slot: %v", err)
	}
	if slot.Status != models.VerificationStatusRejected {
		t.Fatalf("expected stored rejection, got %q", slot.Status)
	}
}

func TestSubmitVerification_ExpiredDefinitionIsRejected(t *testing.T) {
	svc, repos, registry, _ := newTestService(t)
	registry.Register(verification.NewFeedbackVerifier(verification.FeedbackConfig{}))

	createPurchase(t, repos, "p-1", "ev-1", models.PurchaseStatusActive, 10000)
	expired := time.Now().Add(-time.Hour)
	createDefinition(t, repos, "def-fb", "ev-1", models.IncentiveTypeFeedback, 500, &expired)

	result, err := svc.SubmitVerification(context.Background(), "p-1", "def-fb", feedbackRaw())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.IsRejected() || !strings.Contains(result.Reason, "expired") {
		t.Fatalf("expected expiry rejection, got %q (%s)", result.Status, result.Reason)
	}
}

func TestSubmitVerification_MissingAdapterStaysPending(t *testing.T) {
	svc, repos, _, _ := newTestService(t)

	p := createPurchase(t, repos, "p-1", "ev-1", models.PurchaseStatusActive, 10000)
	def := createDefinition(t, repos, "def-ci", "ev-1", models.IncentiveTypeCheckIn, 500, nil)

	result, err := svc.SubmitVerification(context.Background(), "p-1", "def-ci", []byte(`{"code":"GATE-1"}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.IsPendingManual() || !strings.Contains(result.Reason, "check_in") {
		t.Fatalf("expected pending_manual naming the type, got %q (%s)", result.Status, result.Reason)
	}

	slot, err := repos.Incentive.GetResult(p.ID, def.ID)
	if err != nil {
		t.Fatalf("load slot: %v", err)
	}
	if slot.Status != models.VerificationStatusPendingManual {
		t.Fatalf("expected stored pending_manual, got %q", slot.Status)
	}
}

func TestSubmitVerification_RateLimited(t *testing.T) {
	db := setupTestDB(t)
	repos := repository.NewRepositories(db)
	registry := verification.NewRegistry()
	registry.Register(verification.NewFeedbackVerifier(verification.FeedbackConfig{}))
	svc := NewService(repos, &fixedRegistrySource{registry: registry}, &fixedLimiter{allow: false}, nil)

	createPurchase(t, repos, "p-1", "ev-1", models.PurchaseStatusActive, 10000)
	createDefinition(t, repos, "def-fb", "ev-1", models.IncentiveTypeFeedback, 500, nil)

	_, err := svc.SubmitVerification(context.Background(), "p-1", "def-fb", feedbackRaw())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestSubmitVerification_LimiterOutageFailsOpen(t *testing.T) {
	db := setupTestDB(t)
	repos := repository.NewRepositories(db)
	registry := verification.NewRegistry()
	registry.Register(verification.NewFeedbackVerifier(verification.FeedbackConfig{}))
	svc := NewService(repos, &fixedRegistrySource{registry: registry}, &fixedLimiter{err: errors.New("redis down")}, nil)

	createPurchase(t, repos, "p-1", "ev-1", models.PurchaseStatusActive, 10000)
	createDefinition(t, repos, "def-fb", "ev-1", models.IncentiveTypeFeedback, 500, nil)

	result, err := svc.SubmitVerification(context.Background(), "p-1", "def-fb", feedbackRaw())
	if err != nil {
		t.Fatalf("a limiter outage must not block claims: %v", err)
	}
	if !result.IsVerified() {
		t.Fatalf("expected verified, got %q", result.Status)
	}
}

func TestSubmitVerification_DiscardsResultWhenPurchaseCancelsMidFlight(t *testing.T) {
	svc, repos, registry, _ := newTestService(t)

	p := createPurchase(t, repos, "p-1", "ev-1", models.PurchaseStatusActive, 10000)
	def := createDefinition(t, repos, "def-ref", "ev-1", models.IncentiveTypeReferral, 500, nil)

	// The claim the in-flight verification recorded before the purchase
	// was cancelled.
	claimed, err := repos.ReferralClaim.Claim(&models.ReferralClaim{
		RefereePurchaseUUID:  "p-2",
		ReferrerPurchaseUUID: "p-1",
		DefinitionUUID:       "def-ref",
	})
	if err != nil || !claimed {
		t.Fatalf("seed claim: claimed=%v err=%v", claimed, err)
	}

	registry.Register(&scriptedVerifier{
		incentiveType: models.IncentiveTypeReferral,
		fn: func(ctx context.Context, purchaseID string, ev verification.Evidence) verification.Result {
			// The purchase is cancelled while this verification is
			// still in flight.
			if err := svc.Cancel(ctx, "p-1"); err != nil {
				t.Fatalf("cancel mid-flight: %v", err)
			}
			return verification.Verified("referral accepted", map[string]interface{}{
				"refereePurchaseId": "p-2",
			})
		},
	})

	_, err = svc.SubmitVerification(context.Background(), "p-1", "def-ref", []byte(`{"refereePurchaseId":"p-2"}`))
	if !errors.Is(err, ErrResultDiscarded) {
		t.Fatalf("expected ErrResultDiscarded, got %v", err)
	}

	slot, err := repos.Incentive.GetResult(p.ID, def.ID)
	if err != nil {
		t.Fatalf("load slot: %v", err)
	}
	if slot.Status == models.VerificationStatusVerified || slot.AwardedBps != 0 {
		t.Fatalf("discarded result must not award, got %q (%d bps)", slot.Status, slot.AwardedBps)
	}

	// The referee must be claimable again.
	stillClaimed, err := repos.ReferralClaim.Contains("p-2")
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if stillClaimed {
		t.Fatalf("expected the discarded referral claim to be released")
	}
}

func TestResolveReview_PromotesPendingToVerified(t *testing.T) {
	svc, repos, registry, _ := newTestService(t)

	queue := &recordingQueue{}
	registry.Register(verification.NewManualVerifier(queue, verification.ManualConfig{DefinitionUUID: "def-man"}))

	createPurchase(t, repos, "p-1", "ev-1", models.PurchaseStatusActive, 10000)
	createDefinition(t, repos, "def-man", "ev-1", models.IncentiveTypeManual, 1200, nil)

	result, err := svc.SubmitVerification(context.Background(), "p-1", "def-man", []byte(`{"description":"helped at the booth"}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.IsPendingManual() {
		t.Fatalf("expected pending_manual, got %q", result.Status)
	}
	if len(queue.items) != 1 {
		t.Fatalf("expected enqueued review item, got %d", len(queue.items))
	}

	promoted, err := svc.ResolveReview(context.Background(), "p-1", "def-man", true, "photo checks out")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !promoted.IsVerified() || promoted.AwardedBps != 1200 {
		t.Fatalf("expected verified with 1200 bps, got %q (%d)", promoted.Status, promoted.AwardedBps)
	}

	// A reviewer cannot overturn a verified result.
	if _, err := svc.ResolveReview(context.Background(), "p-1", "def-man", false, "changed my mind"); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}

	q, err := svc.Quote(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.TotalBps != 1200 || q.NetPriceCents != 8800 {
		t.Fatalf("expected 1200 bps / 8800 net, got %+v", q)
	}
}

func TestBeginSettlement_FreezesTheQuoteOnce(t *testing.T) {
	svc, repos, registry, _ := newTestService(t)
	registry.Register(verification.NewFeedbackVerifier(verification.FeedbackConfig{}))

	createPurchase(t, repos, "p-1", "ev-1", models.PurchaseStatusActive, 10000)
	createDefinition(t, repos, "def-a", "ev-1", models.IncentiveTypeFeedback, 500, nil)
	createDefinition(t, repos, "def-b", "ev-1", models.IncentiveTypeFeedback, 1000, nil)

	for _, defUUID := range []string{"def-a", "def-b"} {
		result, err := svc.SubmitVerification(context.Background(), "p-1", defUUID, feedbackRaw())
		if err != nil || !result.IsVerified() {
			t.Fatalf("submit %s: err=%v status=%q", defUUID, err, result.Status)
		}
	}

	q, err := svc.BeginSettlement(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("begin settlement: %v", err)
	}
	if q.TotalBps != 1500 || q.NetPriceCents != 8500 {
		t.Fatalf("expected 1500 bps / 8500 net, got %+v", q)
	}

	p, err := svc.GetPurchase(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if p.Status != models.PurchaseStatusSettling {
		t.Fatalf("expected settling, got %q", p.Status)
	}
	if p.FrozenDiscountBps == nil || *p.FrozenDiscountBps != 1500 {
		t.Fatalf("expected frozen 1500 bps, got %v", p.FrozenDiscountBps)
	}

	// Settlement must not accept further submissions.
	_, err = svc.SubmitVerification(context.Background(), "p-1", "def-a", feedbackRaw())
	if err == nil {
		t.Fatalf("expected settling purchase to reject submissions")
	}

	// A second call returns the frozen numbers unchanged.
	again, err := svc.BeginSettlement(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("second begin settlement: %v", err)
	}
	if again != q {
		t.Fatalf("expected identical frozen quote, got %+v vs %+v", again, q)
	}

	if err := svc.MarkSettled(context.Background(), "p-1"); err != nil {
		t.Fatalf("mark settled: %v", err)
	}
	p, _ = svc.GetPurchase(context.Background(), "p-1")
	if p.Status != models.PurchaseStatusSettled {
		t.Fatalf("expected settled, got %q", p.Status)
	}
}

func TestCancel_DiscardsFrozenDiscounts(t *testing.T) {
	svc, repos, registry, _ := newTestService(t)
	registry.Register(verification.NewFeedbackVerifier(verification.FeedbackConfig{}))

	createPurchase(t, repos, "p-1", "ev-1", models.PurchaseStatusActive, 10000)
	createDefinition(t, repos, "def-a", "ev-1", models.IncentiveTypeFeedback, 500, nil)
	if _, err := svc.SubmitVerification(context.Background(), "p-1", "def-a", feedbackRaw()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.BeginSettlement(context.Background(), "p-1"); err != nil {
		t.Fatalf("begin settlement: %v", err)
	}

	if err := svc.Cancel(context.Background(), "p-1"); err != nil {
		t.Fatalf("cancel from settling: %v", err)
	}
	p, err := svc.GetPurchase(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if p.Status != models.PurchaseStatusCancelled {
		t.Fatalf("expected cancelled, got %q", p.Status)
	}
	if p.FrozenDiscountBps != nil || p.FrozenNetPriceCents != nil {
		t.Fatalf("cancellation must discard frozen discounts, got %v / %v", p.FrozenDiscountBps, p.FrozenNetPriceCents)
	}

	// Cancelling again is a no-op.
	if err := svc.Cancel(context.Background(), "p-1"); err != nil {
		t.Fatalf("repeated cancel: %v", err)
	}
}

func TestCancel_NotAllowedAfterSettled(t *testing.T) {
	svc, repos, _, _ := newTestService(t)
	createPurchase(t, repos, "p-1", "ev-1", models.PurchaseStatusSettled, 10000)

	if err := svc.Cancel(context.Background(), "p-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	svc, repos, _, _ := newTestService(t)
	createPurchase(t, repos, "p-1", "ev-1", models.PurchaseStatusAuthorized, 10000)

	// settling straight from authorized is not allowed
	if _, err := svc.BeginSettlement(context.Background(), "p-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := svc.MarkSettled(context.Background(), "p-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if err := svc.Activate(context.Background(), "p-1"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	// Redelivery of the activation event is tolerated.
	if err := svc.Activate(context.Background(), "p-1"); err != nil {
		t.Fatalf("repeated activate: %v", err)
	}
}

func TestRegisterAuthorized_IsIdempotent(t *testing.T) {
	svc, repos, _, _ := newTestService(t)
	purchaseUUID := uuid.NewString()

	first, err := svc.RegisterAuthorized(context.Background(), purchaseUUID, "ev-1", "buyer-7", 12500, "usd")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if first.Status != models.PurchaseStatusAuthorized || first.Currency != "USD" {
		t.Fatalf("unexpected purchase %+v", first)
	}

	second, err := svc.RegisterAuthorized(context.Background(), purchaseUUID, "ev-1", "buyer-7", 12500, "usd")
	if err != nil {
		t.Fatalf("repeated register: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the stored purchase, got a new row")
	}

	count, err := repos.Purchase.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 purchase, got %d", count)
	}
}

// recordingQueue implements verification.ReviewQueue for tests.
type recordingQueue struct {
	items []verification.ReviewItem
}

func (q *recordingQueue) Enqueue(ctx context.Context, item verification.ReviewItem) error {
	q.items = append(q.items, item)
	return nil
}
