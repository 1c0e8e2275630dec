package verification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/QuestPassApp/QuestPass/app/models"
)

// memClaimStore is an in-memory stand-in for the durable claimed-set.
type memClaimStore struct {
	mu       sync.Mutex
	claimed  map[string]string
	failWith error
}

func newMemClaimStore() *memClaimStore {
	return &memClaimStore{claimed: make(map[string]string)}
}

func (s *memClaimStore) Contains(ctx context.Context, referee string) (bool, error) {
	if s.failWith != nil {
		return false, s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.claimed[referee]
	return ok, nil
}

func (s *memClaimStore) Claim(ctx context.Context, referrer, referee string) (bool, error) {
	if s.failWith != nil {
		return false, s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claimed[referee]; ok {
		return false, nil
	}
	s.claimed[referee] = referrer
	return true, nil
}

type fakeDirectory struct {
	qualifies bool
	err       error
}

func (f *fakeDirectory) QualifiesAsReferee(ctx context.Context, purchaseID string) (bool, error) {
	return f.qualifies, f.err
}

func referralEvidence(referee string) Evidence {
	return Evidence{
		Type:     models.IncentiveTypeReferral,
		Referral: &ReferralEvidence{RefereePurchaseID: referee},
	}
}

func TestReferralVerify_MissingReferee(t *testing.T) {
	v := NewReferralVerifier(newMemClaimStore(), &fakeDirectory{qualifies: true})
	got := v.Verify(context.Background(), "p-1", referralEvidence(""))
	if !got.IsRejected() {
		t.Fatalf("expected rejected for missing referee, got %q", got.Status)
	}
}

func TestReferralVerify_SelfReferralAlwaysRejected(t *testing.T) {
	v := NewReferralVerifier(newMemClaimStore(), &fakeDirectory{qualifies: true})
	got := v.Verify(context.Background(), "p-1", referralEvidence("p-1"))
	if !got.IsRejected() {
		t.Fatalf("expected rejected for self-referral, got %q", got.Status)
	}
	if !strings.Contains(got.Reason, "self-referral") {
		t.Fatalf("expected self-referral reason, got %q", got.Reason)
	}
}

func TestReferralVerify_HappyPathClaimsReferee(t *testing.T) {
	store := newMemClaimStore()
	v := NewReferralVerifier(store, &fakeDirectory{qualifies: true})

	got := v.Verify(context.Background(), "p-1", referralEvidence("p-2"))
	if !got.IsVerified() {
		t.Fatalf("expected verified, got %q (%s)", got.Status, got.Reason)
	}
	if got.Metadata["refereePurchaseId"] != "p-2" {
		t.Fatalf("expected referee in metadata, got %v", got.Metadata["refereePurchaseId"])
	}
	if claimed, _ := store.Contains(context.Background(), "p-2"); !claimed {
		t.Fatalf("expected referee to be in the claimed-set after verification")
	}
}

func TestReferralVerify_RefereeUsableAtMostOnceAcrossReferrers(t *testing.T) {
	store := newMemClaimStore()
	v := NewReferralVerifier(store, &fakeDirectory{qualifies: true})

	first := v.Verify(context.Background(), "p-1", referralEvidence("p-2"))
	if !first.IsVerified() {
		t.Fatalf("expected first referral to verify, got %q (%s)", first.Status, first.Reason)
	}

	second := v.Verify(context.Background(), "p-3", referralEvidence("p-2"))
	if !second.IsRejected() {
		t.Fatalf("expected duplicate referral to be rejected, got %q", second.Status)
	}
	if !strings.Contains(second.Reason, "already used") {
		t.Fatalf("expected already-used reason, got %q", second.Reason)
	}
}

func TestReferralVerify_NonQualifyingReferee(t *testing.T) {
	v := NewReferralVerifier(newMemClaimStore(), &fakeDirectory{qualifies: false})
	got := v.Verify(context.Background(), "p-1", referralEvidence("p-404"))
	if !got.IsRejected() {
		t.Fatalf("expected rejected for unknown referee, got %q", got.Status)
	}
}

func TestReferralVerify_DirectoryOutageIsPendingManual(t *testing.T) {
	v := NewReferralVerifier(newMemClaimStore(), &fakeDirectory{err: errors.New("db down")})
	got := v.Verify(context.Background(), "p-1", referralEvidence("p-2"))
	if !got.IsPendingManual() {
		t.Fatalf("expected pending_manual on directory outage, got %q", got.Status)
	}
}

func TestReferralVerify_ClaimStoreOutageIsPendingManual(t *testing.T) {
	store := newMemClaimStore()
	store.failWith = errors.New("db down")
	v := NewReferralVerifier(store, &fakeDirectory{qualifies: true})

	got := v.Verify(context.Background(), "p-1", referralEvidence("p-2"))
	if !got.IsPendingManual() {
		t.Fatalf("expected pending_manual on claim store outage, got %q", got.Status)
	}
}

func TestReferralVerify_LostClaimRaceIsRejected(t *testing.T) {
	store := newMemClaimStore()
	// Another referrer wins between the Contains check and the Claim.
	race := &racingClaimStore{inner: store, referrer: "p-9"}
	v := NewReferralVerifier(race, &fakeDirectory{qualifies: true})

	got := v.Verify(context.Background(), "p-1", referralEvidence("p-2"))
	if !got.IsRejected() {
		t.Fatalf("expected rejected when the claim race is lost, got %q", got.Status)
	}
	if winner := store.claimed["p-2"]; winner != "p-9" {
		t.Fatalf("expected the racing referrer to keep the claim, got %q", winner)
	}
}

// racingClaimStore sneaks a competing claim in after every Contains call.
type racingClaimStore struct {
	inner    *memClaimStore
	referrer string
}

func (s *racingClaimStore) Contains(ctx context.Context, referee string) (bool, error) {
	ok, err := s.inner.Contains(ctx, referee)
	if err == nil && !ok {
		s.inner.Claim(ctx, s.referrer, referee)
	}
	return ok, err
}

func (s *racingClaimStore) Claim(ctx context.Context, referrer, referee string) (bool, error) {
	return s.inner.Claim(ctx, referrer, referee)
}
