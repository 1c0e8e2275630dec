package verification

import (
	"testing"

	"github.com/QuestPassApp/QuestPass/app/models"
)

func TestParseEvidence_TypedArms(t *testing.T) {
	ev, err := ParseEvidence(models.IncentiveTypeSocialShare, []byte(`{"url":"https://x.com/u/1"}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.SocialShare == nil || ev.SocialShare.URL != "https://x.com/u/1" {
		t.Fatalf("unexpected social share arm: %+v", ev.SocialShare)
	}

	ev, err = ParseEvidence(models.IncentiveTypeReferral, []byte(`{"refereePurchaseId":"p-2"}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Referral == nil || ev.Referral.RefereePurchaseID != "p-2" {
		t.Fatalf("unexpected referral arm: %+v", ev.Referral)
	}

	ev, err = ParseEvidence(models.IncentiveTypeFeedback, []byte(`{"text":"nice","rating":4,"submittedAt":"2026-05-01T12:00:00Z"}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Feedback == nil || ev.Feedback.Rating != 4 {
		t.Fatalf("unexpected feedback arm: %+v", ev.Feedback)
	}

	ev, err = ParseEvidence(models.IncentiveTypeSponsorSession, []byte(`{"description":"attended"}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Manual == nil || ev.Manual.Description != "attended" {
		t.Fatalf("sponsor_session must decode into the manual arm: %+v", ev.Manual)
	}
}

func TestParseEvidence_Malformed(t *testing.T) {
	if _, err := ParseEvidence(models.IncentiveTypeFeedback, []byte(`{"rating":"four"}`)); err == nil {
		t.Fatalf("expected error for non-numeric rating")
	}
	if _, err := ParseEvidence(models.IncentiveTypeSocialShare, []byte(`{"url":`)); err == nil {
		t.Fatalf("expected error for truncated JSON")
	}
	if _, err := ParseEvidence(models.IncentiveType("unknown"), []byte(`{}`)); err == nil {
		t.Fatalf("expected error for unknown incentive type")
	}
}

func TestParseEvidence_EmptyPayload(t *testing.T) {
	ev, err := ParseEvidence(models.IncentiveTypeCheckIn, nil)
	if err != nil {
		t.Fatalf("empty payload must decode to an empty arm: %v", err)
	}
	if ev.CheckIn == nil || ev.CheckIn.Code != "" {
		t.Fatalf("expected empty check-in arm, got %+v", ev.CheckIn)
	}
}

func TestResultMetadataJSON(t *testing.T) {
	r := Verified("ok", map[string]interface{}{"platform": "x.com"})
	if got := r.MetadataJSON(); got != `{"platform":"x.com"}` {
		t.Fatalf("unexpected metadata JSON %q", got)
	}
	if got := Rejected("nope").MetadataJSON(); got != "" {
		t.Fatalf("expected empty metadata JSON, got %q", got)
	}
}
