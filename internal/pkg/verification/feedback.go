package verification

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/QuestPassApp/QuestPass/app/models"
)

// DefaultFeedbackMinLength is the minimum feedback length when the definition
// does not configure one.
const DefaultFeedbackMinLength = 50

// FeedbackConfig carries the per-definition settings for the feedback
// adapter.
type FeedbackConfig struct {
	// MinLength is the minimum trimmed text length in characters; 0 means
	// DefaultFeedbackMinLength.
	MinLength int
	// Deadline is the hard submission cutoff; zero means no deadline.
	Deadline time.Time
}

// FeedbackVerifier validates free-text feedback with a rating. All gates are
// deterministic content rules; the adapter has no I/O and never returns
// pending_manual.
type FeedbackVerifier struct {
	minLength int
	deadline  time.Time
}

// NewFeedbackVerifier creates the feedback adapter.
func NewFeedbackVerifier(cfg FeedbackConfig) *FeedbackVerifier {
	minLength := cfg.MinLength
	if minLength <= 0 {
		minLength = DefaultFeedbackMinLength
	}
	return &FeedbackVerifier{
		minLength: minLength,
		deadline:  cfg.Deadline,
	}
}

func (v *FeedbackVerifier) IncentiveType() models.IncentiveType {
	return models.IncentiveTypeFeedback
}

// Verify checks text length, rating range and submission time in order.
func (v *FeedbackVerifier) Verify(ctx context.Context, purchaseID string, ev Evidence) Result {
	if ev.Feedback == nil || strings.TrimSpace(ev.Feedback.Text) == "" {
		return Rejected("missing feedback text")
	}

	text := strings.TrimSpace(ev.Feedback.Text)
	length := utf8.RuneCountInString(text)
	if length < v.minLength {
		return Rejected(fmt.Sprintf("feedback must be at least %d characters, got %d", v.minLength, length))
	}

	rating := ev.Feedback.Rating
	if rating < 1 || rating > 5 {
		return Rejected(fmt.Sprintf("rating %v is outside the allowed range 1-5", rating))
	}

	if strings.TrimSpace(ev.Feedback.SubmittedAt) == "" {
		return Rejected("missing submission timestamp")
	}
	submittedAt, err := time.Parse(time.RFC3339, ev.Feedback.SubmittedAt)
	if err != nil {
		return Rejected(fmt.Sprintf("submission timestamp %q is not a valid ISO-8601 time", ev.Feedback.SubmittedAt))
	}
	if !v.deadline.IsZero() && submittedAt.After(v.deadline) {
		return Rejected("feedback submitted after deadline")
	}

	return Verified("feedback accepted", map[string]interface{}{
		"length": length,
		"rating": rating,
	})
}
