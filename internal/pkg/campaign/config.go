package campaign

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/QuestPassApp/QuestPass/app/models"
)

// DefinitionInput is one incentive definition as supplied by the campaign
// editor. The verification_config payload is type-specific and parsed at
// ingest time so broken configs bounce back to the editor instead of
// surfacing during a buyer's claim.
type DefinitionInput struct {
	DefinitionUUID     string          `json:"definition_id" validate:"required,min=8,max=64"`
	IncentiveType      string          `json:"incentive_type" validate:"required"`
	DiscountBps        int             `json:"discount_bps" validate:"gte=1,lte=10000"`
	Description        string          `json:"description" validate:"max=2000"`
	ExpiresAt          *time.Time      `json:"expires_at,omitempty"`
	Active             *bool           `json:"active,omitempty"`
	VerificationConfig json.RawMessage `json:"verification_config,omitempty"`
}

func (in DefinitionInput) toDefinition(eventID string) (*models.IncentiveDefinition, error) {
	active := true
	if in.Active != nil {
		active = *in.Active
	}

	incentiveType := models.IncentiveType(strings.ToLower(strings.TrimSpace(in.IncentiveType)))
	if !models.IsValidIncentiveType(incentiveType) {
		return nil, fmt.Errorf("%w: unsupported incentive type %q", ErrInvalidDefinition, in.IncentiveType)
	}

	def := &models.IncentiveDefinition{
		DefinitionUUID:     strings.TrimSpace(in.DefinitionUUID),
		EventID:            eventID,
		IncentiveType:      incentiveType,
		DiscountBps:        in.DiscountBps,
		Description:        strings.TrimSpace(in.Description),
		ExpiresAt:          in.ExpiresAt,
		VerificationConfig: string(in.VerificationConfig),
		Active:             active,
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	switch incentiveType {
	case models.IncentiveTypeSocialShare:
		if _, err := ParseSocialShareSettings(def.VerificationConfig); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
		}
	case models.IncentiveTypeFeedback:
		settings, err := ParseFeedbackSettings(def.VerificationConfig)
		if err == nil {
			_, err = settings.DeadlineTime()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
		}
	}

	return def, nil
}

// SocialShareSettings is the verification_config payload for social_share
// definitions.
type SocialShareSettings struct {
	// Allowlist overrides the built-in share platforms when non-empty.
	Allowlist []string `json:"allowlist,omitempty"`
	// RequiredTag upgrades the check from reachability to content matching.
	RequiredTag string `json:"required_tag,omitempty"`
}

// ParseSocialShareSettings decodes social_share settings; an empty config is
// valid and yields the defaults.
func ParseSocialShareSettings(raw string) (SocialShareSettings, error) {
	var settings SocialShareSettings
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return settings, nil
	}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return SocialShareSettings{}, fmt.Errorf("invalid social_share settings: %v", err)
	}
	return settings, nil
}

// FeedbackSettings is the verification_config payload for feedback
// definitions. The deadline is an RFC 3339 timestamp.
type FeedbackSettings struct {
	MinLength int    `json:"min_length,omitempty" validate:"omitempty,gte=1,lte=100000"`
	Deadline  string `json:"deadline,omitempty"`
}

// ParseFeedbackSettings decodes feedback settings; an empty config is valid
// and yields the defaults.
func ParseFeedbackSettings(raw string) (FeedbackSettings, error) {
	var settings FeedbackSettings
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return settings, nil
	}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return FeedbackSettings{}, fmt.Errorf("invalid feedback settings: %v", err)
	}
	v := validator.New()
	if err := v.Struct(&settings); err != nil {
		return FeedbackSettings{}, fmt.Errorf("invalid feedback settings: %v", err)
	}
	return settings, nil
}

// DeadlineTime parses the configured deadline; zero when none is set.
func (s FeedbackSettings) DeadlineTime() (time.Time, error) {
	if strings.TrimSpace(s.Deadline) == "" {
		return time.Time{}, nil
	}
	deadline, err := time.Parse(time.RFC3339, s.Deadline)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid feedback deadline %q: %v", s.Deadline, err)
	}
	return deadline, nil
}
