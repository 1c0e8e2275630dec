package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/QuestPassApp/QuestPass/app/models"
	"github.com/QuestPassApp/QuestPass/app/repository"
	"github.com/QuestPassApp/QuestPass/internal/pkg/gatecode"
	"github.com/QuestPassApp/QuestPass/internal/pkg/verification"
)

// ErrInvalidDefinition marks campaign payloads the editor has to fix.
var ErrInvalidDefinition = errors.New("invalid incentive definition")

// registryTTL bounds how long a cached per-event registry serves before it is
// rebuilt from the definitions table. Other instances pick up campaign edits
// within this window.
const registryTTL = 5 * time.Minute

type cachedRegistry struct {
	registry *verification.Registry
	builtAt  time.Time
}

// Service owns campaign authoring and builds the per-event verifier
// registries that dispatch evidence submissions.
type Service struct {
	repos   *repository.Repositories
	prober  verification.ReachabilityProber
	fetcher verification.ContentFetcher
	reviews verification.ReviewQueue

	mu         sync.RWMutex
	registries map[string]cachedRegistry
}

// NewService creates a campaign service. The prober (and optional fetcher)
// backs social-share verification, the review queue backs manual and
// sponsor-session verification.
func NewService(repos *repository.Repositories, prober verification.ReachabilityProber, fetcher verification.ContentFetcher, reviews verification.ReviewQueue) *Service {
	if repos == nil {
		panic("campaign: Service requires repositories")
	}
	if prober == nil {
		panic("campaign: Service requires a ReachabilityProber")
	}
	if reviews == nil {
		panic("campaign: Service requires a ReviewQueue")
	}
	return &Service{
		repos:      repos,
		prober:     prober,
		fetcher:    fetcher,
		reviews:    reviews,
		registries: make(map[string]cachedRegistry),
	}
}

// IngestDefinitions replaces the incentive set of an event: the supplied
// definitions are upserted and every previously stored definition missing
// from the payload is deactivated. Counters on existing definitions survive
// the replace.
func (s *Service) IngestDefinitions(ctx context.Context, eventID string, inputs []DefinitionInput) ([]models.IncentiveDefinition, error) {
	_ = ctx
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidDefinition)
	}

	defs := make([]*models.IncentiveDefinition, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for i, in := range inputs {
		def, err := in.toDefinition(eventID)
		if err != nil {
			return nil, fmt.Errorf("definition %d: %w", i, err)
		}
		if _, dup := seen[def.DefinitionUUID]; dup {
			return nil, fmt.Errorf("definition %d: %w: duplicate definition id %s", i, ErrInvalidDefinition, def.DefinitionUUID)
		}
		seen[def.DefinitionUUID] = struct{}{}
		defs = append(defs, def)
	}

	existing, err := s.repos.Incentive.GetDefinitionsByEvent(eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load definitions for event %s: %w", eventID, err)
	}

	for _, def := range defs {
		if err := s.repos.Incentive.UpsertDefinition(def); err != nil {
			return nil, fmt.Errorf("failed to store definition %s: %w", def.DefinitionUUID, err)
		}
	}
	for _, old := range existing {
		if _, kept := seen[old.DefinitionUUID]; kept || !old.Active {
			continue
		}
		if err := s.repos.Incentive.DeactivateDefinition(old.DefinitionUUID); err != nil {
			return nil, fmt.Errorf("failed to deactivate definition %s: %w", old.DefinitionUUID, err)
		}
	}

	s.invalidate(eventID)
	log.Infof("[Campaign] Event %s now carries %d incentive definitions", eventID, len(defs))
	return s.repos.Incentive.GetDefinitionsByEvent(eventID)
}

// ListDefinitions returns every definition stored for an event, including
// deactivated ones.
func (s *Service) ListDefinitions(ctx context.Context, eventID string) ([]models.IncentiveDefinition, error) {
	_ = ctx
	return s.repos.Incentive.GetDefinitionsByEvent(eventID)
}

// maxCodeBatch caps one provisioning call; venues needing more codes call
// the endpoint again.
const maxCodeBatch = 5000

// SeedCheckInCodes generates and stores a batch of single-use venue codes
// for an event. A codeLength of zero picks the default. The generated codes
// are returned so the caller can hand them to the venue; they remain
// readable later through ListCheckInCodes.
func (s *Service) SeedCheckInCodes(ctx context.Context, eventID string, count, codeLength int, expiresAt *time.Time) ([]models.CheckInCode, error) {
	_ = ctx
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidDefinition)
	}
	if count <= 0 || count > maxCodeBatch {
		return nil, fmt.Errorf("%w: code batch size must be between 1 and %d", ErrInvalidDefinition, maxCodeBatch)
	}
	if codeLength == 0 {
		codeLength = gatecode.DefaultLength
	}

	raw, err := gatecode.GenerateBatch(count, codeLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	codes := make([]*models.CheckInCode, 0, count)
	for _, code := range raw {
		codes = append(codes, &models.CheckInCode{
			EventID:   eventID,
			Code:      code,
			ExpiresAt: expiresAt,
		})
	}
	if err := s.repos.CheckInCode.CreateBatch(codes); err != nil {
		return nil, fmt.Errorf("failed to store check-in codes for event %s: %w", eventID, err)
	}

	log.Infof("[Campaign] Seeded %d check-in codes for event %s", len(codes), eventID)

	stored := make([]models.CheckInCode, 0, count)
	for _, code := range codes {
		stored = append(stored, *code)
	}
	return stored, nil
}

// ListCheckInCodes returns every code configured for an event along with how
// many are still unredeemed.
func (s *Service) ListCheckInCodes(ctx context.Context, eventID string) ([]models.CheckInCode, int64, error) {
	_ = ctx
	codes, err := s.repos.CheckInCode.ListByEvent(eventID)
	if err != nil {
		return nil, 0, err
	}
	unused, err := s.repos.CheckInCode.CountUnused(eventID)
	if err != nil {
		return nil, 0, err
	}
	return codes, unused, nil
}

// RegistryFor returns the verifier registry for an event, rebuilding it from
// the stored definitions when the cached one expired. Adapters are registered
// in definition creation order; when several active definitions share a type
// the newest one takes the dispatch slot.
func (s *Service) RegistryFor(ctx context.Context, eventID string) (*verification.Registry, error) {
	s.mu.RLock()
	entry, ok := s.registries[eventID]
	s.mu.RUnlock()
	if ok && time.Since(entry.builtAt) < registryTTL {
		return entry.registry, nil
	}
	return s.rebuild(ctx, eventID)
}

func (s *Service) rebuild(ctx context.Context, eventID string) (*verification.Registry, error) {
	_ = ctx
	defs, err := s.repos.Incentive.GetActiveDefinitionsByEvent(eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load definitions for event %s: %w", eventID, err)
	}

	registry := verification.NewRegistry()
	for i := range defs {
		verifier, err := s.buildVerifier(&defs[i])
		if err != nil {
			// A broken definition must not take down the whole event;
			// its type falls back to the registry's pending_manual path.
			log.Errorf("[Campaign] Skipping definition %s for event %s: %v", defs[i].DefinitionUUID, eventID, err)
			continue
		}
		registry.Register(verifier)
	}

	s.mu.Lock()
	s.registries[eventID] = cachedRegistry{registry: registry, builtAt: time.Now()}
	s.mu.Unlock()
	return registry, nil
}

// buildVerifier wires one definition to its adapter, backed by the service's
// repositories and outbound dependencies.
func (s *Service) buildVerifier(def *models.IncentiveDefinition) (verification.Verifier, error) {
	switch def.IncentiveType {
	case models.IncentiveTypeSocialShare:
		settings, err := ParseSocialShareSettings(def.VerificationConfig)
		if err != nil {
			return nil, err
		}
		if settings.RequiredTag != "" && s.fetcher == nil {
			return nil, fmt.Errorf("definition requires content matching but no content fetcher is configured")
		}
		return verification.NewSocialShareVerifier(s.prober, s.fetcher, verification.SocialShareConfig{
			Allowlist:   settings.Allowlist,
			RequiredTag: settings.RequiredTag,
		}), nil

	case models.IncentiveTypeCheckIn:
		return verification.NewCheckInVerifier(&dbCodeValidator{
			codes:   s.repos.CheckInCode,
			eventID: def.EventID,
		}), nil

	case models.IncentiveTypeReferral:
		return verification.NewReferralVerifier(
			&dbClaimStore{claims: s.repos.ReferralClaim, definitionUUID: def.DefinitionUUID},
			&dbPurchaseDirectory{purchases: s.repos.Purchase},
		), nil

	case models.IncentiveTypeFeedback:
		settings, err := ParseFeedbackSettings(def.VerificationConfig)
		if err != nil {
			return nil, err
		}
		deadline, err := settings.DeadlineTime()
		if err != nil {
			return nil, err
		}
		if deadline.IsZero() && def.ExpiresAt != nil {
			deadline = *def.ExpiresAt
		}
		return verification.NewFeedbackVerifier(verification.FeedbackConfig{
			MinLength: settings.MinLength,
			Deadline:  deadline,
		}), nil

	case models.IncentiveTypeSponsorSession, models.IncentiveTypeManual:
		return verification.NewManualVerifier(s.reviews, verification.ManualConfig{
			Type:           def.IncentiveType,
			DefinitionUUID: def.DefinitionUUID,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported incentive type %q", def.IncentiveType)
	}
}

func (s *Service) invalidate(eventID string) {
	s.mu.Lock()
	delete(s.registries, eventID)
	s.mu.Unlock()
}
