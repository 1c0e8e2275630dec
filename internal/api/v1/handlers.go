package apiv1

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/QuestPassApp/QuestPass/app/models"
	"github.com/QuestPassApp/QuestPass/internal/pkg/campaign"
	"github.com/QuestPassApp/QuestPass/internal/pkg/env"
	"github.com/QuestPassApp/QuestPass/internal/pkg/middleware"
	"github.com/QuestPassApp/QuestPass/internal/pkg/paymentrail"
	"github.com/QuestPassApp/QuestPass/internal/pkg/purchase"
	"github.com/QuestPassApp/QuestPass/internal/pkg/reviewqueue"
	"github.com/QuestPassApp/QuestPass/internal/pkg/verification"
)

var validate = validator.New()

// APIServer implements the v1 API on top of the domain services.
type APIServer struct {
	purchases *purchase.Service
	campaigns *campaign.Service
	reviews   *reviewqueue.Queue
	rail      *paymentrail.Service
}

// NewAPIServer creates a new API server instance
func NewAPIServer(purchases *purchase.Service, campaigns *campaign.Service, reviews *reviewqueue.Queue, rail *paymentrail.Service) *APIServer {
	if purchases == nil || campaigns == nil || reviews == nil || rail == nil {
		panic("apiv1: NewAPIServer requires purchase, campaign, review and payment services")
	}
	return &APIServer{
		purchases: purchases,
		campaigns: campaigns,
		reviews:   reviews,
		rail:      rail,
	}
}

// RegisterHandlers attaches the v1 routes to the given router group. Buyer
// endpoints and the payment webhook are open (the webhook authenticates via
// its HMAC signature); everything else requires an API key with the right
// role.
func RegisterHandlers(router fiber.Router, server *APIServer) {
	router.Get("/ping", server.GetPing)

	router.Post("/purchases/:uuid/incentives/:definition/verification", server.PostVerification)
	router.Get("/purchases/:uuid", server.GetPurchase)

	router.Post("/webhooks/payment", server.PostPaymentWebhook)

	keyAuth := middleware.APIKeyAuthMiddleware()
	router.Get("/purchases/:uuid/price", keyAuth, middleware.RequireRole(models.ClientRoleSettlement, models.ClientRolePaymentRail), server.GetPurchasePrice)
	router.Put("/events/:event/incentives", keyAuth, middleware.RequireRole(models.ClientRoleCampaignEditor), server.PutEventIncentives)
	router.Get("/events/:event/incentives", keyAuth, middleware.RequireRole(models.ClientRoleCampaignEditor), server.GetEventIncentives)
	router.Post("/events/:event/checkin-codes", keyAuth, middleware.RequireRole(models.ClientRoleCampaignEditor), server.PostEventCheckInCodes)
	router.Get("/events/:event/checkin-codes", keyAuth, middleware.RequireRole(models.ClientRoleCampaignEditor), server.GetEventCheckInCodes)
	router.Get("/reviews", keyAuth, middleware.RequireRole(models.ClientRoleReviewer), server.GetReviews)
	router.Post("/reviews/:id/resolution", keyAuth, middleware.RequireRole(models.ClientRoleReviewer), server.PostReviewResolution)
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// PostVerification accepts one evidence submission for an incentive on a
// purchase. Bad evidence is a verification outcome (rejected or pending
// manual review), not an HTTP error; error statuses are reserved for unknown
// resources, closed purchases and rate limiting.
func (s *APIServer) PostVerification(c *fiber.Ctx) error {
	purchaseUUID := strings.TrimSpace(c.Params("uuid"))
	definitionUUID := strings.TrimSpace(c.Params("definition"))
	rawEvidence := append([]byte(nil), c.BodyRaw()...)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := s.purchases.SubmitVerification(ctx, purchaseUUID, definitionUUID, rawEvidence)
	if err != nil {
		switch {
		case errors.Is(err, purchase.ErrPurchaseNotFound), errors.Is(err, purchase.ErrDefinitionNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": err.Error()})
		case errors.Is(err, purchase.ErrPurchaseNotAccepting), errors.Is(err, purchase.ErrDefinitionInactive):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": err.Error()})
		case errors.Is(err, purchase.ErrRateLimited):
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited", "message": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "verification_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(VerificationResponse{
		PurchaseID:   purchaseUUID,
		DefinitionID: definitionUUID,
		Status:       result.Status,
		Reason:       result.Reason,
		AwardedBps:   result.AwardedBps,
		Metadata:     result.Metadata,
	})
}

// GetPurchase returns one purchase with its verification results and the
// current discount quote.
func (s *APIServer) GetPurchase(c *fiber.Ctx) error {
	purchaseUUID := strings.TrimSpace(c.Params("uuid"))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	p, err := s.purchases.GetPurchase(ctx, purchaseUUID)
	if err != nil {
		if errors.Is(err, purchase.ErrPurchaseNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "purchase not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "purchase_lookup_failed"})
	}

	quote, err := s.purchases.Quote(ctx, purchaseUUID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "quote_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(PurchaseResponse{Purchase: p, Quote: quote})
}

// GetPurchasePrice returns the discount quote alone, the settlement rail's
// view of what the buyer pays. Once settlement has started this is the frozen
// number, never a live recomputation.
func (s *APIServer) GetPurchasePrice(c *fiber.Ctx) error {
	purchaseUUID := strings.TrimSpace(c.Params("uuid"))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	quote, err := s.purchases.Quote(ctx, purchaseUUID)
	if err != nil {
		if errors.Is(err, purchase.ErrPurchaseNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "purchase not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "quote_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(quote)
}

// PostPaymentWebhook ingests payment-rail lifecycle events. Every delivery is
// journaled before it is interpreted, so redeliveries are answered from the
// journal without touching the purchase again.
func (s *APIServer) PostPaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	provider := strings.TrimSpace(c.Get("X-Payment-Provider"))
	signature := strings.TrimSpace(c.Get("X-Payment-Signature"))
	secret := env.GetEnv("PAYMENT_WEBHOOK_SECRET", "")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	signatureValid := paymentrail.VerifyWebhookSignature(rawBody, signature, secret)
	evt, parseErr := paymentrail.ParseWebhookEvent(rawBody)

	in := paymentrail.EventInput{
		Provider:       provider,
		PayloadJSON:    string(rawBody),
		SignatureValid: signatureValid,
	}
	if evt != nil {
		in.ProviderEventID = evt.ProviderEventID
		in.EventType = evt.EventType
		in.PurchaseUUID = evt.PurchaseUUID
	}
	if in.ProviderEventID == "" {
		in.ProviderEventID = firstHeaderValue(c, "X-Payment-Event-ID", "X-Payment-Delivery")
	}

	created, stored, err := s.rail.RecordEvent(ctx, in)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if !signatureValid {
		_ = s.rail.MarkEventProcessed(ctx, stored.ID, errors.New("invalid webhook signature"))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}
	if parseErr != nil {
		_ = s.rail.MarkEventProcessed(ctx, stored.ID, parseErr)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if !paymentrail.IsLifecycleEvent(evt.EventType) {
		_ = s.rail.MarkEventProcessed(ctx, stored.ID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	applyErr := s.rail.Apply(ctx, evt)
	_ = s.rail.MarkEventProcessed(ctx, stored.ID, applyErr)
	if applyErr != nil {
		var validationErrs validator.ValidationErrors
		switch {
		case errors.Is(applyErr, purchase.ErrPurchaseNotFound):
			// A lifecycle event for a purchase this engine never registered;
			// ack it so the rail stops redelivering.
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
		case errors.Is(applyErr, purchase.ErrInvalidTransition):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invalid_transition"})
		case errors.Is(applyErr, paymentrail.ErrInvalidEvent), errors.As(applyErr, &validationErrs):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_event", "message": applyErr.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_apply_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// PutEventIncentives replaces the incentive definition set for one event. The
// payload is the complete set; stored definitions missing from it are
// deactivated, never deleted.
func (s *APIServer) PutEventIncentives(c *fiber.Ctx) error {
	eventID := strings.TrimSpace(c.Params("event"))

	var req IngestRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": "request body must be JSON"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_definition", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	defs, err := s.campaigns.IngestDefinitions(ctx, eventID, req.Definitions)
	if err != nil {
		if errors.Is(err, campaign.ErrInvalidDefinition) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_definition", "message": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "ingest_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(IngestResponse{EventID: eventID, Definitions: defs})
}

// GetEventIncentives lists the stored definition set for one event, inactive
// definitions included.
func (s *APIServer) GetEventIncentives(c *fiber.Ctx) error {
	eventID := strings.TrimSpace(c.Params("event"))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	defs, err := s.campaigns.ListDefinitions(ctx, eventID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "definition_list_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(IngestResponse{EventID: eventID, Definitions: defs})
}

// PostEventCheckInCodes provisions a batch of single-use venue codes for an
// event. The codes back check_in verification at the gate.
func (s *APIServer) PostEventCheckInCodes(c *fiber.Ctx) error {
	eventID := strings.TrimSpace(c.Params("event"))

	var req SeedCodesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": "request body must be JSON"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_code_batch", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	codes, err := s.campaigns.SeedCheckInCodes(ctx, eventID, req.Count, req.CodeLength, req.ExpiresAt)
	if err != nil {
		if errors.Is(err, campaign.ErrInvalidDefinition) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_code_batch", "message": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "code_seed_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(SeedCodesResponse{EventID: eventID, Codes: codes})
}

// GetEventCheckInCodes lists an event's check-in codes with redemption state.
func (s *APIServer) GetEventCheckInCodes(c *fiber.Ctx) error {
	eventID := strings.TrimSpace(c.Params("event"))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	codes, unused, err := s.campaigns.ListCheckInCodes(ctx, eventID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "code_list_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(CodeListResponse{EventID: eventID, Codes: codes, Unused: unused})
}

// GetReviews lists claims waiting for a reviewer verdict.
func (s *APIServer) GetReviews(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tasks, err := s.reviews.OpenTasks(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "review_list_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(ReviewListResponse{Reviews: tasks, Count: len(tasks)})
}

// PostReviewResolution applies a reviewer verdict: first to the purchase's
// stored result, then to the review task itself. When two reviewers race, the
// purchase side is idempotent and the task close is first-wins, so the loser
// gets a conflict.
func (s *APIServer) PostReviewResolution(c *fiber.Ctx) error {
	taskID := strings.TrimSpace(c.Params("id"))

	var req ResolutionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": "request body must be JSON"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_resolution", "message": "resolution must be 'approved' or 'rejected'"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	task, err := s.reviews.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, reviewqueue.ErrTaskNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "review task not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "review_lookup_failed"})
	}

	approve := req.Resolution == reviewqueue.ResolutionApproved
	applied := true
	var message string
	var resultPtr *verification.Result

	result, err := s.purchases.ResolveReview(ctx, task.Item.PurchaseID, task.Item.DefinitionUUID, approve, req.Note)
	switch {
	case err == nil:
		resultPtr = &result
	case errors.Is(err, purchase.ErrResultDiscarded):
		applied = false
		message = "purchase no longer accepts verifications; verdict recorded without effect"
	case errors.Is(err, purchase.ErrAlreadyResolved):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_resolved", "message": err.Error()})
	case errors.Is(err, purchase.ErrPurchaseNotFound),
		errors.Is(err, purchase.ErrDefinitionNotFound),
		errors.Is(err, purchase.ErrResultNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "resolution_failed"})
	}

	if _, err := s.reviews.Resolve(ctx, taskID, req.Resolution, req.Note); err != nil {
		switch {
		case errors.Is(err, reviewqueue.ErrTaskNotOpen):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_resolved", "message": err.Error()})
		case errors.Is(err, reviewqueue.ErrTaskNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "review task not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "resolution_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(ResolutionResponse{
		ReviewID: taskID,
		Applied:  applied,
		Result:   resultPtr,
		Message:  message,
	})
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
