package verification

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/QuestPassApp/QuestPass/app/models"
)

// Registry maps incentive types to their verifier adapters and dispatches
// verification requests.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[models.IncentiveType]Verifier
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		verifiers: make(map[models.IncentiveType]Verifier),
	}
}

// Register adds a verifier under its incentive type. Registering a second
// verifier for the same type replaces the first; last registration wins.
func (r *Registry) Register(v Verifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[v.IncentiveType()] = v
}

// Get returns the verifier registered for the given type.
func (r *Registry) Get(incentiveType models.IncentiveType) (Verifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.verifiers[incentiveType]
	return v, ok
}

// Types lists the incentive types that currently have a verifier.
func (r *Registry) Types() []models.IncentiveType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]models.IncentiveType, 0, len(r.verifiers))
	for t := range r.verifiers {
		types = append(types, t)
	}
	return types
}

// Verify dispatches a request to the matching adapter. A type without a
// registered adapter is a configuration gap, not a buyer error: the request
// is parked as pending_manual naming the missing type so a legitimate claim
// is never silently rejected.
func (r *Registry) Verify(ctx context.Context, incentiveType models.IncentiveType, purchaseID string, ev Evidence) Result {
	v, ok := r.Get(incentiveType)
	if !ok {
		log.Warnf("[VerifierRegistry] No verifier registered for incentive type %s (purchase %s)", incentiveType, purchaseID)
		return PendingManual(fmt.Sprintf("no verifier registered for incentive type %q; queued for manual handling", incentiveType))
	}
	return v.Verify(ctx, purchaseID, ev)
}
