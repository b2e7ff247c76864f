// Package http provides HTTP handlers for secret synchronization and vault
// configuration.
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/d0dg3r/dockhand/internal/models"
)

// SecretSyncService defines the synchronization operations required by the
// SyncHandler.
type SecretSyncService interface {
	// SyncStackSecrets runs one sync pass for one stack. It never fails;
	// failures are reported inside the SyncResult.
	SyncStackSecrets(ctx context.Context, stackName, stackDir, environmentID string) *models.SyncResult
	// SyncAllStackSecrets runs a sync pass for every Git-backed stack.
	SyncAllStackSecrets(ctx context.Context) map[string]*models.SyncResult
}

// StackGetter resolves stack records for the sync endpoints.
type StackGetter interface {
	Get(ctx context.Context, stackName string) (*models.Stack, error)
}

// Deployer triggers a redeploy of a stack. Consumed as an opaque operation.
type Deployer interface {
	RedeployStack(ctx context.Context, stackName, stackDir string) error
}

// SyncHandler handles HTTP requests for secret synchronization.
type SyncHandler struct {
	SyncService SecretSyncService
	Stacks      StackGetter
	Deployer    Deployer
	Log         *zap.Logger
}

// SyncStack handles POST /api/stacks/{stack}/secrets/sync.
// It runs one sync pass and, when at least one changed secret carries the
// trigger-redeploy flag, redeploys the stack before responding.
func (h *SyncHandler) SyncStack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stackName := chi.URLParam(r, "stack")

	stack, err := h.Stacks.Get(ctx, stackName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if stack == nil {
		http.Error(w, "unknown stack", http.StatusNotFound)
		return
	}

	result := h.SyncService.SyncStackSecrets(ctx, stack.Name, stack.LocalPath, stack.EnvironmentID)
	h.maybeRedeploy(ctx, stack, result)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// SyncAll handles POST /api/secrets/sync.
// It syncs every Git-backed stack and redeploys each stack whose result
// carries trigger-redeploy secrets.
func (h *SyncHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	results := h.SyncService.SyncAllStackSecrets(ctx)
	for name, result := range results {
		if len(result.TriggerRedeploySecrets) == 0 {
			continue
		}
		stack, err := h.Stacks.Get(ctx, name)
		if err != nil || stack == nil {
			h.Log.Warn("cannot resolve stack for redeploy", zap.String("stack", name), zap.Error(err))
			continue
		}
		h.maybeRedeploy(ctx, stack, result)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(results)
}

// maybeRedeploy redeploys the stack iff the sync result names at least one
// changed secret with the trigger-redeploy flag. A redeploy failure is
// appended to the result errors but does not change the sync outcome.
func (h *SyncHandler) maybeRedeploy(ctx context.Context, stack *models.Stack, result *models.SyncResult) {
	if len(result.TriggerRedeploySecrets) == 0 {
		return
	}
	if err := h.Deployer.RedeployStack(ctx, stack.Name, stack.LocalPath); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
}
