package http

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/d0dg3r/dockhand/internal/models"
	"github.com/d0dg3r/dockhand/internal/vault"
)

// redactedValue replaces stored credentials in API responses.
const redactedValue = "********"

// VaultConfigStore defines the persistence operations required by the
// VaultConfigHandler.
type VaultConfigStore interface {
	Get(ctx context.Context) (*models.VaultConfig, error)
	Save(ctx context.Context, cfg *models.VaultConfig) error
	Delete(ctx context.Context) error
}

// Encrypter encrypts credential fields before they are persisted.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// ConnectionTester probes a Vault endpoint. It never fails; errors are
// reported inside the result.
type ConnectionTester func(ctx context.Context, cfg vault.Config) vault.ConnectionResult

// DefaultConnectionTester probes a real Vault endpoint.
func DefaultConnectionTester(log *zap.Logger) ConnectionTester {
	return func(ctx context.Context, cfg vault.Config) vault.ConnectionResult {
		client, err := vault.NewClient(cfg, log)
		if err != nil {
			return vault.ConnectionResult{Success: false, Error: err.Error()}
		}
		return client.TestConnection(ctx)
	}
}

// VaultConfigHandler handles HTTP requests for the global vault
// configuration row.
type VaultConfigHandler struct {
	Store     VaultConfigStore
	Encrypter Encrypter
	Test      ConnectionTester
	Log       *zap.Logger
}

// GetConfig handles GET /api/vault/config. Stored credentials are redacted.
func (h *VaultConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Store.Get(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if cfg == nil {
		http.Error(w, "vault is not configured", http.StatusNotFound)
		return
	}

	if cfg.Token != "" {
		cfg.Token = redactedValue
	}
	if cfg.SecretID != "" {
		cfg.SecretID = redactedValue
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cfg)
}

// SaveConfig handles PUT /api/vault/config. Token and secret id are
// encrypted before the row is written.
func (h *VaultConfigHandler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.VaultConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if cfg.Address == "" {
		http.Error(w, "address is required", http.StatusBadRequest)
		return
	}
	if msg := validateCredentials(&cfg); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	if cfg.Token != "" {
		encrypted, err := h.Encrypter.Encrypt(cfg.Token)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		cfg.Token = encrypted
	}
	if cfg.SecretID != "" {
		encrypted, err := h.Encrypter.Encrypt(cfg.SecretID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		cfg.SecretID = encrypted
	}

	if err := h.Store.Save(r.Context(), &cfg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validateCredentials checks that the fields mandated by the auth method
// are present. It returns an empty string when the config is valid.
func validateCredentials(cfg *models.VaultConfig) string {
	switch cfg.AuthMethod {
	case models.AuthToken:
		if cfg.Token == "" {
			return "token auth requires a token"
		}
	case models.AuthAppRole:
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return "approle auth requires roleId and secretId"
		}
	case models.AuthKubernetes:
		if cfg.KubeRole == "" {
			return "kubernetes auth requires kubeRole"
		}
	default:
		return "unsupported auth method"
	}
	return ""
}

// DeleteConfig handles DELETE /api/vault/config.
func (h *VaultConfigHandler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Delete(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// testRequest is the optional body of POST /api/vault/test. When the
// address is empty the stored configuration is probed instead.
type testRequest struct {
	Address       string `json:"address"`
	Namespace     string `json:"namespace"`
	SkipTLSVerify bool   `json:"skipTlsVerify"`
}

// TestConnection handles POST /api/vault/test. The probe is
// unauthenticated and always responds 200 with a result record.
func (h *VaultConfigHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	cfg := vault.Config{
		Address:       req.Address,
		Namespace:     req.Namespace,
		SkipTLSVerify: req.SkipTLSVerify,
	}
	if cfg.Address == "" {
		stored, err := h.Store.Get(r.Context())
		if err != nil || stored == nil {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(vault.ConnectionResult{Success: false, Error: "vault is not configured"})
			return
		}
		cfg.Address = stored.Address
		cfg.Namespace = stored.Namespace
		cfg.SkipTLSVerify = stored.SkipTLSVerify
	}

	result := h.Test(r.Context(), cfg)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
