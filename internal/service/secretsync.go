// Package service provides the business logic for secret synchronization,
// delegating persistence and Vault access to narrow interfaces.
package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/d0dg3r/dockhand/internal/manifest"
	"github.com/d0dg3r/dockhand/internal/models"
	"github.com/d0dg3r/dockhand/internal/vault"
)

// EnvVarStore defines the persistence operations the sync service needs for
// stored secret environment variables.
type EnvVarStore interface {
	// GetSecretValues returns the decrypted secret values previously stored
	// for a stack and environment scope, keyed by env var name.
	GetSecretValues(ctx context.Context, stackName, environmentID string) (map[string]string, error)
	// UpsertSecretValues writes all given values in one all-or-nothing batch.
	UpsertSecretValues(ctx context.Context, stackName, environmentID string, values map[string]string) error
}

// VaultConfigStore reads the single global Vault configuration row.
type VaultConfigStore interface {
	// Get returns the stored configuration, or nil when none exists.
	Get(ctx context.Context) (*models.VaultConfig, error)
}

// StackStore provides the stack metadata operations the pipeline depends on.
type StackStore interface {
	// ListGitStacks returns every Git-backed stack.
	ListGitStacks(ctx context.Context) ([]models.Stack, error)
	// GetEnvironmentID resolves a stack's environment scope from its source record.
	GetEnvironmentID(ctx context.Context, stackName string) (string, error)
}

// Decrypter decrypts credential fields stored encrypted at rest.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// SecretReader is the authenticated read surface of a Vault session.
type SecretReader interface {
	GetSecrets(ctx context.Context, path string, keys []string) ([]vault.KV, error)
}

// SessionFactory builds an authenticated Vault session from an effective
// configuration. Every sync pass gets its own session; sessions are never
// reused across stacks because manifest overrides may change credentials.
type SessionFactory func(ctx context.Context, cfg vault.Config) (SecretReader, error)

// DefaultSessionFactory dials Vault and authenticates with the method named
// in the effective configuration.
func DefaultSessionFactory(log *zap.Logger) SessionFactory {
	return func(ctx context.Context, cfg vault.Config) (SecretReader, error) {
		client, err := vault.NewClient(cfg, log)
		if err != nil {
			return nil, err
		}
		return client.Login(ctx)
	}
}

// syncTimeout bounds one per-stack sync pass, including all Vault calls.
const syncTimeout = 60 * time.Second

// SecretSyncService synchronizes Vault secrets into the encrypted env-var
// store and decides which changes should trigger a redeploy.
type SecretSyncService struct {
	envVars   EnvVarStore
	config    VaultConfigStore
	stacks    StackStore
	decrypter Decrypter
	connect   SessionFactory
	log       *zap.Logger
}

// NewSecretSyncService constructs a SecretSyncService. A nil connect falls
// back to the real Vault session factory.
func NewSecretSyncService(
	envVars EnvVarStore,
	config VaultConfigStore,
	stacks StackStore,
	decrypter Decrypter,
	connect SessionFactory,
	log *zap.Logger,
) *SecretSyncService {
	if connect == nil {
		connect = DefaultSessionFactory(log)
	}
	return &SecretSyncService{
		envVars:   envVars,
		config:    config,
		stacks:    stacks,
		decrypter: decrypter,
		connect:   connect,
		log:       log,
	}
}

// resolveConfig merges the global configuration with manifest overrides
// into the effective configuration used to authenticate this pass.
// Manifest-declared address, namespace and auth win over global values;
// defaultPath and skipTlsVerify always come from global. Stored credentials
// are decrypted here, immediately before use; a decryption failure fails
// the whole pass.
func (s *SecretSyncService) resolveConfig(global *models.VaultConfig, parsed *manifest.Parsed) (vault.Config, error) {
	cfg := vault.Config{
		Address:       global.Address,
		Namespace:     global.Namespace,
		SkipTLSVerify: global.SkipTLSVerify,
	}
	if parsed.VaultAddress != "" {
		cfg.Address = parsed.VaultAddress
	}
	if parsed.VaultNamespace != "" {
		cfg.Namespace = parsed.VaultNamespace
	}

	if auth := parsed.AuthOverride; auth != nil {
		cfg.AuthMethod = auth.Method
		cfg.Token = auth.Token
		cfg.RoleID = auth.RoleID
		cfg.SecretID = auth.SecretID
		cfg.KubeRole = auth.KubeRole
		return cfg, nil
	}

	cfg.AuthMethod = string(global.AuthMethod)
	cfg.RoleID = global.RoleID
	cfg.KubeRole = global.KubeRole
	if global.Token != "" {
		token, err := s.decrypter.Decrypt(global.Token)
		if err != nil {
			return vault.Config{}, fmt.Errorf("decrypt vault token: %w", err)
		}
		cfg.Token = token
	}
	if global.SecretID != "" {
		secretID, err := s.decrypter.Decrypt(global.SecretID)
		if err != nil {
			return vault.Config{}, fmt.Errorf("decrypt vault secret id: %w", err)
		}
		cfg.SecretID = secretID
	}
	return cfg, nil
}

// fetchedSecret is one secret fetched this pass, in deterministic order.
type fetchedSecret struct {
	envVar          string
	value           string
	triggerRedeploy bool
}

// SyncStackSecrets runs one sync pass for one stack. It never returns an
// error: every failure path produces a SyncResult with Success=false and a
// human-readable entry in Errors. A stack without a secrets manifest yields
// Skipped=true, which is a benign "nothing to sync" state.
func (s *SecretSyncService) SyncStackSecrets(ctx context.Context, stackName, stackDir, environmentID string) *models.SyncResult {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	result := &models.SyncResult{
		Errors:                 []string{},
		TriggerRedeploySecrets: []string{},
	}

	// Environment scope. Failure to resolve is non-fatal: secrets become
	// environment-agnostic.
	if environmentID == "" {
		id, err := s.stacks.GetEnvironmentID(ctx, stackName)
		if err != nil {
			s.log.Warn("could not resolve environment id, proceeding without environment scope",
				zap.String("stack", stackName), zap.Error(err))
		} else {
			environmentID = id
		}
	}

	manifestPath, found := manifest.Discover(stackDir)
	if !found {
		result.Success = true
		result.Skipped = true
		return result
	}

	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("read secrets manifest: %v", err))
		return result
	}
	m, err := manifest.Parse(raw)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	global, err := s.config.Get(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("load vault config: %v", err))
		return result
	}
	if global == nil || !global.Enabled {
		result.Errors = append(result.Errors, "vault sync is disabled: configure Vault first")
		return result
	}

	parsed := manifest.Normalize(m, global.DefaultPath)

	cfg, err := s.resolveConfig(global, parsed)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	session, err := s.connect(ctx, cfg)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	// Existing values are only needed for diffing. When they cannot be
	// loaded every fetched secret counts as changed: an inability to
	// compare must never suppress a needed redeploy.
	existing, err := s.envVars.GetSecretValues(ctx, stackName, environmentID)
	if err != nil {
		s.log.Warn("could not load existing secrets for comparison, treating all as changed",
			zap.String("stack", stackName), zap.Error(err))
		existing = map[string]string{}
	}

	fetched := s.fetchSecrets(ctx, session, parsed, result)

	for _, fs := range fetched {
		old, had := existing[fs.envVar]
		if !had || old != fs.value {
			result.SecretsChanged = true
			if fs.triggerRedeploy {
				result.TriggerRedeploySecrets = append(result.TriggerRedeploySecrets, fs.envVar)
			}
		}
	}

	if len(fetched) > 0 {
		values := make(map[string]string, len(fetched))
		for _, fs := range fetched {
			values[fs.envVar] = fs.value
		}
		if err := s.envVars.UpsertSecretValues(ctx, stackName, environmentID, values); err != nil {
			// All-or-nothing: the fetch results of this pass are discarded.
			result.Errors = append(result.Errors, fmt.Sprintf("persist secrets: %v", err))
			result.Synced = 0
			result.SecretsChanged = false
			result.TriggerRedeploySecrets = []string{}
			return result
		}
		result.Synced = len(values)
	}

	result.Success = len(result.Errors) == 0

	s.log.Info("stack secrets synced",
		zap.String("stack", stackName),
		zap.Int("synced", result.Synced),
		zap.Bool("changed", result.SecretsChanged),
		zap.Strings("triggerRedeploy", result.TriggerRedeploySecrets),
		zap.Int("errors", len(result.Errors)),
	)
	return result
}

// fetchSecrets requests every path group in sorted-path order so errors and
// redeploy decisions are deterministic for identical input. Per-key
// omissions and per-path failures are recorded in the result but never
// abort the remaining groups.
func (s *SecretSyncService) fetchSecrets(ctx context.Context, session SecretReader, parsed *manifest.Parsed, result *models.SyncResult) []fetchedSecret {
	paths := make([]string, 0, len(parsed.SecretsByPath))
	for p := range parsed.SecretsByPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var fetched []fetchedSecret
	for _, p := range paths {
		mappings := parsed.SecretsByPath[p]
		keys := make([]string, 0, len(mappings))
		for _, mp := range mappings {
			keys = append(keys, mp.VaultKey)
		}

		kvs, err := session.GetSecrets(ctx, p, keys)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("fetch secrets at path %q: %v", p, err))
			continue
		}
		got := make(map[string]string, len(kvs))
		for _, kv := range kvs {
			got[kv.Key] = kv.Value
		}

		for _, mp := range mappings {
			value, ok := got[mp.VaultKey]
			if !ok {
				result.Errors = append(result.Errors, fmt.Sprintf("Secret %q not found at path %q", mp.VaultKey, p))
				continue
			}
			fetched = append(fetched, fetchedSecret{
				envVar:          mp.EnvVar,
				value:           value,
				triggerRedeploy: mp.TriggerRedeploy,
			})
		}
	}
	return fetched
}

// SyncAllStackSecrets runs a sync pass for every Git-backed stack. One
// stack's failure, including a panic, never aborts the iteration over the
// remaining stacks.
func (s *SecretSyncService) SyncAllStackSecrets(ctx context.Context) map[string]*models.SyncResult {
	results := make(map[string]*models.SyncResult)

	stacks, err := s.stacks.ListGitStacks(ctx)
	if err != nil {
		s.log.Error("could not list git stacks for fleet sync", zap.Error(err))
		return results
	}

	for _, stack := range stacks {
		if stack.LocalPath == "" {
			results[stack.Name] = &models.SyncResult{
				Errors:                 []string{"stack has no resolvable working directory"},
				TriggerRedeploySecrets: []string{},
			}
			continue
		}
		if _, err := os.Stat(stack.LocalPath); err != nil {
			results[stack.Name] = &models.SyncResult{
				Errors:                 []string{fmt.Sprintf("stack working directory %q is not accessible: %v", stack.LocalPath, err)},
				TriggerRedeploySecrets: []string{},
			}
			continue
		}
		results[stack.Name] = s.syncStackIsolated(ctx, stack)
	}
	return results
}

// syncStackIsolated converts a panicking sync pass into a failed SyncResult.
func (s *SecretSyncService) syncStackIsolated(ctx context.Context, stack models.Stack) (result *models.SyncResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("stack sync panicked", zap.String("stack", stack.Name), zap.Any("panic", r))
			result = &models.SyncResult{
				Errors:                 []string{fmt.Sprintf("sync panicked: %v", r)},
				TriggerRedeploySecrets: []string{},
			}
		}
	}()
	return s.SyncStackSecrets(ctx, stack.Name, stack.LocalPath, stack.EnvironmentID)
}
