// Package models defines the core data structures for stacks, vault
// configuration and secret synchronization results.
package models

// AuthMethod identifies how a Vault session is established.
type AuthMethod string

const (
	// AuthToken authenticates with a static Vault token.
	AuthToken AuthMethod = "token"
	// AuthAppRole authenticates with a role id / secret id login exchange.
	AuthAppRole AuthMethod = "approle"
	// AuthKubernetes authenticates with the pod service-account token.
	AuthKubernetes AuthMethod = "kubernetes"
)

// VaultConfig is the single global Vault configuration row. Token and
// SecretID are stored encrypted at rest; the sync service decrypts them
// immediately before authenticating.
type VaultConfig struct {
	// Address is the Vault server URL.
	Address string `json:"address"`
	// Namespace is the optional X-Vault-Namespace routing header (Enterprise).
	Namespace string `json:"namespace,omitempty"`
	// DefaultPath is the KV v2 mount plus logical path used when a manifest
	// does not declare its own base path.
	DefaultPath string `json:"defaultPath"`
	// AuthMethod selects which credential fields are mandatory.
	AuthMethod AuthMethod `json:"authMethod"`
	// Token is the static token credential (encrypted at rest).
	Token string `json:"token,omitempty"`
	// RoleID is the approle role id.
	RoleID string `json:"roleId,omitempty"`
	// SecretID is the approle secret id (encrypted at rest).
	SecretID string `json:"secretId,omitempty"`
	// KubeRole is the Vault role used for kubernetes auth.
	KubeRole string `json:"kubeRole,omitempty"`
	// SkipTLSVerify disables certificate validation for Vault requests.
	SkipTLSVerify bool `json:"skipTlsVerify"`
	// Enabled gates whether secret synchronization may run at all.
	Enabled bool `json:"enabled"`
}

// Stack is a Git-backed compose stack known to the dashboard.
type Stack struct {
	// Name is the unique stack name.
	Name string `json:"name"`
	// GitURL is the origin of the stack's deployment definition.
	GitURL string `json:"gitUrl"`
	// LocalPath is the checked-out working directory of the stack.
	LocalPath string `json:"localPath"`
	// EnvironmentID scopes the stack's stored environment variables.
	EnvironmentID string `json:"environmentId"`
}

// EnvVar is one persisted environment variable for a stack. Value is stored
// encrypted when IsSecret is true.
type EnvVar struct {
	StackName     string `json:"stackName"`
	EnvironmentID string `json:"environmentId"`
	Name          string `json:"name"`
	Value         string `json:"value"`
	IsSecret      bool   `json:"isSecret"`
}

// SyncResult reports the outcome of one secret sync pass for one stack.
type SyncResult struct {
	// Success is true iff the pass completed with an empty Errors list.
	Success bool `json:"success"`
	// Synced is the number of secrets written to the store.
	Synced int `json:"synced"`
	// Errors holds human-readable failure descriptions.
	Errors []string `json:"errors"`
	// Skipped is true iff the stack has no secrets manifest.
	Skipped bool `json:"skipped"`
	// SecretsChanged is true iff at least one fetched value differs from the
	// previously stored one (or had no stored counterpart).
	SecretsChanged bool `json:"secretsChanged"`
	// TriggerRedeploySecrets lists the changed env vars whose resolved
	// triggerRedeploy flag is true. Non-empty means the stack should redeploy.
	TriggerRedeploySecrets []string `json:"triggerRedeploySecrets"`
}
