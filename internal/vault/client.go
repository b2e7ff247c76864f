// Package vault provides an authenticated session against one HashiCorp
// Vault endpoint. Clients are short-lived: each sync pass constructs its
// own client, authenticates once, and discards it.
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	approleauth "github.com/hashicorp/vault/api/auth/approle"
	kubernetesauth "github.com/hashicorp/vault/api/auth/kubernetes"
	"go.uber.org/zap"
)

// ErrNotAuthenticated is returned by read operations on a session that
// holds no Vault token.
var ErrNotAuthenticated = errors.New("vault client is not authenticated")

// AuthError reports a failed authentication exchange. A client that failed
// to authenticate stays unusable; construct a new one to retry.
type AuthError struct {
	Method string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("vault %s authentication failed: %v", e.Method, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Config carries everything needed to reach and authenticate against one
// Vault endpoint. Credentials are expected in plaintext; decryption of
// stored values happens before a Config is built.
type Config struct {
	Address       string
	Namespace     string
	SkipTLSVerify bool
	Timeout       time.Duration

	AuthMethod string
	Token      string
	RoleID     string
	SecretID   string
	KubeRole   string
}

// Client is an unauthenticated handle to one Vault endpoint. Reads require
// a Session obtained through one of the authenticate methods.
type Client struct {
	api *vaultapi.Client
	cfg Config
	log *zap.Logger
}

// NewClient builds a Vault API client for the given endpoint. The namespace
// header and TLS-verification bypass are applied to every request the
// client issues.
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	apiCfg := vaultapi.DefaultConfig()
	apiCfg.Address = cfg.Address
	if cfg.Timeout > 0 {
		apiCfg.Timeout = cfg.Timeout
	}
	if err := apiCfg.ConfigureTLS(&vaultapi.TLSConfig{Insecure: cfg.SkipTLSVerify}); err != nil {
		return nil, fmt.Errorf("configure TLS: %w", err)
	}

	api, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		api.SetNamespace(cfg.Namespace)
	}

	return &Client{api: api, cfg: cfg, log: log}, nil
}

// Session is an authenticated, single-use view of a Vault endpoint.
// Sessions are never shared across sync passes.
type Session struct {
	api *vaultapi.Client
	log *zap.Logger
}

// Login authenticates with the method named in the client config and
// returns the resulting session.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	switch c.cfg.AuthMethod {
	case "token":
		if c.cfg.Token == "" {
			return nil, &AuthError{Method: "token", Err: errors.New("token is not set")}
		}
		return c.AuthenticateWithToken(ctx, c.cfg.Token)
	case "approle":
		if c.cfg.RoleID == "" || c.cfg.SecretID == "" {
			return nil, &AuthError{Method: "approle", Err: errors.New("role_id and secret_id are required")}
		}
		return c.AuthenticateWithAppRole(ctx, c.cfg.RoleID, c.cfg.SecretID)
	case "kubernetes":
		if c.cfg.KubeRole == "" {
			return nil, &AuthError{Method: "kubernetes", Err: errors.New("kube_role is not set")}
		}
		return c.AuthenticateWithKubernetes(ctx, c.cfg.KubeRole)
	default:
		return nil, &AuthError{Method: c.cfg.AuthMethod, Err: errors.New("unsupported auth method")}
	}
}

// AuthenticateWithToken installs the token and validates it with a
// self-lookup request.
func (c *Client) AuthenticateWithToken(ctx context.Context, token string) (*Session, error) {
	c.api.SetToken(token)
	if _, err := c.api.Auth().Token().LookupSelfWithContext(ctx); err != nil {
		c.log.Error("vault token lookup-self failed", zap.Error(err))
		return nil, &AuthError{Method: "token", Err: err}
	}
	return &Session{api: c.api, log: c.log}, nil
}

// AuthenticateWithAppRole performs the approle login exchange.
func (c *Client) AuthenticateWithAppRole(ctx context.Context, roleID, secretID string) (*Session, error) {
	auth, err := approleauth.NewAppRoleAuth(roleID, &approleauth.SecretID{FromString: secretID})
	if err != nil {
		return nil, &AuthError{Method: "approle", Err: err}
	}
	info, err := c.api.Auth().Login(ctx, auth)
	if err != nil {
		c.log.Error("vault approle login failed", zap.Error(err))
		return nil, &AuthError{Method: "approle", Err: err}
	}
	if info == nil || info.Auth == nil || info.Auth.ClientToken == "" {
		return nil, &AuthError{Method: "approle", Err: errors.New("login response contained no client token")}
	}
	return &Session{api: c.api, log: c.log}, nil
}

// AuthenticateWithKubernetes exchanges the pod service-account token for a
// Vault token. Outside a Kubernetes pod the service-account token file is
// unreadable and the login fails; that failure is expected and wrapped.
func (c *Client) AuthenticateWithKubernetes(ctx context.Context, role string) (*Session, error) {
	auth, err := kubernetesauth.NewKubernetesAuth(role)
	if err != nil {
		return nil, &AuthError{Method: "kubernetes", Err: err}
	}
	info, err := c.api.Auth().Login(ctx, auth)
	if err != nil {
		c.log.Error("vault kubernetes login failed", zap.Error(err))
		return nil, &AuthError{Method: "kubernetes", Err: err}
	}
	if info == nil || info.Auth == nil || info.Auth.ClientToken == "" {
		return nil, &AuthError{Method: "kubernetes", Err: errors.New("login response contained no client token")}
	}
	return &Session{api: c.api, log: c.log}, nil
}

// ConnectionResult is the outcome of an unauthenticated health probe.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TestConnection probes the endpoint health. It never fails; errors are
// reported in the result.
func (c *Client) TestConnection(ctx context.Context) ConnectionResult {
	health, err := c.api.Sys().HealthWithContext(ctx)
	if err != nil {
		return ConnectionResult{Success: false, Error: err.Error()}
	}
	return ConnectionResult{Success: true, Version: health.Version}
}

// ReadSecret reads all fields stored at a KV path. Both secret-engine
// response shapes are handled: v2 nests the payload under an inner "data"
// key, v1 does not. Values are coerced to their string representation. A
// path with no secret yields an empty map.
func (s *Session) ReadSecret(ctx context.Context, path string) (map[string]string, error) {
	if s == nil || s.api.Token() == "" {
		return nil, ErrNotAuthenticated
	}
	secret, err := s.api.Logical().ReadWithContext(ctx, EnsureDataPath(path))
	if err != nil {
		return nil, fmt.Errorf("read secret at %q: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return map[string]string{}, nil
	}

	data := secret.Data
	if inner, ok := data["data"].(map[string]interface{}); ok {
		data = inner
	}

	values := make(map[string]string, len(data))
	for k, v := range data {
		values[k] = fmt.Sprintf("%v", v)
	}
	return values, nil
}

// KV is one fetched secret value.
type KV struct {
	Key   string
	Value string
}

// GetSecrets reads a path and filters the result to the requested keys,
// preserving request order. Keys absent from the secret are logged and
// omitted, never an error; callers surface omissions themselves.
func (s *Session) GetSecrets(ctx context.Context, path string, keys []string) ([]KV, error) {
	values, err := s.ReadSecret(ctx, path)
	if err != nil {
		return nil, err
	}

	out := make([]KV, 0, len(keys))
	for _, key := range keys {
		v, ok := values[key]
		if !ok {
			s.log.Warn("secret key not found",
				zap.String("path", path),
				zap.String("key", key),
			)
			continue
		}
		out = append(out, KV{Key: key, Value: v})
	}
	return out, nil
}
