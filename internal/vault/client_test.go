package vault_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/d0dg3r/dockhand/internal/vault"
)

// fakeVault is a minimal Vault HTTP double covering the endpoints the
// client touches: token lookup-self, approle login, health and KV reads.
type fakeVault struct {
	t *testing.T

	validToken string
	// secrets maps logical path (without /v1/ prefix) to the raw JSON body
	// returned for a read.
	secrets map[string]string

	lastNamespace string
	lastToken     string
}

func (f *fakeVault) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/sys/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"initialized": true,
			"sealed":      false,
			"standby":     false,
			"version":     "1.16.2",
		})
	})

	mux.HandleFunc("/v1/auth/token/lookup-self", func(w http.ResponseWriter, r *http.Request) {
		f.lastNamespace = r.Header.Get("X-Vault-Namespace")
		token := r.Header.Get("X-Vault-Token")
		if token != f.validToken {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]any{"errors": []string{"permission denied"}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": token}})
	})

	mux.HandleFunc("/v1/auth/approle/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RoleID   string `json:"role_id"`
			SecretID string `json:"secret_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.RoleID != "good-role" || body.SecretID != "good-secret" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"errors": []string{"invalid role or secret id"}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"auth": map[string]any{
				"client_token":   f.validToken,
				"lease_duration": 120,
				"renewable":      true,
			},
		})
	})

	mux.HandleFunc("/v1/", func(w http.ResponseWriter, r *http.Request) {
		f.lastNamespace = r.Header.Get("X-Vault-Namespace")
		f.lastToken = r.Header.Get("X-Vault-Token")
		body, ok := f.secrets[r.URL.Path[len("/v1/"):]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"errors": []string{}})
			return
		}
		_, _ = w.Write([]byte(body))
	})

	return mux
}

func newTestClient(t *testing.T, f *fakeVault, mutate func(*vault.Config)) *vault.Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	cfg := vault.Config{Address: srv.URL, AuthMethod: "token", Token: f.validToken}
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := vault.NewClient(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestAuthenticateWithToken_Success(t *testing.T) {
	f := &fakeVault{t: t, validToken: "tok-1"}
	client := newTestClient(t, f, nil)

	session, err := client.AuthenticateWithToken(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session == nil {
		t.Fatal("expected a session")
	}
}

func TestAuthenticateWithToken_Invalid(t *testing.T) {
	f := &fakeVault{t: t, validToken: "tok-1"}
	client := newTestClient(t, f, nil)

	_, err := client.AuthenticateWithToken(context.Background(), "wrong")
	var authErr *vault.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Method != "token" {
		t.Errorf("AuthError.Method = %q; want token", authErr.Method)
	}
}

func TestAuthenticateWithAppRole_Success(t *testing.T) {
	f := &fakeVault{t: t, validToken: "tok-2"}
	client := newTestClient(t, f, nil)

	session, err := client.AuthenticateWithAppRole(context.Background(), "good-role", "good-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session == nil {
		t.Fatal("expected a session")
	}
}

func TestAuthenticateWithAppRole_BadCredentials(t *testing.T) {
	f := &fakeVault{t: t, validToken: "tok-2"}
	client := newTestClient(t, f, nil)

	_, err := client.AuthenticateWithAppRole(context.Background(), "bad", "bad")
	var authErr *vault.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestLogin_ValidatesCredentialFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*vault.Config)
	}{
		{"token without token", func(c *vault.Config) { c.AuthMethod = "token"; c.Token = "" }},
		{"approle without secret id", func(c *vault.Config) { c.AuthMethod = "approle"; c.RoleID = "r" }},
		{"kubernetes without role", func(c *vault.Config) { c.AuthMethod = "kubernetes" }},
		{"unknown method", func(c *vault.Config) { c.AuthMethod = "ldap" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeVault{t: t, validToken: "tok"}
			client := newTestClient(t, f, tc.mutate)

			_, err := client.Login(context.Background())
			var authErr *vault.AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected AuthError, got %v", err)
			}
		})
	}
}

func TestReadSecret_UnwrapsKVv2Envelope(t *testing.T) {
	f := &fakeVault{t: t, validToken: "tok", secrets: map[string]string{
		"secret/data/app": `{"data":{"data":{"db_pass":"hunter2","port":5432},"metadata":{"version":3}}}`,
	}}
	client := newTestClient(t, f, nil)
	session, err := client.Login(context.Background())
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	values, err := session.ReadSecret(context.Background(), "secret/app")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["db_pass"] != "hunter2" {
		t.Errorf("db_pass = %q; want hunter2", values["db_pass"])
	}
	// Non-string values are coerced to their string representation.
	if values["port"] != "5432" {
		t.Errorf("port = %q; want 5432", values["port"])
	}
}

func TestReadSecret_KVv1Shape(t *testing.T) {
	f := &fakeVault{t: t, validToken: "tok", secrets: map[string]string{
		"kv/data/legacy": `{"data":{"api_key":"k-123"}}`,
	}}
	client := newTestClient(t, f, nil)
	session, err := client.Login(context.Background())
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	values, err := session.ReadSecret(context.Background(), "kv/legacy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["api_key"] != "k-123" {
		t.Errorf("api_key = %q; want k-123", values["api_key"])
	}
}

func TestReadSecret_MissingPathYieldsEmptyMap(t *testing.T) {
	f := &fakeVault{t: t, validToken: "tok", secrets: map[string]string{}}
	client := newTestClient(t, f, nil)
	session, err := client.Login(context.Background())
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	values, err := session.ReadSecret(context.Background(), "secret/nothing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("expected empty map, got %v", values)
	}
}

func TestGetSecrets_OmitsMissingKeys(t *testing.T) {
	f := &fakeVault{t: t, validToken: "tok", secrets: map[string]string{
		"secret/data/app": `{"data":{"data":{"a":"1"},"metadata":{}}}`,
	}}
	client := newTestClient(t, f, nil)
	session, err := client.Login(context.Background())
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	kvs, err := session.GetSecrets(context.Background(), "secret/app", []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(kvs) != 1 || kvs[0].Key != "a" || kvs[0].Value != "1" {
		t.Errorf("unexpected result: %+v", kvs)
	}
}

func TestNamespaceHeaderIsSent(t *testing.T) {
	f := &fakeVault{t: t, validToken: "tok", secrets: map[string]string{
		"secret/data/app": `{"data":{"data":{"a":"1"},"metadata":{}}}`,
	}}
	client := newTestClient(t, f, func(c *vault.Config) { c.Namespace = "team-a" })
	session, err := client.Login(context.Background())
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := session.ReadSecret(context.Background(), "secret/app"); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.lastNamespace != "team-a" {
		t.Errorf("namespace header = %q; want team-a", f.lastNamespace)
	}
}

func TestTestConnection(t *testing.T) {
	f := &fakeVault{t: t, validToken: "tok"}
	client := newTestClient(t, f, nil)

	result := client.TestConnection(context.Background())
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Version != "1.16.2" {
		t.Errorf("version = %q; want 1.16.2", result.Version)
	}
}

func TestTestConnection_Unreachable(t *testing.T) {
	client, err := vault.NewClient(vault.Config{Address: "http://127.0.0.1:1"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	result := client.TestConnection(context.Background())
	if result.Success {
		t.Fatal("expected failure against unreachable endpoint")
	}
	if result.Error == "" {
		t.Error("expected an error message")
	}
}
