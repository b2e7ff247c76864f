// Package manifest parses the per-stack declarative secrets manifest and
// normalizes it into the path-grouped form consumed by the sync service.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/d0dg3r/dockhand/internal/vault"
)

// ParseError reports a malformed secrets manifest. It is fatal for the
// owning stack's sync pass only.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "invalid secrets manifest: " + e.Reason
}

// fileNames are probed in order when discovering a stack's manifest.
var fileNames = []string{".secrets.yaml", ".secrets.yml", "secrets.yaml", "secrets.yml"}

// Discover probes a stack directory for a secrets manifest. The first
// existing candidate wins. A missing manifest is not an error: it means the
// stack has no managed secrets.
func Discover(dir string) (string, bool) {
	for _, name := range fileNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// Auth is a manifest-level authentication override.
type Auth struct {
	Method   string `yaml:"method"`
	Token    string `yaml:"token"`
	RoleID   string `yaml:"role_id"`
	SecretID string `yaml:"secret_id"`
	KubeRole string `yaml:"kube_role"`
}

// Vault is the optional manifest-level vault block.
type Vault struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
	Path      string `yaml:"path"`
	Auth      *Auth  `yaml:"auth"`
	// TriggerRedeploy is the manifest-wide default for secrets that carry no
	// per-secret override.
	TriggerRedeploy bool `yaml:"triggerRedeploy"`
}

// Secret is one normalized secret definition. TriggerRedeploy is tri-state:
// nil means "inherit the manifest default", a non-nil value is an explicit
// per-secret override.
type Secret struct {
	Name            string
	Key             string
	Path            string
	TriggerRedeploy *bool
}

// Manifest is the parsed form of a secrets manifest file.
type Manifest struct {
	Vault   *Vault
	Secrets []Secret
}

// secretItem mirrors the object form of a manifest secret entry.
type secretItem struct {
	Name            string `yaml:"name"`
	Key             string `yaml:"key"`
	Path            string `yaml:"path"`
	TriggerRedeploy *bool  `yaml:"triggerRedeploy"`
}

// Parse decodes a raw manifest document. The document root must be a
// mapping with a `secrets` list; each list item is either a bare string
// (expanded to name=UPPER, key=lower) or an object with a required `name`.
func Parse(raw []byte) (*Manifest, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &ParseError{Reason: "document is empty"}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{Reason: "document root must be an object"}
	}

	m := &Manifest{}
	var secretsNode *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		switch key.Value {
		case "vault":
			var v Vault
			if err := value.Decode(&v); err != nil {
				return nil, &ParseError{Reason: fmt.Sprintf("vault block: %v", err)}
			}
			m.Vault = &v
		case "secrets":
			secretsNode = value
		}
	}

	if secretsNode == nil {
		return nil, &ParseError{Reason: "secrets list is missing"}
	}
	if secretsNode.Kind != yaml.SequenceNode {
		return nil, &ParseError{Reason: "secrets must be a list"}
	}

	m.Secrets = make([]Secret, 0, len(secretsNode.Content))
	for i, item := range secretsNode.Content {
		sec, err := parseSecretItem(i, item)
		if err != nil {
			return nil, err
		}
		m.Secrets = append(m.Secrets, sec)
	}
	return m, nil
}

func parseSecretItem(index int, item *yaml.Node) (Secret, error) {
	switch item.Kind {
	case yaml.ScalarNode:
		var name string
		if err := item.Decode(&name); err != nil || name == "" {
			return Secret{}, &ParseError{Reason: fmt.Sprintf("secret %d: empty name", index)}
		}
		return Secret{
			Name: strings.ToUpper(name),
			Key:  strings.ToLower(name),
		}, nil
	case yaml.MappingNode:
		var it secretItem
		if err := item.Decode(&it); err != nil {
			return Secret{}, &ParseError{Reason: fmt.Sprintf("secret %d: %v", index, err)}
		}
		if it.Name == "" {
			return Secret{}, &ParseError{Reason: fmt.Sprintf("secret %d: name is required", index)}
		}
		key := it.Key
		if key == "" {
			key = strings.ToLower(it.Name)
		}
		return Secret{
			Name:            it.Name,
			Key:             key,
			Path:            it.Path,
			TriggerRedeploy: it.TriggerRedeploy,
		}, nil
	default:
		return Secret{}, &ParseError{Reason: fmt.Sprintf("secret %d: must be a string or an object, got %q", index, item.Value)}
	}
}

// Mapping is one resolved (vault key -> env var) binding within a path group.
type Mapping struct {
	EnvVar          string
	VaultKey        string
	TriggerRedeploy bool
}

// Parsed is the normalized manifest form consumed by the sync service.
type Parsed struct {
	// VaultPath is the effective base path, KV v2 normalized.
	VaultPath string
	// VaultAddress and VaultNamespace override the global config when set.
	VaultAddress   string
	VaultNamespace string
	// AuthOverride is set only when the manifest declares an auth method.
	AuthOverride *Auth
	// SecretsByPath groups resolved secrets by their final vault path.
	// Mapping order within a group follows the manifest.
	SecretsByPath map[string][]Mapping
	// TriggerRedeployDefault is the manifest-wide redeploy default.
	TriggerRedeployDefault bool
}

// Normalize resolves every secret to exactly one (path, key) -> env var
// binding. Per-secret paths win over the manifest base path, which in turn
// wins over defaultPath; every resolved path gets the KV v2 "/data/"
// segment injected when absent. Each secret's redeploy flag resolves to its
// own override when set, else the manifest default.
func Normalize(m *Manifest, defaultPath string) *Parsed {
	p := &Parsed{SecretsByPath: make(map[string][]Mapping)}

	basePath := defaultPath
	if m.Vault != nil {
		if m.Vault.Path != "" {
			basePath = m.Vault.Path
		}
		p.VaultAddress = m.Vault.Address
		p.VaultNamespace = m.Vault.Namespace
		p.TriggerRedeployDefault = m.Vault.TriggerRedeploy
		if m.Vault.Auth != nil && m.Vault.Auth.Method != "" {
			p.AuthOverride = m.Vault.Auth
		}
	}
	p.VaultPath = vault.EnsureDataPath(basePath)

	for _, sec := range m.Secrets {
		path := basePath
		if sec.Path != "" {
			path = sec.Path
		}
		path = vault.EnsureDataPath(path)

		trigger := p.TriggerRedeployDefault
		if sec.TriggerRedeploy != nil {
			trigger = *sec.TriggerRedeploy
		}

		p.SecretsByPath[path] = append(p.SecretsByPath[path], Mapping{
			EnvVar:          sec.Name,
			VaultKey:        sec.Key,
			TriggerRedeploy: trigger,
		})
	}
	return p
}
