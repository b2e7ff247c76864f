package vault

import "strings"

// EnsureDataPath rewrites a KV path to the v2 read form. The versioned
// secret engine requires a literal "/data/" segment between the mount and
// the logical key; when it is absent it is injected after the first path
// segment. Paths that already carry the segment pass through unchanged, so
// the rewrite is idempotent.
func EnsureDataPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return p
	}
	if strings.Contains("/"+p+"/", "/data/") {
		return p
	}
	parts := strings.SplitN(p, "/", 2)
	if len(parts) == 1 {
		return parts[0] + "/data"
	}
	return parts[0] + "/data/" + parts[1]
}
