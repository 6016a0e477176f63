// Package identity canonicalizes the (remote, name) pair used to match a
// pushed ref against a tracked branch on the server. The client and the
// server both normalize through this package, so two differently spelled
// locators for the same repository land on the same tracked entity.
package identity

import (
	"regexp"
	"strings"
)

// Identity is the canonical lookup key for a tracked branch.
type Identity struct {
	Remote string
	Name   string
}

// remoteRule rewrites a remote locator when its pattern matches. Rules are
// applied in order, each seeing the previous rule's output, so the chain
// behaves like a sequence of sed expressions rather than alternatives.
type remoteRule struct {
	pattern *regexp.Regexp
	apply   func(remote string, groups []string) string
}

var remoteRules = []remoteRule{
	// scheme://host/path -> host:/path
	{
		pattern: regexp.MustCompile(`^[a-z][a-z0-9+.\-]*://([^/]+)(/.*)?$`),
		apply: func(_ string, groups []string) string {
			return groups[1] + ":" + groups[2]
		},
	},
	// user@host:... -> host:...  (only when the credential segment comes
	// before any ':' or '/', otherwise an '@' inside a path would match)
	{
		pattern: regexp.MustCompile(`^[^/:@]+@(.*)$`),
		apply: func(_ string, groups []string) string {
			return groups[1]
		},
	},
	// host:/home/user/rest -> host:~user/rest
	{
		pattern: regexp.MustCompile(`^([^:]+):/home/([^/]+)/(.*)$`),
		apply: func(_ string, groups []string) string {
			return groups[1] + ":~" + groups[2] + "/" + groups[3]
		},
	},
}

// NormalizeRemote folds the remote locator through the rewrite rules and
// guarantees a trailing ".git" suffix. Non-matching input passes through
// each rule unchanged. The result is idempotent: normalizing an already
// canonical locator returns it as-is.
func NormalizeRemote(remote string) string {
	for _, rule := range remoteRules {
		groups := rule.pattern.FindStringSubmatch(remote)
		if groups == nil {
			continue
		}
		remote = rule.apply(remote, groups)
	}

	// Fixed-width suffix check, matching the server's historical behavior.
	if len(remote) < 4 || remote[len(remote)-4:] != ".git" {
		remote += ".git"
	}

	return remote
}

// NormalizeRefName strips the refs/heads/ namespace prefix. Refs outside
// that namespace (tags, notes, ...) pass through unchanged.
func NormalizeRefName(name string) string {
	return strings.TrimPrefix(name, "refs/heads/")
}

// Normalize converts a raw repository locator and a full ref name into the
// canonical identity used as the tracked-branch lookup key.
func Normalize(remote, name string) Identity {
	return Identity{
		Remote: NormalizeRemote(remote),
		Name:   NormalizeRefName(name),
	}
}
