// Package urlguard enforces the navigation policy for user-supplied URLs.
// It validates scheme and host shape, applies allow/deny domain patterns,
// and blocks loopback and private-range hosts so a tool call cannot be
// steered at internal services.
package urlguard

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Claw256/mcp-google-search/pkg/gate"
)

// Config holds the policy inputs. Domain entries are glob patterns matched
// against the lowercased hostname, e.g. "*.example.com" or "example.org".
type Config struct {
	AllowedDomains    []string // empty list allows any host not denied
	BlockedDomains    []string // deny wins over allow
	AllowPrivateHosts bool
}

// Guard validates URLs against the configured policy.
type Guard struct {
	allow        []glob.Glob
	deny         []glob.Glob
	allowPrivate bool
}

// New compiles the policy. A malformed pattern is a configuration error and
// fails construction.
func New(cfg Config) (*Guard, error) {
	allow, err := compilePatterns(cfg.AllowedDomains)
	if err != nil {
		return nil, fmt.Errorf("invalid allowed domain pattern: %w", err)
	}
	deny, err := compilePatterns(cfg.BlockedDomains)
	if err != nil {
		return nil, fmt.Errorf("invalid blocked domain pattern: %w", err)
	}

	return &Guard{
		allow:        allow,
		deny:         deny,
		allowPrivate: cfg.AllowPrivateHosts,
	}, nil
}

func compilePatterns(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Check returns nil if rawURL may be fetched. Rejections carry the
// BLOCKED_URL code except for unparseable input, which is INVALID_INPUT.
func (g *Guard) Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return gate.Invalid("invalid url %q: %v", rawURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return gate.Blocked(rawURL, fmt.Sprintf("scheme %q not allowed", u.Scheme))
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return gate.Invalid("url %q has no host", rawURL)
	}

	for _, d := range g.deny {
		if d.Match(host) {
			return gate.Blocked(rawURL, "host matches blocked domain list")
		}
	}

	if len(g.allow) > 0 {
		matched := false
		for _, a := range g.allow {
			if a.Match(host) {
				matched = true
				break
			}
		}
		if !matched {
			return gate.Blocked(rawURL, "host not in allowed domain list")
		}
	}

	if !g.allowPrivate && isPrivateHost(host) {
		return gate.Blocked(rawURL, "private or loopback host")
	}

	return nil
}

// isPrivateHost recognizes literal private hosts: loopback names, reserved
// suffixes, and addresses in non-public ranges. It does not resolve DNS, so
// a public name pointing at a private address is out of scope here.
func isPrivateHost(host string) bool {
	if host == "localhost" ||
		strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") ||
		strings.HasSuffix(host, ".internal") {
		return true
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
