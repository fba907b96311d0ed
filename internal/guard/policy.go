// Package guard decides whether a caller may reach a role-scoped route.
package guard

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"pechincha/internal/session"
)

//go:embed policy.yaml
var defaultPolicy []byte

// Fallback actions of a route class.
const (
	ActionDeny    = "deny"
	ActionDegrade = "degrade"
	ActionRender  = "render"
)

// Route is one class of the policy table.
type Route struct {
	Class                string         `yaml:"class"`
	Prefixes             []string       `yaml:"prefixes"`
	Exclude              []string       `yaml:"exclude"`
	RequireAuth          bool           `yaml:"require_auth"`
	Login                string         `yaml:"login"`
	Roles                []session.Role `yaml:"roles"`
	OnProfileUnavailable string         `yaml:"on_profile_unavailable"`
	OnUnresolved         string         `yaml:"on_unresolved"`
}

// Allows reports whether role is in the route's role set. An empty set allows all.
func (r Route) Allows(role session.Role) bool {
	if len(r.Roles) == 0 {
		return true
	}
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// Policy maps request paths to route classes.
type Policy struct {
	Routes []Route `yaml:"routes"`
	// BasePath prefixes every login redirect when the app is mounted below /.
	BasePath string `yaml:"base_path"`
}

// WithBasePath sets the mount prefix used for login redirects. Empty and "/"
// mean the root.
func (p *Policy) WithBasePath(base string) *Policy {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		p.BasePath = ""
		return p
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	p.BasePath = strings.TrimSuffix(base, "/")
	return p
}

// DefaultPolicy returns the built-in table.
func DefaultPolicy() (*Policy, error) {
	return ParsePolicy(defaultPolicy)
}

// LoadPolicy reads the table from path, or the built-in one when path is empty.
func LoadPolicy(path string) (*Policy, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPolicy()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guard policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a YAML policy table.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse guard policy: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p.WithBasePath(p.BasePath), nil
}

func (p *Policy) validate() error {
	if len(p.Routes) == 0 {
		return fmt.Errorf("guard policy: no routes")
	}
	seen := make(map[string]bool, len(p.Routes))
	for i := range p.Routes {
		r := &p.Routes[i]
		r.Class = strings.TrimSpace(r.Class)
		if r.Class == "" {
			return fmt.Errorf("guard policy: route %d has no class", i)
		}
		if seen[r.Class] {
			return fmt.Errorf("guard policy: duplicate class %q", r.Class)
		}
		seen[r.Class] = true
		if len(r.Prefixes) == 0 {
			return fmt.Errorf("guard policy: class %q has no prefixes", r.Class)
		}
		if r.RequireAuth && r.Login == "" {
			return fmt.Errorf("guard policy: class %q requires auth but has no login route", r.Class)
		}
		if r.OnProfileUnavailable == "" {
			r.OnProfileUnavailable = ActionDeny
		}
		if r.OnProfileUnavailable != ActionDeny && r.OnProfileUnavailable != ActionDegrade {
			return fmt.Errorf("guard policy: class %q: on_profile_unavailable must be deny or degrade", r.Class)
		}
		if r.OnUnresolved == "" {
			r.OnUnresolved = ActionRender
		}
		if r.OnUnresolved != ActionRender && r.OnUnresolved != ActionDeny {
			return fmt.Errorf("guard policy: class %q: on_unresolved must be render or deny", r.Class)
		}
		for j, role := range r.Roles {
			r.Roles[j] = session.NormalizeRole(string(role))
			if r.Roles[j] == session.RoleUnknown {
				return fmt.Errorf("guard policy: class %q: unknown role %q", r.Class, role)
			}
		}
	}
	return nil
}

// Classify returns the route class for path using the longest matching
// prefix. Unmatched paths get an open public route.
func (p *Policy) Classify(path string) Route {
	path = "/" + strings.TrimLeft(path, "/")
	type candidate struct {
		route  Route
		length int
	}
	var matches []candidate
	for _, r := range p.Routes {
		if matchesAny(path, r.Exclude) {
			continue
		}
		best := -1
		for _, prefix := range r.Prefixes {
			if hasPathPrefix(path, prefix) && len(prefix) > best {
				best = len(prefix)
			}
		}
		if best >= 0 {
			matches = append(matches, candidate{route: r, length: best})
		}
	}
	if len(matches) == 0 {
		return Route{Class: "public", OnProfileUnavailable: ActionDegrade, OnUnresolved: ActionRender}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].length > matches[j].length })
	return matches[0].route
}

func matchesAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if hasPathPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// hasPathPrefix matches whole path segments, so /admin does not match /administrator.
func hasPathPrefix(path, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
