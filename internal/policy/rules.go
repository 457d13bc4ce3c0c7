package policy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration marks a malformed rule table. It is fatal at startup: the
// process must refuse to run with an ambiguous policy table.
var ErrConfiguration = errors.New("policy: configuration error")

// Rule maps a resource path pattern to the roles allowed to act on it.
// Patterns are hierarchical, slash separated, with positional wildcards
// written as ":name" (for example "orders/:id"). An empty Actions list
// means the rule covers every action.
type Rule struct {
	Resource string   `mapstructure:"resource"`
	Actions  []string `mapstructure:"actions"`
	Roles    []string `mapstructure:"roles"`
}

type compiledRule struct {
	raw       Rule
	segments  []segment
	wildcards int
	order     int
	actions   map[string]struct{} // nil covers all actions
	roles     map[string]struct{}
}

type segment struct {
	literal  string
	wildcard bool
}

func compile(r Rule, order int) (compiledRule, error) {
	pattern := strings.Trim(strings.TrimSpace(r.Resource), "/")
	if pattern == "" {
		return compiledRule{}, fmt.Errorf("%w: rule %d has an empty resource pattern", ErrConfiguration, order)
	}
	if len(r.Roles) == 0 {
		return compiledRule{}, fmt.Errorf("%w: rule %d (%s) names no roles", ErrConfiguration, order, r.Resource)
	}
	parts := strings.Split(pattern, "/")
	segs := make([]segment, 0, len(parts))
	wildcards := 0
	for _, part := range parts {
		if part == "" {
			return compiledRule{}, fmt.Errorf("%w: rule %d (%s) has an empty path segment", ErrConfiguration, order, r.Resource)
		}
		if strings.HasPrefix(part, ":") {
			if len(part) == 1 {
				return compiledRule{}, fmt.Errorf("%w: rule %d (%s) has an unnamed wildcard", ErrConfiguration, order, r.Resource)
			}
			segs = append(segs, segment{wildcard: true})
			wildcards++
			continue
		}
		segs = append(segs, segment{literal: part})
	}

	c := compiledRule{raw: r, segments: segs, wildcards: wildcards, order: order, roles: map[string]struct{}{}}
	for _, role := range r.Roles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role == "" {
			return compiledRule{}, fmt.Errorf("%w: rule %d (%s) has a blank role", ErrConfiguration, order, r.Resource)
		}
		c.roles[role] = struct{}{}
	}
	if len(r.Actions) > 0 {
		c.actions = map[string]struct{}{}
		for _, action := range r.Actions {
			action = strings.TrimSpace(strings.ToLower(action))
			if action == "" {
				return compiledRule{}, fmt.Errorf("%w: rule %d (%s) has a blank action", ErrConfiguration, order, r.Resource)
			}
			c.actions[action] = struct{}{}
		}
	}
	return c, nil
}

// matches reports whether the concrete resource path fits this rule's pattern.
func (c compiledRule) matches(pathSegments []string, action string) bool {
	if len(pathSegments) != len(c.segments) {
		return false
	}
	for i, seg := range c.segments {
		if seg.wildcard {
			continue
		}
		if seg.literal != pathSegments[i] {
			return false
		}
	}
	if c.actions == nil {
		return true
	}
	_, ok := c.actions[action]
	return ok
}

func (c compiledRule) allows(role string) bool {
	_, ok := c.roles[role]
	return ok
}
