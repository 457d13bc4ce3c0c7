package policy

import (
	"sort"
	"strings"
	"sync"

	"gatehouse.org/internal/principal"
)

// Engine evaluates the static rule table. It is pure at request time: Resolve
// has no side effects and reads a snapshot of configuration. The table changes
// only through Reload, never through request traffic.
type Engine struct {
	mu    sync.RWMutex
	rules []compiledRule
}

// NewEngine compiles the rule table. A malformed rule is a configuration
// error and must abort startup.
func NewEngine(rules []Rule) (*Engine, error) {
	e := &Engine{}
	if err := e.Reload(rules); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload atomically replaces the rule table. It is the only mutation path.
func (e *Engine) Reload(rules []Rule) error {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		c, err := compile(r, i)
		if err != nil {
			return err
		}
		compiled = append(compiled, c)
	}
	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()
	return nil
}

// Resolve decides whether role may perform action on the resource path.
//
// Owner is granted before rule evaluation. This is a deliberate escape hatch,
// not a property of rule data: editing the table can never lock the owner out.
//
// Matching order: an exact literal match beats any wildcard match; among
// wildcard matches the one with fewest wildcard segments wins; on a tie the
// earliest registered rule governs.
//
// When no rule matches the path at all, any authenticated principal is
// allowed. Open-by-default is a preserved, signed-off behavior of this
// system; rules exist to close resources, not to open them.
func (e *Engine) Resolve(role principal.Role, resourcePath, action string) bool {
	if role == principal.RoleOwner {
		return true
	}

	path := strings.Trim(strings.TrimSpace(resourcePath), "/")
	if path == "" {
		return false
	}
	segments := strings.Split(path, "/")
	action = strings.TrimSpace(strings.ToLower(action))

	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	var matched []compiledRule
	for _, rule := range rules {
		if rule.matches(segments, action) {
			matched = append(matched, rule)
		}
	}
	if len(matched) == 0 {
		return true
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].wildcards != matched[j].wildcards {
			return matched[i].wildcards < matched[j].wildcards
		}
		return matched[i].order < matched[j].order
	})
	return matched[0].allows(strings.ToLower(string(role)))
}

// RuleCount reports the size of the active table.
func (e *Engine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}
