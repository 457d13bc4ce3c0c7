package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gatehouse.org/internal/principal"
)

func mustEngine(t *testing.T, rules []Rule) *Engine {
	t.Helper()
	e, err := NewEngine(rules)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestOwnerShortCircuit(t *testing.T) {
	e := mustEngine(t, []Rule{
		{Resource: "orders/:id", Roles: []string{"retailer"}},
	})
	// Owner passes even on resources no rule mentions and on rules that
	// exclude it.
	if !e.Resolve(principal.RoleOwner, "orders/42", "write") {
		t.Fatal("owner must bypass the table")
	}
	if !e.Resolve(principal.RoleOwner, "totally/unknown/path", "purge") {
		t.Fatal("owner must pass untabled paths")
	}
}

func TestDefaultAllowWhenNoRuleMatches(t *testing.T) {
	e := mustEngine(t, []Rule{
		{Resource: "claims/:id/approve", Roles: []string{"backoffice"}},
	})
	if !e.Resolve(principal.RoleLocationUser, "orders/42", "read") {
		t.Fatal("unmatched path must default to allow")
	}
}

func TestLiteralBeatsWildcard(t *testing.T) {
	e := mustEngine(t, []Rule{
		{Resource: "orders/:id", Roles: []string{"retailer", "location_user"}},
		{Resource: "orders/export", Roles: []string{"backoffice"}},
	})
	// "orders/export" matches both patterns; the literal rule governs.
	if e.Resolve(principal.RoleLocationUser, "orders/export", "read") {
		t.Fatal("literal rule should win and deny location_user")
	}
	if !e.Resolve(principal.RoleBackoffice, "orders/export", "read") {
		t.Fatal("literal rule should allow backoffice")
	}
	// Plain ids still use the wildcard rule.
	if !e.Resolve(principal.RoleLocationUser, "orders/42", "read") {
		t.Fatal("wildcard rule should allow location_user for ids")
	}
}

func TestFewestWildcardsWins(t *testing.T) {
	e := mustEngine(t, []Rule{
		{Resource: "shipments/:id/:part", Roles: []string{"backoffice"}},
		{Resource: "shipments/:id/labels", Roles: []string{"retailer"}},
	})
	if !e.Resolve(principal.RoleRetailer, "shipments/7/labels", "read") {
		t.Fatal("more specific rule should govern")
	}
	if e.Resolve(principal.RoleRetailer, "shipments/7/manifest", "read") {
		t.Fatal("generic rule should deny retailer")
	}
}

func TestRegistrationOrderBreaksTies(t *testing.T) {
	e := mustEngine(t, []Rule{
		{Resource: "claims/:id", Actions: []string{"read"}, Roles: []string{"location_user"}},
		{Resource: "claims/:x", Actions: []string{"read"}, Roles: []string{"backoffice"}},
	})
	// Same wildcard count; the first registered rule governs, so
	// location_user is allowed and backoffice is not.
	if !e.Resolve(principal.RoleLocationUser, "claims/9", "read") {
		t.Fatal("first registered rule should govern on tie")
	}
	if e.Resolve(principal.RoleBackoffice, "claims/9", "read") {
		t.Fatal("later duplicate rule must not apply")
	}
}

func TestActionScopedRules(t *testing.T) {
	e := mustEngine(t, []Rule{
		{Resource: "customers/:id", Actions: []string{"delete"}, Roles: []string{"backoffice"}},
	})
	if e.Resolve(principal.RoleRetailer, "customers/5", "delete") {
		t.Fatal("delete should be closed to retailer")
	}
	// Reads of the same path hit no rule and fall back to default allow.
	if !e.Resolve(principal.RoleRetailer, "customers/5", "read") {
		t.Fatal("read should fall through to default allow")
	}
}

func TestMalformedRulesFailStartup(t *testing.T) {
	bad := [][]Rule{
		{{Resource: "", Roles: []string{"retailer"}}},
		{{Resource: "orders//items", Roles: []string{"retailer"}}},
		{{Resource: "orders/:", Roles: []string{"retailer"}}},
		{{Resource: "orders/:id"}}, // no roles
	}
	for i, rules := range bad {
		if _, err := NewEngine(rules); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("case %d: expected ErrConfiguration, got %v", i, err)
		}
	}
}

func TestReloadReplacesTable(t *testing.T) {
	e := mustEngine(t, []Rule{
		{Resource: "orders/:id", Roles: []string{"retailer"}},
	})
	if e.Resolve(principal.RoleLocationUser, "orders/1", "read") {
		t.Fatal("expected deny before reload")
	}
	err := e.Reload([]Rule{
		{Resource: "orders/:id", Roles: []string{"retailer", "location_user"}},
	})
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !e.Resolve(principal.RoleLocationUser, "orders/1", "read") {
		t.Fatal("expected allow after reload")
	}
	// A bad reload keeps the previous table.
	if err := e.Reload([]Rule{{Resource: ""}}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if e.RuleCount() != 1 {
		t.Fatalf("table should be unchanged after failed reload, got %d rules", e.RuleCount())
	}
}

func TestLoadRulesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `rules:
  - resource: orders/:id
    actions: [read, write]
    roles: [retailer, location_user]
  - resource: claims/:id/approve
    roles: [backoffice]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	e := mustEngine(t, rules)
	if !e.Resolve(principal.RoleBackoffice, "claims/3/approve", "write") {
		t.Fatal("backoffice should approve claims")
	}
	if e.Resolve(principal.RoleRetailer, "claims/3/approve", "write") {
		t.Fatal("retailer should not approve claims")
	}
}
