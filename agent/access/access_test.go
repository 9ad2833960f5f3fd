package access

import (
	"testing"

	contractx "github.com/wiroonsak/accountiq/agent/contract"
)

func TestAuthorizeAdminBypassesFiltering(t *testing.T) {
	t.Parallel()

	g := NewGate()
	decision := g.Authorize(
		contractx.Caller{ID: "a1", Role: contractx.RoleAdmin},
		contractx.Scope{Accounts: []string{"acme", "globex"}, Domain: contractx.DomainStructured},
	)

	if !decision.Allowed {
		t.Fatal("admin must be allowed")
	}
	if decision.FilterAccounts != nil {
		t.Fatalf("admin must not be filtered, got %#v", decision.FilterAccounts)
	}
}

func TestAuthorizeEmptyScopePinsToGrants(t *testing.T) {
	t.Parallel()

	g := NewGate()
	caller := contractx.Caller{ID: "m1", Role: contractx.RoleMember, AllowedAccounts: []string{"acme", "globex"}}
	decision := g.Authorize(caller, contractx.Scope{Domain: contractx.DomainStructured})

	if !decision.Allowed {
		t.Fatal("empty scope must be allowed")
	}
	if len(decision.FilterAccounts) != 2 {
		t.Fatalf("filter must pin to the grant set, got %#v", decision.FilterAccounts)
	}
}

func TestAuthorizeDeniesDisjointScope(t *testing.T) {
	t.Parallel()

	g := NewGate()
	caller := contractx.Caller{ID: "m1", Role: contractx.RoleMember, AllowedAccounts: []string{"acme"}}
	decision := g.Authorize(caller, contractx.Scope{Accounts: []string{"globex"}, Domain: contractx.DomainGraph})

	if decision.Allowed {
		t.Fatal("disjoint scope must be denied")
	}
	if decision.Reason != ReasonNoAccessibleAccounts {
		t.Fatalf("reason = %q, want %q", decision.Reason, ReasonNoAccessibleAccounts)
	}
	if len(decision.FilterAccounts) != 0 {
		t.Fatalf("denied decision must carry no filter, got %#v", decision.FilterAccounts)
	}
}

func TestAuthorizePartialOverlapNarrowsScope(t *testing.T) {
	t.Parallel()

	g := NewGate()
	caller := contractx.Caller{ID: "m1", Role: contractx.RoleMember, AllowedAccounts: []string{"acme"}}
	decision := g.Authorize(caller, contractx.Scope{Accounts: []string{"acme", "globex"}, Domain: contractx.DomainStructured})

	if !decision.Allowed {
		t.Fatal("partial overlap must be allowed")
	}
	if len(decision.FilterAccounts) != 1 || decision.FilterAccounts[0] != "acme" {
		t.Fatalf("filter = %#v, want [acme]", decision.FilterAccounts)
	}
	if len(decision.DroppedAccounts) != 1 || decision.DroppedAccounts[0] != "globex" {
		t.Fatalf("dropped = %#v, want [globex]", decision.DroppedAccounts)
	}
}

func TestAuthorizeMemberWithNoGrants(t *testing.T) {
	t.Parallel()

	g := NewGate()
	caller := contractx.Caller{ID: "m1", Role: contractx.RoleMember}
	decision := g.Authorize(caller, contractx.Scope{Accounts: []string{"acme"}, Domain: contractx.DomainStructured})

	if decision.Allowed {
		t.Fatal("member with no grants must be denied a specific scope")
	}
}
