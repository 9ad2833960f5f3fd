package access

import (
	contractx "github.com/wiroonsak/accountiq/agent/contract"
)

// ReasonNoAccessibleAccounts is surfaced on step failure and in audit logs.
// It deliberately does not reveal which private accounts exist.
const ReasonNoAccessibleAccounts = "no accessible accounts in requested scope"

// Gate evaluates a caller's grants against a requested data scope. It only
// decides and annotates; it never performs the data query itself.
type Gate struct{}

func NewGate() *Gate {
	return &Gate{}
}

var _ contractx.Gate = (*Gate)(nil)

func (g *Gate) Authorize(caller contractx.Caller, scope contractx.Scope) contractx.AccessDecision {
	if caller.IsAdmin() {
		return contractx.AccessDecision{Allowed: true}
	}

	granted := make(map[string]bool, len(caller.AllowedAccounts))
	for _, id := range caller.AllowedAccounts {
		if id != "" {
			granted[id] = true
		}
	}

	// No specific account implied: allow, but pin any downstream query to
	// the caller's granted set.
	if len(scope.Accounts) == 0 {
		return contractx.AccessDecision{
			Allowed:        true,
			FilterAccounts: append([]string(nil), caller.AllowedAccounts...),
		}
	}

	var kept, dropped []string
	for _, id := range scope.Accounts {
		if granted[id] {
			kept = append(kept, id)
		} else {
			dropped = append(dropped, id)
		}
	}

	if len(kept) == 0 {
		return contractx.AccessDecision{
			Allowed: false,
			Reason:  ReasonNoAccessibleAccounts,
		}
	}

	return contractx.AccessDecision{
		Allowed:         true,
		FilterAccounts:  kept,
		DroppedAccounts: dropped,
	}
}
