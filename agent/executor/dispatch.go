package executor

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/wiroonsak/accountiq/agent/contract"
	planx "github.com/wiroonsak/accountiq/agent/plan"
)

func (e *Executor) dispatch(
	ctx context.Context,
	pl *planx.Plan,
	caller contractx.Caller,
	step *planx.Step,
) (planx.Result, error) {
	switch step.Kind {
	case planx.StepIdentityResolution:
		return e.dispatchResolution(ctx, caller, step)
	case planx.StepAgentInvocation:
		return e.dispatchAgent(ctx, pl, caller, step)
	case planx.StepResultMerge:
		return e.dispatchMerge(pl, step)
	default:
		return nil, fmt.Errorf("%w: unsupported step kind=%q", contractx.ErrValidation, step.Kind)
	}
}

func (e *Executor) dispatchResolution(
	ctx context.Context,
	caller contractx.Caller,
	step *planx.Step,
) (planx.Result, error) {
	if step.Resolution == nil {
		return nil, fmt.Errorf("%w: resolution step has no descriptor", contractx.ErrValidation)
	}

	resolutions, err := e.resolver.Resolve(ctx, []string{step.Resolution.RawName}, caller)
	if err != nil {
		return nil, err
	}
	if len(resolutions) == 0 {
		return nil, fmt.Errorf("resolver returned no result for name=%q", step.Resolution.RawName)
	}

	res := resolutions[0]
	if res.Method == contractx.MethodNone {
		return nil, fmt.Errorf("account %q could not be resolved", step.Resolution.RawName)
	}

	// Keep the step descriptor in sync for the execution trace.
	step.Resolution.RequiresDisambiguation = res.RequiresDisambiguation
	step.Resolution.Candidates = res.Alternatives

	return &planx.ResolutionResult{
		AccountID:              res.AccountID,
		DisplayName:            res.DisplayName,
		Score:                  res.Score,
		RequiresDisambiguation: res.RequiresDisambiguation,
		Candidates:             res.Alternatives,
	}, nil
}

func (e *Executor) dispatchAgent(
	ctx context.Context,
	pl *planx.Plan,
	caller contractx.Caller,
	step *planx.Step,
) (planx.Result, error) {
	inv := step.Invocation
	if inv == nil {
		return nil, fmt.Errorf("%w: agent step has no invocation descriptor", contractx.ErrValidation)
	}

	accountIDs := e.scopeAccounts(pl, inv)
	domain := contractx.DomainStructured
	if inv.AgentName != "" && strings.Contains(inv.AgentName, "graph") {
		domain = contractx.DomainGraph
	}

	// The gate decides before any backend is touched; a denial is the
	// step's failure reason, not a generic error.
	decision := e.gate.Authorize(caller, contractx.Scope{
		Accounts: accountIDs,
		Domain:   domain,
	})
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", contractx.ErrAccessDenied, decision.Reason)
	}

	adapter, ok := e.registry.Adapter(inv.AgentName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", contractx.ErrAgentUnknown, inv.AgentName)
	}

	query, _ := inv.Params["query"].(string)
	if query == "" {
		query = pl.Query
	}

	return adapter.Query(ctx, contractx.AgentRequest{
		Query:          query,
		AccountIDs:     accountIDs,
		FilterAccounts: decision.FilterAccounts,
	})
}

// scopeAccounts collects the account ids the step wants to touch: the
// planner-declared ids plus any identity resolved earlier in this plan.
func (e *Executor) scopeAccounts(pl *planx.Plan, inv *planx.AgentInvocation) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if raw, ok := inv.Params["account_ids"]; ok {
		switch v := raw.(type) {
		case []string:
			for _, id := range v {
				add(id)
			}
		case []any:
			for _, item := range v {
				if id, ok := item.(string); ok {
					add(id)
				}
			}
		}
	}
	add(pl.ResolvedAccountID)
	return ids
}

func (e *Executor) dispatchMerge(pl *planx.Plan, step *planx.Step) (planx.Result, error) {
	e.mu.Lock()
	var results []planx.Result
	for _, s := range pl.Steps {
		if s.ID == step.ID {
			continue
		}
		if s.Status == planx.StepCompleted && s.Result != nil {
			results = append(results, s.Result)
		}
	}
	planType := pl.Type
	e.mu.Unlock()

	text, citations := e.composer.Compose(planType, results)
	return &planx.ComposedResult{
		Text:      text,
		Citations: citations,
	}, nil
}
