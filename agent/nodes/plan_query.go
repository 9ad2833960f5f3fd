package nodes

import (
	"context"

	contractx "github.com/wiroonsak/accountiq/agent/contract"
)

func PlanQuery(ctx context.Context, in *GraphState, planner contractx.Planner) (*GraphState, error) {
	if in == nil {
		return nil, ErrInvalidQuery
	}
	if in.Cached {
		return in, nil
	}

	in.Plan = planner.ClassifyAndPlan(ctx, in.Query, in.Caller)
	return in, nil
}
