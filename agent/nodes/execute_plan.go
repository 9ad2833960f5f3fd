package nodes

import (
	"context"
	"fmt"

	contractx "github.com/wiroonsak/accountiq/agent/contract"
)

func ExecutePlan(ctx context.Context, in *GraphState, executor contractx.Executor) (*GraphState, error) {
	if in == nil {
		return nil, ErrInvalidQuery
	}
	if in.Cached {
		return in, nil
	}
	if in.Plan == nil {
		return nil, fmt.Errorf("%w: no plan to execute", contractx.ErrValidation)
	}

	in.Result = executor.Execute(ctx, in.Plan, in.Caller)
	return in, nil
}
