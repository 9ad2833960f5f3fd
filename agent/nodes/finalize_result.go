package nodes

import (
	"fmt"

	contractx "github.com/wiroonsak/accountiq/agent/contract"
)

func FinalizeResult(in *GraphState) (GraphOutput, error) {
	if in == nil || in.Result == nil {
		return GraphOutput{}, fmt.Errorf("%w: turn produced no result", contractx.ErrValidation)
	}
	return GraphOutput{Result: in.Result}, nil
}
