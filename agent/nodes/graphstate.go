package nodes

import (
	"errors"
	"time"

	contractx "github.com/wiroonsak/accountiq/agent/contract"
	planx "github.com/wiroonsak/accountiq/agent/plan"
)

var (
	ErrInvalidQuery  = errors.New("query is empty")
	ErrInvalidCaller = errors.New("caller id is empty")
)

type GraphInput struct {
	Caller contractx.Caller
	Query  string
}

type GraphOutput struct {
	Result *contractx.ExecutionResult
}

// GraphState threads one turn through the pipeline nodes.
type GraphState struct {
	Caller contractx.Caller
	Query  string
	Now    time.Time

	History  []contractx.Turn
	CacheKey string
	Cached   bool

	Plan   *planx.Plan
	Result *contractx.ExecutionResult
}
