package contract

import (
	"context"

	planx "github.com/wiroonsak/accountiq/agent/plan"
)

// Planner classifies a user query and produces an execution plan.
// Implementations must not fail hard; classification errors fall back to a
// minimal no-tool plan.
type Planner interface {
	ClassifyAndPlan(ctx context.Context, query string, caller Caller) *planx.Plan
}

// Executor runs a plan to a terminal state. It always returns an
// ExecutionResult, never an error.
type Executor interface {
	Execute(ctx context.Context, pl *planx.Plan, caller Caller) *ExecutionResult
}

// AgentAdapter wraps one specialized backend behind a uniform capability.
type AgentAdapter interface {
	Name() string
	Query(ctx context.Context, req AgentRequest) (planx.Result, error)
}

// Registry maps agent names to adapters. It is an explicit value built once
// per process and handed to the executor, never ambient global state.
type Registry interface {
	Adapter(name string) (AgentAdapter, bool)
	Names() []string
}

// Resolver maps fuzzy account names to canonical identities.
type Resolver interface {
	Resolve(ctx context.Context, names []string, caller Caller) ([]AccountResolution, error)
}

// Gate decides whether a caller may touch a requested scope.
type Gate interface {
	Authorize(caller Caller, scope Scope) AccessDecision
}

// Completer is the opaque LLM capability.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (Completion, error)
}

// Embedder is the opaque embedding capability. Implementations tolerate
// backend failure by returning a zero vector, never an error that crashes
// resolution.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// TurnStore persists answered turns for conversation context.
type TurnStore interface {
	SaveTurn(ctx context.Context, t *Turn) error
	RecentTurns(ctx context.Context, callerID string, limit int) ([]Turn, error)
}

// ResultCache short-circuits repeated identical queries within a process.
type ResultCache interface {
	Get(key string) (*ExecutionResult, bool)
	Set(key string, res *ExecutionResult)
}

// AccountDirectory exposes the canonical account set visible to a caller.
type AccountDirectory interface {
	VisibleAccounts(ctx context.Context, caller Caller) ([]Account, error)
}
