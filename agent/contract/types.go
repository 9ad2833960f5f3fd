package contract

import (
	"time"

	planx "github.com/wiroonsak/accountiq/agent/plan"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Caller is the authenticated identity a turn runs on behalf of.
type Caller struct {
	ID              string   `json:"id"`
	Role            Role     `json:"role"`
	AllowedAccounts []string `json:"allowed_accounts,omitempty"`
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

type DataDomain string

const (
	DomainStructured DataDomain = "structured"
	DomainGraph      DataDomain = "graph"
)

// Scope is the data slice an agent step wants to touch.
type Scope struct {
	Accounts []string   `json:"accounts,omitempty"`
	Domain   DataDomain `json:"domain"`
}

// AccessDecision is the policy gate's verdict on a requested scope.
type AccessDecision struct {
	Allowed bool `json:"allowed"`
	// FilterAccounts, when non-nil, restricts any downstream query to
	// exactly these account ids.
	FilterAccounts []string `json:"filter_accounts,omitempty"`
	// DroppedAccounts lists requested ids removed by the intersection,
	// kept for audit and user messaging upstream.
	DroppedAccounts []string `json:"dropped_accounts,omitempty"`
	Reason          string   `json:"reason,omitempty"`
}

type ResolutionMethod string

const (
	MethodExactMatch          ResolutionMethod = "exact_match"
	MethodEmbeddingSimilarity ResolutionMethod = "embedding_similarity"
	MethodNone                ResolutionMethod = "none"
)

// AccountResolution maps one fuzzy name to a canonical account identity.
type AccountResolution struct {
	Name                   string                   `json:"name"`
	AccountID              string                   `json:"account_id,omitempty"`
	DisplayName            string                   `json:"display_name,omitempty"`
	Score                  float64                  `json:"score"`
	Method                 ResolutionMethod         `json:"method"`
	RequiresDisambiguation bool                     `json:"requires_disambiguation,omitempty"`
	Alternatives           []planx.AccountCandidate `json:"alternatives,omitempty"`
}

// Account is a canonical directory entry visible to some caller.
type Account struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Embedding   []float64 `json:"embedding,omitempty"`
}

// AgentRequest is the read-only view an adapter receives for one step.
type AgentRequest struct {
	Query          string   `json:"query"`
	AccountIDs     []string `json:"account_ids,omitempty"`
	FilterAccounts []string `json:"filter_accounts,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Completion struct {
	Content          string `json:"content"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
}

type ExecutionStatus string

const (
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionPartial   ExecutionStatus = "partial"
	ExecutionFailed    ExecutionStatus = "failed"
)

// StepOutcome is the per-step slice of an ExecutionResult.
type StepOutcome struct {
	StepID      string           `json:"step_id"`
	Description string           `json:"description,omitempty"`
	Status      planx.StepStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
	DurationMS  int64            `json:"duration_ms"`
}

// ExecutionResult is what one executed turn hands back to the caller.
// The executor always returns one, even when every step failed.
type ExecutionResult struct {
	PlanID          string           `json:"plan_id"`
	PlanType        planx.Type       `json:"plan_type"`
	Status          ExecutionStatus  `json:"status"`
	Answer          string           `json:"answer"`
	Citations       []planx.Citation `json:"citations,omitempty"`
	StepResults     []StepOutcome    `json:"step_results,omitempty"`
	ExecutionTimeMS int64            `json:"execution_time_ms"`

	// Set when an identity-resolution step needs the user to pick between
	// near-tied candidates.
	RequiresDisambiguation bool                     `json:"requires_disambiguation,omitempty"`
	Candidates             []planx.AccountCandidate `json:"candidates,omitempty"`
}

// Turn is one answered question, persisted for conversation context.
type Turn struct {
	ID        string     `json:"id"`
	CallerID  string     `json:"caller_id"`
	Query     string     `json:"query"`
	Answer    string     `json:"answer"`
	PlanType  planx.Type `json:"plan_type"`
	CreatedAt time.Time  `json:"created_at"`
}
