package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wiroonsak/accountiq/agent/access"
	"github.com/wiroonsak/accountiq/agent/agents"
	"github.com/wiroonsak/accountiq/agent/composer"
	contractx "github.com/wiroonsak/accountiq/agent/contract"
	planx "github.com/wiroonsak/accountiq/agent/plan"
)

type fakeAdapter struct {
	name   string
	result planx.Result
	err    error

	mu       sync.Mutex
	requests []contractx.AgentRequest
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Query(ctx context.Context, req contractx.AgentRequest) (planx.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeResolver struct {
	resolution contractx.AccountResolution
	err        error
}

func (f *fakeResolver) Resolve(ctx context.Context, names []string, caller contractx.Caller) ([]contractx.AccountResolution, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := f.resolution
	if res.Name == "" && len(names) > 0 {
		res.Name = names[0]
	}
	return []contractx.AccountResolution{res}, nil
}

func newTestExecutor(t *testing.T, registry contractx.Registry, resolver contractx.Resolver) *Executor {
	t.Helper()
	e, err := New(registry, resolver, access.NewGate(), composer.New(composer.Config{}), Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func adminCaller() contractx.Caller {
	return contractx.Caller{ID: "u1", Role: contractx.RoleAdmin}
}

func hybridPlan(t *testing.T, accountIDs []string) *planx.Plan {
	t.Helper()
	pl := planx.New(planx.TypeHybrid, "sales and contacts", "u1", time.Now())
	params := map[string]any{"query": "sales and contacts"}
	if len(accountIDs) > 0 {
		params["account_ids"] = accountIDs
	}
	for _, tc := range []struct {
		id    string
		agent string
	}{
		{"structured_1", "structured_data"},
		{"graph_1", "relationship_graph"},
	} {
		step := planx.NewAgentStep(tc.id, tc.agent, "query "+tc.agent, planx.AgentInvocation{Params: params})
		step.CanRunParallel = true
		if err := pl.AddStep(step); err != nil {
			t.Fatalf("AddStep(%s) error = %v", tc.id, err)
		}
	}
	return pl
}

func TestExecuteHybridPlanCompletes(t *testing.T) {
	t.Parallel()

	structured := &fakeAdapter{
		name: "structured_data",
		result: &planx.StructuredResult{
			Rows:      []map[string]any{{"amount": 100}},
			QueryUsed: "SELECT amount FROM sales",
		},
	}
	graph := &fakeAdapter{
		name: "relationship_graph",
		result: &planx.RelationshipResult{
			Relationships: []planx.Relationship{{From: "Acme", To: "Jane", Kind: "employs"}},
		},
	}

	e := newTestExecutor(t, agents.NewRegistry(structured, graph), &fakeResolver{})
	pl := hybridPlan(t, []string{"acme"})

	res := e.Execute(context.Background(), pl, adminCaller())

	if res.Status != contractx.ExecutionCompleted {
		t.Fatalf("status = %s, want completed", res.Status)
	}
	if !strings.Contains(res.Answer, "## Business Data") || !strings.Contains(res.Answer, "## Relationships & Documents") {
		t.Fatalf("hybrid answer missing sections: %q", res.Answer)
	}
	if len(res.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %#v", res.Citations)
	}
	if len(res.StepResults) != 2 {
		t.Fatalf("expected 2 step outcomes, got %d", len(res.StepResults))
	}
	if !pl.IsComplete() {
		t.Fatal("plan rollups must show completion")
	}
}

func TestExecuteDeniedScopeFailsStep(t *testing.T) {
	t.Parallel()

	structured := &fakeAdapter{name: "structured_data", result: &planx.StructuredResult{}}
	e := newTestExecutor(t, agents.NewRegistry(structured), &fakeResolver{})

	pl := planx.New(planx.TypeStructuredOnly, "globex sales", "u1", time.Now())
	step := planx.NewAgentStep("structured_1", "structured_data", "query metrics", planx.AgentInvocation{
		Params: map[string]any{"account_ids": []string{"globex"}},
	})
	if err := pl.AddStep(step); err != nil {
		t.Fatalf("AddStep() error = %v", err)
	}

	caller := contractx.Caller{ID: "m1", Role: contractx.RoleMember, AllowedAccounts: []string{"acme"}}
	res := e.Execute(context.Background(), pl, caller)

	if res.Status != contractx.ExecutionFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if len(res.StepResults) != 1 {
		t.Fatalf("expected 1 step outcome, got %d", len(res.StepResults))
	}
	outcome := res.StepResults[0]
	if outcome.Status != planx.StepFailed {
		t.Fatalf("step status = %s, want failed", outcome.Status)
	}
	if !strings.Contains(outcome.Error, access.ReasonNoAccessibleAccounts) {
		t.Fatalf("step error must carry the gate reason, got %q", outcome.Error)
	}
	if len(structured.requests) != 0 {
		t.Fatal("denied step must never reach the adapter")
	}
}

func TestExecuteResolutionFeedsDependentSteps(t *testing.T) {
	t.Parallel()

	structured := &fakeAdapter{name: "structured_data", result: &planx.StructuredResult{
		Rows: []map[string]any{{"amount": 1}},
	}}
	resolver := &fakeResolver{resolution: contractx.AccountResolution{
		AccountID:   "acme",
		DisplayName: "Acme Corporation",
		Score:       0.91,
		Method:      contractx.MethodEmbeddingSimilarity,
	}}
	e := newTestExecutor(t, agents.NewRegistry(structured), resolver)

	pl := planx.New(planx.TypeIdentityResolution, "sales for Acme Inc", "u1", time.Now())
	if err := pl.AddStep(planx.NewResolutionStep("resolve_1", "Acme Inc", 0.7)); err != nil {
		t.Fatalf("AddStep() error = %v", err)
	}
	agentStep := planx.NewAgentStep("structured_1", "structured_data", "query metrics", planx.AgentInvocation{})
	agentStep.DependsOn = []string{"resolve_1"}
	if err := pl.AddStep(agentStep); err != nil {
		t.Fatalf("AddStep() error = %v", err)
	}

	res := e.Execute(context.Background(), pl, adminCaller())

	if res.Status != contractx.ExecutionCompleted {
		t.Fatalf("status = %s, want completed", res.Status)
	}
	if pl.ResolvedAccountID != "acme" {
		t.Fatalf("resolved account = %s, want acme", pl.ResolvedAccountID)
	}
	if len(structured.requests) != 1 {
		t.Fatalf("expected 1 agent request, got %d", len(structured.requests))
	}
	ids := structured.requests[0].AccountIDs
	if len(ids) != 1 || ids[0] != "acme" {
		t.Fatalf("resolved id must flow into the agent scope, got %#v", ids)
	}
}

func TestExecuteFailedResolutionSkipsDependents(t *testing.T) {
	t.Parallel()

	structured := &fakeAdapter{name: "structured_data", result: &planx.StructuredResult{}}
	resolver := &fakeResolver{resolution: contractx.AccountResolution{Method: contractx.MethodNone}}
	e := newTestExecutor(t, agents.NewRegistry(structured), resolver)

	pl := planx.New(planx.TypeIdentityResolution, "sales for Nonexistent", "u1", time.Now())
	if err := pl.AddStep(planx.NewResolutionStep("resolve_1", "Nonexistent", 0.7)); err != nil {
		t.Fatalf("AddStep() error = %v", err)
	}
	agentStep := planx.NewAgentStep("structured_1", "structured_data", "query metrics", planx.AgentInvocation{})
	agentStep.DependsOn = []string{"resolve_1"}
	if err := pl.AddStep(agentStep); err != nil {
		t.Fatalf("AddStep() error = %v", err)
	}

	res := e.Execute(context.Background(), pl, adminCaller())

	if res.Status != contractx.ExecutionFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	skipped, ok := pl.GetStep("structured_1")
	if !ok || skipped.Status != planx.StepSkipped {
		t.Fatalf("dependent step must be skipped, got %#v", skipped)
	}
	if len(structured.requests) != 0 {
		t.Fatal("skipped step must never reach the adapter")
	}
	if res.Answer != failedAnswer {
		t.Fatalf("unexpected answer: %q", res.Answer)
	}
}

func TestExecuteDisambiguationStopsTheTurn(t *testing.T) {
	t.Parallel()

	structured := &fakeAdapter{name: "structured_data", result: &planx.StructuredResult{}}
	resolver := &fakeResolver{resolution: contractx.AccountResolution{
		Score:                  0.72,
		Method:                 contractx.MethodEmbeddingSimilarity,
		RequiresDisambiguation: true,
		Alternatives: []planx.AccountCandidate{
			{AccountID: "acme-us", DisplayName: "Acme US", Score: 0.72},
			{AccountID: "acme-eu", DisplayName: "Acme EU", Score: 0.70},
		},
	}}
	e := newTestExecutor(t, agents.NewRegistry(structured), resolver)

	pl := planx.New(planx.TypeIdentityResolution, "sales for Acme", "u1", time.Now())
	if err := pl.AddStep(planx.NewResolutionStep("resolve_1", "Acme", 0.7)); err != nil {
		t.Fatalf("AddStep() error = %v", err)
	}
	agentStep := planx.NewAgentStep("structured_1", "structured_data", "query metrics", planx.AgentInvocation{})
	agentStep.DependsOn = []string{"resolve_1"}
	if err := pl.AddStep(agentStep); err != nil {
		t.Fatalf("AddStep() error = %v", err)
	}

	res := e.Execute(context.Background(), pl, adminCaller())

	if !res.RequiresDisambiguation {
		t.Fatal("expected RequiresDisambiguation")
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %#v", res.Candidates)
	}
	if !strings.Contains(res.Answer, "Acme US") || !strings.Contains(res.Answer, "Acme EU") {
		t.Fatalf("answer must list the candidates: %q", res.Answer)
	}
	if len(structured.requests) != 0 {
		t.Fatal("dependent steps must not run on an ambiguous identity")
	}
}

func TestExecuteRoundLimitFailsStrandedSteps(t *testing.T) {
	t.Parallel()

	e := newTestExecutor(t, agents.NewRegistry(), &fakeResolver{})

	// A dependency parked in skipped can never complete, so the dependent
	// burns rounds until the cap forces it failed.
	pl := planx.New(planx.TypeStructuredOnly, "stranded", "u1", time.Now())
	blocked := &planx.Step{ID: "a", Kind: planx.StepAgentInvocation, Status: planx.StepSkipped}
	if err := pl.AddStep(blocked); err != nil {
		t.Fatalf("AddStep() error = %v", err)
	}
	dependent := planx.NewAgentStep("b", "structured_data", "never ready", planx.AgentInvocation{})
	dependent.DependsOn = []string{"a"}
	if err := pl.AddStep(dependent); err != nil {
		t.Fatalf("AddStep() error = %v", err)
	}

	res := e.Execute(context.Background(), pl, adminCaller())

	if res.Status != contractx.ExecutionFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	stranded, _ := pl.GetStep("b")
	if stranded.Status != planx.StepFailed {
		t.Fatalf("stranded step status = %s, want failed", stranded.Status)
	}
	if stranded.Error != reasonRoundLimit {
		t.Fatalf("stranded step error = %q, want %q", stranded.Error, reasonRoundLimit)
	}
}

func TestExecuteCancelledContextSkipsSteps(t *testing.T) {
	t.Parallel()

	structured := &fakeAdapter{name: "structured_data", result: &planx.StructuredResult{}}
	e := newTestExecutor(t, agents.NewRegistry(structured), &fakeResolver{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pl := hybridPlan(t, nil)
	res := e.Execute(ctx, pl, adminCaller())

	if res.Status != contractx.ExecutionFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	for _, s := range pl.Steps {
		if s.Status != planx.StepSkipped {
			t.Fatalf("step %s status = %s, want skipped", s.ID, s.Status)
		}
		if s.Error != reasonTurnCancelled {
			t.Fatalf("step %s error = %q, want %q", s.ID, s.Error, reasonTurnCancelled)
		}
	}
	if len(structured.requests) != 0 {
		t.Fatal("cancelled turn must not dispatch")
	}
}

func TestExecuteNilPlan(t *testing.T) {
	t.Parallel()

	e := newTestExecutor(t, agents.NewRegistry(), &fakeResolver{})
	res := e.Execute(context.Background(), nil, adminCaller())

	if res.Status != contractx.ExecutionFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if res.Answer != failedAnswer {
		t.Fatalf("unexpected answer: %q", res.Answer)
	}
}

func TestExecuteUnknownAgentFails(t *testing.T) {
	t.Parallel()

	e := newTestExecutor(t, agents.NewRegistry(), &fakeResolver{})

	pl := planx.New(planx.TypeStructuredOnly, "q", "u1", time.Now())
	if err := pl.AddStep(planx.NewAgentStep("structured_1", "structured_data", "query", planx.AgentInvocation{})); err != nil {
		t.Fatalf("AddStep() error = %v", err)
	}

	res := e.Execute(context.Background(), pl, adminCaller())
	if res.Status != contractx.ExecutionFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if !strings.Contains(res.StepResults[0].Error, contractx.ErrAgentUnknown.Error()) {
		t.Fatalf("unexpected error: %q", res.StepResults[0].Error)
	}
}

func TestExecutePartialStatusOnMixedOutcome(t *testing.T) {
	t.Parallel()

	structured := &fakeAdapter{name: "structured_data", result: &planx.StructuredResult{
		Rows: []map[string]any{{"amount": 1}},
	}}
	graph := &fakeAdapter{name: "relationship_graph", err: errors.New("graph server unreachable")}

	e := newTestExecutor(t, agents.NewRegistry(structured, graph), &fakeResolver{})
	pl := hybridPlan(t, nil)

	res := e.Execute(context.Background(), pl, adminCaller())

	if res.Status != contractx.ExecutionPartial {
		t.Fatalf("status = %s, want partial", res.Status)
	}
	if res.Answer == failedAnswer {
		t.Fatal("partial execution still composes from the surviving result")
	}
}
