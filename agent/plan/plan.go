package plan

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Plan is the dependency graph of Steps produced for one user turn.
// - Scheduling: DependsOn + CanRunParallel drive the executor's ready-set rounds
// - Rollups: TotalSteps/CompletedSteps are maintained by the transition helpers
type Plan struct {
	// Identity
	ID       string `json:"id"`
	Type     Type   `json:"type"`
	Query    string `json:"query"`
	CallerID string `json:"caller_id"`

	// Classification output
	Rationale  string  `json:"rationale,omitempty"`
	Confidence float64 `json:"confidence"`

	// Resolved account linkage, when a single account anchored the query.
	ResolvedAccountID   string `json:"resolved_account_id,omitempty"`
	ResolvedAccountName string `json:"resolved_account_name,omitempty"`

	Steps []*Step `json:"steps,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`

	TotalSteps     int `json:"total_steps"`
	CompletedSteps int `json:"completed_steps"`
}

type Type string

const (
	TypeNoTool             Type = "no_tool"
	TypeStructuredOnly     Type = "structured_only"
	TypeGraphOnly          Type = "graph_only"
	TypeHybrid             Type = "hybrid"
	TypeIdentityResolution Type = "identity_resolution"
)

type StepKind string

const (
	StepAgentInvocation    StepKind = "agent_invocation"
	StepIdentityResolution StepKind = "identity_resolution"
	StepResultMerge        StepKind = "result_merge"
)

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

type Step struct {
	ID          string   `json:"id"`
	Kind        StepKind `json:"kind"`
	Description string   `json:"description"`

	Invocation *AgentInvocation    `json:"invocation,omitempty"`
	Resolution *IdentityResolution `json:"resolution,omitempty"`

	DependsOn      []string   `json:"depends_on,omitempty"`
	CanRunParallel bool       `json:"can_run_parallel"`
	Status         StepStatus `json:"status"`

	Result     Result `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// AgentInvocation describes a call to one registered agent adapter.
type AgentInvocation struct {
	AgentName   string         `json:"agent_name"`
	Confidence  float64        `json:"confidence"`
	Rationale   string         `json:"rationale,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	Priority    int            `json:"priority"`
	EstimatedMS int64          `json:"estimated_ms,omitempty"`
}

// IdentityResolution describes a fuzzy account name that must be resolved
// before dependent agent steps can run.
type IdentityResolution struct {
	RawName                string             `json:"raw_name"`
	Threshold              float64            `json:"threshold"`
	RequiresDisambiguation bool               `json:"requires_disambiguation,omitempty"`
	Candidates             []AccountCandidate `json:"candidates,omitempty"`
}

type AccountCandidate struct {
	AccountID   string  `json:"account_id"`
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}

/* ----------------------------- Step helpers ----------------------------- */

func (s *Step) IsTerminal() bool {
	if s == nil {
		return false
	}
	switch s.Status {
	case StepCompleted, StepFailed, StepSkipped:
		return true
	}
	return false
}

func (s *Step) IsPending() bool {
	return s != nil && s.Status == StepPending
}

/* ------------------------------ Plan errors ------------------------------ */

var (
	ErrNilStep           = errors.New("step is nil")
	ErrEmptyStepID       = errors.New("step id is empty")
	ErrDuplicateStepID   = errors.New("duplicate step id")
	ErrStepNotFound      = errors.New("step not found")
	ErrUnknownDependency = errors.New("dependency references unknown step")
	ErrDependencyCycle   = errors.New("dependency cycle detected")
	ErrPlanImmutable     = errors.New("plan is already completed")
	ErrInvalidTransition = errors.New("invalid step transition")
)

/* ----------------------------- Plan helpers ----------------------------- */

// New creates an empty Plan shell for one user turn.
func New(planType Type, query, callerID string, now time.Time) *Plan {
	return &Plan{
		ID:        uuid.NewString(),
		Type:      planType,
		Query:     query,
		CallerID:  callerID,
		CreatedAt: now.UTC(),
	}
}

// AddStep appends a step in declared order and refreshes TotalSteps.
// Dependencies may reference steps added later; Validate checks the full set.
func (p *Plan) AddStep(s *Step) error {
	if p == nil {
		return errors.New("nil plan")
	}
	if s == nil {
		return ErrNilStep
	}
	if s.ID == "" {
		return ErrEmptyStepID
	}
	if _, ok := p.GetStep(s.ID); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStepID, s.ID)
	}
	if s.Status == "" {
		s.Status = StepPending
	}
	p.Steps = append(p.Steps, s)
	p.TotalSteps = len(p.Steps)
	return nil
}

// GetStep returns a step by id.
func (p *Plan) GetStep(stepID string) (*Step, bool) {
	if p == nil {
		return nil, false
	}
	for _, s := range p.Steps {
		if s != nil && s.ID == stepID {
			return s, true
		}
	}
	return nil, false
}

// IsComplete reports whether every step reached Completed.
func (p *Plan) IsComplete() bool {
	return p != nil && p.TotalSteps > 0 && p.CompletedSteps == p.TotalSteps
}

// HasFailedSteps reports whether any step ended Failed.
func (p *Plan) HasFailedSteps() bool {
	if p == nil {
		return false
	}
	for _, s := range p.Steps {
		if s != nil && s.Status == StepFailed {
			return true
		}
	}
	return false
}

// Validate checks plan well-formedness: every dependency resolves to a step
// in this plan and the dependency relation is acyclic.
func (p *Plan) Validate() error {
	if p == nil {
		return errors.New("nil plan")
	}
	ids := make(map[string]*Step, len(p.Steps))
	for _, s := range p.Steps {
		if s == nil {
			return ErrNilStep
		}
		if s.ID == "" {
			return ErrEmptyStepID
		}
		if _, ok := ids[s.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateStepID, s.ID)
		}
		ids[s.ID] = s
	}
	for _, s := range p.Steps {
		for _, dep := range s.DependsOn {
			if _, ok := ids[dep]; !ok {
				return fmt.Errorf("%w: step=%s dep=%s", ErrUnknownDependency, s.ID, dep)
			}
		}
	}

	// DFS cycle check over the dependency edges.
	const (
		unseen = 0
		onPath = 1
		done   = 2
	)
	state := make(map[string]int, len(ids))
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case onPath:
			return fmt.Errorf("%w: at step=%s", ErrDependencyCycle, id)
		case done:
			return nil
		}
		state[id] = onPath
		for _, dep := range ids[id].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	for id := range ids {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// ReadySteps returns pending steps whose every dependency is Completed,
// in declared order.
func (p *Plan) ReadySteps() []*Step {
	if p == nil {
		return nil
	}
	var ready []*Step
	for _, s := range p.Steps {
		if !s.IsPending() {
			continue
		}
		ok := true
		for _, dep := range s.DependsOn {
			d, found := p.GetStep(dep)
			if !found || d.Status != StepCompleted {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, s)
		}
	}
	return ready
}

// TransitiveDependents returns ids of every step that depends on stepID,
// directly or through a chain.
func (p *Plan) TransitiveDependents(stepID string) []string {
	if p == nil {
		return nil
	}
	affected := map[string]bool{stepID: true}
	// Steps are stored in declared order, but fan-in means a single pass is
	// not enough; iterate until the affected set stops growing.
	for {
		grew := false
		for _, s := range p.Steps {
			if s == nil || affected[s.ID] {
				continue
			}
			for _, dep := range s.DependsOn {
				if affected[dep] {
					affected[s.ID] = true
					grew = true
					break
				}
			}
		}
		if !grew {
			break
		}
	}
	delete(affected, stepID)
	out := make([]string, 0, len(affected))
	for _, s := range p.Steps {
		if s != nil && affected[s.ID] {
			out = append(out, s.ID)
		}
	}
	return out
}

/* --------------------------- Step transitions --------------------------- */

// MarkRunning transitions a pending step to running.
func (p *Plan) MarkRunning(stepID string) error {
	s, err := p.mutableStep(stepID)
	if err != nil {
		return err
	}
	if s.Status != StepPending {
		return fmt.Errorf("%w: %s -> running", ErrInvalidTransition, s.Status)
	}
	s.Status = StepRunning
	return nil
}

// MarkCompleted stores the result and bumps the completion rollup.
func (p *Plan) MarkCompleted(stepID string, result Result, took time.Duration) error {
	s, err := p.mutableStep(stepID)
	if err != nil {
		return err
	}
	if s.Status != StepRunning && s.Status != StepPending {
		return fmt.Errorf("%w: %s -> completed", ErrInvalidTransition, s.Status)
	}
	s.Status = StepCompleted
	s.Result = result
	s.DurationMS = took.Milliseconds()
	p.CompletedSteps++
	return nil
}

// MarkFailed records the failure reason.
func (p *Plan) MarkFailed(stepID string, reason string, took time.Duration) error {
	s, err := p.mutableStep(stepID)
	if err != nil {
		return err
	}
	if s.IsTerminal() {
		return fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, s.Status)
	}
	s.Status = StepFailed
	s.Error = reason
	s.DurationMS = took.Milliseconds()
	return nil
}

// MarkSkipped marks a step that will never run because an upstream
// dependency failed or the turn was cancelled.
func (p *Plan) MarkSkipped(stepID string, reason string) error {
	s, err := p.mutableStep(stepID)
	if err != nil {
		return err
	}
	if s.IsTerminal() {
		return fmt.Errorf("%w: %s -> skipped", ErrInvalidTransition, s.Status)
	}
	s.Status = StepSkipped
	s.Error = reason
	return nil
}

func (p *Plan) mutableStep(stepID string) (*Step, error) {
	if p == nil {
		return nil, errors.New("nil plan")
	}
	if !p.CompletedAt.IsZero() {
		return nil, ErrPlanImmutable
	}
	s, ok := p.GetStep(stepID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
	}
	return s, nil
}

/* -------------------------- Convenience builders ------------------------- */

// NewAgentStep builds an agent-invocation step.
func NewAgentStep(id, agentName, description string, inv AgentInvocation) *Step {
	inv.AgentName = agentName
	return &Step{
		ID:          id,
		Kind:        StepAgentInvocation,
		Description: description,
		Invocation:  &inv,
		Status:      StepPending,
	}
}

// NewResolutionStep builds an identity-resolution step.
func NewResolutionStep(id, rawName string, threshold float64) *Step {
	return &Step{
		ID:          id,
		Kind:        StepIdentityResolution,
		Description: fmt.Sprintf("resolve account name %q", rawName),
		Resolution: &IdentityResolution{
			RawName:   rawName,
			Threshold: threshold,
		},
		Status: StepPending,
	}
}
