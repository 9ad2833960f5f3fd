package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/wiroonsak/accountiq/agent/contract"
	planx "github.com/wiroonsak/accountiq/agent/plan"
)

const (
	AgentStructured = "structured_data"
	AgentGraph      = "relationship_graph"
)

type Config struct {
	ResolutionThreshold float64 `envconfig:"RESOLUTION_THRESHOLD" split_words:"true" default:"0.7"`
}

// Planner classifies a query into one of the five plan types and
// synthesizes the step graph. Classification may be backed by the LLM; the
// rule-based classifier is both the fallback and the determinism anchor.
type Planner struct {
	completer contractx.Completer // optional; nil means rules only
	runner    compose.Runnable[map[string]any, classifierLLMOutput]
	prompt    string
	threshold float64
	now       func() time.Time
}

var _ contractx.Planner = (*Planner)(nil)

func New(completer contractx.Completer, prompt string, cfg Config) *Planner {
	threshold := cfg.ResolutionThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}
	return &Planner{
		completer: completer,
		prompt:    strings.TrimSpace(prompt),
		threshold: threshold,
		now:       time.Now,
	}
}

// NewWithModel builds a Planner whose LLM classification runs through the
// compiled prompt/model/parse graph instead of a raw Completer.
func NewWithModel(ctx context.Context, chatModel einomodel.BaseChatModel, prompt string, cfg Config) (*Planner, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, contractx.ErrPromptMissing
	}
	p := New(nil, prompt, cfg)
	runner, err := compileClassifierGraph(ctx, chatModel, p.prompt)
	if err != nil {
		return nil, err
	}
	p.runner = runner
	return p, nil
}

type classification struct {
	Type       planx.Type
	Confidence float64
	Rationale  string
}

type classifierLLMOutput struct {
	PlanType   string  `json:"plan_type"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

// ClassifyAndPlan never fails hard: classification machinery errors fall
// back to a minimal no-tool plan with confidence 0.
func (p *Planner) ClassifyAndPlan(ctx context.Context, query string, caller contractx.Caller) *planx.Plan {
	now := p.now()

	cls, err := p.classify(ctx, query)
	if err != nil {
		log.Warn().Err(err).Msg("classification failed, falling back to no-tool plan")
		return p.fallbackPlan(query, caller, now, err)
	}

	names := extractAccountNames(query)
	directIDs, unresolved := splitResolvable(names, caller)

	pl := planx.New(cls.Type, query, caller.ID, now)
	pl.Confidence = cls.Confidence
	pl.Rationale = cls.Rationale

	// A name the caller cannot use directly forces a resolution
	// prerequisite ahead of every agent step.
	var resolveStepID string
	if len(unresolved) > 0 && cls.Type != planx.TypeNoTool {
		pl.Type = planx.TypeIdentityResolution
		resolveStepID = "resolve_1"
		step := planx.NewResolutionStep(resolveStepID, unresolved[0], p.threshold)
		if err := pl.AddStep(step); err != nil {
			return p.fallbackPlan(query, caller, now, err)
		}
	}

	if err := p.addAgentSteps(pl, cls.Type, query, directIDs, resolveStepID); err != nil {
		return p.fallbackPlan(query, caller, now, err)
	}

	if err := pl.Validate(); err != nil {
		return p.fallbackPlan(query, caller, now, err)
	}
	return pl
}

func (p *Planner) classify(ctx context.Context, query string) (classification, error) {
	ruled := classifyByRules(query)

	if p.runner == nil && (p.completer == nil || p.prompt == "") {
		return ruled, nil
	}

	llm, err := p.classifyWithLLM(ctx, query)
	if err != nil {
		// The rule classifier absorbs model failures; only the plan
		// rationale records that the model was bypassed.
		log.Debug().Err(err).Msg("llm classification failed, using rule classifier")
		ruled.Rationale = fmt.Sprintf("%s (model classification unavailable: %v)", ruled.Rationale, err)
		return ruled, nil
	}

	// Hybrid wins on mixed signals regardless of which backend classified;
	// the rule verdict is authoritative for the tie-break.
	if ruled.Type == planx.TypeHybrid && llm.Type != planx.TypeHybrid {
		llm.Type = planx.TypeHybrid
		llm.Rationale = "mixed structured and relationship signals; " + llm.Rationale
	}

	// An identity_resolution verdict names the prerequisite, not the data
	// intent. The agent steps come from the rule verdict; the resolution
	// step itself is inserted by the name-splitting pass.
	if llm.Type == planx.TypeIdentityResolution {
		if ruled.Type != planx.TypeNoTool {
			llm.Type = ruled.Type
		} else {
			llm.Type = planx.TypeStructuredOnly
		}
	}
	return llm, nil
}

func (p *Planner) classifyWithLLM(ctx context.Context, query string) (classification, error) {
	out, err := p.invokeClassifier(ctx, query)
	if err != nil {
		return classification{}, err
	}

	planType := planx.Type(strings.TrimSpace(out.PlanType))
	switch planType {
	case planx.TypeNoTool, planx.TypeStructuredOnly, planx.TypeGraphOnly,
		planx.TypeHybrid, planx.TypeIdentityResolution:
	default:
		return classification{}, fmt.Errorf("%w: unsupported plan_type=%q", contractx.ErrSchemaViolation, out.PlanType)
	}

	confidence := out.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return classification{
		Type:       planType,
		Confidence: confidence,
		Rationale:  strings.TrimSpace(out.Rationale),
	}, nil
}

// invokeClassifier prefers the compiled graph; the raw Completer path exists
// for callers that bring their own chat transport.
func (p *Planner) invokeClassifier(ctx context.Context, query string) (classifierLLMOutput, error) {
	if p.runner != nil {
		out, err := p.runner.Invoke(ctx, map[string]any{"input": query})
		if err != nil {
			return classifierLLMOutput{}, fmt.Errorf("%w: classifier graph invoke: %v", contractx.ErrModelInvoke, err)
		}
		return out, nil
	}

	resp, err := p.completer.Complete(ctx, []contractx.Message{
		{Role: "system", Content: p.prompt},
		{Role: "user", Content: query},
	})
	if err != nil {
		return classifierLLMOutput{}, fmt.Errorf("%w: classifier invoke: %v", contractx.ErrModelInvoke, err)
	}

	var out classifierLLMOutput
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &out); err != nil {
		return classifierLLMOutput{}, fmt.Errorf("%w: classifier output is not json: %v", contractx.ErrSchemaViolation, err)
	}
	return out, nil
}

func (p *Planner) addAgentSteps(
	pl *planx.Plan,
	classified planx.Type,
	query string,
	accountIDs []string,
	resolveStepID string,
) error {
	dependsOn := []string(nil)
	if resolveStepID != "" {
		dependsOn = []string{resolveStepID}
	}

	params := map[string]any{"query": query}
	if len(accountIDs) > 0 {
		params["account_ids"] = accountIDs
	}

	addAgent := func(id, agent, desc string, priority int, estimated int64, parallel bool) error {
		step := planx.NewAgentStep(id, agent, desc, planx.AgentInvocation{
			Confidence:  pl.Confidence,
			Params:      params,
			Priority:    priority,
			EstimatedMS: estimated,
		})
		step.DependsOn = dependsOn
		step.CanRunParallel = parallel
		return pl.AddStep(step)
	}

	switch classified {
	case planx.TypeStructuredOnly:
		return addAgent("structured_1", AgentStructured, "query business metrics", 50, 2000, false)
	case planx.TypeGraphOnly:
		return addAgent("graph_1", AgentGraph, "query relationships and documents", 40, 3000, false)
	case planx.TypeHybrid:
		// One structured and one graph step, no mutual dependency.
		if err := addAgent("structured_1", AgentStructured, "query business metrics", 50, 2000, true); err != nil {
			return err
		}
		return addAgent("graph_1", AgentGraph, "query relationships and documents", 40, 3000, true)
	case planx.TypeNoTool:
		return pl.AddStep(&planx.Step{
			ID:          "answer_1",
			Kind:        planx.StepResultMerge,
			Description: "compose direct answer",
			Status:      planx.StepPending,
		})
	default:
		return fmt.Errorf("%w: unexpected classified type=%q", contractx.ErrValidation, classified)
	}
}

func (p *Planner) fallbackPlan(query string, caller contractx.Caller, now time.Time, cause error) *planx.Plan {
	pl := planx.New(planx.TypeNoTool, query, caller.ID, now)
	pl.Confidence = 0
	pl.Rationale = fmt.Sprintf("classification failed: %v", cause)
	_ = pl.AddStep(&planx.Step{
		ID:          "answer_1",
		Kind:        planx.StepResultMerge,
		Description: "compose direct answer",
		Status:      planx.StepPending,
	})
	return pl
}

// splitResolvable partitions extracted names into ids the caller can use
// directly (normalized name matches a granted account id) and names that
// need resolution first. Admin callers see the whole directory, so their
// names always go through the resolver unless they already look like ids.
func splitResolvable(names []string, caller contractx.Caller) (directIDs []string, unresolved []string) {
	granted := make(map[string]bool, len(caller.AllowedAccounts))
	for _, id := range caller.AllowedAccounts {
		granted[strings.ToLower(id)] = true
	}
	for _, name := range names {
		normalized := strings.ToLower(strings.TrimSpace(name))
		if granted[normalized] {
			directIDs = append(directIDs, normalized)
		} else {
			unresolved = append(unresolved, name)
		}
	}
	return directIDs, unresolved
}

// extractJSON tolerates models that wrap their JSON in code fences or prose.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			return content[start : end+1]
		}
	}
	return content
}
