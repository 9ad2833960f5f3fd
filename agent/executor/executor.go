package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wiroonsak/accountiq/agent/composer"
	contractx "github.com/wiroonsak/accountiq/agent/contract"
	planx "github.com/wiroonsak/accountiq/agent/plan"
	"golang.org/x/sync/errgroup"
)

const (
	reasonRoundLimit    = "execution round limit exceeded"
	reasonTurnCancelled = "turn cancelled"
	reasonDepFailed     = "skipped: upstream dependency failed"
	reasonDisambiguate  = "skipped: awaiting account disambiguation"

	failedAnswer = "I wasn't able to process that request."
)

type Config struct {
	MaxRounds   int           `envconfig:"MAX_ROUNDS" split_words:"true" default:"8"`
	StepTimeout time.Duration `envconfig:"STEP_TIMEOUT" split_words:"true" default:"30s"`
}

// Executor walks a plan's step graph in ready-set rounds, dispatching
// parallel-eligible steps concurrently and the rest sequentially in
// declared order. It owns the plan exclusively for the duration of one
// turn; status transitions go through a single mutex even when step bodies
// run concurrently.
type Executor struct {
	registry contractx.Registry
	resolver contractx.Resolver
	gate     contractx.Gate
	composer *composer.Composer

	maxRounds   int
	stepTimeout time.Duration
	now         func() time.Time

	mu sync.Mutex
}

func New(
	registry contractx.Registry,
	resolver contractx.Resolver,
	gate contractx.Gate,
	comp *composer.Composer,
	cfg Config,
) (*Executor, error) {
	if registry == nil {
		return nil, errors.New("agent registry is required")
	}
	if resolver == nil {
		return nil, errors.New("identity resolver is required")
	}
	if gate == nil {
		return nil, errors.New("access gate is required")
	}
	if comp == nil {
		return nil, errors.New("composer is required")
	}
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 8
	}
	stepTimeout := cfg.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = 30 * time.Second
	}
	return &Executor{
		registry:    registry,
		resolver:    resolver,
		gate:        gate,
		composer:    comp,
		maxRounds:   maxRounds,
		stepTimeout: stepTimeout,
		now:         time.Now,
	}, nil
}

// Execute runs the plan to a terminal state and always returns an
// ExecutionResult; it never raises to its caller.
func (e *Executor) Execute(ctx context.Context, pl *planx.Plan, caller contractx.Caller) *contractx.ExecutionResult {
	started := e.now()

	if pl == nil {
		return &contractx.ExecutionResult{
			Status: contractx.ExecutionFailed,
			Answer: failedAnswer,
		}
	}
	pl.StartedAt = started.UTC()

	if err := pl.Validate(); err != nil {
		log.Warn().Err(err).Str("plan_id", pl.ID).Msg("plan failed validation")
		e.failRemaining(pl, fmt.Sprintf("invalid plan: %v", err))
		return e.aggregate(pl, started)
	}

	for round := 0; round < e.maxRounds; round++ {
		if ctx.Err() != nil {
			e.cancelRemaining(pl)
			break
		}

		e.mu.Lock()
		ready := pl.ReadySteps()
		pendingLeft := countPending(pl)
		e.mu.Unlock()

		if len(ready) == 0 {
			if pendingLeft == 0 {
				break
			}
			// Pending steps whose dependencies can never complete burn
			// rounds until the cap forces them failed.
			continue
		}

		var parallel, sequential []*planx.Step
		for _, s := range ready {
			if s.CanRunParallel {
				parallel = append(parallel, s)
			} else {
				sequential = append(sequential, s)
			}
		}

		if len(parallel) > 0 {
			g := new(errgroup.Group)
			for _, s := range parallel {
				step := s
				g.Go(func() error {
					e.runStep(ctx, pl, caller, step)
					return nil
				})
			}
			_ = g.Wait()
		}

		for _, s := range sequential {
			if ctx.Err() != nil {
				break
			}
			e.runStep(ctx, pl, caller, s)
		}
	}

	if ctx.Err() != nil {
		e.cancelRemaining(pl)
	} else {
		e.failRemaining(pl, reasonRoundLimit)
	}

	return e.aggregate(pl, started)
}

// runStep dispatches one step and records its terminal state. A failure
// transitively skips every dependent step.
func (e *Executor) runStep(ctx context.Context, pl *planx.Plan, caller contractx.Caller, step *planx.Step) {
	e.mu.Lock()
	if err := pl.MarkRunning(step.ID); err != nil {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	log.Debug().Str("plan_id", pl.ID).Str("step_id", step.ID).Str("kind", string(step.Kind)).Msg("step running")

	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	begin := e.now()
	result, err := e.dispatch(stepCtx, pl, caller, step)
	took := e.now().Sub(begin)

	e.mu.Lock()
	defer e.mu.Unlock()

	if ctx.Err() != nil {
		// No partial result may surface as completed after cancellation.
		_ = pl.MarkSkipped(step.ID, reasonTurnCancelled)
		return
	}

	if err != nil {
		log.Warn().Err(err).Str("plan_id", pl.ID).Str("step_id", step.ID).Msg("step failed")
		_ = pl.MarkFailed(step.ID, err.Error(), took)
		e.skipDependentsLocked(pl, step.ID, reasonDepFailed)
		return
	}

	_ = pl.MarkCompleted(step.ID, result, took)

	if res, ok := result.(*planx.ResolutionResult); ok {
		if res.RequiresDisambiguation {
			// The turn must come back to the user; dependents cannot
			// proceed on an unresolved identity.
			e.skipDependentsLocked(pl, step.ID, reasonDisambiguate)
		} else {
			pl.ResolvedAccountID = res.AccountID
			pl.ResolvedAccountName = res.DisplayName
		}
	}
}

func (e *Executor) skipDependentsLocked(pl *planx.Plan, stepID, reason string) {
	for _, dep := range pl.TransitiveDependents(stepID) {
		if s, ok := pl.GetStep(dep); ok && !s.IsTerminal() && s.Status != planx.StepRunning {
			_ = pl.MarkSkipped(dep, reason)
		}
	}
}

func (e *Executor) failRemaining(pl *planx.Plan, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range pl.Steps {
		if s.Status == planx.StepPending || s.Status == planx.StepRunning {
			_ = pl.MarkFailed(s.ID, reason, 0)
		}
	}
}

func (e *Executor) cancelRemaining(pl *planx.Plan) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range pl.Steps {
		if s.Status == planx.StepPending || s.Status == planx.StepRunning {
			_ = pl.MarkSkipped(s.ID, reasonTurnCancelled)
		}
	}
}

func countPending(pl *planx.Plan) int {
	n := 0
	for _, s := range pl.Steps {
		if s.Status == planx.StepPending || s.Status == planx.StepRunning {
			n++
		}
	}
	return n
}

// aggregate invokes the composer over completed results and rolls the
// per-step outcomes into the final ExecutionResult.
func (e *Executor) aggregate(pl *planx.Plan, started time.Time) *contractx.ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	pl.CompletedAt = e.now().UTC()

	var (
		completed  int
		failed     int
		results    []planx.Result
		outcomes   []contractx.StepOutcome
		ambiguous  bool
		candidates []planx.AccountCandidate
	)

	for _, s := range pl.Steps {
		outcomes = append(outcomes, contractx.StepOutcome{
			StepID:      s.ID,
			Description: s.Description,
			Status:      s.Status,
			Error:       s.Error,
			DurationMS:  s.DurationMS,
		})
		switch s.Status {
		case planx.StepCompleted:
			completed++
			if s.Result != nil {
				results = append(results, s.Result)
			}
			if res, ok := s.Result.(*planx.ResolutionResult); ok && res.RequiresDisambiguation {
				ambiguous = true
				candidates = res.Candidates
			}
		case planx.StepFailed, planx.StepSkipped:
			failed++
		}
	}

	status := contractx.ExecutionCompleted
	switch {
	case completed == 0:
		status = contractx.ExecutionFailed
	case failed > 0:
		status = contractx.ExecutionPartial
	}

	var answer string
	var citations []planx.Citation
	switch {
	case status == contractx.ExecutionFailed:
		answer = failedAnswer
	case ambiguous:
		answer = disambiguationPrompt(candidates)
	default:
		answer, citations = e.composer.Compose(pl.Type, results)
	}

	return &contractx.ExecutionResult{
		PlanID:                 pl.ID,
		PlanType:               pl.Type,
		Status:                 status,
		Answer:                 answer,
		Citations:              citations,
		StepResults:            outcomes,
		ExecutionTimeMS:        pl.CompletedAt.Sub(started.UTC()).Milliseconds(),
		RequiresDisambiguation: ambiguous,
		Candidates:             candidates,
	}
}

func disambiguationPrompt(candidates []planx.AccountCandidate) string {
	if len(candidates) == 0 {
		return "Which account did you mean?"
	}
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.DisplayName)
	}
	return fmt.Sprintf("I found several accounts that could match. Did you mean one of: %s?", joinNames(names))
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	out := names[0]
	for _, n := range names[1 : len(names)-1] {
		out += ", " + n
	}
	return out + " or " + names[len(names)-1]
}
