package assistant

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"
	contractx "github.com/wiroonsak/accountiq/agent/contract"
	nodex "github.com/wiroonsak/accountiq/agent/nodes"
)

var (
	ErrInvalidQuery  = nodex.ErrInvalidQuery
	ErrInvalidCaller = nodex.ErrInvalidCaller
)

type Config struct {
	HistoryLimit int `envconfig:"HISTORY_LIMIT" split_words:"true" default:"5"`
}

// Assistant runs one full Q&A turn: validate, consult the cache, load
// conversation context, plan, execute, persist. It is the only entrypoint
// the transport layer talks to.
type Assistant struct {
	planner  contractx.Planner
	executor contractx.Executor
	turns    contractx.TurnStore
	cache    contractx.ResultCache

	completer    contractx.Completer
	answerPrompt string

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	historyLimit int
	now          func() time.Time
}

func New(
	planner contractx.Planner,
	executor contractx.Executor,
	turns contractx.TurnStore,
	cache contractx.ResultCache,
	completer contractx.Completer,
	answerPrompt string,
	cfg Config,
) (*Assistant, error) {
	if planner == nil {
		return nil, errors.New("planner is required")
	}
	if executor == nil {
		return nil, errors.New("executor is required")
	}
	if turns == nil {
		turns = noopTurnStore{}
	}
	if cache == nil {
		cache = noopCache{}
	}

	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 5
	}

	a := &Assistant{
		planner:      planner,
		executor:     executor,
		turns:        turns,
		cache:        cache,
		completer:    completer,
		answerPrompt: answerPrompt,
		historyLimit: historyLimit,
		now:          time.Now,
	}

	graphRunner, err := a.compileAnswerGraph(context.Background())
	if err != nil {
		return nil, err
	}
	a.graphRunner = graphRunner

	return a, nil
}

// Answer runs one turn and returns its ExecutionResult. Only request
// validation can fail; execution itself always produces a result.
func (a *Assistant) Answer(ctx context.Context, caller contractx.Caller, query string) (*contractx.ExecutionResult, error) {
	out, err := a.graphRunner.Invoke(ctx, nodex.GraphInput{
		Caller: caller,
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}

type noopTurnStore struct{}

func (noopTurnStore) SaveTurn(context.Context, *contractx.Turn) error {
	return nil
}

func (noopTurnStore) RecentTurns(context.Context, string, int) ([]contractx.Turn, error) {
	return nil, nil
}

type noopCache struct{}

func (noopCache) Get(string) (*contractx.ExecutionResult, bool) {
	return nil, false
}

func (noopCache) Set(string, *contractx.ExecutionResult) {}
