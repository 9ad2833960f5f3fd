package nodes

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/wiroonsak/accountiq/agent/contract"
	planx "github.com/wiroonsak/accountiq/agent/plan"
)

// DirectAnswer rewrites the canned no-tool reply through the LLM with
// recent-turn context. Any model failure keeps the composed text.
func DirectAnswer(
	ctx context.Context,
	in *GraphState,
	completer contractx.Completer,
	prompt string,
) (*GraphState, error) {
	if in == nil {
		return nil, ErrInvalidQuery
	}
	if in.Cached || in.Result == nil || in.Plan == nil {
		return in, nil
	}
	if in.Plan.Type != planx.TypeNoTool || completer == nil || strings.TrimSpace(prompt) == "" {
		return in, nil
	}

	messages := []contractx.Message{
		{Role: "system", Content: strings.TrimSpace(prompt)},
	}
	// History is newest-first in the store; replay oldest-first.
	for i := len(in.History) - 1; i >= 0; i-- {
		t := in.History[i]
		messages = append(messages,
			contractx.Message{Role: "user", Content: t.Query},
			contractx.Message{Role: "assistant", Content: t.Answer},
		)
	}
	messages = append(messages, contractx.Message{Role: "user", Content: in.Query})

	resp, err := completer.Complete(ctx, messages)
	if err != nil {
		log.Debug().Err(err).Msg("direct answer model failed, keeping composed text")
		return in, nil
	}
	if answer := strings.TrimSpace(resp.Content); answer != "" {
		in.Result.Answer = answer
	}
	return in, nil
}
