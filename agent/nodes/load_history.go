package nodes

import (
	"context"

	"github.com/rs/zerolog/log"
	contractx "github.com/wiroonsak/accountiq/agent/contract"
)

func LoadHistory(ctx context.Context, in *GraphState, store contractx.TurnStore, limit int) (*GraphState, error) {
	if in == nil {
		return nil, ErrInvalidQuery
	}
	if in.Cached {
		return in, nil
	}

	turns, err := store.RecentTurns(ctx, in.Caller.ID, limit)
	if err != nil {
		// History is context, not a hard dependency of the turn.
		log.Warn().Err(err).Str("caller_id", in.Caller.ID).Msg("failed to load recent turns")
		return in, nil
	}
	in.History = turns
	return in, nil
}
