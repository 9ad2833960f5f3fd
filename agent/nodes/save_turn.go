package nodes

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contractx "github.com/wiroonsak/accountiq/agent/contract"
)

func SaveTurn(ctx context.Context, in *GraphState, store contractx.TurnStore) (*GraphState, error) {
	if in == nil {
		return nil, ErrInvalidQuery
	}
	if in.Cached || in.Result == nil || in.Plan == nil {
		return in, nil
	}

	t := &contractx.Turn{
		ID:        uuid.NewString(),
		CallerID:  in.Caller.ID,
		Query:     in.Query,
		Answer:    in.Result.Answer,
		PlanType:  in.Plan.Type,
		CreatedAt: in.Now,
	}
	if err := store.SaveTurn(ctx, t); err != nil {
		// Persistence failure must not fail an already-answered turn.
		log.Warn().Err(err).Str("caller_id", in.Caller.ID).Msg("failed to save turn")
	}
	return in, nil
}
