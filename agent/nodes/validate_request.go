package nodes

import (
	"strings"
	"time"
)

func ValidateRequest(in GraphInput, now func() time.Time) (*GraphState, error) {
	if strings.TrimSpace(in.Caller.ID) == "" {
		return nil, ErrInvalidCaller
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, ErrInvalidQuery
	}

	return &GraphState{
		Caller: in.Caller,
		Query:  strings.TrimSpace(in.Query),
		Now:    now(),
	}, nil
}
