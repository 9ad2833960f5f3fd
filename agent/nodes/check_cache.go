package nodes

import (
	contractx "github.com/wiroonsak/accountiq/agent/contract"
	cachex "github.com/wiroonsak/accountiq/pkg/cache"
)

func CheckCache(in *GraphState, cache contractx.ResultCache) (*GraphState, error) {
	if in == nil {
		return nil, ErrInvalidQuery
	}

	in.CacheKey = cachex.Key(in.Caller.ID, in.Query)
	if res, ok := cache.Get(in.CacheKey); ok && res != nil {
		in.Result = res
		in.Cached = true
	}
	return in, nil
}

func StoreCache(in *GraphState, cache contractx.ResultCache) (*GraphState, error) {
	if in == nil || in.Result == nil {
		return in, nil
	}
	if in.Cached {
		return in, nil
	}
	// Failed and ambiguous turns are not worth replaying from cache.
	if in.Result.Status == contractx.ExecutionFailed || in.Result.RequiresDisambiguation {
		return in, nil
	}
	cache.Set(in.CacheKey, in.Result)
	return in, nil
}
