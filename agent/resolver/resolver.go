package resolver

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/wiroonsak/accountiq/agent/contract"
	planx "github.com/wiroonsak/accountiq/agent/plan"
)

// Config carries the resolution thresholds. Defaults match product policy;
// all three are tunable per deployment.
type Config struct {
	Threshold float64 `envconfig:"THRESHOLD" split_words:"true" default:"0.7"`
	TieBand   float64 `envconfig:"TIE_BAND" split_words:"true" default:"0.05"`
	TopK      int     `envconfig:"TOP_K" split_words:"true" default:"5"`
}

// Resolver maps fuzzy account names to canonical identities using exact
// matching first and embedding cosine similarity second.
type Resolver struct {
	directory contractx.AccountDirectory
	embedder  contractx.Embedder
	threshold float64
	tieBand   float64
	topK      int
}

var _ contractx.Resolver = (*Resolver)(nil)

func New(directory contractx.AccountDirectory, embedder contractx.Embedder, cfg Config) (*Resolver, error) {
	if directory == nil {
		return nil, errors.New("account directory is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	threshold := cfg.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}
	tieBand := cfg.TieBand
	if tieBand < 0 {
		tieBand = 0.05
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	return &Resolver{
		directory: directory,
		embedder:  embedder,
		threshold: threshold,
		tieBand:   tieBand,
		topK:      topK,
	}, nil
}

// Resolve maps each input name to an AccountResolution against the
// caller-visible account set. An empty account universe is not an error;
// it yields method=none with score 0.
func (r *Resolver) Resolve(ctx context.Context, names []string, caller contractx.Caller) ([]contractx.AccountResolution, error) {
	accounts, err := r.directory.VisibleAccounts(ctx, caller)
	if err != nil {
		return nil, err
	}

	// Embeddings are memoized per call so repeated lookups inside one
	// resolution are idempotent.
	cache := make(map[string][]float64, len(accounts)+len(names))

	out := make([]contractx.AccountResolution, 0, len(names))
	for _, name := range names {
		out = append(out, r.resolveOne(ctx, name, accounts, cache))
	}
	return out, nil
}

func (r *Resolver) resolveOne(
	ctx context.Context,
	name string,
	accounts []contractx.Account,
	cache map[string][]float64,
) contractx.AccountResolution {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || len(accounts) == 0 {
		return contractx.AccountResolution{
			Name:   name,
			Method: contractx.MethodNone,
		}
	}

	normalized := strings.ToLower(trimmed)
	for _, acc := range accounts {
		if strings.ToLower(strings.TrimSpace(acc.DisplayName)) == normalized || acc.ID == normalized {
			return contractx.AccountResolution{
				Name:        name,
				AccountID:   acc.ID,
				DisplayName: acc.DisplayName,
				Score:       1.0,
				Method:      contractx.MethodExactMatch,
			}
		}
	}

	nameVec := r.embeddingFor(ctx, trimmed, cache)

	candidates := make([]planx.AccountCandidate, 0, len(accounts))
	for _, acc := range accounts {
		accVec := acc.Embedding
		if len(accVec) == 0 {
			accVec = r.embeddingFor(ctx, acc.DisplayName, cache)
		}
		candidates = append(candidates, planx.AccountCandidate{
			AccountID:   acc.ID,
			DisplayName: acc.DisplayName,
			Score:       CosineSimilarity(nameVec, accVec),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	best := candidates[0]
	if best.Score <= 0 {
		return contractx.AccountResolution{
			Name:   name,
			Method: contractx.MethodNone,
		}
	}

	topK := r.topK
	if topK > len(candidates) {
		topK = len(candidates)
	}

	if best.Score < r.threshold {
		return contractx.AccountResolution{
			Name:                   name,
			Score:                  best.Score,
			Method:                 contractx.MethodEmbeddingSimilarity,
			RequiresDisambiguation: true,
			Alternatives:           candidates[:topK],
		}
	}

	// Near-tie at the top: do not pick unilaterally.
	if len(candidates) > 1 && best.Score-candidates[1].Score <= r.tieBand {
		return contractx.AccountResolution{
			Name:                   name,
			Score:                  best.Score,
			Method:                 contractx.MethodEmbeddingSimilarity,
			RequiresDisambiguation: true,
			Alternatives:           candidates[:topK],
		}
	}

	return contractx.AccountResolution{
		Name:        name,
		AccountID:   best.AccountID,
		DisplayName: best.DisplayName,
		Score:       best.Score,
		Method:      contractx.MethodEmbeddingSimilarity,
	}
}

func (r *Resolver) embeddingFor(ctx context.Context, text string, cache map[string][]float64) []float64 {
	key := strings.ToLower(strings.TrimSpace(text))
	if vec, ok := cache[key]; ok {
		return vec
	}
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		// A failed embedding degrades to similarity 0, never a crash.
		log.Warn().Err(err).Str("text", text).Msg("embedding failed, using zero vector")
		vec = nil
	}
	cache[key] = vec
	return vec
}
