package usecase

import (
	"context"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/domain/types"
	"github.com/secmon-lab/synapse/pkg/utils/errutil"
	"github.com/secmon-lab/synapse/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// SearchService answers free-text queries from the vector indexes.
type SearchService struct {
	store    interfaces.GraphStore
	embedder interfaces.Embedder
	indexes  []types.VectorIndex
}

func NewSearchService(store interfaces.GraphStore, embedder interfaces.Embedder) *SearchService {
	return &SearchService{
		store:    store,
		embedder: embedder,
		indexes:  types.AllVectorIndexes(),
	}
}

// Search returns at most topK results across all indexes, best first. Each
// index contributes up to topK candidates. A failing embedder or index
// degrades to fewer results and is only logged. A non-positive topK means
// model.DefaultSearchTopK.
func (s *SearchService) Search(ctx context.Context, query string, topK int) ([]model.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "search query is empty")
	}
	if topK <= 0 {
		topK = model.DefaultSearchTopK
	}

	logger := logging.From(ctx)

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil || !model.IsUsableEmbedding(emb) {
		if err == nil {
			err = goerr.Wrap(model.ErrEmbeddingUnavailable, "unusable query embedding", goerr.V("dimension", len(emb)))
		}
		logger.Warn("search without query embedding", "error", err.Error())
		return []model.SearchResult{}, nil
	}

	perIndex := make([][]model.SearchResult, len(s.indexes))
	var eg errgroup.Group
	for i, index := range s.indexes {
		eg.Go(func() error {
			hits, err := s.store.QueryVector(ctx, index, topK, emb)
			if err != nil {
				errutil.Handle(ctx, goerr.Wrap(err, "vector query failed", goerr.V("index", index)), "skipping index in search")
				return nil
			}
			perIndex[i] = toSearchResults(index, hits)
			return nil
		})
	}
	_ = eg.Wait() // goroutines never fail

	var results []model.SearchResult
	for _, r := range perIndex {
		results = append(results, r...)
	}

	slices.SortStableFunc(results, func(a, b model.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	if len(results) > topK {
		results = results[:topK]
	}
	if results == nil {
		results = []model.SearchResult{}
	}
	return results, nil
}

func toSearchResults(index types.VectorIndex, hits []*model.ScoredNode) []model.SearchResult {
	results := make([]model.SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit == nil || hit.Node == nil {
			continue
		}
		_, id, _ := hit.Node.Key()
		results = append(results, model.SearchResult{
			Text:        hit.Node.Properties.String(index.TextProperty()),
			Score:       hit.Score,
			SourceLabel: hit.Node.Label,
			Index:       index,
			NodeID:      id,
		})
	}
	return results
}
