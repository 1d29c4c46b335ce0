package main

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gamma-omg/rag-chat/docstore"
)

const tokenCacheSize = 4096

type docLister interface {
	List(ctx context.Context) ([]docstore.Document, error)
}

// Ranker scores every stored chunk against a query by fuzzy word overlap.
// It never fails: an unreadable store ranks as an empty one.
type Ranker struct {
	log            *slog.Logger
	docs           docLister
	minScore       float64
	applyThreshold bool
	tokens         *lru.Cache[string, []string]
}

func NewRanker(docs docLister, cfg RankingConfig, log *slog.Logger) *Ranker {
	tokens, _ := lru.New[string, []string](tokenCacheSize)

	return &Ranker{
		log:            log,
		docs:           docs,
		minScore:       cfg.MinScore,
		applyThreshold: cfg.ApplyThreshold,
		tokens:         tokens,
	}
}

// Rank returns at most k chunks, best first. Equal scores keep store order.
func (r *Ranker) Rank(ctx context.Context, query string, k int) []docstore.ScoredChunk {
	res := []docstore.ScoredChunk{}
	if k <= 0 {
		return res
	}

	docs, err := r.docs.List(ctx)
	if err != nil {
		r.log.Warn("ranking without documents", "error", err)
	}

	q := tokenize(query)
	for _, d := range docs {
		for _, chunk := range d.Chunks {
			score := scoreWords(q, r.tokenizeChunk(chunk))
			if r.applyThreshold && score <= r.minScore {
				continue
			}

			res = append(res, docstore.ScoredChunk{
				Chunk:      chunk,
				Score:      score,
				DocumentID: d.ID,
				Filename:   d.Filename,
			})
		}
	}

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Score > res[j].Score
	})

	return res[:min(k, len(res))]
}

// FindRelevantChunks is Rank without the scores. An empty result means no
// context is available.
func (r *Ranker) FindRelevantChunks(ctx context.Context, query string, maxChunks int) []string {
	ranked := r.Rank(ctx, query, maxChunks)

	res := make([]string, 0, len(ranked))
	for _, sc := range ranked {
		res = append(res, sc.Chunk)
	}

	return res
}

func (r *Ranker) tokenizeChunk(chunk string) []string {
	if words, ok := r.tokens.Get(chunk); ok {
		return words
	}

	words := tokenize(chunk)
	r.tokens.Add(chunk, words)
	return words
}

// Score is the relevance of chunk to query: the number of word pairs where
// either word contains the other, normalised by sqrt(|query| * |chunk|).
func Score(query, chunk string) float64 {
	return scoreWords(tokenize(query), tokenize(chunk))
}

func scoreWords(query, chunk []string) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}

	raw := 0
	for _, q := range query {
		for _, c := range chunk {
			if strings.Contains(c, q) || strings.Contains(q, c) {
				raw++
			}
		}
	}

	return float64(raw) / math.Sqrt(float64(len(query)*len(chunk)))
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}
