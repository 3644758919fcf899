package retrieval

import (
	"context"
	"strings"

	"studykb/internal/embeddings"
	"studykb/internal/store"
)

// Strategy is one way of turning a query into vector-search candidates.
// The engine fans out across strategies and merges their results.
type Strategy interface {
	Name() string
	Search(ctx context.Context, query string, k int) ([]store.SearchResult, error)
}

// similarityStrategy embeds the query verbatim.
type similarityStrategy struct {
	embedder embeddings.Embedder
	store    store.Store
}

func (s *similarityStrategy) Name() string { return "similarity" }

func (s *similarityStrategy) Search(ctx context.Context, query string, k int) ([]store.SearchResult, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.store.TopK(ctx, vec, k)
}

// domainSynonyms widens queries with course-domain vocabulary so a
// query phrased one way still lands on chunks phrased another.
var domainSynonyms = map[string][]string{
	"grade":      {"score", "assessment", "evaluation"},
	"exam":       {"test", "assessment", "final"},
	"assignment": {"homework", "exercise", "task"},
	"lecture":    {"class", "session", "lesson"},
	"syllabus":   {"curriculum", "course outline"},
	"revenue":    {"income", "sales", "earnings"},
	"profit":     {"net income", "earnings", "margin"},
	"expense":    {"cost", "expenditure", "spending"},
	"deadline":   {"due date", "cutoff"},
	"chapter":    {"section", "unit", "module"},
	"formula":    {"equation", "expression"},
	"definition": {"meaning", "concept"},
}

// keywordStrategy appends known synonyms to the query before embedding,
// and backs the vector search with a lexical substring match so literal
// phrases ("midterm 2", an error code) hit even when embeddings drift.
type keywordStrategy struct {
	embedder embeddings.Embedder
	store    store.Store
}

// lexicalBase is the similarity assigned to text-match hits, which the
// store returns unscored. A chunk containing the query verbatim clears
// the relevance floor on that alone; scoring boosts rank it from there.
const lexicalBase = 0.40

func (s *keywordStrategy) Name() string { return "keyword" }

func (s *keywordStrategy) Search(ctx context.Context, query string, k int) ([]store.SearchResult, error) {
	lexical, err := s.store.SearchText(ctx, strings.TrimSpace(query), k)
	if err != nil {
		return nil, err
	}
	for i := range lexical {
		if lexical[i].Similarity == 0 {
			lexical[i].Similarity = lexicalBase
		}
	}

	expanded := expandQuery(query)
	if expanded == query {
		// Nothing to add; the similarity strategy already covers the
		// verbatim embedding.
		return lexical, nil
	}
	vec, err := s.embedder.Embed(ctx, expanded)
	if err != nil {
		return nil, err
	}
	semantic, err := s.store.TopK(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	return append(lexical, semantic...), nil
}

func expandQuery(query string) string {
	lower := strings.ToLower(query)
	var extra []string
	for term, synonyms := range domainSynonyms {
		if strings.Contains(lower, term) {
			extra = append(extra, synonyms...)
		}
	}
	if len(extra) == 0 {
		return query
	}
	return query + " " + strings.Join(extra, " ")
}

// variationStrategy rephrases the query into a statement form, which
// tends to sit closer to document prose in embedding space than the
// interrogative form does.
type variationStrategy struct {
	embedder embeddings.Embedder
	store    store.Store
}

func (s *variationStrategy) Name() string { return "variation" }

var questionPrefixes = []string{
	"what is ", "what are ", "what was ", "what does ",
	"how do i ", "how does ", "how to ", "how is ",
	"why is ", "why does ", "why do ",
	"when is ", "when does ", "where is ",
	"can you explain ", "explain ", "describe ", "tell me about ",
}

func (s *variationStrategy) Search(ctx context.Context, query string, k int) ([]store.SearchResult, error) {
	variation := rephrase(query)
	if variation == "" || strings.EqualFold(variation, query) {
		return nil, nil
	}
	vec, err := s.embedder.Embed(ctx, variation)
	if err != nil {
		return nil, err
	}
	return s.store.TopK(ctx, vec, k)
}

func rephrase(query string) string {
	q := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), "?"))
	lower := strings.ToLower(q)
	for _, prefix := range questionPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(q[len(prefix):])
		}
	}
	return ""
}
