package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"studykb/internal/chunker"
	"studykb/internal/intent"
	"studykb/internal/store"
)

// Result is one ranked candidate.
type Result struct {
	Chunk      store.Chunk `json:"chunk"`
	Filename   string      `json:"filename"`
	Similarity float32     `json:"similarity"`
	Score      float64     `json:"score"`
}

var structuralRef = regexp.MustCompile(`(?i)\b(section|chapter|part|appendix|figure|table)\s+\d+(\.\d+)?\b`)

// score is a pure function of the candidate and the query features;
// identical inputs always rank identically.
func score(r store.SearchResult, queryTerms map[string]struct{}, queryLower, queryIntent string) float64 {
	s := float64(r.Similarity)

	// Term overlap between the query and the chunk's extracted terms.
	if len(queryTerms) > 0 {
		matched := 0
		for _, term := range r.Chunk.Terms {
			if _, ok := queryTerms[term]; ok {
				matched++
			}
		}
		s += 0.10 * float64(matched) / float64(len(queryTerms))
	}

	// Exact phrase carries more signal than any bag-of-words overlap.
	if len(queryLower) >= 12 && strings.Contains(strings.ToLower(r.Chunk.Text), queryLower) {
		s += 0.15
	}

	// A query naming "Section 3" should prefer the chunk that carries
	// that exact marker.
	if ref := structuralRef.FindString(queryLower); ref != "" {
		if strings.Contains(strings.ToLower(r.Chunk.Text), ref) {
			s += 0.20
		}
	}

	if intentAligned(queryIntent, r.Chunk.ContentType) {
		s += 0.08
	}

	s += 0.05 * r.Chunk.Structural
	s += 0.05 * r.Chunk.Density
	if r.Chunk.Page > 0 {
		s += 0.02
	}
	return s
}

func intentAligned(queryIntent, contentType string) bool {
	switch queryIntent {
	case intent.Definition:
		return contentType == chunker.ContentDefinition
	case intent.Procedure:
		return contentType == chunker.ContentProcedure
	case intent.Comparison:
		return contentType == chunker.ContentComparison
	case intent.Financial:
		return contentType == chunker.ContentFinancial
	case intent.Explanation:
		return contentType == chunker.ContentExample || contentType == chunker.ContentDefinition
	default:
		return false
	}
}

// queryTermSet extracts lowercase content words from the query.
func queryTermSet(query string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(query)) {
		f = strings.Trim(f, ".,;:!?\"'()")
		if len(f) >= 3 {
			out[f] = struct{}{}
		}
	}
	return out
}

// contentFingerprint hashes the normalized leading text of a chunk.
// Overlapping chunks from different strategies collapse to one entry.
func contentFingerprint(text string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if len(norm) > 100 {
		norm = norm[:100]
	}
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// dedupe keeps the highest-similarity instance of each fingerprint.
func dedupe(candidates []store.SearchResult) []store.SearchResult {
	best := make(map[string]int)
	var out []store.SearchResult
	for _, c := range candidates {
		fp := contentFingerprint(c.Chunk.Text)
		if i, seen := best[fp]; seen {
			if c.Similarity > out[i].Similarity {
				out[i] = c
			}
			continue
		}
		best[fp] = len(out)
		out = append(out, c)
	}
	return out
}

var timestampPrefix = regexp.MustCompile(`^\d{8,}[-_]`)

// normalizeFilename lowercases and strips upload-timestamp prefixes so
// "1714003200_notes.pdf" matches a filter of "notes.pdf".
func normalizeFilename(name string) string {
	return timestampPrefix.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "")
}

// filterByDocument keeps candidates whose source filename matches the
// filter, exactly or after normalization. An empty filter keeps all.
func filterByDocument(candidates []store.SearchResult, filter string) []store.SearchResult {
	if filter == "" {
		return candidates
	}
	want := normalizeFilename(filter)
	var out []store.SearchResult
	for _, c := range candidates {
		if c.Filename == filter || normalizeFilename(c.Filename) == want {
			out = append(out, c)
		}
	}
	return out
}

// balanceByPage spreads the final selection proportionally across the
// source pages of the ranked pool, then backfills by rank. Ties inside
// a page keep page order.
func balanceByPage(ranked []Result, limit int) []Result {
	if len(ranked) <= limit {
		return ranked
	}

	byPage := make(map[int][]Result)
	var pages []int
	for _, r := range ranked {
		if _, seen := byPage[r.Chunk.Page]; !seen {
			pages = append(pages, r.Chunk.Page)
		}
		byPage[r.Chunk.Page] = append(byPage[r.Chunk.Page], r)
	}
	sort.Ints(pages)

	quota := make(map[int]int, len(pages))
	for _, p := range pages {
		q := limit * len(byPage[p]) / len(ranked)
		if q < 1 {
			q = 1
		}
		quota[p] = q
	}

	var out []Result
	for _, p := range pages {
		n := quota[p]
		if n > len(byPage[p]) {
			n = len(byPage[p])
		}
		for i := 0; i < n && len(out) < limit; i++ {
			out = append(out, byPage[p][i])
		}
	}

	// Backfill remaining slots with the best leftovers by rank.
	if len(out) < limit {
		selected := make(map[string]bool, len(out))
		for _, r := range out {
			selected[r.Chunk.ID.String()+r.Chunk.Text[:min(8, len(r.Chunk.Text))]] = true
		}
		for _, r := range ranked {
			if len(out) >= limit {
				break
			}
			key := r.Chunk.ID.String() + r.Chunk.Text[:min(8, len(r.Chunk.Text))]
			if !selected[key] {
				selected[key] = true
				out = append(out, r)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Chunk.Page != out[j].Chunk.Page {
			return out[i].Chunk.Page < out[j].Chunk.Page
		}
		return out[i].Chunk.Index < out[j].Chunk.Index
	})
	return out
}
