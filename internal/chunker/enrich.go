package chunker

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Content-type tags shared with query intent alignment at retrieval time.
const (
	ContentDefinition = "definition"
	ContentExample    = "example"
	ContentProcedure  = "procedure"
	ContentComparison = "comparison"
	ContentFinancial  = "financial"
	ContentGeneral    = "general"
)

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "of": {},
	"to": {}, "in": {}, "on": {}, "for": {}, "with": {}, "as": {}, "by": {},
	"at": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"it": {}, "its": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"from": {}, "which": {}, "will": {}, "can": {}, "has": {}, "have": {},
	"not": {}, "their": {}, "they": {}, "we": {}, "you": {}, "your": {},
	"also": {}, "than": {}, "then": {}, "into": {}, "about": {}, "more": {},
}

var (
	bulletLine    = regexp.MustCompile(`^\s*([-*•]|\d{1,3}[.)])\s+`)
	headerLine    = regexp.MustCompile(`^\s*(#{1,6}\s|[A-Z][A-Z0-9 :]{4,}$)`)
	sentenceSplit = regexp.MustCompile(`[.!?]+(\s|$)`)

	definitionPattern = regexp.MustCompile(`(?i)\b(is defined as|refers to|is known as|means that|is a type of|stands for|is the process)\b`)
	examplePattern    = regexp.MustCompile(`(?i)\b(for example|for instance|such as|e\.g\.|to illustrate|consider the)\b`)
	procedurePattern  = regexp.MustCompile(`(?i)\b(step \d|first,|then,|next,|finally,|how to|follow these|procedure)\b`)
	comparisonPattern = regexp.MustCompile(`(?i)\b(compared to|in contrast|versus|vs\.|difference between|whereas|on the other hand|similarly)\b`)
)

// enrich fills the chunk's metadata bundle in place.
func enrich(c *Chunk) {
	c.Structural = structuralScore(c.Text)
	c.Density = semanticDensity(c.Text)
	c.Readability = readability(c.Text)
	c.ContentType = classifyChunk(c.Text)
	c.Terms = technicalTerms(c.Text, 8)
	c.Phrases = keyPhrases(c.Text, 5)
}

// structuralScore rewards lists, headers, and numbered items; structure
// tends to mark content worth surfacing whole.
func structuralScore(text string) float64 {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return 0
	}
	structured := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if bulletLine.MatchString(line) || headerLine.MatchString(line) || headingPattern.MatchString(line) {
			structured++
		}
	}
	score := float64(structured) / float64(len(lines)) * 2
	if score > 1 {
		score = 1
	}
	return score
}

// semanticDensity is the distinct non-stopword ratio, boosted for
// technical-looking tokens.
func semanticDensity(text string) float64 {
	words := tokenize(text)
	if len(words) == 0 {
		return 0
	}
	distinct := make(map[string]struct{})
	technical := 0
	content := 0
	for _, w := range words {
		if _, stop := stopwords[w]; stop {
			continue
		}
		content++
		if _, seen := distinct[w]; !seen {
			distinct[w] = struct{}{}
			if isTechnicalToken(w) {
				technical++
			}
		}
	}
	density := float64(len(distinct)) / float64(len(words))
	boost := 0.05 * float64(technical)
	if boost > 0.25 {
		boost = 0.25
	}
	score := density + boost
	if score > 1 {
		score = 1
	}
	return score
}

// readability is an inverse function of average sentence length: long
// run-on sentences read worse and retrieve worse.
func readability(text string) float64 {
	sentences := sentenceSplit.Split(text, -1)
	nonEmpty := 0
	totalWords := 0
	for _, s := range sentences {
		w := len(strings.Fields(s))
		if w == 0 {
			continue
		}
		nonEmpty++
		totalWords += w
	}
	if nonEmpty == 0 {
		return 0
	}
	avg := float64(totalWords) / float64(nonEmpty)
	return 1 / (1 + avg/20)
}

// classifyChunk tags the chunk with its dominant content type via
// ordered pattern matching.
func classifyChunk(text string) string {
	switch {
	case definitionPattern.MatchString(text):
		return ContentDefinition
	case procedurePattern.MatchString(text) || len(numberedItem.FindAllString(text, 3)) >= 2:
		return ContentProcedure
	case comparisonPattern.MatchString(text):
		return ContentComparison
	case examplePattern.MatchString(text):
		return ContentExample
	case len(financialPattern.FindAllString(text, 3)) >= 2:
		return ContentFinancial
	default:
		return ContentGeneral
	}
}

// technicalTerms extracts the most frequent technical-looking tokens.
func technicalTerms(text string, limit int) []string {
	freq := make(map[string]int)
	for _, w := range tokenize(text) {
		if _, stop := stopwords[w]; stop {
			continue
		}
		if isTechnicalToken(w) {
			freq[w]++
		}
	}
	return topKeys(freq, limit)
}

// keyPhrases extracts frequent adjacent non-stopword pairs.
func keyPhrases(text string, limit int) []string {
	words := tokenize(text)
	freq := make(map[string]int)
	for i := 0; i+1 < len(words); i++ {
		a, b := words[i], words[i+1]
		if _, stop := stopwords[a]; stop {
			continue
		}
		if _, stop := stopwords[b]; stop {
			continue
		}
		if len(a) < 3 || len(b) < 3 {
			continue
		}
		freq[a+" "+b]++
	}
	// A phrase seen once is noise.
	for k, v := range freq {
		if v < 2 {
			delete(freq, k)
		}
	}
	return topKeys(freq, limit)
}

// scoreNeighborRelevance scores each chunk by term overlap with its
// neighbors; chunks that share vocabulary with their context are more
// likely to be coherent.
func scoreNeighborRelevance(chunks []Chunk) {
	sets := make([]map[string]struct{}, len(chunks))
	for i, c := range chunks {
		set := make(map[string]struct{})
		for _, w := range tokenize(c.Text) {
			if _, stop := stopwords[w]; !stop {
				set[w] = struct{}{}
			}
		}
		sets[i] = set
	}
	for i := range chunks {
		neighbors := 0
		total := 0.0
		if i > 0 {
			total += overlapRatio(sets[i], sets[i-1])
			neighbors++
		}
		if i+1 < len(chunks) {
			total += overlapRatio(sets[i], sets[i+1])
			neighbors++
		}
		if neighbors == 0 {
			chunks[i].Relevance = 1
			continue
		}
		chunks[i].Relevance = total / float64(neighbors)
	}
}

func overlapRatio(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := 0
	for w := range small {
		if _, ok := large[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isTechnicalToken(w string) bool {
	if len(w) >= 9 {
		return true
	}
	hasDigit := false
	for _, r := range w {
		if unicode.IsDigit(r) {
			hasDigit = true
			break
		}
	}
	return hasDigit && len(w) >= 3
}

func topKeys(freq map[string]int, limit int) []string {
	keys := make([]string, 0, len(freq))
	for k := range freq {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if freq[keys[i]] != freq[keys[j]] {
			return freq[keys[i]] > freq[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}
