// Package chunker splits loaded documents into bounded, overlapping,
// metadata-enriched segments and balances the result across source pages.
package chunker

import (
	"strings"

	"studykb/internal/config"
	"studykb/internal/loader"
)

// Chunk is a derived unit of indexable text with its enrichment bundle.
type Chunk struct {
	Index       int      `json:"index"`
	Page        int      `json:"page"`
	Text        string   `json:"text"`
	WordCount   int      `json:"word_count"`
	Structural  float64  `json:"structural"`
	Density     float64  `json:"density"`
	Readability float64  `json:"readability"`
	ContentType string   `json:"content_type"`
	Terms       []string `json:"terms,omitempty"`
	Phrases     []string `json:"phrases,omitempty"`
	Relevance   float64  `json:"relevance"`
}

// Options controls chunk sizing, quality floors, and page balancing.
type Options struct {
	TargetDefault   int
	TargetEducation int
	TargetFinancial int
	Overlap         float64 // fraction of target carried across boundaries

	MinChars int
	MinWords int

	MinPerPage int
	MaxPerDoc  int
}

// OptionsFromConfig builds chunking options from runtime config.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		TargetDefault:   cfg.ChunkTargetDefault,
		TargetEducation: cfg.ChunkTargetEducation,
		TargetFinancial: cfg.ChunkTargetFinancial,
		Overlap:         cfg.ChunkOverlap,
		MinChars:        cfg.ChunkMinChars,
		MinWords:        cfg.ChunkMinWords,
		MinPerPage:      cfg.ChunkMinPerPage,
		MaxPerDoc:       cfg.ChunkMaxPerDoc,
	}
}

func (o Options) withDefaults() Options {
	if o.TargetDefault <= 0 {
		o.TargetDefault = 900
	}
	if o.TargetEducation <= 0 {
		o.TargetEducation = 1100
	}
	if o.TargetFinancial <= 0 {
		o.TargetFinancial = 1400
	}
	if o.Overlap <= 0 || o.Overlap >= 0.5 {
		o.Overlap = 0.15
	}
	if o.MinChars <= 0 {
		o.MinChars = 100
	}
	if o.MinWords <= 0 {
		o.MinWords = 15
	}
	if o.MinPerPage <= 0 {
		o.MinPerPage = 2
	}
	if o.MaxPerDoc <= 0 {
		o.MaxPerDoc = 300
	}
	return o
}

// Chunker splits text using content-aware sizing and semantic boundary
// preference.
type Chunker struct {
	opts Options
}

// New creates a Chunker; zero option fields fall back to defaults.
func New(opts Options) *Chunker {
	return &Chunker{opts: opts.withDefaults()}
}

// wordsPerPage estimates pages for formats that carry no page metadata.
const wordsPerPage = 300

// Chunk turns loaded sections into filtered, page-balanced chunks.
func (c *Chunker) Chunk(sections []loader.Section) []Chunk {
	if len(sections) == 0 {
		return nil
	}

	var full strings.Builder
	for _, s := range sections {
		full.WriteString(s.Text)
		full.WriteString("\n")
	}
	kind := classifyDocument(full.String())
	target := c.targetFor(kind)
	overlap := int(float64(target) * c.opts.Overlap)

	var raw []Chunk
	cumulativeWords := 0
	for _, section := range sections {
		text := normalize(section.Text)
		if text == "" {
			continue
		}
		for _, segment := range split(text, target, overlap) {
			page := section.Page
			if page <= 0 {
				page = cumulativeWords/wordsPerPage + 1
			}
			words := len(strings.Fields(segment))
			raw = append(raw, Chunk{
				Page:      page,
				Text:      segment,
				WordCount: words,
			})
			// Overlapping spans inflate the running count; discount the
			// overlap so page estimates track the source text.
			cumulativeWords += words - overlap/6
		}
	}

	for i := range raw {
		raw[i].Index = i
		enrich(&raw[i])
	}
	scoreNeighborRelevance(raw)

	kept := c.filter(raw)
	balanced := c.balance(kept)
	for i := range balanced {
		balanced[i].Index = i
	}
	return balanced
}

func (c *Chunker) targetFor(kind documentKind) int {
	switch kind {
	case kindFinancial:
		// Larger chunks keep calculations and their inputs together.
		return c.opts.TargetFinancial
	case kindEducational:
		// Medium chunks keep lesson boundaries intact.
		return c.opts.TargetEducation
	default:
		return c.opts.TargetDefault
	}
}

// filter drops chunks below the minimum length, word count, and
// readability thresholds. Every persisted chunk has non-trivial content.
func (c *Chunker) filter(chunks []Chunk) []Chunk {
	out := make([]Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if len(strings.TrimSpace(ch.Text)) < c.opts.MinChars {
			continue
		}
		if ch.WordCount < c.opts.MinWords {
			continue
		}
		if ch.Readability < 0.05 {
			continue
		}
		out = append(out, ch)
	}
	return out
}
