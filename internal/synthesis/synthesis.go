// Package synthesis turns ranked chunks into a grounded, citable
// answer via the LLM, with intent-specific prompting.
package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"studykb/internal/intent"
	"studykb/internal/llm"
	"studykb/internal/retrieval"
)

// Reference ties a numbered citation back to its source.
type Reference struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	Page     int    `json:"page"`
}

// Answer is the synthesized response plus its citation table.
type Answer struct {
	Text       string      `json:"text"`
	References []Reference `json:"references"`
	Grounded   bool        `json:"grounded"`
}

// Synthesizer builds prompts and delegates generation to the LLM.
type Synthesizer struct {
	llm        llm.Client
	maxContext int
	log        *slog.Logger
}

// New builds a synthesizer. maxContext bounds the total characters of
// chunk text placed in a prompt.
func New(client llm.Client, maxContext int, log *slog.Logger) *Synthesizer {
	return &Synthesizer{llm: client, maxContext: maxContext, log: log}
}

const basePrompt = `You are a study assistant answering strictly from the provided course material.
Cite sources inline using the bracketed reference markers exactly as given, e.g. [Reference 1 - Page 3].
If the material does not answer the question, say so plainly. Never invent content.`

// intentGuidance appends per-intent shaping on top of the base prompt.
var intentGuidance = map[string]string{
	intent.Definition:      "Open with a one-sentence definition, then elaborate briefly.",
	intent.Explanation:     "Explain step by step, building from the simplest idea to the full picture.",
	intent.Procedure:       "Answer as a numbered list of steps in the order they must be performed.",
	intent.Comparison:      "Structure the answer around the points of difference and similarity.",
	intent.Troubleshooting: "Identify the likely cause first, then the fix, then how to verify it.",
	intent.Summary:         "Give a compact summary of the main points as a short bulleted list.",
	intent.Financial:       "Quote exact figures from the material and name the period they refer to.",
	intent.Comprehensive:   "Cover every relevant aspect found in the material, organized by topic.",
}

// Synthesize produces an answer for the query from the retrieved items.
// With no items it returns an ungrounded fallback that names the
// documents available, without calling the LLM.
func (s *Synthesizer) Synthesize(ctx context.Context, query, queryIntent string, items []retrieval.Result, availableDocs []string) (Answer, error) {
	if len(items) == 0 {
		return Answer{Text: noContentAnswer(availableDocs)}, nil
	}

	prompt, refs := s.buildPrompt(query, items)
	system := basePrompt
	if guidance, ok := intentGuidance[queryIntent]; ok {
		system += "\n" + guidance
	}

	text, err := s.llm.Complete(ctx, system, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("synthesize answer: %w", err)
	}
	return Answer{Text: text, References: refs, Grounded: true}, nil
}

// buildPrompt assembles the context window, cutting off once the
// character budget is spent. References number only what made it in.
func (s *Synthesizer) buildPrompt(query string, items []retrieval.Result) (string, []Reference) {
	var b strings.Builder
	var refs []Reference
	used := 0

	b.WriteString("Course material:\n\n")
	for _, item := range items {
		if s.maxContext > 0 && used+len(item.Chunk.Text) > s.maxContext && len(refs) > 0 {
			break
		}
		n := len(refs) + 1
		fmt.Fprintf(&b, "[Reference %d - Page %d] (%s)\n%s\n\n", n, item.Chunk.Page, item.Filename, item.Chunk.Text)
		used += len(item.Chunk.Text)
		refs = append(refs, Reference{Index: n, Filename: item.Filename, Page: item.Chunk.Page})
	}

	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String(), refs
}

func noContentAnswer(availableDocs []string) string {
	if len(availableDocs) == 0 {
		return "I couldn't find relevant content for your question, and no documents have been uploaded yet. Upload course material and try again."
	}
	return fmt.Sprintf(
		"I couldn't find content relevant to your question in the uploaded material. Documents available: %s. Try rephrasing, or ask about one of these documents.",
		strings.Join(availableDocs, ", "),
	)
}

// GreetingReply answers conversational openers without touching the
// index or the LLM.
func GreetingReply() Answer {
	return Answer{Text: "Hello! Ask me anything about your uploaded course material and I'll answer with cited references."}
}
