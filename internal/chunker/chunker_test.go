package chunker

import (
	"fmt"
	"strings"
	"testing"

	"studykb/internal/loader"
)

func sentences(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Sentence number %d explains another distinct concept about photosynthesis and cellular respiration in detail. ", i)
	}
	return b.String()
}

func TestChunkPlainTextDocument(t *testing.T) {
	// Roughly 9000 characters of plain text must yield at least 6 chunks
	// of at least 100 characters each.
	text := sentences(85)
	if len(text) < 9000 {
		t.Fatalf("fixture too small: %d chars", len(text))
	}
	c := New(Options{})
	chunks := c.Chunk([]loader.Section{{Text: text}})

	if len(chunks) < 6 {
		t.Fatalf("expected at least 6 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch.Text) < 100 {
			t.Errorf("chunk %d below 100 chars: %d", i, len(ch.Text))
		}
		if ch.Index != i {
			t.Errorf("chunk %d carries index %d", i, ch.Index)
		}
		if ch.Page <= 0 {
			t.Errorf("chunk %d has no page estimate", i)
		}
		if ch.WordCount == 0 {
			t.Errorf("chunk %d has zero word count", i)
		}
	}
}

func TestChunkOverlapCoversBoundaries(t *testing.T) {
	text := sentences(60)
	c := New(Options{TargetDefault: 600, Overlap: 0.2})
	chunks := c.Chunk([]loader.Section{{Text: text}})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1].Text[len(chunks[i-1].Text)/2:]
		head := chunks[i].Text[:len(chunks[i].Text)/2]
		if !sharesWords(prevTail, head) {
			t.Errorf("no overlap between chunk %d and %d", i-1, i)
		}
	}
}

func sharesWords(a, b string) bool {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(a) {
		set[w] = struct{}{}
	}
	shared := 0
	for _, w := range strings.Fields(b) {
		if _, ok := set[w]; ok {
			shared++
		}
	}
	return shared >= 3
}

func TestChunkEmptyInput(t *testing.T) {
	c := New(Options{})
	if got := c.Chunk(nil); len(got) != 0 {
		t.Errorf("expected no chunks for nil input, got %d", len(got))
	}
	if got := c.Chunk([]loader.Section{{Text: "   "}}); len(got) != 0 {
		t.Errorf("expected no chunks for blank input, got %d", len(got))
	}
}

func TestChunkKeepsPagedAssociation(t *testing.T) {
	c := New(Options{})
	sectionsIn := []loader.Section{
		{Text: sentences(20), Page: 1},
		{Text: sentences(20), Page: 2},
		{Text: sentences(20), Page: 3},
	}
	chunks := c.Chunk(sectionsIn)
	pages := map[int]bool{}
	for _, ch := range chunks {
		pages[ch.Page] = true
	}
	for p := 1; p <= 3; p++ {
		if !pages[p] {
			t.Errorf("page %d produced no chunks", p)
		}
	}
}

func TestChunkDropsTrivialFragments(t *testing.T) {
	c := New(Options{MinChars: 100, MinWords: 15})
	chunks := c.Chunk([]loader.Section{{Text: "Too short."}})
	if len(chunks) != 0 {
		t.Fatalf("expected trivial text to be filtered, got %d chunks", len(chunks))
	}
}

func TestSectionMarkerStartsChunk(t *testing.T) {
	text := sentences(10) + "\n\nSection 3: Overview\n" + sentences(10)
	c := New(Options{TargetDefault: 500})
	chunks := c.Chunk([]loader.Section{{Text: text}})

	found := false
	for _, ch := range chunks {
		if strings.Contains(ch.Text, "Section 3: Overview") {
			found = true
		}
	}
	if !found {
		t.Fatal("section marker lost during chunking")
	}
}

func TestFinancialContentGetsLargerChunks(t *testing.T) {
	var fin strings.Builder
	for i := 0; i < 60; i++ {
		fin.WriteString("Quarterly revenue exceeded expense because every asset on the balance sheet appreciated while each liability shrank during the fiscal period under review. ")
	}
	c := New(Options{TargetDefault: 600, TargetFinancial: 1200})

	finChunks := c.Chunk([]loader.Section{{Text: fin.String()}})
	genChunks := c.Chunk([]loader.Section{{Text: sentences(60)}})

	if len(finChunks) == 0 || len(genChunks) == 0 {
		t.Fatal("expected chunks from both inputs")
	}
	if avgLen(finChunks) <= avgLen(genChunks) {
		t.Errorf("financial chunks (%d avg) should be larger than general (%d avg)",
			avgLen(finChunks), avgLen(genChunks))
	}
}

func avgLen(chunks []Chunk) int {
	total := 0
	for _, c := range chunks {
		total += len(c.Text)
	}
	return total / len(chunks)
}

func TestBalanceCapsDominantPage(t *testing.T) {
	c := New(Options{MaxPerDoc: 12, MinPerPage: 2})
	var chunks []Chunk
	// Page 1 floods with 30 chunks; pages 2 and 3 have 4 each.
	for i := 0; i < 30; i++ {
		chunks = append(chunks, Chunk{Index: i, Page: 1, Text: "x", Density: 0.5})
	}
	for i := 0; i < 4; i++ {
		chunks = append(chunks, Chunk{Index: 30 + i, Page: 2, Text: "x", Density: 0.4})
		chunks = append(chunks, Chunk{Index: 40 + i, Page: 3, Text: "x", Density: 0.4})
	}
	out := c.balance(chunks)
	if len(out) > 12 {
		t.Fatalf("cap exceeded: %d", len(out))
	}
	perPage := map[int]int{}
	for _, ch := range out {
		perPage[ch.Page]++
	}
	if perPage[2] < 2 || perPage[3] < 2 {
		t.Errorf("minimum per page not honored: %v", perPage)
	}
}
