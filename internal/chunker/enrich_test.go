package chunker

import (
	"math"
	"testing"
)

func TestClassifyChunk(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"definition", "Photosynthesis is defined as the conversion of light into chemical energy.", ContentDefinition},
		{"procedure", "Step 1: open the valve. Step 2: check the gauge pressure reading.", ContentProcedure},
		{"comparison", "Mitosis differs in contrast to meiosis in the number of divisions.", ContentComparison},
		{"example", "Many metals conduct electricity, for example copper and aluminum.", ContentExample},
		{"financial", "Revenue rose while expense fell, improving quarterly profit overall.", ContentFinancial},
		{"general", "The weather was pleasant throughout the long afternoon walk.", ContentGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyChunk(tt.text); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStructuralScore(t *testing.T) {
	structured := "# Heading\n- first item\n- second item\n1. numbered\n2. another"
	prose := "Just one long paragraph of ordinary prose without any visible structure at all."
	if structuralScore(structured) <= structuralScore(prose) {
		t.Error("structured text should outscore flat prose")
	}
}

func TestReadabilityPrefersShorterSentences(t *testing.T) {
	short := "Cells divide. They grow. They specialize. Each has a role."
	long := "Cells divide and they grow and then they specialize and each of them eventually has a role in the organism which continues for the whole lifespan without interruption whatsoever in most cases observed."
	if readability(short) <= readability(long) {
		t.Error("short sentences should read better")
	}
}

func TestReadabilitySentenceBoundaries(t *testing.T) {
	// Terminal punctuation at the very end of the text closes the last
	// sentence, so two three-word sentences average three words.
	got := readability("Mitochondria supply energy. Ribosomes assemble proteins.")
	want := 1 / (1 + 3.0/20)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("readability = %f, want %f", got, want)
	}

	// A dollar sign is ordinary text, not a sentence terminator.
	got = readability("Fees total 40.$15 covers the lab manual.")
	want = 1 / (1 + 7.0/20)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("readability = %f, want %f", got, want)
	}
}

func TestSemanticDensityBoostsTechnicalTokens(t *testing.T) {
	technical := "Mitochondria synthesize adenosine triphosphate through oxidative phosphorylation pathways."
	repetitive := "the the the the and and and and of of of of"
	if semanticDensity(technical) <= semanticDensity(repetitive) {
		t.Error("technical text should be denser than stopword soup")
	}
}

func TestTechnicalTermsExtracted(t *testing.T) {
	text := "Photosynthesis converts sunlight. Photosynthesis requires chlorophyll. Chlorophyll absorbs wavelengths."
	terms := technicalTerms(text, 5)
	if len(terms) == 0 {
		t.Fatal("expected technical terms")
	}
	found := false
	for _, term := range terms {
		if term == "photosynthesis" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected photosynthesis among %v", terms)
	}
}

func TestNeighborRelevance(t *testing.T) {
	chunks := []Chunk{
		{Text: "glucose metabolism energy pathway cells"},
		{Text: "metabolism pathway glucose energy production"},
		{Text: "weather forecast rain umbrella tomorrow"},
	}
	scoreNeighborRelevance(chunks)
	if chunks[0].Relevance <= chunks[2].Relevance {
		t.Errorf("related neighbors should score higher: %f vs %f",
			chunks[0].Relevance, chunks[2].Relevance)
	}
}

func TestNormalizeInsertsHeadingBoundaries(t *testing.T) {
	got := normalize("intro text Section 2 begins here")
	if got == "intro text Section 2 begins here" {
		t.Error("expected paragraph break before heading marker")
	}
}
