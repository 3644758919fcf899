package chunker

import (
	"regexp"
	"strings"
)

type documentKind int

const (
	kindGeneral documentKind = iota
	kindEducational
	kindFinancial
)

var (
	financialPattern   = regexp.MustCompile(`(?i)\b(revenue|expense|profit|balance sheet|cash flow|liabilit|asset|deprecia|invoice|fiscal|quarterly)\b|\$\d`)
	educationalPattern = regexp.MustCompile(`(?i)\b(lesson|chapter|syllabus|homework|quiz|exam|lecture|course|student|curriculum)\b`)

	// headingPattern matches section/numbering markers that should start
	// on their own paragraph even when source whitespace was lost.
	headingPattern = regexp.MustCompile(`(?i)(section|chapter|lesson|unit|module|part|appendix)\s+\d+`)
	numberedItem   = regexp.MustCompile(`(?m)^\s*\d{1,3}[.)]\s`)
)

// classifyDocument picks a content kind from term frequency so chunk
// sizing can preserve calculation or lesson context.
func classifyDocument(text string) documentKind {
	sample := text
	if len(sample) > 20000 {
		sample = sample[:20000]
	}
	fin := len(financialPattern.FindAllString(sample, 12))
	edu := len(educationalPattern.FindAllString(sample, 12))
	switch {
	case fin >= 5 && fin >= edu:
		return kindFinancial
	case edu >= 5:
		return kindEducational
	default:
		return kindGeneral
	}
}

var multiSpace = regexp.MustCompile(`[ \t]+`)
var multiNewline = regexp.MustCompile(`\n{3,}`)

// normalize collapses whitespace and re-inserts paragraph boundaries
// around heading and numbering patterns.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = multiSpace.ReplaceAllString(text, " ")

	// A heading buried mid-line starts its own paragraph.
	text = headingPattern.ReplaceAllStringFunc(text, func(m string) string {
		return "\n\n" + m
	})
	text = strings.TrimSpace(multiNewline.ReplaceAllString(text, "\n\n"))
	return text
}

// separators ordered by preference: section markers first, then
// domain markers, paragraph, sentence, whitespace.
var separators = []string{
	"\n\nSection ",
	"\n\nChapter ",
	"\n\nLesson ",
	"\n\nUnit ",
	"\n\nModule ",
	"\n\n",
	"\n",
	". ",
	"; ",
	" ",
}

// split produces overlapping segments of about target characters,
// cutting at the earliest separator in preference order that keeps the
// segment within the target.
func split(text string, target, overlap int) []string {
	if target <= 0 {
		target = 900
	}
	if overlap < 0 || overlap >= target {
		overlap = target / 6
	}
	var segments []string
	pos := 0
	for pos < len(text) {
		end := pos + target
		if end >= len(text) {
			segments = append(segments, strings.TrimSpace(text[pos:]))
			break
		}
		cut := cutPoint(text[pos:end], target)
		segment := strings.TrimSpace(text[pos : pos+cut])
		if segment != "" {
			segments = append(segments, segment)
		}
		next := pos + cut - overlap
		if next <= pos {
			next = pos + cut
		}
		pos = next
	}
	return segments
}

// cutPoint finds where to cut a window of text. Separators are tried in
// preference order; the last occurrence past the halfway mark wins so
// chunks stay reasonably full.
func cutPoint(window string, target int) int {
	minCut := target / 2
	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx >= minCut {
			if sep == ". " || sep == "; " {
				// Keep the terminator with the preceding sentence.
				return idx + len(sep) - 1
			}
			return idx
		}
	}
	return len(window)
}
