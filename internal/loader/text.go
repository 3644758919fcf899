package loader

import (
	"bytes"
	"encoding/csv"
	"strings"
	"unicode"
)

func loadText(content []byte) ([]Section, error) {
	return []Section{{Text: string(content)}}, nil
}

// rtf groups and control words ({\b, \par, ...) are stripped; \par and
// \line become paragraph breaks so chunk boundaries survive.
func loadRTF(content []byte) ([]Section, error) {
	var b strings.Builder
	text := string(content)
	i := 0
	for i < len(text) {
		c := text[i]
		switch c {
		case '{', '}':
			i++
		case '\\':
			word, rest := readControlWord(text[i+1:])
			switch word {
			case "par", "line", "sect", "page":
				b.WriteString("\n\n")
			case "tab", "cell":
				b.WriteString(" ")
			case "'":
				// Hex escape: \'xx consumes two hex digits.
				if len(rest) >= 2 {
					rest = rest[2:]
				}
			}
			i = len(text) - len(rest)
		case '\r', '\n':
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return []Section{{Text: b.String()}}, nil
}

// readControlWord consumes an RTF control word or symbol and returns
// (word, remaining text). A trailing space after the word is part of it.
func readControlWord(s string) (string, string) {
	if s == "" {
		return "", s
	}
	if !isRTFLetter(rune(s[0])) {
		// Control symbol: single non-letter character.
		return string(s[0]), s[1:]
	}
	i := 0
	for i < len(s) && isRTFLetter(rune(s[i])) {
		i++
	}
	word := s[:i]
	// Optional numeric parameter.
	for i < len(s) && (s[i] == '-' || unicode.IsDigit(rune(s[i]))) {
		i++
	}
	// A single delimiting space belongs to the control word.
	if i < len(s) && s[i] == ' ' {
		i++
	}
	return word, s[i:]
}

func isRTFLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// csvRowsPerSection groups CSV rows into page-sized sections so large
// sheets still get page-diverse chunks.
const csvRowsPerSection = 50

func loadCSV(content []byte) ([]Section, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	var sections []Section
	var b strings.Builder
	rows := 0
	page := 1
	flush := func() {
		if rows > 0 {
			sections = append(sections, Section{Text: b.String(), Page: page})
			page++
		}
		b.Reset()
		rows = 0
	}
	for _, record := range records[1:] {
		for i, field := range record {
			if strings.TrimSpace(field) == "" {
				continue
			}
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				b.WriteString(header[i])
				b.WriteString(": ")
			}
			b.WriteString(field)
			b.WriteString(". ")
		}
		b.WriteString("\n")
		rows++
		if rows == csvRowsPerSection {
			flush()
		}
	}
	flush()
	return sections, nil
}
