package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"unicode"
)

// docx files are zip archives; the body lives in word/document.xml as
// runs of <w:t> text inside <w:p> paragraphs.

func loadDOCX(content []byte) ([]Section, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, errors.New("word/document.xml not found")
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	text, err := extractDocxText(rc)
	if err != nil {
		return nil, err
	}
	return []Section{{Text: text}}, nil
}

func extractDocxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n\n")
			case "br", "tab":
				b.WriteString(" ")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

// loadDOC handles the legacy binary Word format with a best-effort scan
// for printable text runs. Real .doc parsing needs the OLE compound
// format; runs of readable characters are good enough for indexing.
func loadDOC(content []byte) ([]Section, error) {
	var b strings.Builder
	var run []rune
	flush := func() {
		// Short runs are almost always binary noise.
		if len(run) >= 24 {
			b.WriteString(string(run))
			b.WriteString("\n")
		}
		run = run[:0]
	}
	for _, c := range string(content) {
		if unicode.IsPrint(c) || c == ' ' {
			run = append(run, c)
			continue
		}
		flush()
	}
	flush()
	return []Section{{Text: b.String()}}, nil
}
