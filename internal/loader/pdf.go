package loader

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
)

// loadPDF extracts plain text per page so downstream chunks keep a real
// page association.
func loadPDF(content []byte) ([]Section, error) {
	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return nil, err
	}

	var sections []Section
	numPages := pdfReader.NumPage()
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Pages that fail to extract are skipped, not fatal.
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		sections = append(sections, Section{Text: text, Page: pageNum})
	}
	return sections, nil
}
