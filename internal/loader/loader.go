// Package loader normalizes uploaded documents into (text, page) units.
package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Section is a normalized unit of loaded text. Page is 1-based for paged
// formats and 0 when the format carries no page information; the chunker
// estimates pages for those.
type Section struct {
	Text string
	Page int
}

// Format is a detected document format.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatDOC      Format = "doc"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatRTF      Format = "rtf"
	FormatCSV      Format = "csv"
)

var (
	// ErrUnsupportedFormat means the file extension maps to no parser.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmptyDocument means parsing succeeded but yielded no usable text.
	ErrEmptyDocument = errors.New("document contains no extractable text")

	// ErrFileTooLarge means the upload exceeds the configured size cap.
	// The loader never enforces it; intake does, before bytes are staged.
	ErrFileTooLarge = errors.New("file exceeds the maximum upload size")
)

var formatByExt = map[string]Format{
	".pdf":      FormatPDF,
	".docx":     FormatDOCX,
	".doc":      FormatDOC,
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".rtf":      FormatRTF,
	".csv":      FormatCSV,
}

// DetectFormat maps a filename to its document format.
func DetectFormat(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	format, ok := formatByExt[ext]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	return format, nil
}

// Supported reports whether the filename maps to a known parser.
func Supported(filename string) bool {
	_, err := DetectFormat(filename)
	return err == nil
}

// Load parses content according to the filename's format and returns its
// sections in document order. It fails fast with ErrUnsupportedFormat or
// ErrEmptyDocument.
func Load(filename string, content []byte) ([]Section, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}

	var sections []Section
	switch format {
	case FormatPDF:
		sections, err = loadPDF(content)
	case FormatDOCX:
		sections, err = loadDOCX(content)
	case FormatDOC:
		sections, err = loadDOC(content)
	case FormatRTF:
		sections, err = loadRTF(content)
	case FormatCSV:
		sections, err = loadCSV(content)
	default:
		sections, err = loadText(content)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", format, err)
	}

	sections = dropBlank(sections)
	if len(sections) == 0 {
		return nil, ErrEmptyDocument
	}
	return sections, nil
}

func dropBlank(sections []Section) []Section {
	out := sections[:0]
	for _, s := range sections {
		if strings.TrimSpace(s.Text) != "" {
			out = append(out, s)
		}
	}
	return out
}
