package loader

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
		wantErr  bool
	}{
		{"notes.pdf", FormatPDF, false},
		{"Lecture 3.DOCX", FormatDOCX, false},
		{"legacy.doc", FormatDOC, false},
		{"readme.md", FormatMarkdown, false},
		{"syllabus.txt", FormatText, false},
		{"export.rtf", FormatRTF, false},
		{"grades.csv", FormatCSV, false},
		{"photo.png", "", true},
		{"noextension", "", true},
	}
	for _, tt := range tests {
		got, err := DetectFormat(tt.filename)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("%s: expected ErrUnsupportedFormat, got %v", tt.filename, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.filename, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.filename, got, tt.want)
		}
	}
}

func TestLoadPlainText(t *testing.T) {
	sections, err := Load("notes.txt", []byte("Section 1: Intro.\n\nSection 2: Details."))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(sections))
	}
	if !strings.Contains(sections[0].Text, "Section 2") {
		t.Error("expected full text in section")
	}
	if sections[0].Page != 0 {
		t.Errorf("plain text has no page info, got page %d", sections[0].Page)
	}
}

func TestLoadEmptyDocument(t *testing.T) {
	_, err := Load("empty.txt", []byte("   \n\t "))
	if !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestLoadUnsupported(t *testing.T) {
	_, err := Load("slides.pptx", []byte("ignored"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestLoadDOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Lesson 1: Photosynthesis basics.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Plants convert light into energy.</w:t></w:r></w:p>
  </w:body>
</w:document>`))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	sections, err := Load("bio.docx", buf.Bytes())
	if err != nil {
		t.Fatalf("load docx: %v", err)
	}
	text := sections[0].Text
	if !strings.Contains(text, "Photosynthesis basics") {
		t.Errorf("missing first paragraph: %q", text)
	}
	if !strings.Contains(text, "light into energy") {
		t.Errorf("missing second paragraph: %q", text)
	}
	if !strings.Contains(text, "\n\n") {
		t.Error("expected paragraph break between <w:p> elements")
	}
}

func TestLoadRTF(t *testing.T) {
	rtf := `{\rtf1\ansi{\fonttbl{\f0 Arial;}}\f0\fs24 Chapter 1 covers revenue.\par It also covers expenses.}`
	sections, err := Load("report.rtf", []byte(rtf))
	if err != nil {
		t.Fatalf("load rtf: %v", err)
	}
	text := sections[0].Text
	if !strings.Contains(text, "Chapter 1 covers revenue.") {
		t.Errorf("control words leaked into text: %q", text)
	}
	if !strings.Contains(text, "It also covers expenses.") {
		t.Errorf("missing text after \\par: %q", text)
	}
	if strings.Contains(text, "rtf1") || strings.Contains(text, "fonttbl") {
		t.Errorf("rtf markup not stripped: %q", text)
	}
}

func TestLoadCSV(t *testing.T) {
	csvData := "name,score\nalice,90\nbob,85\n"
	sections, err := Load("grades.csv", []byte(csvData))
	if err != nil {
		t.Fatalf("load csv: %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(sections))
	}
	if sections[0].Page != 1 {
		t.Errorf("csv sections are paged, got page %d", sections[0].Page)
	}
	if !strings.Contains(sections[0].Text, "name: alice") {
		t.Errorf("expected header-labeled fields: %q", sections[0].Text)
	}
}

func TestLoadCSVPagination(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,value\n")
	for i := 0; i < 120; i++ {
		b.WriteString("1,x\n")
	}
	sections, err := Load("big.csv", []byte(b.String()))
	if err != nil {
		t.Fatal(err)
	}
	if len(sections) != 3 {
		t.Fatalf("expected 3 sections for 120 rows, got %d", len(sections))
	}
	if sections[2].Page != 3 {
		t.Errorf("expected page 3, got %d", sections[2].Page)
	}
}

func TestLoadDOCKeepsPrintableRuns(t *testing.T) {
	content := append([]byte{0x00, 0x01, 0x02}, []byte("This sentence is long enough to count as real document text.")...)
	content = append(content, 0x00, 0x03)
	sections, err := Load("legacy.doc", content)
	if err != nil {
		t.Fatalf("load doc: %v", err)
	}
	if !strings.Contains(sections[0].Text, "real document text") {
		t.Errorf("printable run lost: %q", sections[0].Text)
	}
}
