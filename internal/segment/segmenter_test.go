package segment

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSegmentSectionPaths(t *testing.T) {
	s := New(Config{MinChunkRunes: 1})

	doc := Document{
		SourceID: "glossary.md",
		Text: "# Glossary\n\n## AMHS\n\nAutomated Material Handling System moves carriers between equipment.\n\n" +
			"## APC\n\nAdvanced Process Control adjusts recipe parameters per run.\n",
	}

	chunks, err := s.Segment(doc)
	if err != nil {
		t.Fatalf("Segment() unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("Segment() returned %d chunks, want 2", len(chunks))
	}
	if chunks[0].SectionPath != "Glossary > AMHS" {
		t.Errorf("chunk 0 section path = %q, want %q", chunks[0].SectionPath, "Glossary > AMHS")
	}
	if chunks[1].SectionPath != "Glossary > APC" {
		t.Errorf("chunk 1 section path = %q, want %q", chunks[1].SectionPath, "Glossary > APC")
	}
	for i, c := range chunks {
		if c.SourceID != "glossary.md" {
			t.Errorf("chunk %d source id = %q", i, c.SourceID)
		}
		if c.Ordinal != i {
			t.Errorf("chunk %d ordinal = %d", i, c.Ordinal)
		}
		if c.Text == "" {
			t.Errorf("chunk %d has empty text", i)
		}
	}
}

func TestSegmentDeterministic(t *testing.T) {
	s := New(Config{})
	doc := Document{
		SourceID: "doc.md",
		Text:     "# A\n\nFirst section body with enough text to stand on its own as a chunk.\n\n## B\n\nSecond section body, also long enough to avoid any merging behavior here.\n",
	}

	first, err := s.Segment(doc)
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}
	second, err := s.Segment(doc)
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs:\n%+v\n%+v", i, first[i], second[i])
		}
	}
}

func TestSegmentMalformedDocument(t *testing.T) {
	s := New(Config{})

	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "whitespace only", text: "   \n\t\n"},
		{name: "headings without body", text: "# Title\n\n## Empty\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Segment(Document{SourceID: "bad.md", Text: tt.text})
			if !errors.Is(err, ErrMalformedDocument) {
				t.Errorf("Segment() error = %v, want ErrMalformedDocument", err)
			}
		})
	}
}

func TestSegmentSplitsLongSection(t *testing.T) {
	s := New(Config{MaxChunkRunes: 200})

	paragraph := strings.Repeat("Carrier transfer retries are logged per stocker port. ", 20)
	doc := Document{
		SourceID: "long.md",
		Text:     "# Troubleshooting\n\n## Transfer Errors\n\n" + paragraph,
	}

	chunks, err := s.Segment(doc)
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected long section to split, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if c.SectionPath != "Troubleshooting > Transfer Errors" {
			t.Errorf("chunk %d path = %q, split parts must keep the section path", i, c.SectionPath)
		}
		if utf8.RuneCountInString(c.Text) > 200 {
			t.Errorf("chunk %d has %d runes, exceeds max", i, utf8.RuneCountInString(c.Text))
		}
	}
}

func TestSegmentNeverMergesAcrossTopLevelSections(t *testing.T) {
	// Both sections are below the min size; they still must not merge
	// because they belong to different top-level sections.
	s := New(Config{MinChunkRunes: 500})
	doc := Document{
		SourceID: "two.md",
		Text:     "# First\n\nshort one\n\n# Second\n\nshort two\n",
	}

	chunks, err := s.Segment(doc)
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].SectionPath == chunks[1].SectionPath {
		t.Errorf("chunks share section path %q, must stay separate", chunks[0].SectionPath)
	}
}

func TestSegmentMergesSameSectionRuns(t *testing.T) {
	s := New(Config{MinChunkRunes: 100, MaxChunkRunes: 2000})
	doc := Document{
		SourceID: "merge.md",
		Text:     "# Setup\n\nShort intro.\n\nSecond paragraph under the same heading with more detail about host configuration.\n",
	}

	chunks, err := s.Segment(doc)
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected same-section content to merge into 1 chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Text, "Short intro.") || !strings.Contains(chunks[0].Text, "host configuration") {
		t.Errorf("merged chunk missing content: %q", chunks[0].Text)
	}
}

func TestSegmentPreambleBeforeHeading(t *testing.T) {
	s := New(Config{MinChunkRunes: 1})
	doc := Document{
		SourceID: "pre.md",
		Text:     "Intro text before any heading.\n\n# Body\n\nActual section content here.\n",
	}

	chunks, err := s.Segment(doc)
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].SectionPath != "(Untitled)" {
		t.Errorf("preamble path = %q, want (Untitled)", chunks[0].SectionPath)
	}
	if chunks[1].SectionPath != "Body" {
		t.Errorf("section path = %q, want Body", chunks[1].SectionPath)
	}
}

func TestStableIDDistinguishesInputs(t *testing.T) {
	a := stableID("doc.md", "A > B", 0)
	b := stableID("doc.md", "A > B", 1)
	c := stableID("other.md", "A > B", 0)

	if a == b || a == c {
		t.Errorf("stable ids collide: %s %s %s", a, b, c)
	}
	if a != stableID("doc.md", "A > B", 0) {
		t.Error("stableID is not deterministic")
	}
}

func TestSegmentTableContent(t *testing.T) {
	s := New(Config{MinChunkRunes: 1})
	doc := Document{
		SourceID: "table.md",
		Text:     "# Messages\n\n| ID | Name |\n|----|------|\n| S6F11 | Event Report |\n",
	}

	chunks, err := s.Segment(doc)
	if err != nil {
		t.Fatalf("Segment() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Text, "S6F11 | Event Report") {
		t.Errorf("table rows not flattened into chunk text: %q", chunks[0].Text)
	}
}
