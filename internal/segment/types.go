package segment

// Document is a source document presented for segmentation.
type Document struct {
	// SourceID identifies the originating document (e.g. a normalized
	// relative path like "glossary/amhs.md").
	SourceID string
	// Text is the raw markdown content.
	Text string
}

// Chunk is the indexable unit produced by the Segmenter.
type Chunk struct {
	// ID is derived deterministically from SourceID, SectionPath and
	// Ordinal, so re-segmenting unchanged content yields identical IDs.
	ID string
	// SourceID is the originating document id.
	SourceID string
	// SectionPath is the heading hierarchy from the document root to the
	// chunk's section, titles joined with " > " (e.g. "Glossary > AMHS").
	SectionPath string
	// Ordinal is the chunk's position within the document, starting at 0.
	Ordinal int
	// Text is the chunk content. Never empty.
	Text string
}

// PathDelimiter joins section titles into a section path. Evaluation
// ground truth compares against paths canonicalized with this delimiter.
const PathDelimiter = " > "
