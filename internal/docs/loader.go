package docs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vocrag/internal/contextutil"
	"vocrag/internal/segment"
)

// File is a markdown document discovered under the docs root.
type File struct {
	// SourceID is the normalized relative path from the docs root, with
	// forward slashes. It doubles as the document's stable source id.
	SourceID string
	// AbsPath is the absolute path on disk.
	AbsPath string
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// Scan walks root and returns every markdown file, ordered by path so scan
// output is deterministic. Hidden directories are skipped.
func Scan(ctx context.Context, root string) ([]File, error) {
	var files []File

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %s: %w", path, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !isMarkdown(path) {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		files = append(files, File{
			SourceID: filepath.ToSlash(relPath),
			AbsPath:  path,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan docs root %s: %w", root, err)
	}
	return files, nil
}

// Load reads one file into a Document.
func Load(f File) (segment.Document, error) {
	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return segment.Document{}, fmt.Errorf("failed to read %s: %w", f.AbsPath, err)
	}
	return segment.Document{SourceID: f.SourceID, Text: string(content)}, nil
}

// LoadAll scans root and loads every markdown document. Unreadable files
// are logged and skipped so one bad file does not abort the batch.
func LoadAll(ctx context.Context, root string) ([]segment.Document, error) {
	logger := contextutil.LoggerFromContext(ctx)

	files, err := Scan(ctx, root)
	if err != nil {
		return nil, err
	}

	documents := make([]segment.Document, 0, len(files))
	for _, f := range files {
		doc, err := Load(f)
		if err != nil {
			logger.WarnContext(ctx, "skipping unreadable document", "source_id", f.SourceID, "error", err)
			continue
		}
		documents = append(documents, doc)
	}
	return documents, nil
}
