package evalrun

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"vocrag/internal/contextutil"
)

// Query is one ground-truth evaluation case. RelevantSectionPaths hold
// canonicalized section paths ("A > B > C"); Keywords are an optional
// secondary relevance signal.
type Query struct {
	ID                   string   `json:"id,omitempty"`
	Query                string   `json:"query"`
	RelevantSectionPaths []string `json:"relevant_section_paths"`
	Keywords             []string `json:"keywords,omitempty"`
}

// LoadQueries reads one JSON object per line. Malformed lines and lines
// missing the required query field are skipped and counted, never a hard
// failure of the whole run. Returned queries get a positional id when the
// record carries none.
func LoadQueries(ctx context.Context, r io.Reader) ([]Query, int, error) {
	logger := contextutil.LoggerFromContext(ctx)

	var queries []Query
	skipped := 0
	lineNo := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var q Query
		if err := json.Unmarshal([]byte(line), &q); err != nil {
			skipped++
			logger.WarnContext(ctx, "skipping malformed query line", "line", lineNo, "error", err)
			continue
		}
		if strings.TrimSpace(q.Query) == "" {
			skipped++
			logger.WarnContext(ctx, "skipping query line with empty query", "line", lineNo)
			continue
		}
		if q.ID == "" {
			q.ID = fmt.Sprintf("line_%d", lineNo)
		}
		queries = append(queries, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("failed to read query set: %w", err)
	}
	return queries, skipped, nil
}
