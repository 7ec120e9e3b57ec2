package rerank

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_scorer.go -package=mocks vocrag/internal/rerank Scorer

import (
	"context"
	"regexp"
	"strings"
	"unicode"
)

// Scorer computes a joint query-chunk relevance score. A provider-backed
// implementation (cross-encoder model) satisfies the same interface as the
// built-in lexical heuristic; absence of a scorer disables reranking.
type Scorer interface {
	Score(ctx context.Context, query, chunkText, sectionPath string) (float64, error)
}

const (
	exactMatchWeight = 1.0
	pathMatchWeight  = 0.5
	bodyMatchWeight  = 0.25
	lengthScale      = 10.0
	maxLexicalScore  = 4.0
	minTokenLength   = 2
)

// LexicalScorer is a deterministic token-overlap relevance heuristic tuned
// for industrial messaging documentation: alphanumeric tokens (acronyms and
// message names like APC, CEID, S6F11, WORK_START_REQUEST) must match on
// token boundaries to avoid substring false positives, while Hangul tokens
// match by containment.
type LexicalScorer struct{}

// NewLexicalScorer creates the built-in lexical scorer.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// Score computes the lexical relevance of a chunk to a query. Scores are
// clamped to a fixed range so they stay comparable across chunks. Never
// fails.
func (s *LexicalScorer) Score(_ context.Context, query, chunkText, sectionPath string) (float64, error) {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return 0, nil
	}

	bodyUpper := strings.ToUpper(chunkText)
	pathUpper := strings.ToUpper(sectionPath)
	bodyTokenCount := len(strings.Fields(chunkText))

	var score float64
	for _, tok := range tokens {
		var inPath, inBody bool
		if isAlnumToken(tok) {
			pattern := boundaryPattern(tok)
			inPath = pattern.MatchString(pathUpper)
			inBody = pattern.MatchString(bodyUpper)
			if inPath || inBody {
				score += exactMatchWeight
			}
		} else {
			inPath = strings.Contains(pathUpper, tok)
			inBody = strings.Contains(bodyUpper, tok)
		}
		if inPath {
			score += pathMatchWeight
		}
		if inBody {
			score += bodyMatchWeight * bodyFrequency(bodyUpper, tok, bodyTokenCount)
		}
	}

	if score > maxLexicalScore {
		score = maxLexicalScore
	}
	if score < 0 {
		score = 0
	}
	return score, nil
}

// bodyFrequency normalizes repeated matches by chunk length so long chunks
// do not dominate on raw token counts.
func bodyFrequency(bodyUpper, token string, bodyTokenCount int) float64 {
	count := strings.Count(bodyUpper, token)
	if count == 0 {
		return 0
	}
	freq := float64(count) / (1 + float64(bodyTokenCount)) * lengthScale
	if freq > 1 {
		freq = 1
	}
	return freq
}

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_]+|[\x{AC00}-\x{D7A3}]+`)

// queryTokens extracts deduplicated, uppercased query tokens, preserving
// acronyms, message ids and Hangul runs.
func queryTokens(query string) []string {
	raw := tokenPattern.FindAllString(query, -1)
	seen := make(map[string]struct{}, len(raw))
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if len([]rune(t)) < minTokenLength {
			continue
		}
		upper := strings.ToUpper(t)
		if _, ok := seen[upper]; ok {
			continue
		}
		seen[upper] = struct{}{}
		tokens = append(tokens, upper)
	}
	return tokens
}

func isAlnumToken(tok string) bool {
	for _, r := range tok {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return tok != ""
}

// boundaryPattern matches tok only when not embedded in a longer
// alphanumeric run, so "APC" does not match "CAPCITY".
func boundaryPattern(tok string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|[^A-Z0-9_])` + regexp.QuoteMeta(tok) + `(?:$|[^A-Z0-9_])`)
}

var _ Scorer = (*LexicalScorer)(nil)
