package studygen

import (
	"strings"
	"unicode/utf8"
)

// ChunkByTokens splits text into ordered pieces that fit a targetTokens
// budget. Cut points prefer a paragraph break past half the window, then a
// sentence end in the last 30% of the window, then the nearest preceding
// whitespace, and finally a hard cut at the budget. Every iteration consumes
// strictly positive length from the remainder, so the loop terminates for any
// input and any budget.
func ChunkByTokens(text string, targetTokens int, est TokenEstimation) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	budget := charBudget(targetTokens, est)
	r := []rune(trimmed)
	if len(r) <= budget {
		return []string{trimmed}
	}

	out := make([]string, 0, len(r)/budget+1)
	for len(r) > 0 {
		if len(r) <= budget {
			if piece := strings.TrimSpace(string(r)); piece != "" {
				out = append(out, piece)
			}
			break
		}
		cut := cutPoint(r, budget)
		if cut < 1 {
			// No viable split point below the target: hard cut. May split
			// mid-token, which is accepted rather than looping.
			cut = budget
		}
		if piece := strings.TrimSpace(string(r[:cut])); piece != "" {
			out = append(out, piece)
		}
		r = r[cut:]
	}
	return out
}

// cutPoint returns a split position in (0, budget], or 0 when only a hard cut
// remains. Callers guarantee budget < len(r).
func cutPoint(r []rune, budget int) int {
	// Paragraph break at or before the budget, accepted only past 50% of it.
	for i := budget; i >= 2; i-- {
		if r[i-1] == '\n' && r[i-2] == '\n' {
			if i > budget/2 {
				return i
			}
			break
		}
	}

	// Sentence end in the last 30% of the window.
	lo := budget - budget*3/10
	if lo < 1 {
		lo = 1
	}
	for i := budget; i > lo; i-- {
		if isSentenceEnd(r[i-1]) && isSpace(r[i]) {
			return i
		}
	}

	// Nearest preceding whitespace.
	for i := budget; i >= 1; i-- {
		if isSpace(r[i-1]) {
			return i
		}
	}
	return 0
}

func isSentenceEnd(c rune) bool {
	return c == '.' || c == '!' || c == '?'
}

func isSpace(c rune) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}

// ChunkByDocuments packs consecutive documents (rendered with their headers)
// greedily into chunks under the targetTokens budget. A document that alone
// exceeds the budget is never packed with others: the running buffer is
// flushed and the document is subdivided via ChunkByTokens.
func ChunkByDocuments(docs []Document, targetTokens int, est TokenEstimation) []string {
	budget := charBudget(targetTokens, est)

	var out []string
	var buf []string
	bufLen := 0
	flush := func() {
		if len(buf) > 0 {
			out = append(out, strings.Join(buf, "\n\n"))
			buf = nil
			bufLen = 0
		}
	}

	for _, d := range docs {
		block := renderDocument(d)
		n := utf8.RuneCountInString(block)
		if n > budget {
			flush()
			out = append(out, ChunkByTokens(block, targetTokens, est)...)
			continue
		}
		if len(buf) > 0 && bufLen+2+n > budget {
			flush()
		}
		if len(buf) > 0 {
			bufLen += 2
		}
		buf = append(buf, block)
		bufLen += n
	}
	flush()
	return out
}
