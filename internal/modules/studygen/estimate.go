package studygen

import (
	"math"
	"unicode/utf8"
)

func (e TokenEstimation) charsPerToken() float64 {
	if e.CharsPerToken <= 0 {
		return 4
	}
	return e.CharsPerToken
}

func (e TokenEstimation) overhead() float64 {
	if e.OverheadMultiplier <= 0 {
		return 1
	}
	return e.OverheadMultiplier
}

// EstimateTextTokens estimates the token count of a string: rune count divided
// by the chars-per-token ratio, padded by the overhead multiplier, rounded up.
// Pure and deterministic; good enough for budgeting, not for billing.
func EstimateTextTokens(text string, est TokenEstimation) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / est.charsPerToken() * est.overhead()))
}

// EstimateTokens estimates the token count of content, summing across
// documents (headers included) for document sets.
func EstimateTokens(c Content, est TokenEstimation) int {
	n := c.Chars()
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / est.charsPerToken() * est.overhead()))
}

// MaxProcessableTokens is the planning ceiling for a tier: the raw token count
// the pipeline is willing to take on. One full map pass handles
// chunkSize*maxChunks tokens; every allowed summarization round is assumed to
// shrink content by the compression factor, so each depth level multiplies the
// ceiling by it. This bounds expected total cost, it is not a technical limit.
func MaxProcessableTokens(p TierPolicy) int {
	compression := p.SummarizationCompression
	if compression <= 1 {
		compression = 3
	}
	ceiling := float64(p.ChunkSize) * float64(p.MaxChunks)
	for d := 0; d < p.MaxDepth; d++ {
		ceiling *= compression
	}
	return int(ceiling)
}

// charBudget converts a token target into the rune budget the chunker cuts by.
func charBudget(targetTokens int, est TokenEstimation) int {
	b := int(float64(targetTokens) * est.charsPerToken())
	if b < 1 {
		b = 1
	}
	return b
}
