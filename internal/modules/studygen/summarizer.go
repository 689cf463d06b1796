package studygen

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kaanbsaglam/studyai-backend/internal/platform/logger"
	"github.com/kaanbsaglam/studyai-backend/internal/platform/openai"
)

// Summarizer collapses oversized text into something under the chunk-size
// budget via rounds of chunk-then-summarize, bounded by the tier's max depth.
type Summarizer struct {
	AI  openai.Client
	Log *logger.Logger
}

// SummarizeResult reports the compressed text and what it cost. Truncated is
// set when the depth bound (or the chunk cap) forced verbatim data loss; that
// is surfaced as a warning by callers, never as an error.
type SummarizeResult struct {
	Text       string
	TokensUsed int
	Truncated  bool
	Rounds     int
}

const summarizeSystem = "You compress study material without losing the information the caller cares about. Output the compressed text only, no preamble."

// Summarize runs one round of chunk-then-summarize and recurses at depth+1
// while the concatenated result still exceeds the chunk budget. Depth is
// bounded by the policy, not by the call stack: past MaxDepth the text is
// truncated instead. A single piece's generation failure substitutes a
// verbatim excerpt of that piece; only context cancellation aborts the round.
func (s *Summarizer) Summarize(ctx context.Context, text, focus string, depth int, policy TierPolicy) (SummarizeResult, error) {
	est := policy.TokenEstimation
	res := SummarizeResult{Text: text}

	if EstimateTextTokens(text, est) <= policy.ChunkSize {
		return res, nil
	}
	if depth > policy.MaxDepth {
		res.Text = truncateRunes(text, charBudget(policy.ChunkSize, est))
		res.Truncated = true
		return res, nil
	}

	pieces := ChunkByTokens(text, policy.ChunkSize, est)
	if len(pieces) > policy.MaxChunks {
		pieces = pieces[:policy.MaxChunks]
		res.Truncated = true
	}

	model := policy.ModelsForDepth(depth).MapModel
	summaries := make([]string, len(pieces))
	tokens := make([]int, len(pieces))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(policy.ParallelLimit, 1))
	for i, piece := range pieces {
		i, piece := i, piece
		g.Go(func() error {
			gen, err := s.AI.Generate(gctx, openai.GenerateRequest{
				System: summarizeSystem,
				Prompt: summarizePrompt(piece, focus),
				Model:  model,
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if s.Log != nil {
					s.Log.Warn("piece summarization failed, substituting excerpt", "depth", depth, "piece", i, "error", err)
				}
				summaries[i] = pieceExcerpt(piece, policy)
				return nil
			}
			summaries[i] = strings.TrimSpace(gen.Text)
			tokens[i] = gen.TokensUsed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	for _, t := range tokens {
		res.TokensUsed += t
	}
	res.Rounds = 1

	joined := joinNonEmpty(summaries)
	if EstimateTextTokens(joined, est) > policy.ChunkSize {
		deeper, err := s.Summarize(ctx, joined, focus, depth+1, policy)
		if err != nil {
			return res, err
		}
		res.Text = deeper.Text
		res.TokensUsed += deeper.TokensUsed
		res.Truncated = res.Truncated || deeper.Truncated
		res.Rounds += deeper.Rounds
		return res, nil
	}
	res.Text = joined
	return res, nil
}

func summarizePrompt(piece, focus string) string {
	if strings.TrimSpace(focus) == "" {
		focus = "the main ideas and concrete facts"
	}
	return fmt.Sprintf(`PRESERVE: %s

MATERIAL:
%s

Task:
- Rewrite the material at roughly a third of its length.
- Keep everything described under PRESERVE; drop filler and repetition.
- Output the compressed text only.`, focus, piece)
}

// pieceExcerpt is the failure substitute: a verbatim excerpt sized like the
// summary the piece would have produced.
func pieceExcerpt(piece string, policy TierPolicy) string {
	compression := policy.SummarizationCompression
	if compression <= 1 {
		compression = 3
	}
	limit := int(float64(charBudget(policy.ChunkSize, policy.TokenEstimation)) / compression)
	return truncateRunes(piece, maxInt(limit, 1))
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return strings.TrimSpace(string(r[:limit]))
}

func joinNonEmpty(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
