package studygen

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kaanbsaglam/studyai-backend/internal/platform/logger"
	"github.com/kaanbsaglam/studyai-backend/internal/platform/openai"
)

// MapExecutor runs the per-chunk generation step across all chunks with the
// tier's concurrency ceiling.
type MapExecutor struct {
	AI  openai.Client
	Log *logger.Logger
}

// MapResult carries the surviving parsed partials in chunk order plus
// accounting for the ones that did not survive.
type MapResult struct {
	Results      []any
	TokensUsed   int
	FailedChunks int
}

// MapAll processes chunks in strictly sequential batches of ParallelLimit;
// within a batch every call runs concurrently and the whole batch is awaited
// before the next starts. That caps peak outstanding provider calls without
// any work-stealing. Per chunk: primary map model, one retry on the fallback
// model, then the chunk is recorded as failed and skipped - an individual
// failure never aborts the batch. Only context cancellation returns an error.
func (e *MapExecutor) MapAll(ctx context.Context, chunks []string, task Task, params TaskParams, depth int, policy TierPolicy) (MapResult, error) {
	out := MapResult{}
	if len(chunks) == 0 {
		return out, nil
	}

	limit := maxInt(policy.ParallelLimit, 1)
	models := policy.ModelsForDepth(depth)

	results := make([]any, len(chunks))
	succeeded := make([]bool, len(chunks))
	tokens := make([]int, len(chunks))

	for start := 0; start < len(chunks); start += limit {
		end := start + limit
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				prompt := task.BuildMapPrompt(chunks[i], params, depth)
				text, used, err := generateWithFallback(gctx, e.AI, task.SystemPrompt(), prompt, models.MapModel, policy.FallbackModel)
				tokens[i] = used
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					if e.Log != nil {
						e.Log.Warn("chunk generation failed on both models", "task", task.Name(), "chunk", i, "depth", depth, "error", err)
					}
					return nil
				}
				parsed, perr := task.ParseResponse(text, depth)
				if perr != nil {
					// Malformed output fails this unit only; no reprompting.
					if e.Log != nil {
						e.Log.Warn("chunk response unparseable", "task", task.Name(), "chunk", i, "depth", depth, "error", perr)
					}
					return nil
				}
				results[i] = parsed
				succeeded[i] = true
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return out, err
		}
	}

	for i := range chunks {
		out.TokensUsed += tokens[i]
		if succeeded[i] {
			out.Results = append(out.Results, results[i])
		} else {
			out.FailedChunks++
		}
	}
	return out, nil
}

// generateWithFallback tries the primary model, then the fallback model once.
// Token usage from a successful call is returned; a primary-call failure
// costs nothing we can account for, so only the succeeding call is counted.
func generateWithFallback(ctx context.Context, ai openai.Client, system, prompt, primary, fallback string) (string, int, error) {
	gen, err := ai.Generate(ctx, openai.GenerateRequest{System: system, Prompt: prompt, Model: primary})
	if err == nil {
		return gen.Text, gen.TokensUsed, nil
	}
	if ctx.Err() != nil {
		return "", 0, err
	}
	if fallback == "" || fallback == primary {
		return "", 0, err
	}
	gen, err = ai.Generate(ctx, openai.GenerateRequest{System: system, Prompt: prompt, Model: fallback})
	if err != nil {
		return "", 0, err
	}
	return gen.Text, gen.TokensUsed, nil
}
