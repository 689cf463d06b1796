package studygen

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kaanbsaglam/studyai-backend/internal/platform/logger"
	"github.com/kaanbsaglam/studyai-backend/internal/platform/openai"
)

// Options are the per-request knobs callers may set on top of the tier policy.
type Options struct {
	Tier                 string
	ChunkingModeOverride string // "", "token" or "document"
	ChunkSizeOverride    int
}

// PipelineOutcome is the only thing returned to callers: the artifact plus
// accounting. Warnings is the soft-degradation channel; a populated Warnings
// with a populated Result is still a success.
type PipelineOutcome struct {
	Task             string   `json:"task"`
	Result           any      `json:"result"`
	TokensUsed       int      `json:"tokens_used"`
	Warnings         []string `json:"warnings,omitempty"`
	SummarizedInputs []string `json:"summarized_inputs,omitempty"`
}

// Orchestrator is the single entry point of the generation pipeline. It is
// stateless across requests; the policy source and generation client are
// injected so tests can substitute deterministic doubles.
type Orchestrator struct {
	ai         openai.Client
	policies   PolicySource
	log        *logger.Logger
	summarizer *Summarizer
	mapper     *MapExecutor
}

func NewOrchestrator(ai openai.Client, policies PolicySource, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		ai:         ai,
		policies:   policies,
		log:        log,
		summarizer: &Summarizer{AI: ai, Log: log},
		mapper:     &MapExecutor{AI: ai, Log: log},
	}
}

// Run drives RESOLVE_POLICY -> SIZE_CHECK -> PREPROCESS -> DIRECT|MAP_REDUCE
// -> RETURN. The size check happens before any generation call, so an
// oversized request costs nothing.
func (o *Orchestrator) Run(ctx context.Context, taskName string, content Content, params TaskParams, opts Options) (PipelineOutcome, error) {
	outcome := PipelineOutcome{Task: strings.ToLower(strings.TrimSpace(taskName))}

	task, ok := TaskByName(taskName)
	if !ok {
		return outcome, fmt.Errorf("%w: %q (want one of: %s)", ErrUnknownTask, taskName, strings.Join(TaskNames(), ", "))
	}
	outcome.Task = task.Name()

	policy, matched := o.policies.Resolve(opts.Tier)
	if !matched && strings.TrimSpace(opts.Tier) != "" {
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("unknown tier %q, using %q", opts.Tier, policy.Name))
	}
	if opts.ChunkSizeOverride > 0 {
		policy.ChunkSize = opts.ChunkSizeOverride
	}
	est := policy.TokenEstimation

	log := o.log.With("task", task.Name(), "tier", policy.Name, "request_id", uuid.NewString())

	estimated := EstimateTokens(content, est)
	ceiling := MaxProcessableTokens(policy)
	if estimated > ceiling {
		log.Warn("content rejected before generation", "estimated_tokens", estimated, "max_tokens", ceiling)
		return outcome, &ContentTooLargeError{EstimatedTokens: estimated, MaxTokens: ceiling}
	}

	// Preprocess document sets: collapse every document that alone exceeds
	// the chunk budget, so document-preserving chunking can pack whole
	// documents. Single-text content is not pre-summarized; the chunker
	// already bounds each piece and a summarization pass would just add cost
	// before the same map phase.
	if content.IsDocumentSet() {
		docs := make([]Document, len(content.Documents))
		copy(docs, content.Documents)
		truncated := false
		for i, d := range docs {
			if EstimateTextTokens(d.Text, est) <= policy.ChunkSize {
				continue
			}
			sres, err := o.summarizer.Summarize(ctx, d.Text, task.SummarizationFocus(), 1, policy)
			if err != nil {
				return outcome, err
			}
			docs[i].Text = sres.Text
			outcome.TokensUsed += sres.TokensUsed
			outcome.SummarizedInputs = append(outcome.SummarizedInputs, d.Label())
			truncated = truncated || sres.Truncated
		}
		if len(outcome.SummarizedInputs) > 0 {
			content = DocumentContent(docs)
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("%d document(s) summarized before processing", len(outcome.SummarizedInputs)))
		}
		if truncated {
			outcome.Warnings = append(outcome.Warnings, "summarization depth exhausted; some content was truncated")
		}
	}

	estimated = EstimateTokens(content, est)
	if estimated <= policy.Threshold {
		log.Info("direct path selected", "estimated_tokens", estimated, "threshold", policy.Threshold)
		return o.runDirect(ctx, log, task, content, params, policy, outcome)
	}
	log.Info("map-reduce path selected", "estimated_tokens", estimated, "threshold", policy.Threshold)
	return o.runMapReduce(ctx, log, task, content, params, policy, opts, outcome)
}

func (o *Orchestrator) runDirect(ctx context.Context, log *logger.Logger, task Task, content Content, params TaskParams, policy TierPolicy, outcome PipelineOutcome) (PipelineOutcome, error) {
	models := policy.ModelsForDepth(0)
	prompt := task.BuildMapPrompt(content.Flatten(), params, 0)

	text, used, err := generateWithFallback(ctx, o.ai, task.SystemPrompt(), prompt, models.ReduceModel, policy.FallbackModel)
	outcome.TokensUsed += used
	if err != nil {
		return outcome, fmt.Errorf("direct generation: %w", err)
	}
	parsed, err := task.ParseResponse(text, 0)
	if err != nil {
		return outcome, fmt.Errorf("direct generation: %w", err)
	}

	result, err := task.ValidateResult(task.CombineResults([]any{parsed}, params), params)
	if err != nil {
		return outcome, err
	}
	outcome.Result = result
	log.Info("direct generation complete", "tokens_used", outcome.TokensUsed)
	return outcome, nil
}

func (o *Orchestrator) runMapReduce(ctx context.Context, log *logger.Logger, task Task, content Content, params TaskParams, policy TierPolicy, opts Options, outcome PipelineOutcome) (PipelineOutcome, error) {
	est := policy.TokenEstimation

	mode := "token"
	if task.NeedsDocumentContext() {
		mode = "document"
	}
	if m := strings.ToLower(strings.TrimSpace(opts.ChunkingModeOverride)); m != "" {
		mode = m
	}

	var chunks []string
	if mode == "document" && content.IsDocumentSet() {
		chunks = ChunkByDocuments(content.Documents, policy.ChunkSize, est)
	} else {
		chunks = ChunkByTokens(content.Flatten(), policy.ChunkSize, est)
	}
	if len(chunks) > policy.MaxChunks {
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("chunks truncated from %d to %d", len(chunks), policy.MaxChunks))
		chunks = chunks[:policy.MaxChunks]
	}
	log.Info("map phase starting", "chunks", len(chunks), "chunking_mode", mode, "parallel_limit", policy.ParallelLimit)

	mapRes, err := o.mapper.MapAll(ctx, chunks, task, params, 0, policy)
	outcome.TokensUsed += mapRes.TokensUsed
	if err != nil {
		return outcome, err
	}
	if mapRes.FailedChunks > 0 {
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("%d of %d chunks failed", mapRes.FailedChunks, len(chunks)))
	}

	combined := task.CombineResults(mapRes.Results, params)

	reducePrompt := task.BuildReducePrompt(combined, params, 0)
	if reducePrompt == "" {
		// Nothing to curate: the combined output is already final.
		result, verr := task.ValidateResult(combined, params)
		if verr != nil {
			return outcome, verr
		}
		outcome.Result = result
		log.Info("map-reduce complete without reduce call", "tokens_used", outcome.TokensUsed)
		return outcome, nil
	}

	models := policy.ModelsForDepth(0)
	text, used, err := generateWithFallback(ctx, o.ai, task.SystemPrompt(), reducePrompt, models.ReduceModel, policy.FallbackModel)
	outcome.TokensUsed += used

	final := combined
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return outcome, err
		}
		outcome.Warnings = append(outcome.Warnings, "reduce call failed; returning combined map results")
		log.Warn("reduce call failed", "error", err)
	default:
		parsed, perr := task.ParseResponse(text, 0)
		if perr != nil {
			outcome.Warnings = append(outcome.Warnings, "reduce response unparseable; returning combined map results")
			log.Warn("reduce response unparseable", "error", perr)
		} else {
			final = parsed
		}
	}

	result, verr := task.ValidateResult(final, params)
	if verr != nil {
		return outcome, verr
	}
	outcome.Result = result
	log.Info("map-reduce complete", "tokens_used", outcome.TokensUsed, "failed_chunks", mapRes.FailedChunks)
	return outcome, nil
}
