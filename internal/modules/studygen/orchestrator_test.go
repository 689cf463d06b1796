package studygen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kaanbsaglam/studyai-backend/internal/platform/openai"
)

func newTestOrchestrator(t *testing.T, ai openai.Client, p TierPolicy) *Orchestrator {
	t.Helper()
	return NewOrchestrator(ai, testPolicySource(t, p), testLogger())
}

func hasWarning(outcome PipelineOutcome, substr string) bool {
	for _, w := range outcome.Warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestRunDirectPathSingleCall(t *testing.T) {
	ai := &fakeAI{
		respond: func(req openai.GenerateRequest, call int) (openai.Generation, error) {
			if req.Model != "reduce-0" {
				t.Errorf("direct path should use the depth-0 reduce model, got %q", req.Model)
			}
			return openai.Generation{Text: quizChunkResponse, TokensUsed: 5}, nil
		},
	}
	o := newTestOrchestrator(t, ai, testPolicy())

	// 40000 chars estimate to 10000 tokens, under the 25000 threshold.
	content := TextContent(strings.Repeat("a", 40000))
	outcome, err := o.Run(context.Background(), "quiz", content, TaskParams{}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if ai.callCount() != 1 {
		t.Fatalf("direct path must make exactly one call, got %d", ai.callCount())
	}
	if outcome.Task != "quiz" || outcome.TokensUsed != 5 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if qs := outcome.Result.([]QuizQuestion); len(qs) != 1 {
		t.Fatalf("unexpected result: %+v", outcome.Result)
	}
}

func TestRunMapReducePathCallCount(t *testing.T) {
	ai := &fakeAI{
		respond: func(req openai.GenerateRequest, call int) (openai.Generation, error) {
			if strings.Contains(req.Prompt, "CANDIDATE_QUESTIONS") {
				return openai.Generation{Text: quizChunkResponse, TokensUsed: 4}, nil
			}
			// Distinct questions per call so the reduce phase has candidates.
			resp := fmt.Sprintf(`{"questions":[{"question":"q%d","answer":"a%d"}]}`, call, call)
			return openai.Generation{Text: resp, TokensUsed: 2}, nil
		},
	}
	o := newTestOrchestrator(t, ai, testPolicy())

	// 120000 chars estimate to 30000 tokens: over the threshold, and with a
	// 32000-char chunk budget the hard cuts produce exactly 4 chunks.
	content := TextContent(strings.Repeat("a", 120000))
	outcome, err := o.Run(context.Background(), "quiz", content, TaskParams{}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	mapCalls := ai.callsMatching(func(r openai.GenerateRequest) bool {
		return strings.Contains(r.Prompt, "STUDY_MATERIAL")
	})
	reduceCalls := ai.callsMatching(func(r openai.GenerateRequest) bool {
		return strings.Contains(r.Prompt, "CANDIDATE_QUESTIONS")
	})
	if mapCalls != 4 || reduceCalls != 1 {
		t.Fatalf("expected 4 map + 1 reduce calls, got %d map, %d reduce", mapCalls, reduceCalls)
	}
	if ai.callCount() != 5 {
		t.Fatalf("expected 5 calls total, got %d", ai.callCount())
	}
	if outcome.TokensUsed != 4*2+4 {
		t.Fatalf("expected token usage summed across phases, got %d", outcome.TokensUsed)
	}
	if len(outcome.Result.([]QuizQuestion)) == 0 {
		t.Fatalf("expected a non-empty quiz result")
	}
}

func TestRunPreSummarizesOversizedDocuments(t *testing.T) {
	ai := &fakeAI{
		respond: func(req openai.GenerateRequest, call int) (openai.Generation, error) {
			if strings.Contains(req.Prompt, "PRESERVE:") {
				return openai.Generation{Text: "compressed notes", TokensUsed: 3}, nil
			}
			return openai.Generation{Text: quizChunkResponse, TokensUsed: 5}, nil
		},
	}
	o := newTestOrchestrator(t, ai, testPolicy())

	// The big document alone estimates to 20000 tokens against the 8000-token
	// chunk budget; with a 32000-char budget it splits into 3 summarize pieces.
	content := DocumentContent([]Document{
		{Name: "small-doc", Text: "a few notes"},
		{Name: "big-doc", Text: strings.Repeat("a", 80000)},
	})

	outcome, err := o.Run(context.Background(), "quiz", content, TaskParams{}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	summarizeCalls := ai.callsMatching(func(r openai.GenerateRequest) bool {
		return strings.Contains(r.Prompt, "PRESERVE:")
	})
	if summarizeCalls != 3 {
		t.Fatalf("expected 3 summarize calls for the oversized document, got %d", summarizeCalls)
	}
	if ai.callCount() != 4 {
		t.Fatalf("expected 3 summarize + 1 direct call, got %d", ai.callCount())
	}
	if len(outcome.SummarizedInputs) != 1 || outcome.SummarizedInputs[0] != "big-doc" {
		t.Fatalf("expected only the oversized document summarized, got %v", outcome.SummarizedInputs)
	}
	if !hasWarning(outcome, "summarized before processing") {
		t.Fatalf("missing pre-summarization warning: %v", outcome.Warnings)
	}
}

func TestRunAllChunksFailedIsEmptySuccess(t *testing.T) {
	ai := &fakeAI{
		respond: func(req openai.GenerateRequest, call int) (openai.Generation, error) {
			return openai.Generation{}, errors.New("provider outage")
		},
	}
	o := newTestOrchestrator(t, ai, testPolicy())

	content := TextContent(strings.Repeat("a", 120000)) // 4 chunks
	outcome, err := o.Run(context.Background(), "quiz", content, TaskParams{}, Options{})
	if err != nil {
		t.Fatalf("total map failure should degrade, not error: %v", err)
	}
	if qs := outcome.Result.([]QuizQuestion); len(qs) != 0 {
		t.Fatalf("expected empty result, got %+v", qs)
	}
	if !hasWarning(outcome, "chunks failed") {
		t.Fatalf("missing failed-chunks warning: %v", outcome.Warnings)
	}
	// Each chunk tries primary then fallback; with nothing combined there is
	// no reduce call.
	if ai.callCount() != 8 {
		t.Fatalf("expected 8 calls (4 chunks x 2 models), got %d", ai.callCount())
	}
}

func TestRunCapsChunksAtMaxChunks(t *testing.T) {
	ai := &fakeAI{
		respond: func(req openai.GenerateRequest, call int) (openai.Generation, error) {
			if strings.Contains(req.Prompt, "CANDIDATE_QUESTIONS") {
				return openai.Generation{Text: quizChunkResponse, TokensUsed: 1}, nil
			}
			resp := fmt.Sprintf(`{"questions":[{"question":"q%d","answer":"a"}]}`, call)
			return openai.Generation{Text: resp, TokensUsed: 1}, nil
		},
	}
	p := testPolicy()
	p.Threshold = 100
	p.ChunkSize = 100 // 400-char budget
	p.MaxChunks = 2
	o := newTestOrchestrator(t, ai, p)

	// 1600 chars estimate to 400 tokens: over the threshold, 4 raw chunks.
	content := TextContent(strings.Repeat("a", 1600))
	outcome, err := o.Run(context.Background(), "quiz", content, TaskParams{}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !hasWarning(outcome, "chunks truncated from 4 to 2") {
		t.Fatalf("missing chunk-cap warning: %v", outcome.Warnings)
	}
	mapCalls := ai.callsMatching(func(r openai.GenerateRequest) bool {
		return strings.Contains(r.Prompt, "STUDY_MATERIAL")
	})
	if mapCalls != 2 {
		t.Fatalf("expected the map phase capped at 2 chunks, got %d", mapCalls)
	}
}

func TestRunRejectsOversizedContentBeforeAnyCall(t *testing.T) {
	ai := &fakeAI{}
	p := testPolicy()
	p.ChunkSize = 100
	p.MaxChunks = 2
	p.MaxDepth = 0 // ceiling: 100 * 2 * 3^0 = 200 tokens
	o := newTestOrchestrator(t, ai, p)

	content := TextContent(strings.Repeat("a", 2000)) // 500 tokens
	_, err := o.Run(context.Background(), "quiz", content, TaskParams{}, Options{})
	if !IsContentTooLarge(err) {
		t.Fatalf("expected content-too-large rejection, got %v", err)
	}
	var ce *ContentTooLargeError
	if !errors.As(err, &ce) || ce.EstimatedTokens != 500 || ce.MaxTokens != 200 {
		t.Fatalf("rejection should carry both sides of the comparison: %+v", ce)
	}
	if ai.callCount() != 0 {
		t.Fatalf("size rejection must cost nothing, got %d calls", ai.callCount())
	}
}

func TestRunUnknownTask(t *testing.T) {
	ai := &fakeAI{}
	o := newTestOrchestrator(t, ai, testPolicy())

	_, err := o.Run(context.Background(), "essay", TextContent("text"), TaskParams{}, Options{})
	if !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
	if ai.callCount() != 0 {
		t.Fatalf("unknown task must not call the model")
	}
}

func TestRunUnknownTierWarnsAndUsesBaseline(t *testing.T) {
	ai := &fakeAI{
		respond: func(req openai.GenerateRequest, call int) (openai.Generation, error) {
			return openai.Generation{Text: quizChunkResponse, TokensUsed: 1}, nil
		},
	}
	o := newTestOrchestrator(t, ai, testPolicy())

	outcome, err := o.Run(context.Background(), "quiz", TextContent("short material"), TaskParams{}, Options{Tier: "diamond"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !hasWarning(outcome, "unknown tier") {
		t.Fatalf("missing unknown-tier warning: %v", outcome.Warnings)
	}
	if outcome.Result == nil {
		t.Fatalf("request should still succeed on the baseline tier")
	}
}

func TestRunReduceFailureReturnsCombinedResults(t *testing.T) {
	ai := &fakeAI{
		respond: func(req openai.GenerateRequest, call int) (openai.Generation, error) {
			if strings.Contains(req.Prompt, "CANDIDATE_QUESTIONS") {
				return openai.Generation{}, errors.New("reduce model down")
			}
			resp := fmt.Sprintf(`{"questions":[{"question":"q%d","answer":"a"}]}`, call)
			return openai.Generation{Text: resp, TokensUsed: 1}, nil
		},
	}
	o := newTestOrchestrator(t, ai, testPolicy())

	content := TextContent(strings.Repeat("a", 120000))
	outcome, err := o.Run(context.Background(), "quiz", content, TaskParams{}, Options{})
	if err != nil {
		t.Fatalf("reduce failure should degrade, not error: %v", err)
	}
	if !hasWarning(outcome, "reduce call failed") {
		t.Fatalf("missing reduce-failure warning: %v", outcome.Warnings)
	}
	if qs := outcome.Result.([]QuizQuestion); len(qs) != 4 {
		t.Fatalf("expected the 4 combined map results, got %d", len(qs))
	}
}

func TestRunChunkingModeOverride(t *testing.T) {
	ai := &fakeAI{
		respond: func(req openai.GenerateRequest, call int) (openai.Generation, error) {
			return openai.Generation{Text: `{"key_points":["kp"]}`, TokensUsed: 1}, nil
		},
	}
	p := testPolicy()
	p.Threshold = 10
	p.ChunkSize = 100
	o := newTestOrchestrator(t, ai, p)

	// Summaries default to document chunking; forcing token mode flattens the
	// set and ignores document boundaries.
	content := DocumentContent([]Document{
		{Name: "one", Text: strings.Repeat("x", 120)},
		{Name: "two", Text: strings.Repeat("y", 120)},
	})
	_, err := o.Run(context.Background(), "summary", content, TaskParams{}, Options{ChunkingModeOverride: "token"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	mixed := ai.callsMatching(func(r openai.GenerateRequest) bool {
		return strings.Contains(r.Prompt, "=== one ===") && strings.Contains(r.Prompt, "=== two ===")
	})
	if mixed == 0 {
		t.Fatalf("token-mode chunking should pack across document boundaries")
	}
}
