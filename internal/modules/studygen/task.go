package studygen

import (
	"math"
	"sort"
	"strings"
)

// TaskParams is the task-specific parameter bag, passed through unmodified.
// Count applies to quiz/flashcard, Length to summary, FocusTopic to all.
type TaskParams struct {
	Count      int    `json:"count,omitempty"`
	FocusTopic string `json:"focus_topic,omitempty"`
	Length     string `json:"length,omitempty"`
}

// Task is the per-artifact contract the pipeline is parameterized by. All
// implementations are stateless and safe to share across requests.
type Task interface {
	Name() string

	// NeedsDocumentContext selects document-preserving chunking over
	// token-boundary chunking for document-set content.
	NeedsDocumentContext() bool

	// SummarizationFocus describes what must survive pre-summarization.
	SummarizationFocus() string

	// SystemPrompt is the system message for every generation call of this task.
	SystemPrompt() string

	// BuildMapPrompt builds the per-chunk prompt. Depth 0 asks for final
	// quality at the requested count; depth > 0 asks for a cheaper extraction
	// with headroom for later deduplication.
	BuildMapPrompt(content string, params TaskParams, depth int) string

	// ParseResponse parses one generation response into the task's partial
	// shape. Code fences are stripped before parsing.
	ParseResponse(text string, depth int) (any, error)

	// CombineResults merges the map phase partials, deduplicating.
	CombineResults(parts []any, params TaskParams) any

	// BuildReducePrompt builds the curation prompt over the combined result.
	// An empty string signals that no reduce call is needed.
	BuildReducePrompt(combined any, params TaskParams, depth int) string

	// ValidateResult shapes the combined (or reduced) result into the final
	// artifact. An empty result is a valid, successful outcome.
	ValidateResult(combined any, params TaskParams) (any, error)
}

// Task names accepted by the orchestrator.
const (
	TaskQuiz      = "quiz"
	TaskFlashcard = "flashcard"
	TaskSummary   = "summary"
)

// taskRegistry is built once at process start and never mutated afterwards;
// instances are stateless so there is nothing to cache lazily.
var taskRegistry = map[string]Task{
	TaskQuiz:      QuizTask{},
	TaskFlashcard: FlashcardTask{},
	TaskSummary:   SummaryTask{},
}

// TaskByName looks a task up by case-insensitive name.
func TaskByName(name string) (Task, bool) {
	t, ok := taskRegistry[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// TaskNames lists the registered task names, sorted.
func TaskNames() []string {
	names := make([]string, 0, len(taskRegistry))
	for name := range taskRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// stripCodeFence removes a surrounding markdown code fence (with optional
// language tag) so fenced JSON parses cleanly.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := s[3:]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = strings.TrimLeft(body, "`")
	}
	if i := strings.LastIndex(body, "```"); i >= 0 {
		body = body[:i]
	}
	return strings.TrimSpace(body)
}

// normalizeKey is the dedup key for user-visible item text: trimmed,
// lowercased, inner whitespace collapsed.
func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func countOrDefault(count, def int) int {
	if count > 0 {
		return count
	}
	return def
}

// extractionTarget gives depth>0 map calls ~1.5x headroom over the requested
// count so deduplication across chunks still leaves enough candidates.
func extractionTarget(count int) int {
	return int(math.Ceil(float64(count) * 1.5))
}
