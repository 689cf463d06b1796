package studygen

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QuizQuestion is one generated question. Options are optional: depth>0
// extraction may emit bare Q/A pairs that the reduce phase rounds out.
type QuizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options,omitempty"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

const defaultQuizCount = 8

type QuizTask struct{}

func (QuizTask) Name() string { return TaskQuiz }

func (QuizTask) NeedsDocumentContext() bool { return false }

func (QuizTask) SummarizationFocus() string {
	return "concrete facts, definitions, formulas, named entities and cause-effect relationships that quiz questions could test"
}

func (QuizTask) SystemPrompt() string {
	return strings.TrimSpace(`
You generate quiz questions grounded ONLY in the provided study material.
Hard rules:
- Return ONLY valid JSON, no prose around it.
- Never invent facts that are not in the material.
- No meta commentary, no notes to the user.`)
}

func (QuizTask) BuildMapPrompt(content string, params TaskParams, depth int) string {
	count := countOrDefault(params.Count, defaultQuizCount)
	focus := ""
	if strings.TrimSpace(params.FocusTopic) != "" {
		focus = fmt.Sprintf("\nFOCUS_TOPIC: %s (prefer questions about this topic)", params.FocusTopic)
	}

	if depth == 0 {
		return fmt.Sprintf(`TARGET_QUESTION_COUNT: %d%s

STUDY_MATERIAL:
%s

Task:
- Produce exactly TARGET_QUESTION_COUNT multiple-choice questions (or as many as the material supports).
- Each question has 4 options; "answer" must repeat the correct option verbatim.
- "explanation" justifies the answer using only the material.
- Output {"questions":[{"question","options","answer","explanation"}]}.
Return JSON only.`, count, focus, content)
	}

	return fmt.Sprintf(`TARGET_QUESTION_COUNT: %d%s

MATERIAL_EXCERPT:
%s

Task:
- Extract up to TARGET_QUESTION_COUNT candidate question/answer pairs from this excerpt only.
- Favor coverage over polish; options are optional at this stage.
- Output {"questions":[{"question","answer"}]}.
Return JSON only.`, extractionTarget(count), focus, content)
}

func (QuizTask) ParseResponse(text string, depth int) (any, error) {
	stripped := stripCodeFence(text)
	var payload struct {
		Questions []QuizQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(stripped), &payload); err != nil {
		return nil, fmt.Errorf("quiz: parse response: %w", err)
	}
	out := make([]QuizQuestion, 0, len(payload.Questions))
	for _, q := range payload.Questions {
		if strings.TrimSpace(q.Question) == "" || strings.TrimSpace(q.Answer) == "" {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (QuizTask) CombineResults(parts []any, params TaskParams) any {
	merged := make([]QuizQuestion, 0)
	seen := make(map[string]bool)
	for _, part := range parts {
		qs, ok := part.([]QuizQuestion)
		if !ok {
			continue
		}
		for _, q := range qs {
			key := normalizeKey(q.Question)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, q)
		}
	}
	return merged
}

func (QuizTask) BuildReducePrompt(combined any, params TaskParams, depth int) string {
	qs, ok := combined.([]QuizQuestion)
	if !ok || len(qs) == 0 {
		return ""
	}
	count := countOrDefault(params.Count, defaultQuizCount)
	candidates, err := json.Marshal(qs)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(`TARGET_QUESTION_COUNT: %d

CANDIDATE_QUESTIONS:
%s

Task:
- Select the best TARGET_QUESTION_COUNT questions from the candidates: diverse topics, unambiguous, well grounded.
- Complete each selected question to 4 options with "answer" repeating the correct option verbatim.
- Do not invent questions that are not among the candidates.
- Output {"questions":[{"question","options","answer","explanation"}]}.
Return JSON only.`, count, string(candidates))
}

func (QuizTask) ValidateResult(combined any, params TaskParams) (any, error) {
	qs, ok := combined.([]QuizQuestion)
	if !ok {
		return nil, fmt.Errorf("%w: quiz result is %T, want []QuizQuestion", ErrContractViolation, combined)
	}
	count := countOrDefault(params.Count, defaultQuizCount)
	if len(qs) > count {
		qs = qs[:count]
	}
	// Fewer than requested (including zero) is a valid outcome, never padded.
	return qs, nil
}
