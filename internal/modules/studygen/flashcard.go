package studygen

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Flashcard is one front/back pair.
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

const defaultFlashcardCount = 12

type FlashcardTask struct{}

func (FlashcardTask) Name() string { return TaskFlashcard }

func (FlashcardTask) NeedsDocumentContext() bool { return false }

func (FlashcardTask) SummarizationFocus() string {
	return "term-definition pairs, concept names with their explanations, and anything that maps cleanly to a prompt/answer pair"
}

func (FlashcardTask) SystemPrompt() string {
	return strings.TrimSpace(`
You generate flashcards grounded ONLY in the provided study material.
Hard rules:
- Return ONLY valid JSON, no prose around it.
- Cards must be atomic: one idea per card.
- Never invent facts that are not in the material.`)
}

func (FlashcardTask) BuildMapPrompt(content string, params TaskParams, depth int) string {
	count := countOrDefault(params.Count, defaultFlashcardCount)
	focus := ""
	if strings.TrimSpace(params.FocusTopic) != "" {
		focus = fmt.Sprintf("\nFOCUS_TOPIC: %s (prefer cards about this topic)", params.FocusTopic)
	}

	if depth == 0 {
		return fmt.Sprintf(`TARGET_CARD_COUNT: %d%s

STUDY_MATERIAL:
%s

Task:
- Produce exactly TARGET_CARD_COUNT flashcards (or as many as the material supports).
- Keep fronts short; backs are 1-4 sentences.
- Output {"cards":[{"front","back"}]}.
Return JSON only.`, count, focus, content)
	}

	return fmt.Sprintf(`TARGET_CARD_COUNT: %d%s

MATERIAL_EXCERPT:
%s

Task:
- Extract up to TARGET_CARD_COUNT candidate flashcards from this excerpt only.
- Favor coverage over polish.
- Output {"cards":[{"front","back"}]}.
Return JSON only.`, extractionTarget(count), focus, content)
}

func (FlashcardTask) ParseResponse(text string, depth int) (any, error) {
	stripped := stripCodeFence(text)
	var payload struct {
		Cards []Flashcard `json:"cards"`
	}
	if err := json.Unmarshal([]byte(stripped), &payload); err != nil {
		return nil, fmt.Errorf("flashcard: parse response: %w", err)
	}
	out := make([]Flashcard, 0, len(payload.Cards))
	for _, card := range payload.Cards {
		if strings.TrimSpace(card.Front) == "" || strings.TrimSpace(card.Back) == "" {
			continue
		}
		out = append(out, card)
	}
	return out, nil
}

func (FlashcardTask) CombineResults(parts []any, params TaskParams) any {
	merged := make([]Flashcard, 0)
	seen := make(map[string]bool)
	for _, part := range parts {
		cards, ok := part.([]Flashcard)
		if !ok {
			continue
		}
		for _, card := range cards {
			key := normalizeKey(card.Front)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, card)
		}
	}
	return merged
}

func (FlashcardTask) BuildReducePrompt(combined any, params TaskParams, depth int) string {
	cards, ok := combined.([]Flashcard)
	if !ok || len(cards) == 0 {
		return ""
	}
	count := countOrDefault(params.Count, defaultFlashcardCount)
	candidates, err := json.Marshal(cards)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(`TARGET_CARD_COUNT: %d

CANDIDATE_CARDS:
%s

Task:
- Select the best TARGET_CARD_COUNT cards from the candidates: diverse, atomic, unambiguous.
- Tighten wording where needed but keep each card's meaning.
- Do not invent cards that are not among the candidates.
- Output {"cards":[{"front","back"}]}.
Return JSON only.`, count, string(candidates))
}

func (FlashcardTask) ValidateResult(combined any, params TaskParams) (any, error) {
	cards, ok := combined.([]Flashcard)
	if !ok {
		return nil, fmt.Errorf("%w: flashcard result is %T, want []Flashcard", ErrContractViolation, combined)
	}
	count := countOrDefault(params.Count, defaultFlashcardCount)
	if len(cards) > count {
		cards = cards[:count]
	}
	return cards, nil
}
