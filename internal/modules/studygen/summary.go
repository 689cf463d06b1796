package studygen

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SummaryPartial is the summary task's intermediate shape: either finished
// prose (direct path or reduce output) or extracted key points and topics
// awaiting synthesis.
type SummaryPartial struct {
	Prose     string   `json:"summary,omitempty"`
	KeyPoints []string `json:"key_points,omitempty"`
	Topics    []string `json:"topics,omitempty"`
}

type SummaryTask struct{}

func (SummaryTask) Name() string { return TaskSummary }

// Summaries should respect document boundaries so per-source structure
// survives into the final text.
func (SummaryTask) NeedsDocumentContext() bool { return true }

func (SummaryTask) SummarizationFocus() string {
	return "main ideas, the argument structure, and how sections relate to each other"
}

func (SummaryTask) SystemPrompt() string {
	return strings.TrimSpace(`
You summarize study material faithfully.
Hard rules:
- Use ONLY the provided material.
- Follow the requested output format exactly.
- No meta commentary.`)
}

func (SummaryTask) BuildMapPrompt(content string, params TaskParams, depth int) string {
	focus := ""
	if strings.TrimSpace(params.FocusTopic) != "" {
		focus = fmt.Sprintf("\nFOCUS_TOPIC: %s (give this topic extra weight)", params.FocusTopic)
	}

	if depth == 0 {
		return fmt.Sprintf(`TARGET_LENGTH: %s%s

STUDY_MATERIAL:
%s

Task:
- Write a coherent summary of the material at the target length.
- Preserve the material's structure; cover every major section.
- Output {"summary":"..."}.
Return JSON only.`, lengthGuidance(params.Length), focus, content)
	}

	return fmt.Sprintf(`%s
MATERIAL_EXCERPT:
%s

Task:
- Extract the key points of this excerpt as short self-contained statements.
- List the topics the excerpt covers.
- Output {"key_points":["..."],"topics":["..."]}.
Return JSON only.`, strings.TrimPrefix(focus, "\n"), content)
}

// ParseResponse never fails for summaries: unparseable output is demoted to a
// single raw key point (depth>0) or used as prose verbatim (depth 0).
func (SummaryTask) ParseResponse(text string, depth int) (any, error) {
	stripped := stripCodeFence(text)
	var payload SummaryPartial
	if err := json.Unmarshal([]byte(stripped), &payload); err == nil {
		if strings.TrimSpace(payload.Prose) != "" || len(payload.KeyPoints) > 0 {
			return payload, nil
		}
	}
	raw := strings.TrimSpace(stripped)
	if raw == "" {
		return SummaryPartial{}, nil
	}
	if depth == 0 {
		return SummaryPartial{Prose: raw}, nil
	}
	return SummaryPartial{KeyPoints: []string{raw}}, nil
}

func (SummaryTask) CombineResults(parts []any, params TaskParams) any {
	combined := SummaryPartial{}
	seenPoints := make(map[string]bool)
	seenTopics := make(map[string]bool)
	for _, part := range parts {
		p, ok := part.(SummaryPartial)
		if !ok {
			continue
		}
		if combined.Prose == "" && strings.TrimSpace(p.Prose) != "" {
			combined.Prose = strings.TrimSpace(p.Prose)
		}
		for _, kp := range p.KeyPoints {
			kp = strings.TrimSpace(kp)
			if kp == "" || seenPoints[kp] {
				continue
			}
			seenPoints[kp] = true
			combined.KeyPoints = append(combined.KeyPoints, kp)
		}
		for _, topic := range p.Topics {
			topic = strings.TrimSpace(topic)
			if topic == "" || seenTopics[topic] {
				continue
			}
			seenTopics[topic] = true
			combined.Topics = append(combined.Topics, topic)
		}
	}
	return combined
}

// BuildReducePrompt returns "" when the combined result already holds prose,
// or when nothing survived the map phase; both mean no synthesis call.
func (SummaryTask) BuildReducePrompt(combined any, params TaskParams, depth int) string {
	p, ok := combined.(SummaryPartial)
	if !ok {
		return ""
	}
	if strings.TrimSpace(p.Prose) != "" || len(p.KeyPoints) == 0 {
		return ""
	}
	focus := ""
	if strings.TrimSpace(params.FocusTopic) != "" {
		focus = fmt.Sprintf("\nFOCUS_TOPIC: %s (give this topic extra weight)", params.FocusTopic)
	}
	var b strings.Builder
	for _, kp := range p.KeyPoints {
		b.WriteString("- ")
		b.WriteString(kp)
		b.WriteString("\n")
	}
	topics := ""
	if len(p.Topics) > 0 {
		topics = "\nTOPICS: " + strings.Join(p.Topics, ", ")
	}
	return fmt.Sprintf(`TARGET_LENGTH: %s%s%s

KEY_POINTS:
%s
Task:
- Synthesize the key points into one coherent summary at the target length.
- Order by topic, not by extraction order; merge overlapping points.
- Output {"summary":"..."}.
Return JSON only.`, lengthGuidance(params.Length), focus, topics, b.String())
}

func (SummaryTask) ValidateResult(combined any, params TaskParams) (any, error) {
	p, ok := combined.(SummaryPartial)
	if !ok {
		return nil, fmt.Errorf("%w: summary result is %T, want SummaryPartial", ErrContractViolation, combined)
	}
	if prose := strings.TrimSpace(p.Prose); prose != "" {
		return prose, nil
	}
	if len(p.KeyPoints) > 0 {
		return "- " + strings.Join(p.KeyPoints, "\n- "), nil
	}
	// No content at all is still a successful (empty) outcome.
	return "", nil
}

func lengthGuidance(length string) string {
	switch strings.ToLower(strings.TrimSpace(length)) {
	case "short":
		return "short (about 150 words)"
	case "long":
		return "long (about 600 words)"
	default:
		return "medium (about 300 words)"
	}
}
