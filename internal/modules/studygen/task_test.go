package studygen

import "testing"

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
		{"plain text, no fence", "plain text, no fence"},
	}
	for _, tc := range cases {
		if got := stripCodeFence(tc.in); got != tc.want {
			t.Fatalf("stripCodeFence(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeKey(t *testing.T) {
	if normalizeKey("Define X") != normalizeKey("  define   x ") {
		t.Fatalf("expected whitespace/case variants to normalize identically")
	}
	if normalizeKey("Define X") == normalizeKey("Define Y") {
		t.Fatalf("distinct keys collided")
	}
}

func TestTaskByName(t *testing.T) {
	for _, name := range []string{"quiz", "Flashcard", " SUMMARY "} {
		if _, ok := TaskByName(name); !ok {
			t.Fatalf("expected task %q to resolve", name)
		}
	}
	if _, ok := TaskByName("essay"); ok {
		t.Fatalf("expected unknown task to miss")
	}
}

func TestExtractionTargetHeadroom(t *testing.T) {
	if got := extractionTarget(8); got != 12 {
		t.Fatalf("extractionTarget(8) = %d, want 12", got)
	}
	if got := extractionTarget(5); got != 8 {
		t.Fatalf("extractionTarget(5) = %d, want 8", got)
	}
}
