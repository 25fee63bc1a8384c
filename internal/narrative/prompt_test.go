package narrative

import (
	"strings"
	"testing"
)

func TestBuildContext_JoinsWithNewline(t *testing.T) {
	got := BuildContext([]string{"Alice ran.", "Bob followed."}, DefaultMaxContext)
	if got != "Alice ran.\nBob followed." {
		t.Errorf("unexpected context: %q", got)
	}
}

func TestBuildContext_Truncation(t *testing.T) {
	exact := strings.Repeat("a", 30000)
	if got := BuildContext([]string{exact}, 30000); got != exact {
		t.Error("context at the limit should be unchanged")
	}

	long := strings.Repeat("b", 30001)
	got := BuildContext([]string{long}, 30000)
	if len(got) != 30003 {
		t.Errorf("truncated length = %d, want 30003", len(got))
	}
	if !strings.HasSuffix(got, "b...") {
		t.Errorf("expected hard cut followed by ellipsis, got suffix %q", got[len(got)-5:])
	}
}

func TestBuildContext_CountsCharactersNotBytes(t *testing.T) {
	got := BuildContext([]string{"ééééé"}, 3)
	if got != "ééé..." {
		t.Errorf("got %q, want %q", got, "ééé...")
	}
}

func TestAssembleCharacterPrompt(t *testing.T) {
	prompt := AssembleCharacterPrompt("Alice", "wonderland", "Alice met {{story_title}} Bob.")

	if !strings.Contains(prompt, "about the character Alice from the following story context.") {
		t.Error("prompt missing character name")
	}
	if !strings.Contains(prompt, "Story Title: wonderland\n") {
		t.Error("prompt missing story title")
	}
	if !strings.Contains(prompt, "Alice met {{story_title}} Bob.") {
		t.Error("placeholders inside the context must not be substituted")
	}
	if !strings.Contains(prompt, `{"error": "Character not found"}`) {
		t.Error("prompt missing not-found signal")
	}
	if !strings.Contains(prompt, `"characterType": "One of: protagonist, antagonist, supporting character"`) {
		t.Error("prompt missing characterType schema")
	}
}
