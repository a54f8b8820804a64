package metrics

import (
	"strings"
	"testing"
)

func TestSanitizeModelLabel_ReplacesInvalidChars(t *testing.T) {
	got := SanitizeModelLabel("gpt-4o-mini\n\t🚨")
	if strings.ContainsAny(got, "\n\t") {
		t.Fatalf("SanitizeModelLabel contains whitespace: %q", got)
	}
	if got == "unknown" {
		t.Fatalf("SanitizeModelLabel unexpectedly returned %q", got)
	}
}

func TestSanitizeModelLabel_CapsLength(t *testing.T) {
	long := strings.Repeat("a", maxModelLabelLen+50)
	got := SanitizeModelLabel(long)
	if len(got) != maxModelLabelLen {
		t.Fatalf("SanitizeModelLabel len=%d, want %d", len(got), maxModelLabelLen)
	}
}

func TestSanitizeModelLabel_EmptyFallback(t *testing.T) {
	if got := SanitizeModelLabel("   "); got != "unknown" {
		t.Fatalf("SanitizeModelLabel = %q, want %q", got, "unknown")
	}
}

func TestSanitizeModelLabel_PreservesColonVersionSeparator(t *testing.T) {
	if got := SanitizeModelLabel("llama3:70b"); got != "llama3:70b" {
		t.Fatalf("SanitizeModelLabel = %q, want %q", got, "llama3:70b")
	}
}
