package ingest

import (
	"strings"
	"testing"
)

func TestSplitTextShortInput(t *testing.T) {
	chunks := SplitText("hello world", 100, 10)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0] != "hello world" {
		t.Errorf("chunk = %q, want input unchanged", chunks[0])
	}
}

func TestSplitTextEmptyInput(t *testing.T) {
	if chunks := SplitText("", 100, 10); chunks != nil {
		t.Errorf("got %v, want nil for empty input", chunks)
	}
}

func TestSplitTextWhitespaceOnlyDropped(t *testing.T) {
	if chunks := SplitText("   \n\t  ", 100, 10); len(chunks) != 0 {
		t.Errorf("got %d chunks, want 0 for whitespace input", len(chunks))
	}
}

func TestSplitTextOverlap(t *testing.T) {
	text := "abcdefghij" // 10 runes
	chunks := SplitText(text, 4, 2)

	want := []string{"abcd", "cdef", "efgh", "ghij"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks %v, want %d", len(chunks), chunks, len(want))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestSplitTextChunkSizeBound(t *testing.T) {
	text := strings.Repeat("x", 2500)
	chunks := SplitText(text, 1000, 100)

	for i, chunk := range chunks {
		if n := len([]rune(chunk)); n > 1000 {
			t.Errorf("chunk %d has %d runes, want <= 1000", i, n)
		}
	}
}

func TestSplitTextMultibyteRunesNotSplit(t *testing.T) {
	text := strings.Repeat("世界和平", 10) // 40 runes, 120 bytes
	chunks := SplitText(text, 7, 2)

	var total string
	for _, chunk := range chunks {
		if !strings.Contains(text, chunk) {
			t.Errorf("chunk %q is not a substring of the input (rune split?)", chunk)
		}
		total += chunk
	}
	if !strings.HasPrefix(chunks[0], "世界") {
		t.Errorf("first chunk %q corrupted", chunks[0])
	}
}

func TestSplitTextInvalidParamsUseDefaults(t *testing.T) {
	text := strings.Repeat("y", 1500)

	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 10},
		{"negative size", -5, 10},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := SplitText(text, tt.size, tt.overlap)
			// 1500 runes with defaults (1000/100) gives exactly two chunks.
			if len(chunks) != 2 {
				t.Errorf("got %d chunks, want 2 via defaults", len(chunks))
			}
		})
	}
}
