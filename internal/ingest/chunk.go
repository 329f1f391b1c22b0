package ingest

import "strings"

const (
	// DefaultChunkSize is the target chunk length in runes. Sized well under
	// the embedding model's token limit so no chunk is truncated by the
	// provider.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap carries trailing context into the next chunk so
	// sentences spanning a boundary remain retrievable.
	DefaultChunkOverlap = 100
)

// SplitText splits text into chunks of at most size runes with the given
// overlap between consecutive chunks. Whitespace-only chunks are dropped.
//
// Splitting operates on runes, not bytes, so multi-byte characters are never
// cut in half. size must be positive and overlap must be smaller than size;
// invalid parameters fall back to the defaults.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 || overlap < 0 || overlap >= size {
		size, overlap = DefaultChunkSize, DefaultChunkOverlap
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}

		chunk := string(runes[start:end])
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}

		if end == len(runes) {
			break
		}
	}
	return chunks
}
