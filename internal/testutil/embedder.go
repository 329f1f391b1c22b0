package testutil

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"sync"
)

// StubEmbedder is a deterministic in-memory embedder for tests.
//
// By default each text maps to a unit vector derived from its SHA-256
// digest, so equal texts get equal embeddings and distinct texts are
// (with overwhelming probability) dissimilar. Tests that need two texts
// to be semantically "close" register explicit vectors with Set.
//
// It satisfies the Embedder interfaces consumed by the ingest and
// retrieval packages.
type StubEmbedder struct {
	mu        sync.Mutex
	dimension int
	fixed     map[string][]float32
	calls     int
	err       error
}

// NewStubEmbedder creates a stub producing vectors of the given dimension.
func NewStubEmbedder(dimension int) *StubEmbedder {
	return &StubEmbedder{
		dimension: dimension,
		fixed:     make(map[string][]float32),
	}
}

// Set registers an exact embedding for a text, overriding the derived one.
func (s *StubEmbedder) Set(text string, embedding []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixed[text] = embedding
}

// Fail makes every subsequent call return err. Pass nil to clear.
func (s *StubEmbedder) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls reports how many Embed/EmbedBatch invocations have been made.
func (s *StubEmbedder) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Embed returns the embedding for a single text.
func (s *StubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one embedding per input text.
func (s *StubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}

	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := s.fixed[text]; ok {
			vecs[i] = v
			continue
		}
		vecs[i] = derivedVector(text, s.dimension)
	}
	return vecs, nil
}

// derivedVector maps text to a deterministic unit vector.
func derivedVector(text string, dimension int) []float32 {
	digest := sha256.Sum256([]byte(text))

	vec := make([]float32, dimension)
	var norm float64
	for i := range vec {
		b := digest[i%len(digest)]
		// Spread values over [-1, 1), perturbed by position so long
		// vectors do not repeat with period 32.
		v := float64(int(b)^(i*31%256))/128.0 - 1.0
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
