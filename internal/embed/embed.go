// Package embed adapts an external embedding provider to the narrow interface
// the rest of the system consumes.
//
// The production implementation bridges a Genkit ai.Embedder (Google AI,
// gemini-embedding-001). Output dimensionality is pinned at construction time
// so every vector this package produces matches the vector store schema —
// a dimensionality mismatch is a configuration error caught here, never a
// per-call condition handled downstream.
package embed

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"google.golang.org/genai"
)

// Embedder converts text into fixed-dimension float vectors.
// Implementations must return vectors of exactly the dimension they were
// constructed with, and EmbedBatch must return vectors in input order,
// one per input text.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for all texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GenkitEmbedder implements Embedder on top of a Genkit ai.Embedder.
//
// GenkitEmbedder is safe for concurrent use by multiple goroutines.
type GenkitEmbedder struct {
	embedder ai.Embedder
	dim      int32
}

// New initializes Genkit with the Google AI plugin and returns an Embedder
// for the given model, pinned to the given output dimension.
//
// GEMINI_API_KEY is read by the plugin from the environment; config.Validate
// guarantees it is present before this is called.
func New(ctx context.Context, model string, dimension int) (*GenkitEmbedder, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, fmt.Errorf("failed to initialize Genkit")
	}
	return FromGenkit(googlegenai.GoogleAIEmbedder(g, model), dimension)
}

// FromGenkit wraps an already-constructed Genkit embedder.
// Useful when the caller owns Genkit initialization (or in tests).
func FromGenkit(embedder ai.Embedder, dimension int) (*GenkitEmbedder, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if dimension < 1 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	return &GenkitEmbedder{
		embedder: embedder,
		dim:      int32(dimension), // #nosec G115 -- validated positive, bounded by provider limits
	}, nil
}

// Embed returns the embedding for a single text.
func (e *GenkitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns embeddings for all texts, in input order.
// The provider guarantees one embedding per input document; we additionally
// verify the count and dimension so a provider regression surfaces as an
// error here instead of corrupt rows in the vector store.
func (e *GenkitEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	dim := e.dim
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   docs,
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding %d text(s): %w", len(texts), err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) != int(e.dim) {
			return nil, fmt.Errorf("provider returned %d-dimensional embedding, want %d", len(emb.Embedding), e.dim)
		}
		vecs[i] = emb.Embedding
	}
	return vecs, nil
}

// Dimension returns the pinned output dimensionality.
func (e *GenkitEmbedder) Dimension() int {
	return int(e.dim)
}
