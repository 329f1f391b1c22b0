package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quarrylabs/quarry/internal/ingest"
	"github.com/quarrylabs/quarry/internal/retrieval"
	"github.com/quarrylabs/quarry/internal/vector"
)

// maxDocumentBytes bounds uploaded document size (pre-extracted text).
const maxDocumentBytes = 10 << 20 // 10 MiB

// Retriever is the query capability the handlers consume.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, threshold float64) (*retrieval.Result, error)
}

// Ingestor is the ingestion capability the handlers consume.
type Ingestor interface {
	Ingest(ctx context.Context, sourceName string, content []byte) (*ingest.Result, error)
}

// queryHandler serves POST /api/v1/query.
type queryHandler struct {
	retriever Retriever
	topK      int
	threshold float64
	logger    *slog.Logger
}

type queryRequest struct {
	Query     string   `json:"query"`
	TopK      int      `json:"top_k,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

type queryDocument struct {
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

type queryResponse struct {
	Context   string          `json:"context"`
	Documents []queryDocument `json:"documents"`
	CacheHit  bool            `json:"cache_hit"`
}

func (h *queryHandler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", h.logger)
		return
	}
	if req.Query == "" {
		WriteError(w, http.StatusBadRequest, "missing_query", "query cannot be empty", h.logger)
		return
	}

	topK := req.TopK
	if topK <= 0 {
		topK = h.topK
	}
	threshold := h.threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	result, err := h.retriever.Retrieve(r.Context(), req.Query, topK, threshold)
	if err != nil {
		if errors.Is(err, retrieval.ErrRetrievalFailed) {
			WriteError(w, http.StatusServiceUnavailable, "retrieval_unavailable",
				"retrieval is temporarily unavailable, try again later", h.logger)
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}

	resp := queryResponse{CacheHit: result.CacheHit}
	if result.CacheHit {
		resp.Context = result.CachedResponse
	} else {
		resp.Context = retrieval.BuildContextString(result.Documents)
		resp.Documents = toQueryDocuments(result.Documents)
	}

	WriteJSON(w, http.StatusOK, resp)
}

func toQueryDocuments(docs []vector.ScoredDocument) []queryDocument {
	out := make([]queryDocument, len(docs))
	for i, d := range docs {
		out[i] = queryDocument{Content: d.Document.Content, Similarity: d.Similarity}
	}
	return out
}

// documentHandler serves POST /api/v1/documents.
type documentHandler struct {
	ingestor Ingestor
	logger   *slog.Logger
}

type documentRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type documentResponse struct {
	SourceHash string `json:"source_hash"`
	Chunks     int    `json:"chunks"`
}

func (h *documentHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes)

	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "document exceeds size limit", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", h.logger)
		return
	}
	if req.Content == "" {
		WriteError(w, http.StatusBadRequest, "missing_content", "content cannot be empty", h.logger)
		return
	}

	result, err := h.ingestor.Ingest(r.Context(), req.Name, []byte(req.Content))
	if err != nil {
		if errors.Is(err, ingest.ErrDuplicateContent) {
			WriteError(w, http.StatusConflict, "duplicate_content",
				"this document has already been ingested", h.logger)
			return
		}
		h.logger.Error("ingestion failed", "source", req.Name, "error", err)
		WriteError(w, http.StatusInternalServerError, "ingest_failed", "failed to ingest document", h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, documentResponse{
		SourceHash: result.SourceHash,
		Chunks:     result.Chunks,
	})
}
