package api

import (
	"encoding/json"
	"net/http"

	"github.com/inkwell-ai/inkwell/backend/embed"
)

type embedRequest struct {
	Text string `json:"text"`
}

type embeddedChunk struct {
	Content   string    `json:"content"`
	Embedding []float64 `json:"embedding"`
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := RequestID(ctx)

	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("malformed embed request", "request_id", requestID, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request body"})
		return
	}

	chunks := embed.Chunk(req.Text)
	embeddings, err := s.embed.Index(ctx, req.Text)
	if err != nil {
		s.logger.Error("embedding generation failed", "request_id", requestID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to generate embeddings"})
		return
	}

	result := make([]embeddedChunk, len(embeddings))
	for i := range embeddings {
		result[i] = embeddedChunk{Content: chunks[i], Embedding: embeddings[i]}
	}

	s.logger.Info("embeddings stored", "request_id", requestID, "count", len(result))
	writeJSON(w, http.StatusOK, map[string]any{
		"embeddings": result,
		"message":    "success",
		"count":      len(result),
	})
}
