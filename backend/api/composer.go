package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/inkwell-ai/inkwell/backend/composer"
	"github.com/inkwell-ai/inkwell/backend/prompt"
)

type composerRequest struct {
	Messages   []prompt.TranscriptMessage `json:"messages"`
	Prompt     string                     `json:"prompt"`
	EditorHTML string                     `json:"editorHTML"`
	Model      string                     `json:"model"`
}

func (s *Server) handleComposer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := RequestID(ctx)

	var req composerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("malformed composer request", "request_id", requestID, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request body"})
		return
	}

	result, err := s.composer.Compose(ctx, composer.Request{
		Model:      req.Model,
		Prompt:     req.Prompt,
		Messages:   req.Messages,
		EditorHTML: req.EditorHTML,
	})
	if err != nil {
		if errors.Is(err, composer.ErrInvalidModel) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid model"})
			return
		}

		var schemaErr *composer.SchemaError
		if errors.As(err, &schemaErr) {
			s.logger.Error("composer schema error", "request_id", requestID, "error", err)
		} else {
			s.logger.Error("composer generation failed", "request_id", requestID, "error", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to generate content"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}
