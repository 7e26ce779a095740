package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/inkwell-ai/inkwell/backend/chat"
	"github.com/inkwell-ai/inkwell/backend/prompt"
	"github.com/inkwell-ai/inkwell/backend/streamerr"
)

type chatRequest struct {
	Tool     string                     `json:"tool"`
	Messages []prompt.TranscriptMessage `json:"messages"`
	Model    string                     `json:"model"`
	Notes    string                     `json:"notes,omitempty"`
	Image    string                     `json:"image,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := RequestID(ctx)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("malformed chat request", "request_id", requestID, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request body"})
		return
	}

	// Model validation happens before any headers are committed so the
	// plain 400 body survives.
	run := chat.Request{
		ID:       requestID,
		Tool:     req.Tool,
		Model:    req.Model,
		Messages: req.Messages,
		Notes:    req.Notes,
		Image:    req.Image,
	}

	w.Header().Set("X-Tool", req.Tool)
	w.Header().Set("X-Model", req.Model)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	sink := chat.NewEncoder(w)
	err := s.driver.Run(ctx, run, sink)
	if err == nil {
		return
	}

	var validationErr *chat.ValidationError
	if errors.As(err, &validationErr) {
		w.Header().Del("Content-Type")
		http.Error(w, validationErr.Message, http.StatusBadRequest)
		return
	}

	if sink.Started() {
		// The error frame is already in the stream; the response status
		// is committed and cannot change.
		return
	}

	var streamErr *streamerr.StreamError
	if errors.As(err, &streamErr) {
		classification := streamErr.Classification
		w.Header().Set("X-Error-Id", classification.ErrorID)
		w.Header().Set("X-Error-Type", string(classification.Type))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     classification.UserMessage,
			"errorType": classification.Type,
			"errorId":   classification.ErrorID,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error":     "Internal Server Error",
		"requestId": requestID,
	})
}
