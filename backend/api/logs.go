package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type clientErrorReport struct {
	ErrorType string `json:"errorType"`
	ErrorID   string `json:"errorId"`
	Message   string `json:"message"`
	Stack     string `json:"stack"`
	Timestamp string `json:"timestamp"`
}

// handleLogClientError records a client-side stream error so it can be
// joined with server logs through the shared error id.
func (s *Server) handleLogClientError(w http.ResponseWriter, r *http.Request) {
	requestID := RequestID(r.Context())

	var report clientErrorReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		s.logger.Error("failed to parse client error report", "request_id", requestID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "Failed to log error",
		})
		return
	}

	s.logger.Error("client-side stream error reported",
		"request_id", requestID,
		"client_error", true,
		"error_type", report.ErrorType,
		"error_id", report.ErrorID,
		"message", report.Message,
		"stack", report.Stack,
		"timestamp", report.Timestamp,
		"user_agent", r.Header.Get("User-Agent"),
		"referer", r.Header.Get("Referer"),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"logged":  true,
		"errorId": report.ErrorID,
	})
}

type clientLogEntry struct {
	Level    string         `json:"level"`
	Category string         `json:"category"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context"`
	Data     map[string]any `json:"data"`
	Error    string         `json:"error"`
}

// handleClientLogs forwards leveled client logs into the server log.
func (s *Server) handleClientLogs(w http.ResponseWriter, r *http.Request) {
	requestID := RequestID(r.Context())

	var entry clientLogEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to process log"})
		return
	}
	if entry.Level == "" || entry.Category == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid log data"})
		return
	}

	message := entry.Message
	if message == "" {
		message = "Client log"
	}

	attrs := []any{
		"request_id", requestID,
		"category", entry.Category,
		"source", "client",
		"user_agent", r.Header.Get("User-Agent"),
	}
	if entry.Context != nil {
		attrs = append(attrs, "context", entry.Context)
	}
	if entry.Data != nil {
		attrs = append(attrs, "data", entry.Data)
	}
	if entry.Error != "" {
		attrs = append(attrs, "error", entry.Error)
	}

	s.logger.Log(r.Context(), clientLogLevel(entry.Level), message, attrs...)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func clientLogLevel(level string) slog.Level {
	switch level {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
