package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/inkwell-ai/inkwell/backend/model"
)

const notesAnalysisSystem = `You are a document analysis assistant that helps users understand their notes.
Analyze the following notes and respond to the user's query.
Be precise and extract only relevant information from the notes.`

type notesInput struct {
	Query          string `json:"query" jsonschema:"required,description=User query about notes - can be a request to read\\, analyze\\, or modify notes"`
	Action         string `json:"action" jsonschema:"required,enum=read,enum=update,description=Whether to read or update the notes"`
	UpdatedContent string `json:"updatedContent,omitempty" jsonschema:"description=New content if notes need to be updated"`
}

type notesResult struct {
	Notes    string `json:"notes"`
	Analysis string `json:"analysis,omitempty"`
	Message  string `json:"message,omitempty"`
	Updated  bool   `json:"updated"`
}

// NewNotes builds the notes tool over the request's notes content.
// Reads run a nested model call that analyzes the notes against the
// query; updates hand the new content back for the caller to apply.
func NewNotes(deps Deps, notes string) Tool {
	return New("notes", "Read notes and return the text or update notes based on user request.",
		func(ctx context.Context, input notesInput) (string, error) {
			switch {
			case input.Action == "read":
				if deps.Notes == nil {
					return "", fmt.Errorf("notes analysis provider is not configured")
				}

				prompt := fmt.Sprintf(
					"Notes content:\n%s\n\nUser query: %s\n\nProvide a concise response addressing the query based on the notes content.",
					notes, input.Query)
				response, err := deps.Notes.Invoke(ctx, deps.NotesModel, notesAnalysisSystem,
					[]*model.Message{model.NewUserMessage(prompt)})
				if err != nil {
					return "", fmt.Errorf("notes analysis failed: %w", err)
				}

				return encodeNotesResult(notesResult{
					Notes:    notes,
					Analysis: response.Text(),
					Updated:  false,
				})
			case input.Action == "update" && input.UpdatedContent != "":
				return encodeNotesResult(notesResult{
					Notes:   input.UpdatedContent,
					Message: "Notes have been updated successfully.",
					Updated: true,
				})
			default:
				return encodeNotesResult(notesResult{
					Notes:   notes,
					Message: "No valid action specified or missing required parameters.",
					Updated: false,
				})
			}
		})
}

func encodeNotesResult(result notesResult) (string, error) {
	encoded, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode notes result: %w", err)
	}
	return string(encoded), nil
}
