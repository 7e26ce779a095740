package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	fileSearchThreshold = 0.8
	fileSearchCount     = 5
)

type fileSearchInput struct {
	Prompt string `json:"prompt" jsonschema:"required,description=The search query"`
}

// NewFileSearch builds the vector store similarity search tool.
func NewFileSearch(deps Deps) Tool {
	return New("fileSearch", "Search for files in the vector database.",
		func(ctx context.Context, input fileSearchInput) (string, error) {
			if deps.Search == nil {
				return "", fmt.Errorf("vector store is not configured")
			}

			matches, err := deps.Search.Search(ctx, input.Prompt, fileSearchThreshold, fileSearchCount)
			if err != nil {
				return "", fmt.Errorf("error searching the vector store: %w", err)
			}

			result, err := json.Marshal(map[string]any{"results": matches})
			if err != nil {
				return "", fmt.Errorf("failed to encode results: %w", err)
			}
			return string(result), nil
		})
}
