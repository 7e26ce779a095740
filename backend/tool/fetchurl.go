package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// fetchBodyLimit caps how much of a page is handed to the model.
const fetchBodyLimit = 1 << 20

type urlFetchInput struct {
	URL string `json:"url" jsonschema:"required,description=The URL to fetch content from"`
}

// NewURLFetch builds the tool that retrieves the content of a URL.
func NewURLFetch(deps Deps) Tool {
	client := deps.httpClient()

	return New("url", "Fetch content from a URL",
		func(ctx context.Context, input urlFetchInput) (string, error) {
			request, err := http.NewRequestWithContext(ctx, http.MethodGet, input.URL, nil)
			if err != nil {
				return "", fmt.Errorf("failed to build request: %w", err)
			}

			response, err := client.Do(request)
			if err != nil {
				return "", fmt.Errorf("fetch failed: %w", err)
			}
			defer response.Body.Close()

			body, err := io.ReadAll(io.LimitReader(response.Body, fetchBodyLimit))
			if err != nil {
				return "", fmt.Errorf("failed to read response: %w", err)
			}
			return string(body), nil
		})
}
