package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const defaultWebBaseURL = "https://google-search72.p.rapidapi.com"

type webSearchInput struct {
	Query string `json:"query" jsonschema:"required,description=The search query"`
}

// NewWebSearch builds the Google web search tool backed by the RapidAPI
// google-search72 service.
func NewWebSearch(deps Deps) Tool {
	baseURL := deps.WebBaseURL
	if baseURL == "" {
		baseURL = defaultWebBaseURL
	}
	client := deps.httpClient()

	return New("web", "Search the web using Google for information",
		func(ctx context.Context, input webSearchInput) (string, error) {
			endpoint := fmt.Sprintf("%s/search?q=%s&lr=en-US&num=4",
				baseURL, url.QueryEscape(input.Query))
			return rapidAPIGet(ctx, client, endpoint, deps.RapidAPIKey)
		})
}

// rapidAPIGet performs an authenticated GET against a RapidAPI service
// and returns the raw response body.
func rapidAPIGet(ctx context.Context, client *http.Client, endpoint, apiKey string) (string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint: %w", err)
	}
	request.Header.Set("x-rapidapi-key", apiKey)
	request.Header.Set("x-rapidapi-host", parsed.Host)

	response, err := client.Do(request)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", response.StatusCode, string(body))
	}
	return string(body), nil
}
