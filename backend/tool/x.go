package tool

import (
	"context"
	"fmt"
	"net/url"
)

const defaultXBaseURL = "https://twitter-api45.p.rapidapi.com"

type xSearchInput struct {
	Query string `json:"query" jsonschema:"required,description=The query to search for"`
}

// NewXSearch builds the X search tool backed by the RapidAPI
// twitter-api45 service.
func NewXSearch(deps Deps) Tool {
	baseURL := deps.XBaseURL
	if baseURL == "" {
		baseURL = defaultXBaseURL
	}
	client := deps.httpClient()

	return New("x", "Search X (formerly Twitter) for information",
		func(ctx context.Context, input xSearchInput) (string, error) {
			endpoint := fmt.Sprintf("%s/search.php?query=%s&search_type=Top",
				baseURL, url.QueryEscape(input.Query))
			return rapidAPIGet(ctx, client, endpoint, deps.RapidAPIKey)
		})
}
