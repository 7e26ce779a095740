package tool

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// whiteboardImageLimit guards against oversized whiteboard exports.
const whiteboardImageLimit = 8 << 20

type whiteboardInput struct {
	Query string `json:"query" jsonschema:"required,description=User query about the whiteboard image"`
}

type whiteboardResult struct {
	Analysis string `json:"analysis"`
	Success  bool   `json:"success"`
}

// NewWhiteboard builds the whiteboard analysis tool over the request's
// image URL. Analysis failures are reported in the result rather than
// as errors so the model can react conversationally.
func NewWhiteboard(deps Deps, imageURL string) Tool {
	client := deps.httpClient()

	return New("whiteboard", "Analyze whiteboard images and extract information from them",
		func(ctx context.Context, input whiteboardInput) (string, error) {
			analysis, err := analyzeImage(ctx, deps, client, imageURL, input.Query)
			if err != nil {
				return encodeWhiteboardResult(whiteboardResult{
					Analysis: "Error analyzing whiteboard image",
					Success:  false,
				})
			}
			return encodeWhiteboardResult(whiteboardResult{
				Analysis: analysis,
				Success:  true,
			})
		})
}

func analyzeImage(ctx context.Context, deps Deps, client *http.Client, imageURL, query string) (string, error) {
	if deps.Vision == nil {
		return "", fmt.Errorf("vision provider is not configured")
	}
	if imageURL == "" {
		return "", fmt.Errorf("no whiteboard image provided")
	}

	mediaType, data, err := fetchImage(ctx, client, imageURL)
	if err != nil {
		return "", err
	}
	return deps.Vision.AnalyzeImage(ctx, mediaType, data, query)
}

func fetchImage(ctx context.Context, client *http.Client, imageURL string) (string, string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to build image request: %w", err)
	}

	response, err := client.Do(request)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status %d fetching image", response.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, whiteboardImageLimit))
	if err != nil {
		return "", "", fmt.Errorf("failed to read image: %w", err)
	}

	mediaType := response.Header.Get("Content-Type")
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = "image/png"
	}
	return mediaType, base64.StdEncoding.EncodeToString(body), nil
}

func encodeWhiteboardResult(result whiteboardResult) (string, error) {
	encoded, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode whiteboard result: %w", err)
	}
	return string(encoded), nil
}
