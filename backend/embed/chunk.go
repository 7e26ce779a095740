package embed

import "strings"

// Chunk splits text into sentence chunks on ".". Fragments are
// trimmed, and empty ones dropped.
func Chunk(text string) []string {
	var chunks []string
	for _, part := range strings.Split(text, ".") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		chunks = append(chunks, part)
	}
	return chunks
}
