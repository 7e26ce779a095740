package tool

import (
	"net/http"
	"time"

	"github.com/inkwell-ai/inkwell/backend/embed"
	"github.com/inkwell-ai/inkwell/backend/model"
)

// Deps carries the long-lived collaborators the tools are built on.
// Base URLs default to the live services and exist for test injection.
type Deps struct {
	Search      *embed.Service
	Notes       model.Provider
	NotesModel  string
	Vision      *model.AnthropicProvider
	RapidAPIKey string
	HTTPClient  *http.Client
	WebBaseURL  string
	XBaseURL    string
}

func (d Deps) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// Registry holds the tool set for a single request. Notes content and
// the whiteboard image vary per request, so registries are not shared.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds the full tool inventory for one request.
func NewRegistry(deps Deps, notes, image string) *Registry {
	registry := &Registry{tools: map[string]Tool{}}
	for _, t := range []Tool{
		NewWebSearch(deps),
		NewXSearch(deps),
		NewURLFetch(deps),
		NewFileSearch(deps),
		NewNotes(deps, notes),
		NewWhiteboard(deps, image),
	} {
		registry.tools[t.Name] = t
		registry.order = append(registry.order, t.Name)
	}
	return registry
}

// Get returns a tool by name regardless of the active selection. The
// driver uses it to execute calls the model already made.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// ActiveSet returns the tools exposed to the model for the selected
// family. Selecting "none" or an unknown family exposes no tools, which
// forces a direct answer. The returned set is the authoritative
// allow-list; the system prompt only restates it.
func (r *Registry) ActiveSet(selected string) []Tool {
	t, ok := r.tools[selected]
	if !ok {
		return nil
	}
	return []Tool{t}
}

// Specs converts a tool set into provider request shape, preserving
// registration order.
func Specs(tools []Tool) []model.ToolSpec {
	if len(tools) == 0 {
		return nil
	}
	specs := make([]model.ToolSpec, len(tools))
	for i, t := range tools {
		specs[i] = t.Spec()
	}
	return specs
}

// List returns every registered tool in registration order.
func (r *Registry) List() []Tool {
	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}
