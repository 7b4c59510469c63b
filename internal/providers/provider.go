// Package providers implements the ProviderRegistry and the per-backend
// Adapter: each adapter turns a core.Request into a raw HTTP call against
// its backend and hands the response body, tagged with its wire dialect,
// to internal/stream for decoding. No adapter parses its own response body;
// that is the one job internal/stream owns.
package providers

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/haasonsaas/orchestrator-core/internal/core"
	"github.com/haasonsaas/orchestrator-core/internal/stream"
)

// Secret is the credential material an Adapter needs to authenticate a
// call. The core never logs Value and never returns it to a caller.
type Secret struct {
	Value string
}

// Adapter is the per-backend implementation of the H component. An adapter
// is stateless beyond its configured base URL/client; all per-call identity
// (model, secret) is passed explicitly.
type Adapter interface {
	// ID identifies this adapter, e.g. "openai", "anthropic", "google", "ollama".
	ID() string

	// Supports reports whether modelID is one this adapter can serve.
	Supports(modelID string) bool

	// ReportsUsage reports whether this backend's wire format includes
	// token usage in-band (all four dialects here do).
	ReportsUsage() bool

	// Invoke issues the request against the backend and returns the raw
	// response body plus the dialect internal/stream must use to decode
	// it. The caller is responsible for closing the returned body once
	// decoding finishes or the request is cancelled.
	Invoke(ctx context.Context, req core.Request, secret Secret) (io.ReadCloser, stream.Dialect, error)
}

// Registry is the lookup table from provider ID to Adapter, and the
// candidate-model resolution the Router consults when building a
// candidate list.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	order    []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds or replaces the adapter for its ID.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.ID()]; !exists {
		r.order = append(r.order, a.ID())
	}
	r.adapters[a.ID()] = a
}

// Lookup returns the adapter registered under id.
func (r *Registry) Lookup(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// Iter returns all registered adapters in registration order.
func (r *Registry) Iter() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id])
	}
	return out
}

// ForModel returns every registered adapter that claims to support modelID,
// in registration order. The Router uses this to expand a bare model ID
// into a candidate list when the caller did not pin a provider.
func (r *Registry) ForModel(modelID string) []Adapter {
	var out []Adapter
	for _, a := range r.Iter() {
		if a.Supports(modelID) {
			out = append(out, a)
		}
	}
	return out
}

// IDs returns the sorted list of registered provider IDs, mainly for the
// `list-providers` CLI command.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// errUnsupportedModel is the KindUnknownModel error an adapter returns for a
// model it does not serve.
func errUnsupportedModel(adapterID, modelID string) error {
	return &core.Error{
		Kind:    core.KindUnknownModel,
		Message: fmt.Sprintf("adapter %s does not serve model %q", adapterID, modelID),
	}
}
