package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoProvider is returned when no provider is registered.
var ErrNoProvider = errors.New("no AI provider registered")

// Router tries registered providers in registration order and returns the
// first successful completion.
type Router struct {
	providers map[string]Provider
	fallback  []string // ordered fallback chain
	mu        sync.RWMutex
}

// NewRouter creates a new AI router.
func NewRouter() *Router {
	return &Router{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the router. Registering a name twice replaces
// the provider but keeps its original position in the chain.
func (r *Router) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; !exists {
		r.fallback = append(r.fallback, name)
	}
	r.providers[name] = provider
}

// Complete routes a request through the fallback chain. A cancelled or
// expired context stops the chain immediately. req.Model names a model of
// the first provider only; fallback providers use their default model.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.fallback) == 0 {
		return CompletionResponse{}, ErrNoProvider
	}

	var errs []error
	for i, name := range r.fallback {
		if err := ctx.Err(); err != nil {
			return CompletionResponse{}, fmt.Errorf("AI request aborted: %w", err)
		}

		attempt := req
		if i > 0 {
			attempt.Model = ""
		}
		resp, err := r.providers[name].Complete(ctx, attempt)
		if err != nil {
			slog.Warn("AI provider failed, trying next",
				"provider", name,
				"task", req.Task.String(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}

		resp.Provider = name
		slog.Debug("AI request completed",
			"provider", name,
			"task", req.Task.String(),
			"model", resp.Model,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
		)
		return resp, nil
	}

	return CompletionResponse{}, fmt.Errorf("all AI providers failed: %w", errors.Join(errs...))
}

// HasProvider returns true if at least one provider is registered.
func (r *Router) HasProvider() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}

// Providers returns the registered provider names in fallback order.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.fallback...)
}

// ProviderStatus describes one registered provider.
type ProviderStatus struct {
	Name    string      `json:"name"`
	Models  []ModelInfo `json:"models"`
	Healthy bool        `json:"healthy"`
	Error   string      `json:"error,omitempty"`
}

// Status health-checks every provider, in fallback order.
func (r *Router) Status(ctx context.Context) []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderStatus, 0, len(r.fallback))
	for _, name := range r.fallback {
		p := r.providers[name]
		st := ProviderStatus{Name: name, Models: p.Models(), Healthy: true}
		if err := p.HealthCheck(ctx); err != nil {
			st.Healthy = false
			st.Error = err.Error()
		}
		out = append(out, st)
	}
	return out
}
