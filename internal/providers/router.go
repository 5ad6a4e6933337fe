package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Router ranks registered providers and fails over between them per
// spec.md §4.4.
type Router struct {
	mu        sync.RWMutex
	providers []Provider
	// lastHealthy tracks the most recent CheckHealth result per provider
	// name, used as ranking input (4.4 rule 3).
	lastHealthy map[string]bool

	sensitivityThreshold float64
}

// NewRouter builds a Router over the given providers, in registration order
// (used as the stable tie-break, rule 4).
func NewRouter(sensitivityThreshold float64, provs ...Provider) *Router {
	return &Router{
		providers:            provs,
		lastHealthy:          make(map[string]bool, len(provs)),
		sensitivityThreshold: sensitivityThreshold,
	}
}

// RefreshHealth probes every provider's health and records the result for
// ranking. Call periodically; Generate does not probe inline.
func (r *Router) RefreshHealth(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.providers {
		r.lastHealthy[p.Name()] = p.CheckHealth(ctx)
	}
}

// rank orders providers per spec.md §4.4: (1) local-first when sensitivity
// exceeded, (2) lower estimated cost, (3) last-healthy before last-failed,
// (4) stable registration order for ties.
func (r *Router) rank(sensitive bool, expectedTokens int) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ranked := make([]Provider, len(r.providers))
	copy(ranked, r.providers)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]

		if sensitive && a.IsLocal() != b.IsLocal() {
			return a.IsLocal()
		}

		ca, cb := a.EstimatedCost(expectedTokens), b.EstimatedCost(expectedTokens)
		if ca != cb {
			return ca < cb
		}

		ha, hb := r.lastHealthy[a.Name()], r.lastHealthy[b.Name()]
		if ha != hb {
			return ha
		}

		return false // stable order preserved by SliceStable
	})
	return ranked
}

// GenerateOptions carries the per-request ranking inputs.
type GenerateOptions struct {
	// Sensitive marks the request as exceeding the configured
	// sensitivity_threshold, triggering local-first ranking.
	Sensitive      bool
	ExpectedTokens int
}

// ErrAllProvidersFailed wraps ErrProviderUnavailable with the underlying
// per-provider errors, per spec.md §4.4/§8.
type ErrAllProvidersFailed struct {
	Underlying []error
}

func (e *ErrAllProvidersFailed) Error() string {
	return fmt.Sprintf("All LLM providers failed (%d attempts)", len(e.Underlying))
}

func (e *ErrAllProvidersFailed) Unwrap() error { return ErrProviderUnavailable }

// Generate attempts providers in ranked order, advancing on any retryable
// error, returning the first success.
func (r *Router) Generate(ctx context.Context, req ChatRequest, opts GenerateOptions) (*ChatResponse, string, error) {
	ranked := r.rank(opts.Sensitive, opts.ExpectedTokens)
	if len(ranked) == 0 {
		return nil, "", &ErrAllProvidersFailed{Underlying: []error{errors.New("no providers registered")}}
	}

	var underlying []error
	for _, p := range ranked {
		resp, err := p.Generate(ctx, req)
		if err == nil {
			return resp, p.Name(), nil
		}

		underlying = append(underlying, fmt.Errorf("%s: %w", p.Name(), err))
		slog.Warn("provider call failed", "provider", p.Name(), "err", err)

		if errors.Is(err, ErrInvalidRequest) {
			// request-shape error: not a provider fault, stop trying others.
			return nil, "", err
		}
		// RateLimitExceeded, ProviderUnavailable, Timeout, NetworkError,
		// and AuthenticationFailed all advance to the next provider.
	}

	return nil, "", &ErrAllProvidersFailed{Underlying: underlying}
}
