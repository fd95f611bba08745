// Package router decides which backend serves each request and executes
// the call.
//
// Routing looks at the parsed model string and at which credentials are
// currently available. OpenAI-prefixed models go to the direct OpenAI
// backend when an OpenAI key exists; everything else goes through the
// OpenRouter aggregator. When the preferred path has no credentials the
// router falls back rather than failing, and only reports an error when
// no configured provider can serve the request at all. Credential
// availability is evaluated fresh on every call so keys added or revoked
// at runtime take effect immediately.
package router

import (
	"context"
	"sync"

	"github.com/taskloop/taskloop/backend"
	"github.com/taskloop/taskloop/credentials"
	engerrors "github.com/taskloop/taskloop/errors"
	"github.com/taskloop/taskloop/logging"
	"github.com/taskloop/taskloop/model"
)

// Decision identifies the routing outcome for a request.
type Decision string

const (
	// DecisionOpenAIDirect routes to the OpenAI API with the provider
	// prefix stripped from the model name.
	DecisionOpenAIDirect Decision = "OPENAI_DIRECT"

	// DecisionOpenRouter routes through the aggregator with the full
	// "provider/model" identifier.
	DecisionOpenRouter Decision = "OPENROUTER"

	// DecisionFallback substitutes the default model because the
	// requested one could not be parsed or its preferred path has no
	// credentials.
	DecisionFallback Decision = "FALLBACK"
)

// CredentialSource answers credential availability queries. Both
// credentials.Credentials and credentials.Static satisfy it.
type CredentialSource interface {
	APIKey(provider string) string
	HasCredential(provider string) bool
}

var (
	_ CredentialSource = (*credentials.Credentials)(nil)
	_ CredentialSource = (credentials.Static)(nil)
)

// Route describes where a request will be sent.
type Route struct {
	Decision Decision
	Provider string            // Serving backend: "openai" or "openrouter"
	Model    string            // Model identifier in the serving backend's dialect
	Parsed   model.ParsedModel // Parse result for the requested model string
	Reason   string            // Short human-readable explanation
}

// BackendFactory builds a backend from an API key. Overridable in
// RouterConfig so tests can substitute mocks.
type BackendFactory func(apiKey string) (backend.Backend, error)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Credentials CredentialSource
	Logger      *logging.Logger
	MaxTokens   int
	Retry       backend.RetryConfig

	// OpenAIFactory and OpenRouterFactory override backend construction.
	// Defaults build the real backends.
	OpenAIFactory     BackendFactory
	OpenRouterFactory BackendFactory
}

// Router resolves model strings to backends and executes requests.
type Router struct {
	creds     CredentialSource
	log       *logging.Logger
	newOpenAI BackendFactory
	newRouter BackendFactory
	maxTokens int

	mu    sync.Mutex
	stats stats
}

type stats struct {
	total         int64
	openAIDirect  int64
	openRouter    int64
	fallback      int64
	noCredentials int64
	failures      int64
}

// New creates a router. Credentials are required; everything else has
// defaults.
func New(cfg RouterConfig) (*Router, error) {
	if cfg.Credentials == nil {
		return nil, engerrors.Validation("credentials source is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}

	newOpenAI := cfg.OpenAIFactory
	if newOpenAI == nil {
		retry := cfg.Retry
		maxTokens := cfg.MaxTokens
		newOpenAI = func(apiKey string) (backend.Backend, error) {
			return backend.NewOpenAIBackend(backend.OpenAIConfig{
				APIKey:    apiKey,
				MaxTokens: maxTokens,
				Retry:     retry,
			})
		}
	}
	newRouter := cfg.OpenRouterFactory
	if newRouter == nil {
		retry := cfg.Retry
		maxTokens := cfg.MaxTokens
		newRouter = func(apiKey string) (backend.Backend, error) {
			return backend.NewOpenRouterBackend(backend.OpenRouterConfig{
				APIKey:    apiKey,
				MaxTokens: maxTokens,
				Retry:     retry,
			})
		}
	}

	return &Router{
		creds:     cfg.Credentials,
		log:       log.WithComponent("router"),
		newOpenAI: newOpenAI,
		newRouter: newRouter,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// DetermineRoute resolves a model string to a route without executing
// anything. Credential availability is checked at call time.
func (r *Router) DetermineRoute(modelString string) (Route, error) {
	parsed, _ := model.Parse(modelString, false)

	hasOpenAI := r.creds.HasCredential(model.ProviderOpenAI)
	hasRouter := r.creds.HasCredential(model.ProviderOpenRouter)

	if !hasOpenAI && !hasRouter {
		r.record(func(s *stats) { s.total++; s.noCredentials++ })
		return Route{Parsed: parsed}, engerrors.NoCredentials(
			"no provider credentials available",
			engerrors.WithMetadata("model", modelString))
	}

	// Unparseable model strings fall back to the default model on
	// whichever path has credentials.
	if parsed.HasCriticalErrors() {
		defProvider, defModel := model.Default()
		route := Route{
			Decision: DecisionFallback,
			Parsed:   parsed,
			Reason:   "model string missing provider separator, using default model",
		}
		if hasOpenAI {
			route.Provider = model.ProviderOpenAI
			route.Model = defModel
		} else {
			route.Provider = model.ProviderOpenRouter
			route.Model = model.Format(defProvider, defModel)
		}
		r.finishRoute(route)
		return route, nil
	}

	if model.IsOpenAIProvider(parsed.Provider) {
		if hasOpenAI {
			route := Route{
				Decision: DecisionOpenAIDirect,
				Provider: model.ProviderOpenAI,
				Model:    parsed.Model,
				Parsed:   parsed,
				Reason:   "openai model with direct credentials",
			}
			r.finishRoute(route)
			return route, nil
		}
		// OpenAI model without an OpenAI key still runs, via the
		// aggregator.
		route := Route{
			Decision: DecisionOpenRouter,
			Provider: model.ProviderOpenRouter,
			Model:    parsed.String(),
			Parsed:   parsed,
			Reason:   "openai model served through aggregator, no direct credentials",
		}
		r.finishRoute(route)
		return route, nil
	}

	// Non-OpenAI providers are always aggregator territory.
	if hasRouter {
		route := Route{
			Decision: DecisionOpenRouter,
			Provider: model.ProviderOpenRouter,
			Model:    parsed.String(),
			Parsed:   parsed,
			Reason:   "non-openai provider served through aggregator",
		}
		r.finishRoute(route)
		return route, nil
	}

	// Only an OpenAI key is available: substitute the default model.
	_, defModel := model.Default()
	route := Route{
		Decision: DecisionFallback,
		Provider: model.ProviderOpenAI,
		Model:    defModel,
		Parsed:   parsed,
		Reason:   "no aggregator credentials for " + parsed.Provider + ", using default model",
	}
	r.finishRoute(route)
	return route, nil
}

func (r *Router) finishRoute(route Route) {
	r.record(func(s *stats) {
		s.total++
		switch route.Decision {
		case DecisionOpenAIDirect:
			s.openAIDirect++
		case DecisionOpenRouter:
			s.openRouter++
		case DecisionFallback:
			s.fallback++
		}
	})
	r.log.RouteDecision(string(route.Decision), route.Provider, route.Model)
}

func (r *Router) record(fn func(*stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

// Request is a routed completion request.
type Request struct {
	Model        string // Raw model string, "provider/model" form
	Content      string
	SystemPrompt string
	MaxTokens    int
}

// RouteRequest determines the route for the request's model string and
// executes it on the chosen backend. The returned Route is valid
// whenever routing itself succeeded, even if the backend call failed.
func (r *Router) RouteRequest(ctx context.Context, req Request) (*backend.Response, Route, error) {
	route, err := r.DetermineRoute(req.Model)
	if err != nil {
		return nil, route, err
	}

	b, err := r.backendFor(route)
	if err != nil {
		r.record(func(s *stats) { s.failures++ })
		return nil, route, engerrors.Routing(stageName(route.Decision), err)
	}

	resp, err := b.Generate(ctx, backend.Request{
		Model:        route.Model,
		Content:      req.Content,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    req.MaxTokens,
	})
	if err != nil {
		r.record(func(s *stats) { s.failures++ })
		return nil, route, engerrors.Routing(stageName(route.Decision), err,
			engerrors.WithProvider(route.Provider))
	}
	return resp, route, nil
}

// backendFor builds the backend serving the route using a fresh API key.
func (r *Router) backendFor(route Route) (backend.Backend, error) {
	key := r.creds.APIKey(route.Provider)
	if route.Provider == model.ProviderOpenAI {
		return r.newOpenAI(key)
	}
	return r.newRouter(key)
}

func stageName(d Decision) string {
	switch d {
	case DecisionOpenAIDirect:
		return "OpenAI"
	case DecisionOpenRouter:
		return "OpenRouter"
	default:
		return "Fallback"
	}
}

// Stats is a point-in-time snapshot of routing activity.
type Stats struct {
	TotalRequests int64
	OpenAIDirect  int64
	OpenRouter    int64
	Fallback      int64
	NoCredentials int64
	Failures      int64

	// Percentages of total, zero when no requests were made.
	OpenAIDirectPct float64
	OpenRouterPct   float64
	FallbackPct     float64

	// ProviderAvailability is computed fresh at snapshot time.
	ProviderAvailability map[string]bool
}

// Statistics returns a snapshot of counters plus current credential
// availability for every supported provider.
func (r *Router) Statistics() Stats {
	r.mu.Lock()
	s := r.stats
	r.mu.Unlock()

	out := Stats{
		TotalRequests: s.total,
		OpenAIDirect:  s.openAIDirect,
		OpenRouter:    s.openRouter,
		Fallback:      s.fallback,
		NoCredentials: s.noCredentials,
		Failures:      s.failures,
	}
	if s.total > 0 {
		out.OpenAIDirectPct = float64(s.openAIDirect) / float64(s.total) * 100
		out.OpenRouterPct = float64(s.openRouter) / float64(s.total) * 100
		out.FallbackPct = float64(s.fallback) / float64(s.total) * 100
	}

	out.ProviderAvailability = make(map[string]bool)
	for _, p := range model.SupportedProviders() {
		out.ProviderAvailability[p] = r.creds.HasCredential(p)
	}
	return out
}
