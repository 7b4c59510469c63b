// Package router implements the Router (component I): given a request and
// caller preferences, it ranks candidate provider adapters, issues the call
// with pre-first-chunk failover, decodes and relays the stream, and
// annotates the result with cost and cache status.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/orchestrator-core/internal/audit"
	"github.com/haasonsaas/orchestrator-core/internal/backoff"
	"github.com/haasonsaas/orchestrator-core/internal/cache"
	"github.com/haasonsaas/orchestrator-core/internal/core"
	"github.com/haasonsaas/orchestrator-core/internal/cost"
	"github.com/haasonsaas/orchestrator-core/internal/models"
	"github.com/haasonsaas/orchestrator-core/internal/observability"
	"github.com/haasonsaas/orchestrator-core/internal/providers"
	"github.com/haasonsaas/orchestrator-core/internal/stream"
)

// SecretResolver returns the credential a candidate's adapter needs to call
// its provider, e.g. an API key looked up from the SecretStore under
// "<provider_id>_api_key".
type SecretResolver func(ctx context.Context, providerID string) (providers.Secret, error)

// QualityScore ranks adapters for StrategyHighestQuality; higher wins. A
// nil or missing entry is treated as 0.
type QualityScore map[string]float64

// Config tunes Router behavior; all fields have spec-mandated defaults.
type Config struct {
	// RetryBudget is how many additional candidates the Router will try
	// after the first one fails pre-first-chunk (spec default 2).
	RetryBudget int

	// DeterminismThreshold gates cache-write eligibility (spec default 0.2).
	DeterminismThreshold float64

	// ExpectedOutputTokens estimates completion length for LowestCost
	// ranking when the actual completion size is not yet known.
	ExpectedOutputTokens int

	// Quality scores adapters for StrategyHighestQuality.
	Quality QualityScore

	// CandidateBackoff is the pause between pre-first-chunk failover
	// attempts.
	CandidateBackoff backoff.BackoffPolicy
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		RetryBudget:          2,
		DeterminismThreshold: cache.DefaultDeterminismThreshold,
		ExpectedOutputTokens: 500,
		Quality:              QualityScore{},
		CandidateBackoff:     backoff.AggressivePolicy(),
	}
}

// Router is the spec's stateless-per-call route() operation, bound to a
// fixed set of collaborators.
type Router struct {
	registry *providers.Registry
	catalog  *models.Catalog
	cache    *cache.Cache
	journal  *audit.Journal
	secrets  SecretResolver
	cfg      Config
	metrics  *observability.Metrics
}

// New builds a Router from its collaborators.
func New(registry *providers.Registry, catalog *models.Catalog, respCache *cache.Cache, journal *audit.Journal, secrets SecretResolver, cfg Config) *Router {
	return &Router{
		registry: registry,
		catalog:  catalog,
		cache:    respCache,
		journal:  journal,
		secrets:  secrets,
		cfg:      cfg,
	}
}

// SetMetrics attaches the Prometheus collectors this Router publishes
// provider-call latency and cache hit/miss counts against. nil (the
// default) disables metrics collection.
func (r *Router) SetMetrics(m *observability.Metrics) {
	r.metrics = m
}

// Route executes one Router turn for req on behalf of callerID.
func (r *Router) Route(ctx context.Context, req core.Request, prefs core.RouterPreferences, callerID string) (outcome *core.Outcome, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "router.route",
		attribute.String("caller_id", callerID), attribute.String("requested_model", req.Model))
	defer func() { observability.EndSpan(span, err) }()

	fp := Fingerprint(req)

	entry, hit := r.cache.Get(fp)
	if r.metrics != nil {
		r.metrics.ObserveCacheResult(hit)
	}
	if hit {
		return r.cachedOutcome(ctx, entry, callerID, start)
	}

	candidates, err := r.buildCandidates(req, prefs)
	if err != nil {
		return nil, err
	}

	return r.dispatch(ctx, req, candidates, fp, callerID, start)
}

func (r *Router) cachedOutcome(ctx context.Context, entry *cache.Entry, callerID string, start time.Time) (*core.Outcome, error) {
	var final core.Final
	if err := json.Unmarshal(entry.CanonicalResponse, &final); err != nil {
		return nil, core.NewError(core.KindCacheInconsistency, "cached response failed to decode", err)
	}
	final.CacheHit = true

	ch := make(chan core.StreamChunk, 1)
	ch <- core.StreamChunk{
		ContentDelta: final.Content,
		FinishReason: core.FinishStop,
		Usage:        &final.Usage,
	}
	close(ch)

	r.writeProviderCallEvent(ctx, callerID, final, true, audit.StatusSuccess, time.Since(start))
	return &core.Outcome{Chunks: ch, Final: final}, nil
}

func (r *Router) buildCandidates(req core.Request, prefs core.RouterPreferences) ([]core.Candidate, error) {
	if prefs.Provider != "" {
		adapter, ok := r.registry.Lookup(prefs.Provider)
		if !ok || (req.Model != "" && !adapter.Supports(req.Model)) {
			return nil, core.NewError(core.KindNoProviderAvailable, fmt.Sprintf("provider %q does not support model %q", prefs.Provider, req.Model), nil)
		}
		return []core.Candidate{{ProviderID: prefs.Provider, ModelID: req.Model}}, nil
	}

	if prefs.Strategy == core.StrategyPinnedOrder && len(prefs.PinnedOrder) > 0 {
		return prefs.PinnedOrder, nil
	}

	matching := r.registry.ForModel(req.Model)
	if len(matching) == 0 {
		return nil, core.NewError(core.KindNoProviderAvailable, fmt.Sprintf("no adapter supports model %q", req.Model), nil)
	}

	candidates := make([]core.Candidate, len(matching))
	for i, a := range matching {
		candidates[i] = core.Candidate{ProviderID: a.ID(), ModelID: req.Model}
	}

	switch prefs.Strategy {
	case core.StrategyLowestCost:
		r.rankByCost(candidates, req)
	case core.StrategyHighestQuality:
		sort.SliceStable(candidates, func(i, j int) bool {
			return r.cfg.Quality[candidates[i].ProviderID] > r.cfg.Quality[candidates[j].ProviderID]
		})
	case core.StrategyLowestLatency:
		// No rolling latency window is tracked yet; fall back to declaration
		// order, which is deterministic and stable across calls.
	default: // StrategyAuto and unset
		r.rankAuto(candidates, req)
	}
	return candidates, nil
}

func (r *Router) rankByCost(candidates []core.Candidate, req core.Request) {
	promptTokens := estimatePromptTokens(req)
	sort.SliceStable(candidates, func(i, j int) bool {
		ci, erri := cost.Estimate(r.catalog, candidates[i].ModelID, promptTokens, r.cfg.ExpectedOutputTokens)
		cj, errj := cost.Estimate(r.catalog, candidates[j].ModelID, promptTokens, r.cfg.ExpectedOutputTokens)
		if erri != nil {
			return false
		}
		if errj != nil {
			return true
		}
		return ci < cj
	})
}

func (r *Router) rankAuto(candidates []core.Candidate, req core.Request) {
	sort.SliceStable(candidates, func(i, j int) bool {
		zi := r.isZeroCost(candidates[i].ModelID)
		zj := r.isZeroCost(candidates[j].ModelID)
		if zi != zj {
			return zi
		}
		return false
	})
	if !anyZeroCost(candidates, r) {
		r.rankByCost(candidates, req)
	}
}

func (r *Router) isZeroCost(modelID string) bool {
	m, ok := r.catalog.Get(modelID)
	return ok && m.InputPrice == 0 && m.OutputPrice == 0
}

func anyZeroCost(candidates []core.Candidate, r *Router) bool {
	for _, c := range candidates {
		if r.isZeroCost(c.ModelID) {
			return true
		}
	}
	return false
}

func estimatePromptTokens(req core.Request) int {
	total := 0
	for _, m := range req.Messages {
		total += cost.EstimateTokens(m.Text())
	}
	return total
}

// dispatch tries candidates in order, relaying the first one whose adapter
// returns a response body. A retryable error from the secret lookup or the
// adapter call fails over to the next candidate, bounded by cfg.RetryBudget.
// Once a body is returned there is no failover: a stream error, including
// one before the first chunk, ends the call.
func (r *Router) dispatch(ctx context.Context, req core.Request, candidates []core.Candidate, fp, callerID string, start time.Time) (*core.Outcome, error) {
	attempts := 1 + r.cfg.RetryBudget
	if attempts > len(candidates) {
		attempts = len(candidates)
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		candidate := candidates[i]
		outcome, err := r.tryCandidate(ctx, req, candidate, fp, callerID, start)
		if err == nil {
			return outcome, nil
		}
		lastErr = err

		coreErr, ok := err.(*core.Error)
		if !ok || !coreErr.Retryable() {
			return nil, err
		}
		if i < attempts-1 {
			if err := backoff.SleepWithBackoff(ctx, r.cfg.CandidateBackoff, i+1); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func (r *Router) tryCandidate(ctx context.Context, req core.Request, candidate core.Candidate, fp, callerID string, start time.Time) (*core.Outcome, error) {
	adapter, ok := r.registry.Lookup(candidate.ProviderID)
	if !ok {
		return nil, core.NewError(core.KindNoProviderAvailable, fmt.Sprintf("adapter %q not registered", candidate.ProviderID), nil)
	}

	secret, err := r.secrets(ctx, candidate.ProviderID)
	if err != nil {
		return nil, core.NewError(core.KindSecretMissing, fmt.Sprintf("no secret for provider %q", candidate.ProviderID), err)
	}

	callReq := req
	callReq.Model = candidate.ModelID

	body, dialect, err := adapter.Invoke(ctx, callReq, secret)
	if err != nil {
		return nil, err
	}

	decoded, err := stream.Decode(ctx, body, dialect)
	if err != nil {
		body.Close()
		return nil, err
	}

	relayed := make(chan core.StreamChunk, stream.ChunkBufferSize)
	outcome := &core.Outcome{Chunks: relayed}

	go func() {
		defer body.Close()
		content, calls, usage, finish, aggErr := stream.Aggregate(ctx, decoded, func(c core.StreamChunk) {
			relayed <- c
		})

		final := core.Final{
			ProviderID: candidate.ProviderID,
			ModelID:    candidate.ModelID,
		}
		status := audit.StatusSuccess
		if aggErr != nil {
			status = audit.StatusFailure
		} else {
			final.Content = content
			final.ToolCalls = calls
			final.Usage = usage
			final.CostUSD = r.computeCost(candidate.ModelID, usage, content)
			if cache.Eligible(string(finish), len(calls) > 0, req.Temperature, r.cfg.DeterminismThreshold) {
				r.writeCacheEntry(fp, final)
			}
		}

		r.writeProviderCallEvent(ctx, callerID, final, false, status, time.Since(start))
		outcome.Final = final
		close(relayed)
	}()

	return outcome, nil
}

func (r *Router) computeCost(modelID string, usage core.Usage, content string) float64 {
	promptTokens, completionTokens := usage.PromptTokens, usage.CompletionTokens
	if promptTokens == 0 && completionTokens == 0 {
		completionTokens = cost.EstimateTokens(content)
	}
	usd, err := cost.Estimate(r.catalog, modelID, promptTokens, completionTokens)
	if err != nil {
		return 0
	}
	return usd
}

func (r *Router) writeCacheEntry(fp string, final core.Final) {
	raw, err := json.Marshal(final)
	if err != nil {
		return
	}
	r.cache.Put(fp, raw, final.Usage.PromptTokens, final.Usage.CompletionTokens, 0)
}

func (r *Router) writeProviderCallEvent(ctx context.Context, callerID string, final core.Final, cacheHit bool, status audit.Status, duration time.Duration) {
	if r.metrics != nil {
		outcome := "success"
		if status != audit.StatusSuccess {
			outcome = "failure"
		}
		r.metrics.ObserveProviderCall(final.ProviderID, final.ModelID, outcome, duration.Seconds())
	}

	if r.journal == nil {
		return
	}
	payload := audit.JournalPayload{
		CallerID:     callerID,
		ResourceType: "model",
		ResourceID:   final.ModelID,
		Action:       "provider_call",
		Status:       status,
		Metadata: map[string]any{
			"provider_id":  final.ProviderID,
			"cache_hit":    cacheHit,
			"cost_usd":     final.CostUSD,
			"duration_sec": duration.Seconds(),
		},
	}
	_, _ = r.journal.Append(ctx, audit.EventProviderCall, payload)
}
