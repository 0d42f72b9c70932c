package translate

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// ErrAllProvidersFailed is returned when every provider in a Chain fails or
// is unhealthy; the caller should fall through to the unchanged text
// (spec.md §4.4, §7 provider errors are swallowed).
var ErrAllProvidersFailed = errors.New("translate: all providers failed")

// Provider is the capability set every translation backend implements,
// replacing the duck-typed "provider" pattern with one tagged interface
// (spec.md §9 design note).
type Provider interface {
	Name() string
	Kind() ProviderKind
	DetectLanguage(ctx context.Context, text string) (lang string, confidence float64, err error)
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
	HealthCheck(ctx context.Context) error
	AvailableLanguages(ctx context.Context) ([]string, error)
}

// ProviderKind tags which fallback-chain tier a Provider occupies.
type ProviderKind string

const (
	ProviderCommercial ProviderKind = "commercial"
	ProviderLightweight ProviderKind = "lightweight"
	ProviderAiBacked     ProviderKind = "ai_backed"
)

// HTTPProvider is a generic HTTP-backed translation provider, the shared
// skeleton for the Commercial/Lightweight/AiBacked variants. All three use
// the same request/response mapping (http_providers.go) and differ only in
// name, tier, base URL and API key.
type HTTPProvider struct {
	name    string
	kind    ProviderKind
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewHTTPProvider builds the shared HTTP skeleton for a translation provider.
func NewHTTPProvider(name string, kind ProviderKind, apiKey, baseURL string, client *http.Client) HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return HTTPProvider{name: name, kind: kind, apiKey: apiKey, baseURL: baseURL, client: client}
}

func (p HTTPProvider) Name() string         { return p.name }
func (p HTTPProvider) Kind() ProviderKind   { return p.kind }
func (p HTTPProvider) Client() *http.Client { return p.client }
func (p HTTPProvider) BaseURL() string      { return p.baseURL }
func (p HTTPProvider) APIKey() string       { return p.apiKey }

// providerStatsMinSamples is the number of recorded calls a provider needs
// before its rolling average is trusted enough to demote it.
const providerStatsMinSamples = 5

// providerStatsSlowFactor flags a provider as slow once its rolling average
// latency exceeds this multiple of the fastest provider with enough samples.
const providerStatsSlowFactor = 3.0

// providerStatsAlpha is the EWMA smoothing factor: higher weights recent
// calls more heavily over the provider's history.
const providerStatsAlpha = 0.2

type providerStat struct {
	avg     time.Duration
	samples int
}

// providerStats tracks a rolling per-provider latency average, consulted by
// Chain as a tiebreaker only: it reorders equally-healthy providers to favor
// the historically faster one, it never overrides HealthCheck or lets a slow
// provider be skipped outright.
type providerStats struct {
	mu    sync.Mutex
	stats map[string]*providerStat
}

func newProviderStats() *providerStats {
	return &providerStats{stats: make(map[string]*providerStat)}
}

func (s *providerStats) record(name string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[name]
	if !ok {
		s.stats[name] = &providerStat{avg: d, samples: 1}
		return
	}
	st.avg = time.Duration(float64(st.avg)*(1-providerStatsAlpha) + float64(d)*providerStatsAlpha)
	st.samples++
}

// isSlow reports whether name's rolling average is a providerStatsSlowFactor
// multiple slower than the fastest provider with at least
// providerStatsMinSamples recorded calls. Providers with too few samples are
// never flagged, so a fresh provider isn't demoted before it's been given a
// fair chance.
func (s *providerStats) isSlow(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[name]
	if !ok || st.samples < providerStatsMinSamples {
		return false
	}

	var fastest time.Duration
	for _, other := range s.stats {
		if other.samples < providerStatsMinSamples {
			continue
		}
		if fastest == 0 || other.avg < fastest {
			fastest = other.avg
		}
	}
	if fastest == 0 {
		return false
	}
	return float64(st.avg) > float64(fastest)*providerStatsSlowFactor
}

// Chain is the ordered provider fallback chain (spec.md §4.4): commercial →
// lightweight → AI-backed. A provider must pass HealthCheck before it is
// tried; provider errors are swallowed and the next provider attempted. A
// rolling latency average breaks ties among healthy providers, without ever
// changing which providers are eligible.
type Chain struct {
	providers []Provider
	stats     *providerStats
}

// NewChain builds a fallback chain in priority order.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers, stats: newProviderStats()}
}

// orderedProviders stable-partitions the declared priority order into
// providers not currently flagged slow, followed by those that are,
// preserving relative order within each group. This keeps the declared
// commercial → lightweight → AI-backed priority as the default and only
// demotes a provider once its own rolling average justifies it.
func (c *Chain) orderedProviders() []Provider {
	fast := make([]Provider, 0, len(c.providers))
	slow := make([]Provider, 0)
	for _, p := range c.providers {
		if c.stats.isSlow(p.Name()) {
			slow = append(slow, p)
		} else {
			fast = append(fast, p)
		}
	}
	return append(fast, slow...)
}

// Translate tries each healthy provider in order, returning the first
// success. If every provider fails, it returns ("", "", ErrAllProvidersFailed)
// so the caller can fall through to passing the original text unchanged.
func (c *Chain) Translate(ctx context.Context, text, sourceLang, targetLang string) (translated, providerName string, err error) {
	for _, p := range c.orderedProviders() {
		if err := p.HealthCheck(ctx); err != nil {
			continue
		}
		start := time.Now()
		out, err := p.Translate(ctx, text, sourceLang, targetLang)
		if err != nil {
			continue
		}
		c.stats.record(p.Name(), time.Since(start))
		return out, p.Name(), nil
	}
	return "", "", ErrAllProvidersFailed
}

// DetectLanguage asks providers themselves when the ensemble detector is
// unavailable (spec.md §4.4 step 3), returning the first successful answer.
func (c *Chain) DetectLanguage(ctx context.Context, text string) (lang string, confidence float64, providerName string, err error) {
	for _, p := range c.orderedProviders() {
		if err := p.HealthCheck(ctx); err != nil {
			continue
		}
		start := time.Now()
		l, conf, err := p.DetectLanguage(ctx, text)
		if err != nil {
			continue
		}
		c.stats.record(p.Name(), time.Since(start))
		return l, conf, p.Name(), nil
	}
	return "", 0, "", ErrAllProvidersFailed
}
