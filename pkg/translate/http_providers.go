package translate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// The concrete providers below all speak the LibreTranslate-shaped REST API
// (POST /translate {q,source,target} -> {translatedText}; POST /detect {q}
// -> [{language,confidence}]; GET /languages -> [{code}]). Commercial and
// lightweight translation backends differ only in base URL, auth header,
// and rate limits, so one request/response implementation serves Commercial,
// Lightweight, and AiBacked alike — only NewXProvider differs per tier.

func buildJSON(fields map[string]string) ([]byte, error) {
	doc := "{}"
	var err error
	for k, v := range fields {
		if doc, err = sjson.Set(doc, k, v); err != nil {
			return nil, fmt.Errorf("translate: encode request: %w", err)
		}
	}
	return []byte(doc), nil
}

func (p HTTPProvider) postJSON(ctx context.Context, path string, fields map[string]string) (gjson.Result, error) {
	payload, err := buildJSON(fields)
	if err != nil {
		return gjson.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("translate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("translate: %s: %w", p.name, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("translate: %s: read response: %w", p.name, err)
	}
	if resp.StatusCode >= 300 {
		return gjson.Result{}, fmt.Errorf("translate: %s: status %d", p.name, resp.StatusCode)
	}
	return gjson.ParseBytes(body), nil
}

func (p HTTPProvider) getJSON(ctx context.Context, path string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("translate: %s: build request: %w", p.name, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("translate: %s: %w", p.name, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("translate: %s: read response: %w", p.name, err)
	}
	if resp.StatusCode >= 300 {
		return gjson.Result{}, fmt.Errorf("translate: %s: status %d", p.name, resp.StatusCode)
	}
	return gjson.ParseBytes(body), nil
}

func (p HTTPProvider) restTranslate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	out, err := p.postJSON(ctx, "/translate", map[string]string{"q": text, "source": sourceLang, "target": targetLang})
	if err != nil {
		return "", err
	}
	translated := out.Get("translatedText")
	if !translated.Exists() {
		return "", fmt.Errorf("translate: %s: response missing translatedText", p.name)
	}
	return translated.String(), nil
}

func (p HTTPProvider) restDetectLanguage(ctx context.Context, text string) (string, float64, error) {
	out, err := p.postJSON(ctx, "/detect", map[string]string{"q": text})
	if err != nil {
		return "", 0, err
	}
	first := out.Get("0")
	if !first.Exists() {
		return "", 0, fmt.Errorf("translate: %s: empty detection response", p.name)
	}
	return first.Get("language").String(), first.Get("confidence").Float(), nil
}

func (p HTTPProvider) restHealthCheck(ctx context.Context) error {
	_, err := p.getJSON(ctx, "/languages")
	if err != nil {
		return fmt.Errorf("translate: %s: health check: %w", p.name, err)
	}
	return nil
}

func (p HTTPProvider) restAvailableLanguages(ctx context.Context) ([]string, error) {
	out, err := p.getJSON(ctx, "/languages")
	if err != nil {
		return nil, fmt.Errorf("translate: %s: languages: %w", p.name, err)
	}
	var codes []string
	for _, lang := range out.Array() {
		codes = append(codes, lang.Get("code").String())
	}
	return codes, nil
}

// CommercialProvider is a paid, usually higher-accuracy translation API —
// first in the fallback chain (spec.md §4.4).
type CommercialProvider struct{ HTTPProvider }

// NewCommercialProvider wraps an HTTPProvider as the commercial tier.
func NewCommercialProvider(name, apiKey, baseURL string) CommercialProvider {
	return CommercialProvider{NewHTTPProvider(name, ProviderCommercial, apiKey, baseURL, nil)}
}

func (p CommercialProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	return p.restTranslate(ctx, text, sourceLang, targetLang)
}
func (p CommercialProvider) DetectLanguage(ctx context.Context, text string) (string, float64, error) {
	return p.restDetectLanguage(ctx, text)
}
func (p CommercialProvider) HealthCheck(ctx context.Context) error { return p.restHealthCheck(ctx) }
func (p CommercialProvider) AvailableLanguages(ctx context.Context) ([]string, error) {
	return p.restAvailableLanguages(ctx)
}

// LightweightProvider is the free, self-hosted fallback tier tried when the
// commercial provider is unconfigured or unhealthy (spec.md §4.4).
type LightweightProvider struct{ HTTPProvider }

// NewLightweightProvider wraps an HTTPProvider as the lightweight tier. No
// API key is needed for a self-hosted instance.
func NewLightweightProvider(name, baseURL string) LightweightProvider {
	return LightweightProvider{NewHTTPProvider(name, ProviderLightweight, "", baseURL, nil)}
}

func (p LightweightProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	return p.restTranslate(ctx, text, sourceLang, targetLang)
}
func (p LightweightProvider) DetectLanguage(ctx context.Context, text string) (string, float64, error) {
	return p.restDetectLanguage(ctx, text)
}
func (p LightweightProvider) HealthCheck(ctx context.Context) error { return p.restHealthCheck(ctx) }
func (p LightweightProvider) AvailableLanguages(ctx context.Context) ([]string, error) {
	return p.restAvailableLanguages(ctx)
}

// AIBackedProvider is the last-resort tier, an LLM prompted to translate —
// also the tiered-confidence verifier the detector ensemble consults
// directly (spec.md §4.4 step 3).
type AIBackedProvider struct{ HTTPProvider }

// NewAIBackedProvider wraps an HTTPProvider as the AI-backed tier.
func NewAIBackedProvider(name, apiKey, baseURL string) AIBackedProvider {
	return AIBackedProvider{NewHTTPProvider(name, ProviderAiBacked, apiKey, baseURL, nil)}
}

func (p AIBackedProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	return p.restTranslate(ctx, text, sourceLang, targetLang)
}
func (p AIBackedProvider) DetectLanguage(ctx context.Context, text string) (string, float64, error) {
	return p.restDetectLanguage(ctx, text)
}
func (p AIBackedProvider) HealthCheck(ctx context.Context) error { return p.restHealthCheck(ctx) }
func (p AIBackedProvider) AvailableLanguages(ctx context.Context) ([]string, error) {
	return p.restAvailableLanguages(ctx)
}
