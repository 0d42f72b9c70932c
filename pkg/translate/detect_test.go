package translate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errFakeProviderDown = errors.New("fake provider down")

func TestEnsemble_PluralityWins(t *testing.T) {
	dict := DictionarySignal{Dictionaries: map[string]map[string]bool{
		"es": {"hola": true, "mundo": true, "amigos": true},
		"en": {"hello": true, "world": true},
	}}
	ngram := NGramSignal{Profiles: map[string][]string{
		"es": {" ho", "hol", "ola", "la ", "mun"},
		"en": {" he", "hel", "ell", "llo"},
	}}

	e := NewEnsemble(dict, ngram)
	d := e.Detect("hola mundo amigos")

	assert.Equal(t, "es", d.Lang)
	assert.Greater(t, d.Confidence, 0.0)
}

func TestEnsemble_NoSignalsReturnsEmpty(t *testing.T) {
	e := NewEnsemble()
	d := e.Detect("hola mundo")
	assert.Empty(t, d.Lang)
	assert.Zero(t, d.Confidence)
}

func TestEnsemble_UnrecognizedTextReturnsEmpty(t *testing.T) {
	dict := DictionarySignal{Dictionaries: map[string]map[string]bool{
		"es": {"hola": true},
	}}
	e := NewEnsemble(dict)
	d := e.Detect("xyzzy plugh qux")
	assert.Empty(t, d.Lang)
}

// ────────────────────────────────────────────────────────────
// fakeProvider — deterministic Provider used by chain/detect tests
// ────────────────────────────────────────────────────────────

type fakeProvider struct {
	name      string
	kind      ProviderKind
	healthy   bool
	lang      string
	conf      float64
	delay     time.Duration
	translate func(text string) (string, error)
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Kind() ProviderKind { return f.kind }
func (f *fakeProvider) HealthCheck(_ context.Context) error {
	if f.healthy {
		return nil
	}
	return errFakeProviderDown
}
func (f *fakeProvider) DetectLanguage(_ context.Context, _ string) (string, float64, error) {
	if !f.healthy {
		return "", 0, errFakeProviderDown
	}
	return f.lang, f.conf, nil
}
func (f *fakeProvider) Translate(_ context.Context, text, _, _ string) (string, error) {
	if !f.healthy {
		return "", errFakeProviderDown
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.translate != nil {
		return f.translate(text)
	}
	return "translated:" + text, nil
}
func (f *fakeProvider) AvailableLanguages(_ context.Context) ([]string, error) {
	return []string{"en", "es"}, nil
}

func TestChain_FallsThroughUnhealthyProviders(t *testing.T) {
	unhealthy := &fakeProvider{name: "commercial", kind: ProviderCommercial, healthy: false}
	healthy := &fakeProvider{name: "lightweight", kind: ProviderLightweight, healthy: true}

	chain := NewChain(unhealthy, healthy)
	out, name, err := chain.Translate(context.Background(), "hola", "es", "en")

	assert.NoError(t, err)
	assert.Equal(t, "lightweight", name)
	assert.Equal(t, "translated:hola", out)
}

func TestChain_AllUnhealthyReturnsError(t *testing.T) {
	chain := NewChain(
		&fakeProvider{name: "a", healthy: false},
		&fakeProvider{name: "b", healthy: false},
	)
	_, _, err := chain.Translate(context.Background(), "hola", "es", "en")
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}
