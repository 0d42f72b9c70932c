package translate

import (
	"context"
	"strings"
	"time"

	"github.com/penguintechinc/waddlebot-core/pkg/cache"
	"github.com/penguintechinc/waddlebot-core/pkg/errs"
)

// Result is the full response shape of a translation call (spec.md §4.4).
type Result struct {
	TranslatedText  string
	DetectedLang    string
	TargetLang      string
	Confidence      float64
	Provider        string
	Cached          bool
	TokensPreserved int
	OriginalText    string
}

// Options tune one Service's skip conditions and AI escalation behavior.
type Options struct {
	MinWords            int     // spec.md default 5
	ConfidenceThreshold float64 // spec.md default 0.70
	AIMode              AIDecisionMode
}

// DefaultOptions matches spec.md §4.4's documented defaults.
func DefaultOptions() Options {
	return Options{MinWords: 5, ConfidenceThreshold: 0.70, AIMode: AIDecisionNever}
}

// Service is the Translation Core: preprocess → detect → cache → provider
// chain → postprocess → write-through (spec.md §4.4).
type Service struct {
	opts     Options
	ensemble *Ensemble
	chain    *Chain
	cache    cache.TieredCache
	ai       Provider // consulted for the 0.70-0.90 tiered-confidence band
}

// NewService wires the translation core's dependencies.
func NewService(opts Options, ensemble *Ensemble, chain *Chain, c cache.TieredCache, ai Provider) *Service {
	return &Service{opts: opts, ensemble: ensemble, chain: chain, cache: c, ai: ai}
}

// Translate runs the full call path for one community's translation toggle,
// target language, and emote/AI configuration. A skip (disabled, too few
// words, empty text) returns (nil, nil) — a no-op, not an error.
func (s *Service) Translate(ctx context.Context, pre *Preprocessor, text, targetLang string, translationEnabled bool) (*Result, error) {
	if !translationEnabled || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if countWords(text) < s.opts.MinWords {
		return nil, nil
	}

	processedText, tokens := pre.Preprocess(text)

	detection := s.detect(ctx, processedText)
	if detection.Lang == "" {
		return nil, nil
	}
	if detection.Confidence < s.opts.ConfidenceThreshold {
		return nil, nil
	}
	if detection.Lang == targetLang {
		return nil, nil // short-circuit: source already matches target
	}

	if entry, found, err := s.cache.Get(ctx, detection.Lang, targetLang, processedText); err == nil && found {
		return &Result{
			TranslatedText:  Postprocess(entry.TranslatedText, tokens),
			DetectedLang:    detection.Lang,
			TargetLang:      targetLang,
			Confidence:      detection.Confidence,
			Provider:        entry.Provider,
			Cached:          true,
			TokensPreserved: len(tokens),
			OriginalText:    text,
		}, nil
	}

	translated, providerName, err := s.chain.Translate(ctx, processedText, detection.Lang, targetLang)
	if err != nil {
		// All providers failed: pass the original text through unchanged,
		// per spec.md §7 ("translation returns None and original text
		// passed through"). Returning a skip rather than an error.
		return nil, nil
	}

	if err := s.cache.Put(ctx, cache.Entry{
		SourceHash:      cache.HashText(processedText),
		SourceLang:      detection.Lang,
		TargetLang:      targetLang,
		TranslatedText:  translated,
		Provider:        providerName,
		ConfidenceScore: detection.Confidence,
		CreatedAt:       time.Now(),
	}); err != nil {
		return nil, errs.ErrInternal
	}

	return &Result{
		TranslatedText:  Postprocess(translated, tokens),
		DetectedLang:    detection.Lang,
		TargetLang:      targetLang,
		Confidence:      detection.Confidence,
		Provider:        providerName,
		Cached:          false,
		TokensPreserved: len(tokens),
		OriginalText:    text,
	}, nil
}

// detect implements spec.md §4.4's tiered-confidence detection pipeline.
func (s *Service) detect(ctx context.Context, text string) Detection {
	if s.ensemble != nil {
		d := s.ensemble.Detect(text)
		if d.Lang != "" {
			switch {
			case d.Confidence >= 0.90:
				return d
			case d.Confidence >= 0.70:
				return aiSecondOpinion(ctx, text, d, s.ai)
			default:
				return d
			}
		}
	}

	// Ensemble unavailable or inconclusive: fall back to asking the
	// providers themselves, first successful answer wins.
	lang, conf, _, err := s.chain.DetectLanguage(ctx, text)
	if err != nil {
		return Detection{}
	}
	return Detection{Lang: lang, Confidence: conf}
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
