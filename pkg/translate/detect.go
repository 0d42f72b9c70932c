package translate

import (
	"context"
	"sort"
	"strings"
)

// Detection is the ensemble detector's combined verdict (spec.md §4.4).
type Detection struct {
	Lang       string
	Confidence float64
}

// Signal is one independent detection method. The ensemble combines at
// least three (spec.md §4.4 step 1): character n-gram, dictionary-based,
// and statistical (stopword-frequency) signals are provided below.
type Signal interface {
	Detect(text string) Detection
}

// Ensemble combines independent signals into one (lang, confidence) verdict
// by averaging confidences for the plurality language.
type Ensemble struct {
	signals []Signal
}

// NewEnsemble builds a detector from the supplied signals. At least one
// signal is required; spec.md §4.4 requires at least three in production
// configuration.
func NewEnsemble(signals ...Signal) *Ensemble {
	return &Ensemble{signals: signals}
}

// Detect runs every signal and returns the plurality language with its
// averaged confidence, or (\"\", 0) if no signal could classify the text.
func (e *Ensemble) Detect(text string) Detection {
	if len(e.signals) == 0 {
		return Detection{}
	}

	scores := make(map[string][]float64)
	for _, s := range e.signals {
		d := s.Detect(text)
		if d.Lang == "" {
			continue
		}
		scores[d.Lang] = append(scores[d.Lang], d.Confidence)
	}
	if len(scores) == 0 {
		return Detection{}
	}

	type candidate struct {
		lang string
		avg  float64
		n    int
	}
	var candidates []candidate
	for lang, confs := range scores {
		sum := 0.0
		for _, c := range confs {
			sum += c
		}
		candidates = append(candidates, candidate{lang: lang, avg: sum / float64(len(confs)), n: len(confs)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].n != candidates[j].n {
			return candidates[i].n > candidates[j].n
		}
		return candidates[i].avg > candidates[j].avg
	})

	best := candidates[0]
	return Detection{Lang: best.lang, Confidence: clamp01(best.avg)}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DictionarySignal scores a language by the fraction of words found in its
// stopword/common-word dictionary.
type DictionarySignal struct {
	Dictionaries map[string]map[string]bool // lang -> lowercase word set
}

func (s DictionarySignal) Detect(text string) Detection {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return Detection{}
	}

	best := Detection{}
	for lang, dict := range s.Dictionaries {
		hits := 0
		for _, w := range words {
			if dict[strings.Trim(w, ".,!?;:\"'")] {
				hits++
			}
		}
		conf := float64(hits) / float64(len(words))
		if conf > best.Confidence {
			best = Detection{Lang: lang, Confidence: conf}
		}
	}
	return best
}

// NGramSignal scores a language by character-trigram overlap against a
// reference profile, the classic Cavnar-Trenkle approach.
type NGramSignal struct {
	Profiles map[string][]string // lang -> ranked trigram profile, most frequent first
}

func (s NGramSignal) Detect(text string) Detection {
	sample := trigrams(strings.ToLower(text))
	if len(sample) == 0 {
		return Detection{}
	}

	best := Detection{}
	for lang, profile := range s.Profiles {
		rank := make(map[string]int, len(profile))
		for i, g := range profile {
			rank[g] = i
		}
		matches := 0
		for g := range sample {
			if _, ok := rank[g]; ok {
				matches++
			}
		}
		conf := float64(matches) / float64(len(sample))
		if conf > best.Confidence {
			best = Detection{Lang: lang, Confidence: conf}
		}
	}
	return best
}

func trigrams(s string) map[string]bool {
	out := make(map[string]bool)
	runes := []rune(" " + s + " ")
	for i := 0; i+3 <= len(runes); i++ {
		out[string(runes[i:i+3])] = true
	}
	return out
}

// StatisticalSignal scores a language by average word length and
// function-word frequency deviation from a reference language profile — a
// lightweight stand-in for a full statistical classifier.
type StatisticalSignal struct {
	Profiles map[string]struct {
		AvgWordLen     float64
		FunctionWords  map[string]bool
		FunctionWeight float64
	}
}

func (s StatisticalSignal) Detect(text string) Detection {
	words := strings.Fields(text)
	if len(words) == 0 {
		return Detection{}
	}

	totalLen := 0
	for _, w := range words {
		totalLen += len([]rune(w))
	}
	avgLen := float64(totalLen) / float64(len(words))

	best := Detection{}
	for lang, profile := range s.Profiles {
		lenScore := 1 - clamp01(abs(avgLen-profile.AvgWordLen)/max(profile.AvgWordLen, 1))

		fnHits := 0
		for _, w := range words {
			if profile.FunctionWords[strings.ToLower(w)] {
				fnHits++
			}
		}
		fnScore := float64(fnHits) / float64(len(words)) * profile.FunctionWeight

		conf := clamp01((lenScore + fnScore) / 2)
		if conf > best.Confidence {
			best = Detection{Lang: lang, Confidence: conf}
		}
	}
	return best
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// aiSecondOpinion applies spec.md §4.4 step 2's tiered-confidence policy for
// the [0.70, 0.90) band: consult the AI classifier, and combine verdicts per
// the documented agree/disagree rules.
func aiSecondOpinion(ctx context.Context, text string, ensemble Detection, ai Provider) Detection {
	if ai == nil {
		return ensemble
	}
	aiLang, aiConf, err := ai.DetectLanguage(ctx, text)
	if err != nil {
		return ensemble
	}
	if aiLang == ensemble.Lang {
		return Detection{Lang: ensemble.Lang, Confidence: 0.95}
	}
	if aiConf > ensemble.Confidence {
		return Detection{Lang: aiLang, Confidence: aiConf}
	}
	return Detection{Lang: ensemble.Lang, Confidence: ensemble.Confidence * 0.9}
}
