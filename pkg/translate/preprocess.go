// Package translate implements the Multi-Tier Translation Pipeline:
// preprocessing (token preservation), ensemble language detection, the
// cached provider fallback chain, and postprocessing (spec.md §4.3/§4.4).
// The preprocessor mirrors the pattern-compilation and ordered-phase
// approach used elsewhere in this module for content transformation.
package translate

import (
	"fmt"
	"regexp"
)

// TokenKind classifies a preserved (non-translatable) span.
type TokenKind string

const (
	TokenURL     TokenKind = "url"
	TokenEmail   TokenKind = "email"
	TokenMention TokenKind = "mention"
	TokenCommand TokenKind = "command"
	TokenEmote   TokenKind = "emote"
)

// Token maps one placeholder back to its original text.
type Token struct {
	Ordinal int
	Kind    TokenKind
	Text    string
}

// Placeholder returns the opaque, bracketed marker substituted into
// processed_text for this token's ordinal. The form uses CJK-style corner
// brackets, rare in natural-language input and observed to survive
// round-tripping through major translation providers untouched.
func Placeholder(ordinal int) string {
	return fmt.Sprintf("「TKN%d」", ordinal)
}

var placeholderRE = regexp.MustCompile(`\x{300c}TKN(\d+)\x{300d}`)

// classifiers run in the fixed precedence order spec.md §4.3 requires:
// URL, email, @mention, !command, then platform emotes.
var (
	urlRE     = regexp.MustCompile(`\bhttps?://[^\s]+`)
	emailRE   = regexp.MustCompile(`\b[\w.+-]+@[\w-]+\.[\w.-]+\b`)
	mentionRE = regexp.MustCompile(`@[A-Za-z0-9_]+`)
	commandRE = regexp.MustCompile(`!\S+`)
)

// EmoteLookup resolves whether a word is a known emote for a platform and
// optional channel. Implementations may consult a static table or a
// per-channel emote set fetched from the platform.
type EmoteLookup func(platform, channelID, word string) bool

// AIClassifier is consulted in ai_decision_mode=uncertain for tokens that
// failed pattern classification but resemble identifiers (spec.md §4.3).
// Results should be cached in L2 by normalized token by the caller.
type AIClassifier interface {
	// LooksLikeToken reports whether word should be preserved untranslated.
	LooksLikeToken(word string) bool
}

// Preprocessor turns raw text into a translator-safe string with
// placeholders, tracking the tokens needed to restore it afterward.
type Preprocessor struct {
	Platform    string
	ChannelID   string
	Emotes      EmoteLookup
	AIMode      AIDecisionMode
	AIClassify  AIClassifier
}

// AIDecisionMode controls how aggressively uncertain tokens are deferred to
// an AI classifier (spec.md §4.3).
type AIDecisionMode string

const (
	AIDecisionNever     AIDecisionMode = "never"
	AIDecisionUncertain AIDecisionMode = "uncertain"
	AIDecisionAlways    AIDecisionMode = "always"
)

// identifierLikeRE is the "resembles an identifier" heuristic used in
// uncertain mode: mixed case or underscore/digit runs that a pure
// dictionary classifier would not confidently call a word.
var identifierLikeRE = regexp.MustCompile(`^[A-Za-z]+[A-Za-z0-9_]*[0-9_][A-Za-z0-9_]*$|^[a-z]+[A-Z]\w*$`)

// Preprocess classifies and replaces non-translatable spans, returning the
// translator-safe text and the ordered tokens needed to restore them.
func (p *Preprocessor) Preprocess(text string) (processedText string, tokens []Token) {
	var spans []span
	claim := func(loc []int, kind TokenKind) {
		if loc == nil {
			return
		}
		spans = append(spans, span{loc[0], loc[1], kind})
	}

	for _, loc := range urlRE.FindAllStringIndex(text, -1) {
		claim(loc, TokenURL)
	}
	for _, loc := range emailRE.FindAllStringIndex(text, -1) {
		if overlapsAny(spans, loc) {
			continue
		}
		claim(loc, TokenEmail)
	}
	for _, loc := range mentionRE.FindAllStringIndex(text, -1) {
		if overlapsAny(spans, loc) {
			continue
		}
		claim(loc, TokenMention)
	}
	for _, loc := range commandRE.FindAllStringIndex(text, -1) {
		if overlapsAny(spans, loc) {
			continue
		}
		claim(loc, TokenCommand)
	}

	if p.Emotes != nil {
		for _, loc := range wordRE.FindAllStringIndex(text, -1) {
			if overlapsAny(spans, loc) {
				continue
			}
			word := text[loc[0]:loc[1]]
			if p.Emotes(p.Platform, p.ChannelID, word) {
				claim(loc, TokenEmote)
			}
		}
	}

	if p.AIMode != AIDecisionNever && p.AIClassify != nil {
		for _, loc := range wordRE.FindAllStringIndex(text, -1) {
			if overlapsAny(spans, loc) {
				continue
			}
			word := text[loc[0]:loc[1]]
			if p.AIMode == AIDecisionUncertain && !identifierLikeRE.MatchString(word) {
				continue
			}
			if p.AIClassify.LooksLikeToken(word) {
				claim(loc, TokenCommand)
			}
		}
	}

	sortSpans(spans)

	var out []byte
	cursor := 0
	ordinal := 0
	for _, s := range spans {
		if s.start < cursor {
			continue // overlapping claim from a later classifier, skip
		}
		out = append(out, text[cursor:s.start]...)
		out = append(out, []byte(Placeholder(ordinal))...)
		tokens = append(tokens, Token{Ordinal: ordinal, Kind: s.kind, Text: text[s.start:s.end]})
		ordinal++
		cursor = s.end
	}
	out = append(out, text[cursor:]...)

	return string(out), tokens
}

// Postprocess restores every placeholder in text to its original token, in
// ordinal order. It is the exact inverse of Preprocess for an identity
// translator (spec.md §8 round-trip property).
func Postprocess(text string, tokens []Token) string {
	byOrdinal := make(map[int]string, len(tokens))
	for _, t := range tokens {
		byOrdinal[t.Ordinal] = t.Text
	}

	return placeholderRE.ReplaceAllStringFunc(text, func(match string) string {
		sub := placeholderRE.FindStringSubmatch(match)
		if len(sub) != 2 {
			return match
		}
		var ordinal int
		if _, err := fmt.Sscanf(sub[1], "%d", &ordinal); err != nil {
			return match
		}
		if orig, ok := byOrdinal[ordinal]; ok {
			return orig
		}
		return match
	})
}

var wordRE = regexp.MustCompile(`\b[\w'-]+\b`)

// span is a claimed (classified) byte range within the source text.
type span struct {
	start, end int
	kind       TokenKind
}

func overlapsAny(spans []span, loc []int) bool {
	for _, s := range spans {
		if loc[0] < s.end && s.start < loc[1] {
			return true
		}
	}
	return false
}

func sortSpans(spans []span) {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].start < spans[j-1].start; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}
}
