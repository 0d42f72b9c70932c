package masking

import (
	"log/slog"
	"regexp"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// patternSource is the uncompiled form built-in patterns are declared in,
// mirroring the original's config-driven pattern table.
type patternSource struct {
	pattern     string
	replacement string
	description string
}

// defaultPatterns sweeps the credential shapes WaddleBot itself mints or
// accepts: JWT bearer tokens (pkg/auth), API keys (pkg/auth.APIKeyRecord),
// and webhook HMAC signing secrets (spec.md §6 HMAC_DEFAULT_ALGORITHM),
// plus a generic key=value catch-all for anything else calling itself a
// secret or password.
func defaultPatterns() map[string]patternSource {
	return map[string]patternSource{
		"jwt": {
			pattern:     `\bBearer\s+[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`,
			replacement: "Bearer [MASKED_JWT]",
			description: "JWT bearer token in an Authorization header or error string",
		},
		"api_key_header": {
			pattern:     `(?i)\bX-API-Key:\s*\S+`,
			replacement: "X-API-Key: [MASKED_API_KEY]",
			description: "raw API key value echoed from a request header",
		},
		"hmac_secret_param": {
			pattern:     `(?i)\b(hmac_secret|signing_secret)=\S+`,
			replacement: "$1=[MASKED_SECRET]",
			description: "webhook HMAC signing secret passed as a query/form value",
		},
		"generic_secret_kv": {
			pattern:     `(?i)\b(secret|password|token|api_key)["']?\s*[:=]\s*["']?[^\s"',}]+`,
			replacement: "$1=[MASKED]",
			description: "generic secret/password/token/api_key key-value pair",
		},
	}
}

// compilePatterns compiles source into CompiledPatterns, logging and
// skipping any pattern that fails to compile rather than failing startup.
func compilePatterns(source map[string]patternSource) map[string]*CompiledPattern {
	compiled := make(map[string]*CompiledPattern, len(source))
	for name, p := range source {
		re, err := regexp.Compile(p.pattern)
		if err != nil {
			slog.Error("masking: pattern failed to compile, skipping", "pattern", name, "error", err)
			continue
		}
		compiled[name] = &CompiledPattern{
			Name:        name,
			Regex:       re,
			Replacement: p.replacement,
			Description: p.description,
		}
	}
	return compiled
}
