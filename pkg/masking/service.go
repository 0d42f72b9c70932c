package masking

// Service applies built-in and caller-supplied redaction patterns to any
// text about to be logged. Created once at startup and shared; stateless
// aside from its compiled patterns.
type Service struct {
	patterns map[string]*CompiledPattern
	maskers  []Masker
}

// NewService compiles the built-in credential patterns plus any extra
// ones a caller supplies (e.g. a deployment-specific secret shape),
// keyed by a caller-chosen name so extras can override a built-in of the
// same name.
func NewService(extra ...CompiledPattern) *Service {
	s := &Service{
		patterns: compilePatterns(defaultPatterns()),
	}
	for _, p := range extra {
		s.patterns[p.Name] = &p
	}
	return s
}

// RegisterMasker adds a structural masker run before the regex sweep.
func (s *Service) RegisterMasker(m Masker) {
	s.maskers = append(s.maskers, m)
}

// Mask redacts every configured pattern match in text. Fail-open: a nil
// Service or empty text passes through unchanged, matching the
// call-sites' use as a best-effort log-hygiene pass rather than a
// security boundary in its own right.
func (s *Service) Mask(text string) string {
	if s == nil || text == "" {
		return text
	}

	masked := text
	for _, m := range s.maskers {
		if m.AppliesTo(masked) {
			masked = m.Mask(masked)
		}
	}
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}
