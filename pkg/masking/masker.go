// Package masking redacts secrets — JWT bearer tokens, API keys, webhook
// HMAC signing secrets — out of anything the router or gateway logs, so a
// module or platform failure never ends up echoing a credential into the
// application log.
package masking

// Masker is the interface for code-based maskers that need structural
// awareness beyond regex pattern matching (e.g. pulling a single field out
// of a JSON payload rather than sweeping the whole string).
type Masker interface {
	// Name returns the unique identifier for this masker.
	Name() string

	// AppliesTo performs a lightweight check on whether this masker
	// should process the data. Should be fast (string contains, not parsing).
	AppliesTo(data string) bool

	// Mask applies masking logic and returns the masked result.
	// Must be defensive: return original data on parse/processing errors.
	Mask(data string) string
}
