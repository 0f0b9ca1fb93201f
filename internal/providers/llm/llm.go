// Package llm adapts generation backends to a single streaming contract:
// partial text is relayed through a callback in emission order and usage
// accounting arrives with the final result. Backend-specific wire framing
// never leaks past the adapter that owns it.
package llm

import (
	"context"
	"errors"
	"strings"
)

// Usage maps token accounting counters, e.g. prompt_tokens or total_tokens.
// Counters are kept as float64 because backends disagree on integer vs
// fractional reporting and nothing downstream does arithmetic on them.
type Usage map[string]float64

// StreamFunc receives partial output text. Implementations are invoked
// zero or more times before Generate returns, strictly in emission order,
// never concurrently.
type StreamFunc func(text string)

// Generator produces the full card definition text for a user payload.
type Generator interface {
	Generate(ctx context.Context, payload string, onStream StreamFunc) (string, Usage, error)
}

// ErrMissingAPIKey indicates an adapter was configured without credentials.
var ErrMissingAPIKey = errors.New("llm: api key is required")

// Provider labels for the closed registry.
const (
	ProviderOpenAI = "openai"
	ProviderGrok   = "grok"
)

// NormalizeProvider maps a user-supplied provider label onto a registry key.
// Unrecognized labels fall back to OpenAI.
func NormalizeProvider(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "grok", "gork", "xai":
		return ProviderGrok
	default:
		return ProviderOpenAI
	}
}

// Registry holds one Generator per provider label, assembled once at startup.
type Registry map[string]Generator

// Resolve returns the Generator for a user-supplied label after
// normalization.
func (r Registry) Resolve(label string) (Generator, string, bool) {
	name := NormalizeProvider(label)
	gen, ok := r[name]
	return gen, name, ok
}

// numericUsage keeps only the numeric counters of a decoded usage object.
// Backends nest detail objects (e.g. completion_tokens_details) that are
// dropped here.
func numericUsage(raw map[string]any) Usage {
	if len(raw) == 0 {
		return nil
	}
	usage := Usage{}
	for key, value := range raw {
		switch v := value.(type) {
		case float64:
			usage[key] = v
		case int:
			usage[key] = float64(v)
		}
	}
	if len(usage) == 0 {
		return nil
	}
	return usage
}
