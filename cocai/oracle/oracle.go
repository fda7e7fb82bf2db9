// Package oracle abstracts the text-generation backend behind a single
// capability interface. The Keeper and the investigators depend only on
// Provider; one adapter exists per backend.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Options controls sampling and output shape for a single completion.
type Options struct {
	Temperature float32
	MaxTokens   int
	JSONMode    bool
}

// Provider is the generation oracle: prompt plus instructions in, text
// out. Implementations make exactly one backend call per invocation; no
// retries.
type Provider interface {
	Complete(ctx context.Context, prompt, system string, opts Options) (string, error)
}

// Tier selects the instruction complexity the session components build
// for the backend.
type Tier int

const (
	// TierBasic keeps instructions terse for small local models.
	TierBasic Tier = iota
	// TierRich enables the full behavioral instruction set for
	// full-capability remote models.
	TierRich
)

// TierFor maps a provider name to an instruction tier.
func TierFor(provider string) Tier {
	switch strings.ToLower(provider) {
	case "google", "openrouter":
		return TierRich
	default:
		return TierBasic
	}
}

// ErrEmptyCompletion indicates the backend returned no text at all.
var ErrEmptyCompletion = errors.New("oracle returned empty completion")

// CloudedMind is the fixed in-character placeholder substituted for a
// failed oracle call, so a single backend failure never halts the
// session.
func CloudedMind(err error) string {
	return fmt.Sprintf("[SYSTEM ERROR] The investigator's mind is clouded... (API Error: %v)", err)
}
