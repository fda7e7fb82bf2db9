//go:build !llama || no_llama

package oracle

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/leon5354/Coc-AI-Runner/cocai/config"
)

// Placeholder for non-CGO builds.
func newLocalProvider(_ config.OracleConfig, _ zerolog.Logger) (Provider, error) {
	return nil, fmt.Errorf("llama.cpp not available in this build (rebuild with -tags llama)")
}
