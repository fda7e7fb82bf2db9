//go:build llama && !no_llama

package oracle

import (
	"context"
	"fmt"
	"os"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
	"github.com/rs/zerolog"

	"github.com/leon5354/Coc-AI-Runner/cocai/config"
)

// localProvider runs a GGUF model in-process through llama.cpp. A single
// loaded model is shared behind a mutex; llama.cpp inference is not
// reentrant.
type localProvider struct {
	model  *llama.LLama
	mu     sync.Mutex
	logger zerolog.Logger
}

func newLocalProvider(cfg config.OracleConfig, logger zerolog.Logger) (Provider, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("local provider requires oracle.model_path")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not accessible: %w", err)
	}

	options := []llama.ModelOption{
		llama.SetContext(cfg.ContextSize),
		llama.SetGPULayers(cfg.GPULayers),
	}

	model, err := llama.New(cfg.ModelPath, options...)
	if err != nil {
		return nil, fmt.Errorf("llama.New failed: %w", err)
	}

	logger.Info().Str("model_path", cfg.ModelPath).Int("context_size", cfg.ContextSize).Msg("local GGUF model loaded")

	return &localProvider{model: model, logger: logger}, nil
}

func (p *localProvider) Complete(ctx context.Context, prompt, system string, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	full := prompt
	if system != "" {
		full = system + "\n\n" + prompt
	}
	if opts.JSONMode {
		full += "\n\nRespond with a single valid JSON object and nothing else."
	}

	predictOpts := []llama.PredictOption{
		llama.SetTemperature(opts.Temperature),
		llama.SetTopP(0.9),
	}
	if opts.MaxTokens > 0 {
		predictOpts = append(predictOpts, llama.SetTokens(opts.MaxTokens))
	}

	p.mu.Lock()
	result, err := p.model.Predict(full, predictOpts...)
	p.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("prediction failed: %w", err)
	}
	if result == "" {
		return "", ErrEmptyCompletion
	}
	return result, nil
}

var _ Provider = (*localProvider)(nil)
