package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaProvider calls a local Ollama server through langchaingo.
type OllamaProvider struct {
	llm          llms.Model
	defaultModel string
}

// NewOllamaProvider connects to the Ollama server at host.
func NewOllamaProvider(host, defaultModel string) (*OllamaProvider, error) {
	model, err := ollama.New(
		ollama.WithModel(defaultModel),
		ollama.WithServerURL(host),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	return &OllamaProvider{llm: model, defaultModel: defaultModel}, nil
}

// Complete generates a response for prompt.
func (p *OllamaProvider) Complete(ctx context.Context, prompt string, cfg Config) (string, error) {
	name := cfg.Model
	if name == "" {
		name = p.defaultModel
	}

	opts := []llms.CallOption{
		llms.WithModel(name),
		llms.WithTemperature(float64(cfg.Temperature)),
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(cfg.MaxTokens))
	}

	response, err := llms.GenerateFromSinglePrompt(ctx, p.llm, prompt, opts...)
	if err != nil {
		return "", &ProviderError{Kind: classifyMessage(err), Model: name, Err: err}
	}
	if strings.TrimSpace(response) == "" {
		return "", &ProviderError{Kind: Transient, Model: name, Err: errors.New("empty response")}
	}
	return response, nil
}
