package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider calls Gemini generative models.
type GeminiProvider struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiProvider creates a provider backed by client.
func NewGeminiProvider(client *genai.Client, defaultModel string) *GeminiProvider {
	if defaultModel == "" {
		defaultModel = DefaultGeminiModel
	}
	return &GeminiProvider{client: client, defaultModel: defaultModel}
}

// Complete sends prompt to the configured model and returns the joined text parts.
func (p *GeminiProvider) Complete(ctx context.Context, prompt string, cfg Config) (string, error) {
	name := cfg.Model
	if name == "" {
		name = p.defaultModel
	}

	model := p.client.GenerativeModel(name)
	model.SetTemperature(cfg.Temperature)
	if cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(cfg.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", &ProviderError{Kind: classifyGeminiError(err), Model: name, Err: err}
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		break
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", &ProviderError{Kind: Transient, Model: name, Err: errors.New("empty response")}
	}
	return b.String(), nil
}

func classifyGeminiError(err error) ErrorKind {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusTooManyRequests:
			return RateLimited
		case http.StatusNotFound:
			return NotFound
		}
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return RateLimited
		case codes.NotFound:
			return NotFound
		}
	}
	return classifyMessage(err)
}

// classifyMessage is the last resort for providers that only return text.
func classifyMessage(err error) ErrorKind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "quota"),
		strings.Contains(msg, "rate limit"), strings.Contains(msg, "resource exhausted"),
		strings.Contains(msg, "resource_exhausted"):
		return RateLimited
	case strings.Contains(msg, "404"), strings.Contains(msg, "not found"):
		return NotFound
	default:
		return Transient
	}
}
