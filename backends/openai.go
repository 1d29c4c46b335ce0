package backends

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-3.5-turbo"
)

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
}

func (OpenAIConfig) Kind() string   { return KindOpenAI }
func (OpenAIConfig) backendConfig() {}

// OpenAI is the hosted chat completions API.
type OpenAI struct {
	api *completionsClient
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrAPIKeyRequired)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1000
	}

	return &OpenAI{
		api: &completionsClient{
			client:      newHTTPClient(cfg.Timeout),
			url:         strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions",
			headers:     map[string]string{"Authorization": "Bearer " + cfg.APIKey},
			model:       cfg.Model,
			maxTokens:   cfg.MaxTokens,
			temperature: temperatureOrDefault(cfg.Temperature),
		},
	}, nil
}

func (o *OpenAI) Name() string {
	return KindOpenAI + ":" + o.api.model
}

func (o *OpenAI) SendMessage(ctx context.Context, history []Message, ragContext string) (string, error) {
	res, err := o.api.complete(ctx, WithContext(history, ragContext))
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}

	return res, nil
}
