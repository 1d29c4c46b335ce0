package backends

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultRelayBaseURL = "https://openrouter.ai/api/v1"
	DefaultRelayModel   = "meta-llama/llama-3.2-3b-instruct:free"
	DefaultRelayReferer = "https://your-app.com"
	DefaultRelayTitle   = "Free LLM Chat"

	relayAnonymousKey = "sk-or-v1-no-key-required"
)

// RelayConfig targets OpenRouter's free tier. The key is optional.
type RelayConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Referer           string
	Title             string
	MaxTokens         int
	Temperature       *float64
	RequestsPerMinute int
	Timeout           time.Duration
}

func (RelayConfig) Kind() string   { return KindRelay }
func (RelayConfig) backendConfig() {}

type Relay struct {
	api     *completionsClient
	limiter *rate.Limiter
}

func NewRelay(cfg RelayConfig) *Relay {
	if cfg.APIKey == "" {
		cfg.APIKey = relayAnonymousKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultRelayBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultRelayModel
	}
	if cfg.Referer == "" {
		cfg.Referer = DefaultRelayReferer
	}
	if cfg.Title == "" {
		cfg.Title = DefaultRelayTitle
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 500
	}

	r := &Relay{
		api: &completionsClient{
			client: newHTTPClient(cfg.Timeout),
			url:    strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions",
			headers: map[string]string{
				"Authorization": "Bearer " + cfg.APIKey,
				"HTTP-Referer":  cfg.Referer,
				"X-Title":       cfg.Title,
			},
			model:       cfg.Model,
			maxTokens:   cfg.MaxTokens,
			temperature: temperatureOrDefault(cfg.Temperature),
		},
	}

	if cfg.RequestsPerMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return r
}

func (r *Relay) Name() string {
	return KindRelay + ":" + r.api.model
}

func (r *Relay) SendMessage(ctx context.Context, history []Message, ragContext string) (string, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("relay: rate limit: %w", err)
		}
	}

	res, err := r.api.complete(ctx, WithContext(history, ragContext))
	if err != nil {
		return "", fmt.Errorf("relay: %w", err)
	}

	return res, nil
}
