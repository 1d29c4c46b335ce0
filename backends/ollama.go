package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "llama2"

	emptyOllamaResponse = "The model provided an empty response. " +
		"This might be due to the model configuration or the query format."
)

type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

func (OllamaConfig) Kind() string   { return KindOllama }
func (OllamaConfig) backendConfig() {}

// Ollama is a model served by a local Ollama daemon. No key is needed.
type Ollama struct {
	client  *http.Client
	baseURL string
	model   string
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}

	return &Ollama{
		client:  newHTTPClient(cfg.Timeout),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
	}
}

func (o *Ollama) Name() string {
	return KindOllama + ":" + o.model
}

func (o *Ollama) SendMessage(ctx context.Context, history []Message, ragContext string) (string, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    o.model,
		Messages: WithContext(history, ragContext),
	})
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: %w at %s: %w", ErrBackendUnreachable, o.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama: %w", providerError(resp.StatusCode, raw))
	}

	var out ollamaChatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}

	if strings.TrimSpace(out.Message.Content) == "" {
		return emptyOllamaResponse, nil
	}

	return out.Message.Content, nil
}
