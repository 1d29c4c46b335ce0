package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// completionsClient speaks the /chat/completions dialect shared by OpenAI and
// OpenRouter.
type completionsClient struct {
	client      *http.Client
	url         string
	headers     map[string]string
	model       string
	maxTokens   int
	temperature float64
}

type completionsRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type completionsResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *completionsClient) complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(completionsRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", providerError(resp.StatusCode, raw)
	}

	var out completionsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return noResponse, nil
	}

	return out.Choices[0].Message.Content, nil
}

// providerError extracts the message from {"error": {"message": ...}} or
// {"error": "..."} bodies.
func providerError(status int, body []byte) error {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var detailed struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &detailed) == nil && detailed.Message != "" {
			return fmt.Errorf("provider error (status %d): %s", status, detailed.Message)
		}

		var plain string
		if json.Unmarshal(envelope.Error, &plain) == nil && plain != "" {
			return fmt.Errorf("provider error (status %d): %s", status, plain)
		}
	}

	return fmt.Errorf("provider error (status %d): %s", status, strings.TrimSpace(string(body)))
}
