// Package backends talks to the chat models that answer user questions.
package backends

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	KindOpenAI = "openai"
	KindOllama = "ollama"
	KindRelay  = "relay"

	DefaultTimeout     = 120 * time.Second
	DefaultTemperature = 0.7

	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	noResponse = "Sorry, I could not generate a response."
)

var (
	ErrAPIKeyRequired     = errors.New("api key is required")
	ErrBackendUnreachable = errors.New("backend unreachable")
	ErrUnknownBackend     = errors.New("unknown backend")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Backend produces the assistant's next message for a conversation.
// ragContext, when not empty, is folded into the leading system message.
type Backend interface {
	SendMessage(ctx context.Context, history []Message, ragContext string) (string, error)
	Name() string
}

// Config is one of OpenAIConfig, OllamaConfig or RelayConfig.
type Config interface {
	Kind() string
	backendConfig()
}

// New builds the backend described by cfg.
func New(cfg Config) (Backend, error) {
	switch c := cfg.(type) {
	case OpenAIConfig:
		return NewOpenAI(c)
	case *OpenAIConfig:
		return NewOpenAI(*c)
	case OllamaConfig:
		return NewOllama(c), nil
	case *OllamaConfig:
		return NewOllama(*c), nil
	case RelayConfig:
		return NewRelay(c), nil
	case *RelayConfig:
		return NewRelay(*c), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownBackend, cfg)
	}
}

// WithContext returns a copy of history whose first system message carries
// ragContext. A system message is prepended when history does not start with one.
func WithContext(history []Message, ragContext string) []Message {
	res := make([]Message, 0, len(history)+1)
	if ragContext == "" {
		return append(res, history...)
	}

	block := fmt.Sprintf("Additional context from uploaded documents:\n%s\n\n"+
		"Please use this context to provide more accurate and relevant answers when applicable.", ragContext)

	if len(history) > 0 && history[0].Role == RoleSystem {
		res = append(res, Message{Role: RoleSystem, Content: history[0].Content + "\n\n" + block})
		return append(res, history[1:]...)
	}

	res = append(res, Message{Role: RoleSystem, Content: block})
	return append(res, history...)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{Timeout: timeout}
}

// temperatureOrDefault keeps an explicit zero; only an unset value falls back.
func temperatureOrDefault(t *float64) float64 {
	if t == nil {
		return DefaultTemperature
	}

	return *t
}
