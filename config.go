package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gamma-omg/rag-chat/backends"
	"github.com/gamma-omg/rag-chat/docstore"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

type StorageConfig struct {
	Driver string `yaml:"driver" validate:"oneof=memory sqlite"`
	Path   string `yaml:"path" validate:"required_if=Driver sqlite"`
	Key    string `yaml:"key" validate:"required"`
}

type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size" validate:"gt=0"`
	OverlapWords int `yaml:"overlap_words" validate:"gte=0"`
}

type RankingConfig struct {
	MaxChunks      int     `yaml:"max_chunks" validate:"gt=0"`
	MinScore       float64 `yaml:"min_score" validate:"gte=0"`
	ApplyThreshold bool    `yaml:"apply_threshold"`
}

// InboxConfig points at a directory whose files are ingested automatically.
// An empty Dir disables the inbox.
type InboxConfig struct {
	Dir           string `yaml:"dir"`
	MergeEventsMs int    `yaml:"merge_events_ms" validate:"gte=0"`
}

type ChatConfig struct {
	SystemPrompt    string `yaml:"system_prompt"`
	RequireContext  bool   `yaml:"require_context"`
	FallbackMessage string `yaml:"fallback_message" validate:"required_if=RequireContext true"`
}

type OpenAISettings struct {
	BaseURL     string  `yaml:"base_url" validate:"omitempty,url"`
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gte=0"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
}

type OllamaSettings struct {
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	Model   string `yaml:"model"`
}

type RelaySettings struct {
	BaseURL           string  `yaml:"base_url" validate:"omitempty,url"`
	Model             string  `yaml:"model"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Referer           string  `yaml:"referer"`
	Title             string  `yaml:"title"`
	MaxTokens         int     `yaml:"max_tokens" validate:"gte=0"`
	Temperature       float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	RequestsPerMinute int     `yaml:"requests_per_minute" validate:"gte=0"`
}

type BackendConfig struct {
	Kind        string         `yaml:"kind" validate:"oneof=openai ollama relay"`
	TimeoutSecs int            `yaml:"timeout_secs" validate:"gte=0"`
	OpenAI      OpenAISettings `yaml:"openai"`
	Ollama      OllamaSettings `yaml:"ollama"`
	Relay       RelaySettings  `yaml:"relay"`
}

type Config struct {
	LogFile    string         `yaml:"log"`
	LogLevel   string         `yaml:"log_level" validate:"oneof=debug info warn error"`
	ServerAddr string         `yaml:"server_addr" validate:"required,hostname_port"`
	Storage    StorageConfig  `yaml:"storage"`
	Chunking   ChunkingConfig `yaml:"chunking"`
	Ranking    RankingConfig  `yaml:"ranking"`
	Inbox      InboxConfig    `yaml:"inbox"`
	Chat       ChatConfig     `yaml:"chat"`
	Backend    BackendConfig  `yaml:"backend"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func defaultConfig() *Config {
	return &Config{
		LogFile:    "logs/rag-chat.log",
		LogLevel:   "info",
		ServerAddr: "localhost:8080",
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   "data/rag.db",
			Key:    docstore.DefaultKey,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    DefaultChunkSize,
			OverlapWords: DefaultOverlapWords,
		},
		Ranking: RankingConfig{
			MaxChunks:      2,
			MinScore:       0.1,
			ApplyThreshold: true,
		},
		Inbox: InboxConfig{MergeEventsMs: 500},
		Chat: ChatConfig{
			SystemPrompt:    "You are a helpful assistant. Answer concisely.",
			FallbackMessage: "I could not find anything about that in the uploaded documents.",
		},
		Backend: BackendConfig{
			Kind:        backends.KindOllama,
			TimeoutSecs: int(backends.DefaultTimeout / time.Second),
			OpenAI:      OpenAISettings{APIKeyEnv: "OPENAI_API_KEY", Temperature: backends.DefaultTemperature},
			Relay:       RelaySettings{APIKeyEnv: "OPENROUTER_API_KEY", Temperature: backends.DefaultTemperature},
		},
	}
}

// readConfig loads cfgPath over the defaults. A missing file yields the
// defaults. Variables from a .env file next to the config, or in the working
// directory, are loaded without overriding the environment.
func readConfig(cfgPath string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(cfgPath), ".env"), ".env"); err != nil {
		return nil, err
	}

	cfg := defaultConfig()

	cfgFile, err := os.Open(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open config file: %w", err)
	}
	defer cfgFile.Close()

	dec := yaml.NewDecoder(cfgFile)
	err = dec.Decode(cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		err := godotenv.Load(p)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("unable to load env file %s: %w", p, err)
		}
	}

	return nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

// Update applies fn and keeps the result only if it validates.
func (c *Config) Update(fn func(cfg *Config)) error {
	prev := *c
	fn(c)

	if err := c.Validate(); err != nil {
		*c = prev
		return err
	}

	return nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("unable to create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("unable to encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}

	return nil
}

// BackendVariant resolves the configured backend, reading API keys from the
// environment.
func (c *Config) BackendVariant() (backends.Config, error) {
	b := c.Backend
	timeout := time.Duration(b.TimeoutSecs) * time.Second
	openAITemp, relayTemp := b.OpenAI.Temperature, b.Relay.Temperature

	switch b.Kind {
	case backends.KindOpenAI:
		return backends.OpenAIConfig{
			APIKey:      envOrEmpty(b.OpenAI.APIKeyEnv),
			BaseURL:     b.OpenAI.BaseURL,
			Model:       b.OpenAI.Model,
			MaxTokens:   b.OpenAI.MaxTokens,
			Temperature: &openAITemp,
			Timeout:     timeout,
		}, nil
	case backends.KindOllama:
		return backends.OllamaConfig{
			BaseURL: b.Ollama.BaseURL,
			Model:   b.Ollama.Model,
			Timeout: timeout,
		}, nil
	case backends.KindRelay:
		return backends.RelayConfig{
			APIKey:            envOrEmpty(b.Relay.APIKeyEnv),
			BaseURL:           b.Relay.BaseURL,
			Model:             b.Relay.Model,
			Referer:           b.Relay.Referer,
			Title:             b.Relay.Title,
			MaxTokens:         b.Relay.MaxTokens,
			Temperature:       &relayTemp,
			RequestsPerMinute: b.Relay.RequestsPerMinute,
			Timeout:           timeout,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", backends.ErrUnknownBackend, b.Kind)
	}
}

func envOrEmpty(name string) string {
	if name == "" {
		return ""
	}

	return os.Getenv(name)
}
