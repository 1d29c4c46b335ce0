package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamma-omg/rag-chat/backends"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func Test_ReadConfig_Defaults(t *testing.T) {
	cfg, err := readConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)

	cfg, err = readConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func Test_ReadConfig_Overrides(t *testing.T) {
	cfg, err := readConfig(writeConfig(t, `
log_level: debug
storage:
  driver: memory
chunking:
  chunk_size: 200
ranking:
  apply_threshold: false
backend:
  kind: relay
  relay:
    model: mistralai/mistral-7b-instruct:free
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "data/rag.db", cfg.Storage.Path)
	assert.Equal(t, 200, cfg.Chunking.ChunkSize)
	assert.Equal(t, DefaultOverlapWords, cfg.Chunking.OverlapWords)
	assert.False(t, cfg.Ranking.ApplyThreshold)
	assert.Equal(t, 0.1, cfg.Ranking.MinScore)
	assert.Equal(t, backends.KindRelay, cfg.Backend.Kind)
	assert.Equal(t, "mistralai/mistral-7b-instruct:free", cfg.Backend.Relay.Model)
	assert.Equal(t, "OPENROUTER_API_KEY", cfg.Backend.Relay.APIKeyEnv)
}

func Test_ReadConfig_Invalid(t *testing.T) {
	var cases = []string{
		"chunking:\n  chunk_size: 0\n",
		"chunking:\n  overlap_words: -1\n",
		"storage:\n  driver: redis\n",
		"storage:\n  driver: sqlite\n  path: \"\"\n",
		"ranking:\n  max_chunks: 0\n",
		"backend:\n  kind: gemini\n",
		"log_level: verbose\n",
		"chat:\n  require_context: true\n  fallback_message: \"\"\n",
		"server_addr: [unterminated\n",
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			_, err := readConfig(writeConfig(t, c))
			assert.Error(t, err)
		})
	}
}

func Test_Config_Update(t *testing.T) {
	cfg := defaultConfig()

	require.NoError(t, cfg.Update(func(c *Config) {
		c.Backend.Kind = backends.KindOpenAI
		c.Backend.OpenAI.Model = "gpt-4o-mini"
	}))
	assert.Equal(t, backends.KindOpenAI, cfg.Backend.Kind)
	assert.Equal(t, "gpt-4o-mini", cfg.Backend.OpenAI.Model)

	err := cfg.Update(func(c *Config) {
		c.Backend.Kind = "unknown"
		c.Chunking.ChunkSize = 42
	})
	require.Error(t, err)
	assert.Equal(t, backends.KindOpenAI, cfg.Backend.Kind)
	assert.Equal(t, DefaultChunkSize, cfg.Chunking.ChunkSize)
}

func Test_Config_Save(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := defaultConfig()
	cfg.Ranking.ApplyThreshold = false
	cfg.Backend.Ollama.Model = "mistral"
	require.NoError(t, cfg.Save(path))

	loaded, err := readConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func Test_Config_BackendVariant(t *testing.T) {
	t.Setenv("RAG_CHAT_TEST_OPENAI_KEY", "sk-from-env")

	cfg := defaultConfig()
	cfg.Backend.TimeoutSecs = 5
	cfg.Backend.OpenAI.APIKeyEnv = "RAG_CHAT_TEST_OPENAI_KEY"

	v, err := cfg.BackendVariant()
	require.NoError(t, err)
	assert.Equal(t, backends.KindOllama, v.Kind())

	cfg.Backend.Kind = backends.KindOpenAI
	v, err = cfg.BackendVariant()
	require.NoError(t, err)
	require.IsType(t, backends.OpenAIConfig{}, v)
	assert.Equal(t, "sk-from-env", v.(backends.OpenAIConfig).APIKey)
	assert.Equal(t, 5*time.Second, v.(backends.OpenAIConfig).Timeout)

	cfg.Backend.Kind = backends.KindRelay
	cfg.Backend.Relay.APIKeyEnv = ""
	v, err = cfg.BackendVariant()
	require.NoError(t, err)
	assert.Empty(t, v.(backends.RelayConfig).APIKey)

	cfg.Backend.Kind = "nope"
	_, err = cfg.BackendVariant()
	assert.ErrorIs(t, err, backends.ErrUnknownBackend)
}

func Test_Config_ZeroTemperature(t *testing.T) {
	path := writeConfig(t, "backend:\n  kind: openai\n  openai:\n    temperature: 0\n")

	cfg, err := readConfig(path)
	require.NoError(t, err)
	assert.Equal(t, backends.DefaultTemperature, cfg.Backend.Relay.Temperature)

	v, err := cfg.BackendVariant()
	require.NoError(t, err)
	require.NotNil(t, v.(backends.OpenAIConfig).Temperature)
	assert.Zero(t, *v.(backends.OpenAIConfig).Temperature)
}

func Test_ReadConfig_DotEnv(t *testing.T) {
	const name = "RAG_CHAT_TEST_DOTENV_KEY"
	t.Cleanup(func() { os.Unsetenv(name) })

	path := writeConfig(t, "backend:\n  kind: openai\n  openai:\n    api_key_env: "+name+"\n")
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), ".env"), []byte(name+"=sk-dotenv\n"), 0o644))

	cfg, err := readConfig(path)
	require.NoError(t, err)

	v, err := cfg.BackendVariant()
	require.NoError(t, err)
	assert.Equal(t, "sk-dotenv", v.(backends.OpenAIConfig).APIKey)
}

func Test_NewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")

	log, closer, err := newLogger(path, "warn")
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown", "file", "animals.txt")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), `"msg":"shown"`)
	assert.Contains(t, string(data), `"file":"animals.txt"`)

	_, _, err = newLogger(path, "loud")
	assert.Error(t, err)
}
