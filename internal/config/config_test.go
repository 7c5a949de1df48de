package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
	assert.Equal(t, StoreSQLite, cfg.Chat.Store)
	assert.Equal(t, "chat_state_v1", cfg.Chat.StateKey)
	assert.Equal(t, "gpt-4o", cfg.Chat.DefaultModel)
	assert.Equal(t, 2*time.Minute, cfg.Chat.Timeout)
	assert.Equal(t, "http://localhost:8080/api/chat", cfg.ChatEndpoint())
	assert.Equal(t, "echo", cfg.LLM.Provider)
	assert.False(t, cfg.AuthEnabled())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "askdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
chat:
  store: file
  endpoint: http://backend:8000/chat
admin:
  api_key: secret
`), 0600))
	t.Setenv("ASKDESK_CHAT_STORE", "memory")
	t.Setenv("ASKDESK_RATE_LIMIT_BURST", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, StoreMemory, cfg.Chat.Store, "env overrides file")
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.Equal(t, "http://backend:8000/chat", cfg.ChatEndpoint())
	assert.True(t, cfg.AuthEnabled())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ASKDESK_AUTH_JWT_SECRET=from-dotenv\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("ASKDESK_AUTH_JWT_SECRET") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Auth.JWTSecret)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown store", mutate: func(c *Config) { c.Chat.Store = "s3" }, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.Provider = "ollama" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server: ServerConfig{Port: 8080},
				Chat:   ChatConfig{Store: StoreRedis},
				LLM:    LLMConfig{Provider: "openai"},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory and restores the previous one when the test ends.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
