package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PORT=9090\nTOKEN_HOURS=5\nDEFAULT_ROOM=lobby\nCORS_ORIGINS=http://a, http://b\n"), 0o600))

	for _, key := range []string{"PORT", "TOKEN_HOURS", "DEFAULT_ROOM", "CORS_ORIGINS"} {
		prev, had := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if had {
				os.Setenv(key, prev)
			} else {
				os.Unsetenv(key)
			}
		})
	}

	LoadConfig(envFile)
	require.NotNil(t, Cfg)
	assert.Equal(t, "9090", Cfg.ServerPort)
	assert.Equal(t, 5*time.Hour, Cfg.TokenMaxAge)
	assert.Equal(t, "lobby", Cfg.DefaultRoom)
	assert.Equal(t, []string{"http://a", "http://b"}, Cfg.CORSOrigins)
	assert.Equal(t, "", Cfg.RedisAddress)
}

func TestInvalidIntegerFallsBack(t *testing.T) {
	t.Setenv("TOKEN_HOURS", "abc")
	LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, 72*time.Hour, Cfg.TokenMaxAge)
}

func TestDBHost(t *testing.T) {
	assert.Equal(t, "localhost:5432", DBHost("postgres://user:pw@localhost:5432/chat_db?sslmode=disable"))
	assert.Equal(t, "db:5432", DBHost("postgres://db:5432/chat"))
	assert.Contains(t, DBHost("nonsense"), "unknown")
}

func TestLoadClientConfig(t *testing.T) {
	t.Setenv("CHAT_SERVER_URL", "https://chat.example.com/")
	t.Setenv("CHAT_USER_EMAIL", "alice@example.com")
	t.Setenv("CHAT_USER_PASSWORD", "secret123")
	t.Setenv("CHAT_MESSAGE_LIMIT", "20")
	t.Setenv("CHAT_SEND_TIMEOUT", "3s")

	cfg, err := LoadClientConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com", cfg.ServerURL)
	assert.Equal(t, 20, cfg.MessageLimit)
	assert.Equal(t, 3*time.Second, cfg.SendTimeout)
	assert.Equal(t, "https://chat.example.com/api/v1/auth/login", cfg.TokenProviderURL())
	assert.Equal(t, "wss://chat.example.com/ws", cfg.WebSocketURL())
}

func TestClientConfigRequiresServerURL(t *testing.T) {
	t.Setenv("CHAT_SERVER_URL", "")
	_, err := LoadClientConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorIs(t, err, ErrServerURLNotSet)
}

func TestClientConfigValidate(t *testing.T) {
	cfg := &ClientConfig{ServerURL: "ftp://x", Email: "a@b.c", Password: "pw"}
	assert.Error(t, cfg.Validate())

	cfg.ServerURL = "http://localhost:8080"
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "ws://localhost:8080/ws", cfg.WebSocketURL())

	cfg.Password = ""
	assert.Error(t, cfg.Validate())
}
