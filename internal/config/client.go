package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ClientConfig holds the terminal client configuration.
type ClientConfig struct {
	ServerURL    string
	Email        string
	Password     string
	RoomName     string // empty selects the user's first room
	MessageLimit int
	SendTimeout  time.Duration
	LogFile      string
}

var ErrServerURLNotSet = errors.New("CHAT_SERVER_URL must be set to the chat server's base URL")

// LoadClientConfig reads the client configuration from the environment,
// after loading envPath (default ".env") if it exists.
func LoadClientConfig(envPath ...string) (*ClientConfig, error) {
	loadEnvFile(envPath...)

	cfg := &ClientConfig{
		ServerURL:    strings.TrimRight(getEnv("CHAT_SERVER_URL", ""), "/"),
		Email:        getEnv("CHAT_USER_EMAIL", ""),
		Password:     getEnv("CHAT_USER_PASSWORD", ""),
		RoomName:     getEnv("CHAT_ROOM", ""),
		MessageLimit: getEnvInt("CHAT_MESSAGE_LIMIT", 50),
		SendTimeout:  getEnvDuration("CHAT_SEND_TIMEOUT", 10*time.Second),
		LogFile:      getEnv("CHAT_LOG_FILE", "roomchat-client.log"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports missing or malformed settings.
func (c *ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return ErrServerURLNotSet
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("CHAT_SERVER_URL %q is not an http(s) URL", c.ServerURL)
	}
	if c.Email == "" || c.Password == "" {
		return errors.New("CHAT_USER_EMAIL and CHAT_USER_PASSWORD must be set")
	}
	return nil
}

// TokenProviderURL is the endpoint that exchanges credentials for a token.
func (c *ClientConfig) TokenProviderURL() string {
	return c.ServerURL + "/api/v1/auth/login"
}

// WebSocketURL is the room subscription endpoint, without the token.
func (c *ClientConfig) WebSocketURL() string {
	switch {
	case strings.HasPrefix(c.ServerURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.ServerURL, "https://") + "/ws"
	default:
		return "ws://" + strings.TrimPrefix(c.ServerURL, "http://") + "/ws"
	}
}
