// Package chatkit is the client side of the chat service: it logs a user in,
// keeps a WebSocket open and exposes room subscriptions and multipart sends
// with asynchronous results.
package chatkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"roomchat/internal/config"
	"roomchat/internal/models"

	"github.com/google/uuid"
)

const defaultSendTimeout = 10 * time.Second

// CurrentUser is the logged-in user and the rooms they belong to.
type CurrentUser struct {
	ID        uuid.UUID
	Name      *string
	AvatarURL *string
	Rooms     []*models.Room
}

// Room returns the room called name, or the first room when name is empty.
func (u *CurrentUser) Room(name string) (*models.Room, bool) {
	for _, r := range u.Rooms {
		if name == "" || r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// ChatManager connects a user to the chat service.
type ChatManager struct {
	cfg        *config.ClientConfig
	httpClient *http.Client
	token      string
	conn       *Connection
}

// NewChatManager returns a manager for the server and credentials in cfg.
func NewChatManager(cfg *config.ClientConfig) *ChatManager {
	return &ChatManager{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Connect logs in, loads the user's rooms and opens the WebSocket. The
// returned Connection is also available through Connection.
func (m *ChatManager) Connect(ctx context.Context) (*CurrentUser, *Connection, error) {
	if m.conn != nil {
		return nil, nil, ErrAlreadyConnected
	}

	auth, err := m.login(ctx)
	if err != nil {
		return nil, nil, err
	}
	m.token = auth.Token

	rooms, err := m.Rooms(ctx)
	if err != nil {
		return nil, nil, err
	}

	timeout := m.cfg.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	conn, err := dial(ctx, m.cfg.WebSocketURL()+"?token="+url.QueryEscape(m.token), timeout)
	if err != nil {
		return nil, nil, err
	}
	m.conn = conn

	user := &CurrentUser{Rooms: rooms}
	if auth.User != nil {
		user.ID = auth.User.ID
		user.Name = auth.User.Name
		user.AvatarURL = auth.User.AvatarURL
	}
	log.Printf("ChatKit: Connected as %s with %d rooms", user.ID, len(rooms))
	return user, conn, nil
}

// Connection returns the open connection, or nil before Connect.
func (m *ChatManager) Connection() *Connection {
	return m.conn
}

// Close closes the connection, failing any sends still in flight.
func (m *ChatManager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}

func (m *ChatManager) login(ctx context.Context) (*models.AuthResponse, error) {
	body, err := json.Marshal(models.LoginUserRequest{Email: m.cfg.Email, Password: m.cfg.Password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode login request: %w", err)
	}

	var auth models.AuthResponse
	if err := m.do(ctx, http.MethodPost, m.cfg.TokenProviderURL(), body, &auth); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if auth.Token == "" {
		return nil, &Error{Reason: "login response did not include a token"}
	}
	return &auth, nil
}

// Rooms lists the rooms the user belongs to.
func (m *ChatManager) Rooms(ctx context.Context) ([]*models.Room, error) {
	if m.token == "" {
		return nil, ErrNotConnected
	}
	var rooms []*models.Room
	if err := m.do(ctx, http.MethodGet, m.cfg.ServerURL+"/api/v1/rooms", nil, &rooms); err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// do performs a JSON request and decodes a 2xx response into out. Non-2xx
// responses become an *Error carrying the server's error message.
func (m *ChatManager) do(ctx context.Context, method, target string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return &Error{Reason: apiErr.Error}
		}
		return &Error{Reason: resp.Status}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
