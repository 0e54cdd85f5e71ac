package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"roomchat/internal/config"
	"roomchat/internal/models"
	"roomchat/internal/multipart"
	"roomchat/internal/protocol"
	"roomchat/internal/store"
	"roomchat/internal/utils"
	"roomchat/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	prevCfg, prevCost := config.Cfg, utils.DefaultCost
	config.Cfg = &config.AppConfig{JWTSecret: "test-secret", TokenMaxAge: time.Hour}
	utils.DefaultCost = bcrypt.MinCost
	t.Cleanup(func() {
		config.Cfg = prevCfg
		utils.DefaultCost = prevCost
	})

	mem := store.NewMemoryStore()
	hub := websocket.NewHub(mem, mem, mem)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(Deps{
		Users:       mem,
		Rooms:       mem,
		Messages:    mem,
		Hub:         hub,
		DefaultRoom: "general",
		CORSOrigins: []string{"*"},
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, mem
}

func postJSON(t *testing.T, url, token string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func register(t *testing.T, srv *httptest.Server, username string) models.AuthResponse {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/v1/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var auth models.AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&auth))
	return auth
}

func dial(t *testing.T, srv *httptest.Server, token string) *gws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *gws.Conn, frameType string, payload interface{}) {
	t.Helper()
	raw, err := protocol.Encode(frameType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gws.TextMessage, raw))
}

func readFrame(t *testing.T, conn *gws.Conn) protocol.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame protocol.Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func readMessage(t *testing.T, conn *gws.Conn) *models.Message {
	t.Helper()
	frame := readFrame(t, conn)
	require.Equal(t, protocol.TypeNewMessage, frame.Type)
	var m models.Message
	require.NoError(t, frame.Decode(&m))
	return &m
}

func subscribe(t *testing.T, conn *gws.Conn, room *models.Room, limit int) {
	t.Helper()
	send(t, conn, protocol.TypeSubscribe, protocol.SubscribePayload{RoomID: room.ID, MessageLimit: limit})
	frame := readFrame(t, conn)
	require.Equal(t, protocol.TypeSubscribed, frame.Type)
}

func TestRegisterJoinsDefaultRoom(t *testing.T) {
	srv, _ := newTestServer(t)

	auth := register(t, srv, "alice")
	assert.NotEmpty(t, auth.Token)
	require.NotNil(t, auth.User)
	require.NotNil(t, auth.User.Name)
	assert.Equal(t, "alice", *auth.User.Name)
	require.Len(t, auth.Rooms, 1)
	assert.Equal(t, "general", auth.Rooms[0].Name)

	resp := postJSON(t, srv.URL+"/api/v1/auth/login", "", map[string]string{
		"email":    "ALICE@example.com",
		"password": "password123",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login models.AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	assert.Equal(t, auth.User.ID, login.User.ID)
	assert.Equal(t, auth.Rooms[0].ID, login.Rooms[0].ID)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	srv, _ := newTestServer(t)
	register(t, srv, "alice")

	resp := postJSON(t, srv.URL+"/api/v1/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "not-the-password",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := gws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSendIsAcknowledgedThenEchoed(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := register(t, srv, "alice")
	room := alice.Rooms[0]

	conn := dial(t, srv, alice.Token)
	subscribe(t, conn, room, 0)

	parts := multipart.EncodeOutgoing("hello")
	send(t, conn, protocol.TypeSendMessage, protocol.SendMessagePayload{
		RequestID: "req-1",
		RoomID:    room.ID,
		Parts:     parts,
	})

	ack := readFrame(t, conn)
	require.Equal(t, protocol.TypeSendResult, ack.Type)
	var result protocol.SendResultPayload
	require.NoError(t, ack.Decode(&result))
	assert.Equal(t, "req-1", result.RequestID)
	assert.True(t, result.Success)
	require.NotNil(t, result.MessageID)

	echo := readMessage(t, conn)
	assert.Equal(t, *result.MessageID, echo.ID)
	assert.Equal(t, "hello", multipart.DisplayText(echo.Parts))
	id, ok := multipart.MessageCorrelationID(echo)
	require.True(t, ok)
	wantID, _ := multipart.CorrelationID(parts)
	assert.Equal(t, wantID, id)
	require.NotNil(t, echo.Sender.Name)
	assert.Equal(t, "alice", *echo.Sender.Name)
}

func TestSubscribeDeliversBacklogOldestFirst(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := register(t, srv, "alice")
	room := alice.Rooms[0]

	for _, text := range []string{"one", "two", "three"} {
		resp := postJSON(t, srv.URL+"/api/v1/rooms/"+room.ID.String()+"/messages", alice.Token,
			models.CreateMessageRequest{Parts: multipart.EncodeOutgoing(text)})
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	bob := register(t, srv, "bob")
	conn := dial(t, srv, bob.Token)
	subscribe(t, conn, room, 2)

	assert.Equal(t, "two", multipart.DisplayText(readMessage(t, conn).Parts))
	assert.Equal(t, "three", multipart.DisplayText(readMessage(t, conn).Parts))
}

func TestRestPostIsBroadcastToSubscribers(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := register(t, srv, "alice")
	bob := register(t, srv, "bob")
	room := alice.Rooms[0]

	conn := dial(t, srv, alice.Token)
	subscribe(t, conn, room, 0)

	resp := postJSON(t, srv.URL+"/api/v1/rooms/"+room.ID.String()+"/messages", bob.Token,
		models.CreateMessageRequest{Parts: multipart.EncodeOutgoing("from bob")})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	m := readMessage(t, conn)
	assert.Equal(t, "from bob", multipart.DisplayText(m.Parts))
	assert.Equal(t, bob.User.ID, m.Sender.ID)
}

func TestNonMemberIsRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := register(t, srv, "alice")
	bob := register(t, srv, "bob")

	resp := postJSON(t, srv.URL+"/api/v1/rooms", alice.Token, models.CreateRoomRequest{Name: "private"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var room models.Room
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&room))

	conn := dial(t, srv, bob.Token)
	send(t, conn, protocol.TypeSubscribe, protocol.SubscribePayload{RoomID: room.ID})
	frame := readFrame(t, conn)
	require.Equal(t, protocol.TypeError, frame.Type)
	var errPayload protocol.ErrorPayload
	require.NoError(t, frame.Decode(&errPayload))
	assert.Equal(t, http.StatusForbidden, errPayload.Code)

	send(t, conn, protocol.TypeSendMessage, protocol.SendMessagePayload{
		RequestID: "req-x",
		RoomID:    room.ID,
		Parts:     multipart.EncodeOutgoing("let me in"),
	})
	ack := readFrame(t, conn)
	require.Equal(t, protocol.TypeSendResult, ack.Type)
	var result protocol.SendResultPayload
	require.NoError(t, ack.Decode(&result))
	assert.False(t, result.Success)
	assert.Equal(t, "req-x", result.RequestID)
	assert.NotEmpty(t, result.Reason)

	joinResp := postJSON(t, srv.URL+"/api/v1/rooms/"+room.ID.String()+"/join", bob.Token, struct{}{})
	joinResp.Body.Close()
	require.Equal(t, http.StatusOK, joinResp.StatusCode)
	subscribe(t, conn, &room, 0)
}

func TestInvalidPartsAreRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := register(t, srv, "alice")
	room := alice.Rooms[0]

	conn := dial(t, srv, alice.Token)
	send(t, conn, protocol.TypeSendMessage, protocol.SendMessagePayload{
		RequestID: "empty",
		RoomID:    room.ID,
	})
	ack := readFrame(t, conn)
	var result protocol.SendResultPayload
	require.NoError(t, ack.Decode(&result))
	assert.False(t, result.Success)
	assert.Equal(t, "empty", result.RequestID)
}

func TestUnknownFrameTypeReturnsError(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := register(t, srv, "alice")

	conn := dial(t, srv, alice.Token)
	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte(`{"type":"typing"}`)))
	assert.Equal(t, protocol.TypeError, readFrame(t, conn).Type)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := register(t, srv, "alice")
	room := alice.Rooms[0]

	conn := dial(t, srv, alice.Token)
	subscribe(t, conn, room, 0)
	send(t, conn, protocol.TypeUnsubscribe, protocol.UnsubscribePayload{RoomID: room.ID})

	send(t, conn, protocol.TypeSendMessage, protocol.SendMessagePayload{
		RequestID: "req-1",
		RoomID:    room.ID,
		Parts:     multipart.EncodeOutgoing("after unsubscribe"),
	})
	ack := readFrame(t, conn)
	require.Equal(t, protocol.TypeSendResult, ack.Type)

	// The echo would directly follow the ack.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestRouterWithoutHub(t *testing.T) {
	gin.SetMode(gin.TestMode)
	prevCfg, prevCost := config.Cfg, utils.DefaultCost
	config.Cfg = &config.AppConfig{JWTSecret: "test-secret", TokenMaxAge: time.Hour}
	utils.DefaultCost = bcrypt.MinCost
	t.Cleanup(func() {
		config.Cfg = prevCfg
		utils.DefaultCost = prevCost
	})

	mem := store.NewMemoryStore()
	srv := httptest.NewServer(NewRouter(Deps{
		Users:       mem,
		Rooms:       mem,
		Messages:    mem,
		DefaultRoom: "general",
	}))
	t.Cleanup(srv.Close)

	alice := register(t, srv, "alice")
	room := alice.Rooms[0]

	raw, err := json.Marshal(models.CreateMessageRequest{Parts: multipart.EncodeOutgoing("stored only")})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/rooms/"+room.ID.String()+"/messages", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+alice.Token)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = client.Get(srv.URL + "/ws?token=" + alice.Token)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func getJSON(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestGetUserProfile(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := register(t, srv, "alice")
	bob := register(t, srv, "bob")

	resp := getJSON(t, srv.URL+"/api/v1/users/"+bob.User.ID.String(), alice.Token)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var profile models.PublicUser
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&profile))
	assert.Equal(t, bob.User.ID, profile.ID)
	require.NotNil(t, profile.Name)
	assert.Equal(t, "bob", *profile.Name)

	missing := getJSON(t, srv.URL+"/api/v1/users/"+uuid.NewString(), alice.Token)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	invalid := getJSON(t, srv.URL+"/api/v1/users/not-a-uuid", alice.Token)
	invalid.Body.Close()
	assert.Equal(t, http.StatusBadRequest, invalid.StatusCode)
}

// senderRecorder captures the sender each message carries when it is
// written.
type senderRecorder struct {
	*store.MemoryStore
	mu      sync.Mutex
	senders []models.PublicUser
}

func (r *senderRecorder) CreateMessage(ctx context.Context, message *models.Message) error {
	r.mu.Lock()
	r.senders = append(r.senders, message.Sender)
	r.mu.Unlock()
	return r.MemoryStore.CreateMessage(ctx, message)
}

func TestMessagesAreWrittenWithSender(t *testing.T) {
	gin.SetMode(gin.TestMode)
	prevCfg, prevCost := config.Cfg, utils.DefaultCost
	config.Cfg = &config.AppConfig{JWTSecret: "test-secret", TokenMaxAge: time.Hour}
	utils.DefaultCost = bcrypt.MinCost
	t.Cleanup(func() {
		config.Cfg = prevCfg
		utils.DefaultCost = prevCost
	})

	mem := store.NewMemoryStore()
	recorder := &senderRecorder{MemoryStore: mem}
	hub := websocket.NewHub(mem, mem, recorder)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(NewRouter(Deps{
		Users:       mem,
		Rooms:       mem,
		Messages:    recorder,
		Hub:         hub,
		DefaultRoom: "general",
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	alice := register(t, srv, "alice")
	room := alice.Rooms[0]

	conn := dial(t, srv, alice.Token)
	subscribe(t, conn, room, 0)
	send(t, conn, protocol.TypeSendMessage, protocol.SendMessagePayload{
		RequestID: "req-1",
		RoomID:    room.ID,
		Parts:     multipart.EncodeOutgoing("over websocket"),
	})
	require.Equal(t, protocol.TypeSendResult, readFrame(t, conn).Type)

	resp := postJSON(t, srv.URL+"/api/v1/rooms/"+room.ID.String()+"/messages", alice.Token,
		models.CreateMessageRequest{Parts: multipart.EncodeOutgoing("over rest")})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	require.Len(t, recorder.senders, 2)
	for _, sender := range recorder.senders {
		assert.Equal(t, alice.User.ID, sender.ID)
		require.NotNil(t, sender.Name)
		assert.Equal(t, "alice", *sender.Name)
	}
}
