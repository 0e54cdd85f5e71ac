package websocket

import (
	"bytes"
	"log"
	"time"

	"roomchat/internal/metrics"
	"roomchat/internal/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client bridges a WebSocket connection with the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID

	// rooms is only touched from the hub goroutine.
	rooms map[uuid.UUID]bool
}

// NewClient constructs a Client for the given hub connection.
func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		userID: userID,
		rooms:  make(map[uuid.UUID]bool),
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close()
		log.Printf("Client %s (User: %s) readPump: Unregistered and connection closed.", c.conn.RemoteAddr(), c.userID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("Client %s (User: %s) readPump error: %v", c.conn.RemoteAddr(), c.userID, err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			log.Printf("Client %s (User: %s) readPump: Received non-text message type: %d", c.conn.RemoteAddr(), c.userID, messageType)
			continue
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		if !c.hub.enqueue(HubMessage{client: c, rawJSON: message}) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Client %s (User: %s) writePump: Error writing message: %v", c.conn.RemoteAddr(), c.userID, err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Client %s (User: %s) writePump: Error sending ping: %v", c.conn.RemoteAddr(), c.userID, err)
				return
			}
		}
	}
}

// SendFrame queues a frame for this client. Frames are dropped, not
// blocked on, when the client's buffer is full. Must only be called while
// the client is registered (the hub closes send on unregister).
func (c *Client) SendFrame(frameType string, payload interface{}) {
	raw, err := protocol.Encode(frameType, payload)
	if err != nil {
		log.Printf("Client %s (User: %s) SendFrame: %v", c.conn.RemoteAddr(), c.userID, err)
		return
	}

	select {
	case c.send <- raw:
	default:
		metrics.DroppedFrames.Inc()
		log.Printf("Client %s (User: %s) SendFrame: Send channel full. Dropping frame of type %s.", c.conn.RemoteAddr(), c.userID, frameType)
	}
}

// HubMessage holds raw JSON from a client awaiting processing.
type HubMessage struct {
	client  *Client
	rawJSON []byte
}
