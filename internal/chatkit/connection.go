package chatkit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"roomchat/internal/models"
	"roomchat/internal/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 90 * time.Second
	outgoingBuffered = 64
)

// MessageConsumer receives the messages of a subscribed room.
type MessageConsumer func(*models.Message)

type pendingSend struct {
	callback func(Result)
	timer    *time.Timer
}

// Connection is an open WebSocket to the chat service. Consumers and send
// callbacks run on the connection's goroutines and must not call Close.
type Connection struct {
	ws          *websocket.Conn
	sendTimeout time.Duration
	outgoing    chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup

	mu         sync.Mutex
	consumers  map[uuid.UUID]MessageConsumer
	pending    map[string]*pendingSend
	subscribed chan error // non-nil while a subscribe awaits its answer
	closed     bool

	subscribeMu sync.Mutex
}

func dial(ctx context.Context, wsURL string, sendTimeout time.Duration) (*Connection, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with status %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}

	c := &Connection{
		ws:          ws,
		sendTimeout: sendTimeout,
		outgoing:    make(chan []byte, outgoingBuffered),
		done:        make(chan struct{}),
		consumers:   make(map[uuid.UUID]MessageConsumer),
		pending:     make(map[string]*pendingSend),
	}
	c.wg.Add(2)
	go c.readPump()
	go c.writePump()
	return c, nil
}

// Done is closed once the connection has shut down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection down and waits for its goroutines. Sends still
// awaiting a result fail with "connection closed".
func (c *Connection) Close() {
	c.shutdown()
	c.wg.Wait()
}

func (c *Connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.ws.Close()
		c.failAll()
	})
}

// failAll resolves every pending send and subscribe with a closed error.
func (c *Connection) failAll() {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]*pendingSend)
	if c.subscribed != nil {
		c.subscribed <- &Error{Reason: reasonConnectionClosed}
		c.subscribed = nil
	}
	c.mu.Unlock()

	for _, p := range pending {
		p.timer.Stop()
		p.callback(Result{Err: &Error{Reason: reasonConnectionClosed}})
	}
}

// SubscribeToRoomMultipart subscribes to roomID and blocks until the server
// accepts or rejects the subscription. On success consumer receives up to
// messageLimit recent messages, oldest first, followed by every new message
// of the room. Resubscribing replaces the consumer.
func (c *Connection) SubscribeToRoomMultipart(ctx context.Context, roomID uuid.UUID, messageLimit int, consumer MessageConsumer) error {
	c.subscribeMu.Lock()
	defer c.subscribeMu.Unlock()

	answer := make(chan error, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &Error{Reason: reasonConnectionClosed}
	}
	c.consumers[roomID] = consumer
	c.subscribed = answer
	c.mu.Unlock()

	if err := c.write(protocol.TypeSubscribe, protocol.SubscribePayload{RoomID: roomID, MessageLimit: messageLimit}); err != nil {
		c.abandonSubscribe(roomID, answer)
		return err
	}

	timer := time.NewTimer(c.sendTimeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-answer:
	case <-timer.C:
		err = &Error{Reason: reasonTimedOut}
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		c.abandonSubscribe(roomID, answer)
		return err
	}
	log.Printf("ChatKit: Subscribed to room %s", roomID)
	return nil
}

func (c *Connection) abandonSubscribe(roomID uuid.UUID, answer chan error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribed == answer {
		c.subscribed = nil
	}
	delete(c.consumers, roomID)
}

// Unsubscribe stops delivery of roomID's messages.
func (c *Connection) Unsubscribe(roomID uuid.UUID) error {
	c.mu.Lock()
	delete(c.consumers, roomID)
	c.mu.Unlock()
	return c.write(protocol.TypeUnsubscribe, protocol.UnsubscribePayload{RoomID: roomID})
}

// SendMultipartMessage posts parts into roomID. callback is invoked exactly
// once: with the server's answer, after the send timeout, or when the
// connection closes.
func (c *Connection) SendMultipartMessage(roomID uuid.UUID, parts []models.Part, callback func(Result)) {
	requestID := uuid.NewString()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		callback(Result{Err: &Error{Reason: reasonConnectionClosed}})
		return
	}
	c.pending[requestID] = &pendingSend{
		callback: callback,
		timer: time.AfterFunc(c.sendTimeout, func() {
			c.resolve(requestID, Result{Err: &Error{Reason: reasonTimedOut}})
		}),
	}
	c.mu.Unlock()

	err := c.write(protocol.TypeSendMessage, protocol.SendMessagePayload{
		RequestID: requestID,
		RoomID:    roomID,
		Parts:     parts,
	})
	if err != nil {
		c.resolve(requestID, Result{Err: &Error{Reason: err.Error()}})
	}
}

// resolve delivers result to the send's callback unless it already ran.
func (c *Connection) resolve(requestID string, result Result) {
	c.mu.Lock()
	p, ok := c.pending[requestID]
	delete(c.pending, requestID)
	c.mu.Unlock()

	if !ok {
		return
	}
	p.timer.Stop()
	p.callback(result)
}

func (c *Connection) write(frameType string, payload interface{}) error {
	raw, err := protocol.Encode(frameType, payload)
	if err != nil {
		return err
	}
	select {
	case c.outgoing <- raw:
		return nil
	case <-c.done:
		return &Error{Reason: reasonConnectionClosed}
	}
}

func (c *Connection) writePump() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case raw := <-c.outgoing:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				log.Printf("ChatKit writePump: Error writing frame: %v", err)
				c.shutdown()
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer c.wg.Done()
	defer c.shutdown()

	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPingHandler(func(data string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("ChatKit readPump: Connection lost: %v", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.handleFrame(raw)
	}
}

func (c *Connection) handleFrame(raw []byte) {
	var frame protocol.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Printf("ChatKit: Ignoring malformed frame: %v", err)
		return
	}

	switch frame.Type {
	case protocol.TypeNewMessage:
		var m models.Message
		if err := frame.Decode(&m); err != nil {
			log.Printf("ChatKit: %v", err)
			return
		}
		m.SenderID = m.Sender.ID
		c.mu.Lock()
		consumer := c.consumers[m.RoomID]
		c.mu.Unlock()
		if consumer != nil {
			consumer(&m)
		}

	case protocol.TypeSendResult:
		var result protocol.SendResultPayload
		if err := frame.Decode(&result); err != nil {
			log.Printf("ChatKit: %v", err)
			return
		}
		if result.Success {
			var id string
			if result.MessageID != nil {
				id = result.MessageID.String()
			}
			c.resolve(result.RequestID, Result{MessageID: id})
		} else {
			c.resolve(result.RequestID, Result{Err: &Error{Reason: result.Reason}})
		}

	case protocol.TypeSubscribed:
		c.answerSubscribe(nil)

	case protocol.TypeError:
		var payload protocol.ErrorPayload
		if err := frame.Decode(&payload); err != nil {
			log.Printf("ChatKit: %v", err)
			return
		}
		if !c.answerSubscribe(&Error{Reason: payload.Message}) {
			log.Printf("ChatKit: Server error: %s", payload.Message)
		}

	default:
		log.Printf("ChatKit: Ignoring frame of type %q", frame.Type)
	}
}

// answerSubscribe completes the subscribe in flight, if any.
func (c *Connection) answerSubscribe(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribed == nil {
		return false
	}
	c.subscribed <- err
	c.subscribed = nil
	return true
}
