package websocket

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"roomchat/internal/metrics"
	"roomchat/internal/models"
	"roomchat/internal/protocol"
	"roomchat/internal/store"

	"github.com/google/uuid"
)

// Hub maintains active WebSocket clients and their room subscriptions, and
// delivers persisted messages to every subscriber of a room.
//
// All client and subscription state is owned by the goroutine running Run;
// other goroutines talk to it through channels.
type Hub struct {
	clients map[uuid.UUID]map[*Client]bool
	rooms   map[uuid.UUID]map[*Client]bool

	processMessage chan HubMessage
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *models.Message
	done           chan struct{}

	userStore    store.UserStore
	roomStore    store.RoomStore
	messageStore store.MessageStore
}

// NewHub returns a Hub wired to the provided stores.
func NewHub(us store.UserStore, rs store.RoomStore, ms store.MessageStore) *Hub {
	return &Hub{
		clients:        make(map[uuid.UUID]map[*Client]bool),
		rooms:          make(map[uuid.UUID]map[*Client]bool),
		processMessage: make(chan HubMessage),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *models.Message, 64),
		done:           make(chan struct{}),
		userStore:      us,
		roomStore:      rs,
		messageStore:   ms,
	}
}

// Run processes hub events until ctx is cancelled, then closes every
// client's send channel.
func (h *Hub) Run(ctx context.Context) {
	log.Println("WebSocket Hub: Starting...")
	defer func() {
		close(h.done)
		for _, userClients := range h.clients {
			for client := range userClients {
				close(client.send)
			}
		}
		metrics.ConnectedClients.Set(0)
		metrics.RoomSubscriptions.Set(0)
		log.Println("WebSocket Hub: Stopped.")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			if _, ok := h.clients[client.userID]; !ok {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			metrics.ConnectedClients.Inc()
			log.Printf("WebSocket Hub: Client registered (User: %s, RemoteAddr: %s). Total for user: %d", client.userID, client.conn.RemoteAddr(), len(h.clients[client.userID]))

		case client := <-h.unregister:
			h.removeClient(client)

		case hubMsg := <-h.processMessage:
			h.handleIncomingMessage(ctx, hubMsg.client, hubMsg.rawJSON)

		case message := <-h.broadcast:
			h.broadcastToRoom(message)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	userClients, ok := h.clients[client.userID]
	if !ok || !userClients[client] {
		return
	}
	for roomID := range client.rooms {
		h.unsubscribe(client, roomID)
	}
	close(client.send)
	delete(userClients, client)
	if len(userClients) == 0 {
		delete(h.clients, client.userID)
	}
	metrics.ConnectedClients.Dec()
	log.Printf("WebSocket Hub: Client unregistered (User: %s, RemoteAddr: %s). Remaining for user: %d", client.userID, client.conn.RemoteAddr(), len(userClients))
}

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) enqueue(m HubMessage) bool {
	select {
	case h.processMessage <- m:
		return true
	case <-h.done:
		return false
	}
}

// BroadcastMessage delivers a message persisted outside the hub (for example
// through the REST API) to the room's subscribers.
func (h *Hub) BroadcastMessage(message *models.Message) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

func (h *Hub) handleIncomingMessage(ctx context.Context, client *Client, rawJSON []byte) {
	var frame protocol.Frame
	if err := json.Unmarshal(rawJSON, &frame); err != nil {
		log.Printf("WebSocket Hub: Error unmarshalling frame from User %s: %v. Raw: %s", client.userID, err, string(rawJSON))
		client.SendFrame(protocol.TypeError, protocol.ErrorPayload{Message: "Invalid message format"})
		return
	}

	switch frame.Type {
	case protocol.TypeSubscribe:
		var payload protocol.SubscribePayload
		if err := frame.Decode(&payload); err != nil {
			client.SendFrame(protocol.TypeError, protocol.ErrorPayload{Message: "Invalid subscribe payload"})
			return
		}
		h.handleSubscribe(ctx, client, payload)

	case protocol.TypeUnsubscribe:
		var payload protocol.UnsubscribePayload
		if err := frame.Decode(&payload); err != nil {
			client.SendFrame(protocol.TypeError, protocol.ErrorPayload{Message: "Invalid unsubscribe payload"})
			return
		}
		h.unsubscribe(client, payload.RoomID)

	case protocol.TypeSendMessage:
		var payload protocol.SendMessagePayload
		if err := frame.Decode(&payload); err != nil {
			client.SendFrame(protocol.TypeError, protocol.ErrorPayload{Message: "Invalid send_message payload"})
			return
		}
		h.handleSendMessage(ctx, client, payload)

	default:
		log.Printf("WebSocket Hub: Unknown frame type '%s' from User %s", frame.Type, client.userID)
		client.SendFrame(protocol.TypeError, protocol.ErrorPayload{Message: "Unknown message type"})
	}
}

func (h *Hub) handleSubscribe(ctx context.Context, client *Client, payload protocol.SubscribePayload) {
	isMember, err := h.roomStore.IsRoomMember(ctx, payload.RoomID, client.userID)
	if err != nil {
		log.Printf("WebSocket Hub (Subscribe): Error checking membership of %s in room %s: %v", client.userID, payload.RoomID, err)
		client.SendFrame(protocol.TypeError, protocol.ErrorPayload{Message: "Failed to subscribe to room"})
		return
	}
	if !isMember {
		client.SendFrame(protocol.TypeError, protocol.ErrorPayload{Message: "Not a member of this room", Code: 403})
		return
	}

	backlog, err := h.messageStore.GetRecentMessages(ctx, payload.RoomID, payload.Limit())
	if err != nil {
		log.Printf("WebSocket Hub (Subscribe): Error loading backlog for room %s: %v", payload.RoomID, err)
		client.SendFrame(protocol.TypeError, protocol.ErrorPayload{Message: "Failed to load room history"})
		return
	}

	if !client.rooms[payload.RoomID] {
		if _, ok := h.rooms[payload.RoomID]; !ok {
			h.rooms[payload.RoomID] = make(map[*Client]bool)
		}
		h.rooms[payload.RoomID][client] = true
		client.rooms[payload.RoomID] = true
		metrics.RoomSubscriptions.Inc()
	}

	client.SendFrame(protocol.TypeSubscribed, protocol.SubscribedPayload{RoomID: payload.RoomID})
	for _, m := range backlog {
		client.SendFrame(protocol.TypeNewMessage, m)
	}
	metrics.MessagesDelivered.Add(float64(len(backlog)))
	log.Printf("WebSocket Hub: User %s subscribed to room %s (%d backlog messages)", client.userID, payload.RoomID, len(backlog))
}

func (h *Hub) unsubscribe(client *Client, roomID uuid.UUID) {
	if !client.rooms[roomID] {
		return
	}
	delete(client.rooms, roomID)
	if subscribers, ok := h.rooms[roomID]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.rooms, roomID)
		}
	}
	metrics.RoomSubscriptions.Dec()
}

func (h *Hub) handleSendMessage(ctx context.Context, client *Client, payload protocol.SendMessagePayload) {
	reject := func(reason string) {
		metrics.MessagesSent.WithLabelValues(metrics.TransportWebSocket, metrics.OutcomeRejected).Inc()
		client.SendFrame(protocol.TypeSendResult, protocol.SendResultPayload{
			RequestID: payload.RequestID,
			Success:   false,
			Timestamp: models.NewTimestamp(time.Now()),
			Reason:    reason,
		})
	}

	if err := models.ValidateParts(payload.Parts); err != nil {
		reject(err.Error())
		return
	}

	isMember, err := h.roomStore.IsRoomMember(ctx, payload.RoomID, client.userID)
	if err != nil {
		log.Printf("WebSocket Hub (SendMessage): Error checking membership: %v", err)
		reject("Failed to send message")
		return
	}
	if !isMember {
		reject("Not a member of this room")
		return
	}

	message, err := h.persist(ctx, client.userID, payload.RoomID, payload.Parts)
	if err != nil {
		log.Printf("WebSocket Hub (SendMessage): Error saving message to DB: %v", err)
		metrics.MessagesSent.WithLabelValues(metrics.TransportWebSocket, metrics.OutcomeError).Inc()
		client.SendFrame(protocol.TypeSendResult, protocol.SendResultPayload{
			RequestID: payload.RequestID,
			Success:   false,
			Timestamp: models.NewTimestamp(time.Now()),
			Reason:    "Failed to send message (DB error)",
		})
		return
	}
	metrics.MessagesSent.WithLabelValues(metrics.TransportWebSocket, metrics.OutcomeOK).Inc()

	client.SendFrame(protocol.TypeSendResult, protocol.SendResultPayload{
		RequestID: payload.RequestID,
		Success:   true,
		MessageID: &message.ID,
		Timestamp: models.NewTimestamp(message.CreatedAt),
	})

	h.broadcastToRoom(message)
}

// persist fills in the sender of a new message and stores it.
func (h *Hub) persist(ctx context.Context, senderID, roomID uuid.UUID, parts []models.Part) (*models.Message, error) {
	message := &models.Message{
		ID:        uuid.New(),
		RoomID:    roomID,
		SenderID:  senderID,
		Parts:     parts,
		CreatedAt: time.Now().UTC(),
	}
	// The sender is attached before the write so cached copies carry it.
	sender, err := h.userStore.GetUserByID(ctx, senderID)
	if err == nil && sender != nil {
		message.Sender = *sender.ToPublicUser()
	} else {
		log.Printf("WebSocket Hub: Could not fetch sender details for user %s: %v", senderID, err)
		message.Sender = models.PublicUser{ID: senderID}
	}

	if err := h.messageStore.CreateMessage(ctx, message); err != nil {
		return nil, err
	}
	return message, nil
}

func (h *Hub) broadcastToRoom(message *models.Message) {
	subscribers := h.rooms[message.RoomID]
	for client := range subscribers {
		client.SendFrame(protocol.TypeNewMessage, message)
	}
	metrics.MessagesDelivered.Add(float64(len(subscribers)))
	log.Printf("Hub: Broadcast message %s to %d subscribers of room %s", message.ID, len(subscribers), message.RoomID)
}
