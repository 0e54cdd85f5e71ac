package chat

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"roomchat/internal/metrics"
	"roomchat/internal/middleware"
	"roomchat/internal/models"
	"roomchat/internal/protocol"
	"roomchat/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Broadcaster delivers a persisted message to live room subscribers.
type Broadcaster interface {
	BroadcastMessage(message *models.Message)
}

// RestHandler handles REST API requests for rooms and their messages.
type RestHandler struct {
	roomStore    store.RoomStore
	messageStore store.MessageStore
	userStore    store.UserStore
	broadcaster  Broadcaster
	historyLimit int
}

// NewRestHandler creates a RestHandler. historyLimit is the number of
// messages returned by GetMessages when the request does not set one.
func NewRestHandler(rs store.RoomStore, ms store.MessageStore, us store.UserStore, b Broadcaster, historyLimit int) *RestHandler {
	if historyLimit <= 0 || historyLimit > protocol.MaxMessageLimit {
		historyLimit = protocol.DefaultMessageLimit
	}
	return &RestHandler{
		roomStore:    rs,
		messageStore: ms,
		userStore:    us,
		broadcaster:  b,
		historyLimit: historyLimit,
	}
}

// GetRooms lists the rooms the authenticated user belongs to.
// GET /rooms
func (h *RestHandler) GetRooms(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user session"})
		return
	}

	rooms, err := h.roomStore.GetUserRooms(c.Request.Context(), userID)
	if err != nil {
		log.Printf("GetRooms: Failed to get rooms for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve rooms"})
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// CreateRoom creates a room with the authenticated user as its first member.
// POST /rooms
func (h *RestHandler) CreateRoom(c *gin.Context) {
	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user session"})
		return
	}

	room, err := h.roomStore.CreateRoom(c.Request.Context(), req.Name, userID)
	if err != nil {
		if errors.Is(err, store.ErrRoomExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Room already exists"})
			return
		}
		log.Printf("CreateRoom: Failed to create room %q: %v", req.Name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}
	c.JSON(http.StatusCreated, room)
}

// JoinRoom adds the authenticated user to a room.
// POST /rooms/:id/join
func (h *RestHandler) JoinRoom(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user session"})
		return
	}

	ctx := c.Request.Context()
	room, err := h.roomStore.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		log.Printf("JoinRoom: Failed to get room %s: %v", roomID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join room"})
		return
	}

	if err := h.roomStore.AddUserToRoom(ctx, roomID, userID); err != nil {
		log.Printf("JoinRoom: Failed to add user %s to room %s: %v", userID, roomID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join room"})
		return
	}
	c.JSON(http.StatusOK, room)
}

// GetMessages returns the newest messages of a room, oldest first.
// GET /rooms/:id/messages?limit=<int>
func (h *RestHandler) GetMessages(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	if !h.requireMember(c, roomID) {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(h.historyLimit)))
	if err != nil || limit <= 0 || limit > protocol.MaxMessageLimit {
		limit = h.historyLimit
	}

	messages, err := h.messageStore.GetRecentMessages(c.Request.Context(), roomID, limit)
	if err != nil {
		log.Printf("GetMessages: Failed to get messages for room %s: %v", roomID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve messages"})
		return
	}
	if messages == nil {
		messages = make([]*models.Message, 0)
	}
	c.JSON(http.StatusOK, messages)
}

// PostMessage stores a message and delivers it to the room's subscribers.
// POST /rooms/:id/messages
func (h *RestHandler) PostMessage(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	var req models.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.MessagesSent.WithLabelValues(metrics.TransportREST, metrics.OutcomeRejected).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}
	if err := models.ValidateParts(req.Parts); err != nil {
		metrics.MessagesSent.WithLabelValues(metrics.TransportREST, metrics.OutcomeRejected).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.requireMember(c, roomID) {
		metrics.MessagesSent.WithLabelValues(metrics.TransportREST, metrics.OutcomeRejected).Inc()
		return
	}
	senderID, _ := middleware.UserID(c)

	ctx := c.Request.Context()
	message := &models.Message{
		ID:        uuid.New(),
		RoomID:    roomID,
		SenderID:  senderID,
		Parts:     req.Parts,
		CreatedAt: time.Now().UTC(),
	}
	sender, err := h.userStore.GetUserByID(ctx, senderID)
	if err == nil && sender != nil {
		message.Sender = *sender.ToPublicUser()
	} else {
		log.Printf("PostMessage: Could not fetch sender details for user %s: %v", senderID, err)
		message.Sender = models.PublicUser{ID: senderID}
	}

	if err := h.messageStore.CreateMessage(ctx, message); err != nil {
		log.Printf("PostMessage: Failed to store message for room %s: %v", roomID, err)
		metrics.MessagesSent.WithLabelValues(metrics.TransportREST, metrics.OutcomeError).Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}
	metrics.MessagesSent.WithLabelValues(metrics.TransportREST, metrics.OutcomeOK).Inc()

	if h.broadcaster != nil {
		h.broadcaster.BroadcastMessage(message)
	}
	c.JSON(http.StatusCreated, message)
}

// GetUser returns the public profile of a message sender.
// GET /users/:id
func (h *RestHandler) GetUser(c *gin.Context) {
	userID, ok := idParam(c, "user")
	if !ok {
		return
	}

	user, err := h.userStore.GetUserByID(c.Request.Context(), userID)
	if errors.Is(err, store.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		log.Printf("GetUser: Failed to get user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user information"})
		return
	}
	c.JSON(http.StatusOK, user.ToPublicUser())
}

func roomIDParam(c *gin.Context) (uuid.UUID, bool) {
	return idParam(c, "room")
}

// idParam parses the :id path parameter, answering 400 if it is not a UUID.
func idParam(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + what + " ID format"})
		return uuid.Nil, false
	}
	return id, true
}

// requireMember writes an error response and returns false unless the
// authenticated user belongs to roomID.
func (h *RestHandler) requireMember(c *gin.Context, roomID uuid.UUID) bool {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user session"})
		return false
	}
	isMember, err := h.roomStore.IsRoomMember(c.Request.Context(), roomID, userID)
	if err != nil {
		log.Printf("Chat: Failed to check membership of %s in room %s: %v", userID, roomID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check room membership"})
		return false
	}
	if !isMember {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this room"})
		return false
	}
	return true
}
