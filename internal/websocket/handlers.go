package websocket

import (
	"log"
	"net/http"
	"strings"

	"roomchat/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSHandler handles WebSocket connection requests.
type WSHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewWSHandler creates a WSHandler. Browser connections are accepted only
// from allowedOrigins; "*" accepts any origin. Requests without an Origin
// header (native clients) are always accepted.
func NewWSHandler(hub *Hub, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		log.Printf("WS Handler: Rejected origin %q", origin)
		return false
	}
}

// tokenFromRequest reads the JWT from the token query parameter, falling
// back to a Bearer Authorization header.
func tokenFromRequest(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	fields := strings.Fields(c.GetHeader("Authorization"))
	if len(fields) == 2 && strings.EqualFold(fields[0], "bearer") {
		return fields[1]
	}
	return ""
}

// HandleWebSocketConnection authenticates the request and upgrades it to a
// WebSocket connection managed by the hub (e.g. /ws?token=YOUR_JWT_HERE).
func (h *WSHandler) HandleWebSocketConnection(c *gin.Context) {
	if h.hub == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Live delivery is not available"})
		return
	}

	tokenString := tokenFromRequest(c)
	if tokenString == "" {
		log.Println("WS Handler: Missing token")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing authentication token"})
		return
	}

	userID, err := utils.UserIDFromToken(tokenString)
	if err != nil {
		log.Printf("WS Handler: Invalid token: %v", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written an error response.
		log.Printf("WS Handler: Failed to upgrade connection for user %s: %v", userID, err)
		return
	}

	client := NewClient(h.hub, conn, userID)
	if !h.hub.registerClient(client) {
		log.Printf("WS Handler: Hub stopped, closing connection for user %s", userID)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
	log.Printf("WS Handler: Client read/write pumps started for user %s from %s", userID, conn.RemoteAddr())
}
