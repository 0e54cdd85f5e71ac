// Package server assembles the HTTP and WebSocket routes of the chat backend.
package server

import (
	"net/http"

	"roomchat/internal/auth"
	"roomchat/internal/chat"
	"roomchat/internal/metrics"
	"roomchat/internal/middleware"
	"roomchat/internal/store"
	"roomchat/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the routes are built from.
type Deps struct {
	Users        store.UserStore
	Rooms        store.RoomStore
	Messages     store.MessageStore
	Hub          *websocket.Hub
	DefaultRoom  string
	CORSOrigins  []string
	HistoryLimit int
}

// NewRouter builds the gin engine serving the REST API, the WebSocket
// endpoint, health checks and metrics.
func NewRouter(d Deps) *gin.Engine {
	authHandler := auth.NewAuthHandler(d.Users, d.Rooms, d.DefaultRoom)
	// A nil *Hub must not become a non-nil Broadcaster.
	var broadcaster chat.Broadcaster
	if d.Hub != nil {
		broadcaster = d.Hub
	}
	chatRestHandler := chat.NewRestHandler(d.Rooms, d.Messages, d.Users, broadcaster, d.HistoryLimit)
	wsHandler := websocket.NewWSHandler(d.Hub, d.CORSOrigins)

	r := gin.New()
	r.RedirectTrailingSlash = false
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = d.CORSOrigins
	if len(d.CORSOrigins) == 1 && d.CORSOrigins[0] == "*" {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "Upgrade", "Connection"}
	if len(corsConfig.AllowOrigins) > 0 || corsConfig.AllowAllOrigins {
		r.Use(cors.New(corsConfig))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
	r.GET("/metrics", metrics.Handler())
	r.GET("/ws", wsHandler.HandleWebSocketConnection)

	apiV1 := r.Group("/api/v1")
	{
		publicAuthRoutes := apiV1.Group("/auth")
		{
			publicAuthRoutes.POST("/register", authHandler.Register)
			publicAuthRoutes.POST("/login", authHandler.Login)
		}

		protected := apiV1.Group("/")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.GET("/auth/me", authHandler.GetMe)
			protected.GET("/users/:id", chatRestHandler.GetUser)
			protected.GET("/rooms", chatRestHandler.GetRooms)
			protected.POST("/rooms", chatRestHandler.CreateRoom)
			protected.POST("/rooms/:id/join", chatRestHandler.JoinRoom)
			protected.GET("/rooms/:id/messages", chatRestHandler.GetMessages)
			protected.POST("/rooms/:id/messages", chatRestHandler.PostMessage)
		}
	}

	return r
}
