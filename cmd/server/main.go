package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"roomchat/internal/cache"
	"roomchat/internal/config"
	"roomchat/internal/server"
	"roomchat/internal/store"
	"roomchat/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	config.LoadConfig(".env")
	if config.Cfg == nil {
		log.Fatal("Error: Configuration not loaded.")
	}

	log.Println("Chat Backend Starting...")
	log.Printf("Server will run on port: %s", config.Cfg.ServerPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		userStore    store.UserStore
		roomStore    store.RoomStore
		messageStore store.MessageStore
	)

	if config.Cfg.DatabaseURL == store.MemoryURL {
		log.Println("Using in-memory store; data will not survive a restart.")
		mem := store.NewMemoryStore()
		userStore, roomStore, messageStore = mem, mem, mem
	} else {
		log.Printf("Database URL Host (for check): %s", config.DBHost(config.Cfg.DatabaseURL))
		dbpool, err := pgxpool.New(ctx, config.Cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Unable to create connection pool: %v\n", err)
		}
		defer dbpool.Close()

		if err := dbpool.Ping(ctx); err != nil {
			log.Fatalf("Unable to connect to database: %v\n", err)
		}
		log.Println("Successfully connected to the database!")

		if err := store.Migrate(ctx, dbpool); err != nil {
			log.Fatalf("Unable to migrate database: %v\n", err)
		}

		userStore = store.NewPostgresUserStore(dbpool)
		roomStore = store.NewPostgresRoomStore(dbpool)
		messageStore = store.NewPostgresMessageStore(dbpool)
	}

	if config.Cfg.RedisAddress != "" {
		redisClient, err := cache.NewRedisClient(ctx, config.Cfg.RedisAddress, config.Cfg.RedisPass)
		if err != nil {
			log.Printf("Warning: %v. Continuing without message cache.", err)
		} else {
			defer redisClient.Close()
			messageStore = cache.NewCachedMessageStore(messageStore, redisClient)
			log.Printf("Recent-message cache enabled at %s", config.Cfg.RedisAddress)
		}
	}

	if config.Cfg.DefaultRoom != "" {
		room, err := roomStore.EnsureRoom(ctx, config.Cfg.DefaultRoom)
		if err != nil {
			log.Fatalf("Unable to create default room %q: %v", config.Cfg.DefaultRoom, err)
		}
		log.Printf("Default room %q ready (%s)", room.Name, room.ID)
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	wsHub := websocket.NewHub(userStore, roomStore, messageStore)
	go wsHub.Run(hubCtx)
	log.Println("WebSocket Hub initialized and running.")

	gin.SetMode(gin.ReleaseMode)
	r := server.NewRouter(server.Deps{
		Users:        userStore,
		Rooms:        roomStore,
		Messages:     messageStore,
		Hub:          wsHub,
		DefaultRoom:  config.Cfg.DefaultRoom,
		CORSOrigins:  config.Cfg.CORSOrigins,
		HistoryLimit: config.Cfg.HistoryLimit,
	})

	srv := &http.Server{
		Addr:    ":" + config.Cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Printf("Listening and serving HTTP on :%s\n", config.Cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	stopHub()

	log.Println("Server exiting")
}
