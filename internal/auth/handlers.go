package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"roomchat/internal/middleware"
	"roomchat/internal/models"
	"roomchat/internal/store"
	"roomchat/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuthHandler handles authentication-related HTTP requests.
type AuthHandler struct {
	userStore   store.UserStore
	roomStore   store.RoomStore
	defaultRoom string
}

// NewAuthHandler creates an AuthHandler. Newly registered users join
// defaultRoom; an empty name disables that.
func NewAuthHandler(userStore store.UserStore, roomStore store.RoomStore, defaultRoom string) *AuthHandler {
	return &AuthHandler{
		userStore:   userStore,
		roomStore:   roomStore,
		defaultRoom: defaultRoom,
	}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req models.CreateUserRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("Register: Bad request data: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at most 72 bytes"})
		return
	}
	if err != nil {
		log.Printf("Register: Failed to hash password for email %s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process registration"})
		return
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:             uuid.New(),
		Username:       req.Username,
		DisplayName:    req.DisplayName,
		AvatarURL:      req.AvatarURL,
		Email:          strings.ToLower(req.Email),
		HashedPassword: hashedPassword,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	ctx := c.Request.Context()
	err = h.userStore.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already exists"})
			return
		}
		if errors.Is(err, store.ErrUsernameExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Username already exists"})
			return
		}
		log.Printf("Register: Failed to create user %s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register user"})
		return
	}

	if h.defaultRoom != "" {
		if err := h.joinDefaultRoom(ctx, user.ID); err != nil {
			// The account exists; the user can still join rooms explicitly.
			log.Printf("Register: Failed to add user %s to default room %q: %v", user.ID, h.defaultRoom, err)
		}
	}

	h.respondWithToken(c, http.StatusCreated, "User registered successfully", user)
}

func (h *AuthHandler) joinDefaultRoom(ctx context.Context, userID uuid.UUID) error {
	room, err := h.roomStore.EnsureRoom(ctx, h.defaultRoom)
	if err != nil {
		return err
	}
	return h.roomStore.AddUserToRoom(ctx, room.ID, userID)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginUserRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("Login: Bad request data: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	user, err := h.userStore.GetUserByEmail(c.Request.Context(), strings.ToLower(req.Email))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		log.Printf("Login: Failed to get user by email %s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}

	if err := utils.VerifyPassword(user.HashedPassword, req.Password); err != nil {
		if !errors.Is(err, utils.ErrPasswordMismatch) {
			log.Printf("Login: Unusable password hash for user %s: %v", user.ID, err)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	h.respondWithToken(c, http.StatusOK, "Login successful", user)
}

// respondWithToken issues a JWT for user and writes it together with the
// user's identity and room list.
func (h *AuthHandler) respondWithToken(c *gin.Context, status int, message string, user *models.User) {
	token, err := utils.GenerateJWT(user.ID)
	if err != nil {
		log.Printf("Auth: Failed to generate JWT for user %s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	rooms, err := h.roomStore.GetUserRooms(c.Request.Context(), user.ID)
	if err != nil {
		log.Printf("Auth: Failed to list rooms of user %s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve rooms"})
		return
	}

	c.JSON(status, models.AuthResponse{
		Message: message,
		Token:   token,
		User:    user.ToPublicUser(),
		Rooms:   rooms,
	})
}

func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		log.Println("GetMe: userID not found in context, middleware issue?")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User ID not found in context"})
		return
	}

	user, err := h.userStore.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			log.Printf("GetMe: User %s (from token) not found in DB", userID)
			c.JSON(http.StatusNotFound, gin.H{"error": "User associated with token not found"})
			return
		}
		log.Printf("GetMe: Failed to get user by ID %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user information"})
		return
	}

	c.JSON(http.StatusOK, user.ToPublicUser())
}
