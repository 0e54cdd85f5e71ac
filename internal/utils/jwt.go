package utils

import (
	"errors"
	"fmt"
	"time"

	"roomchat/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "roomchat"

var ErrSecretNotConfigured = errors.New("JWT secret is not configured")

// Claims defines the structure of our JWT claims.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// GenerateJWT issues a token for userID signed with the configured secret.
func GenerateJWT(userID uuid.UUID) (string, error) {
	if config.Cfg == nil || config.Cfg.JWTSecret == "" {
		return "", ErrSecretNotConfigured
	}
	if config.Cfg.TokenMaxAge <= 0 {
		return "", fmt.Errorf("token max age is not configured or invalid")
	}

	now := time.Now()
	claims := &Claims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(config.Cfg.TokenMaxAge)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(config.Cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signedToken, nil
}

// ValidateJWT parses tokenString and returns its claims if the signature,
// issuer and validity window check out.
func ValidateJWT(tokenString string) (*Claims, error) {
	if config.Cfg == nil || config.Cfg.JWTSecret == "" {
		return nil, ErrSecretNotConfigured
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.Cfg.JWTSecret), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse or validate token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is invalid")
	}
	return claims, nil
}

// UserIDFromToken validates tokenString and returns the user it was issued
// for.
func UserIDFromToken(tokenString string) (uuid.UUID, error) {
	claims, err := ValidateJWT(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id in token claims: %w", err)
	}
	return userID, nil
}
