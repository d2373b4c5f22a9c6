package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"collab-service/internal/repositories"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated user behind a connection.
type Identity struct {
	UserID   string
	Username string
}

// TokenVerifier resolves a connection credential to an Identity.
type TokenVerifier interface {
	VerifyConnectionToken(ctx context.Context, token string) (Identity, error)
}

// Claims carries the user reference. Older tokens put it in "id" instead of "userId".
type Claims struct {
	UserID   string `json:"userId,omitempty"`
	ID       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) subject() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.ID
}

// JWTVerifier validates HS256 tokens and loads the user they reference.
type JWTVerifier struct {
	secret []byte
	users  repositories.UserRepository
}

// NewJWTVerifier constructs a JWTVerifier.
func NewJWTVerifier(secret string, users repositories.UserRepository) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), users: users}
}

// VerifyConnectionToken checks signature and expiry, then requires the user to exist.
func (v *JWTVerifier) VerifyConnectionToken(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID := claims.subject()
	if userID == "" {
		return Identity{}, fmt.Errorf("%w: missing user reference", ErrInvalidToken)
	}

	user, err := v.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return Identity{}, fmt.Errorf("%w: user not found", ErrInvalidToken)
		}
		return Identity{}, fmt.Errorf("load user: %w", err)
	}

	return Identity{UserID: user.ID, Username: user.Username}, nil
}

// GenerateToken signs an HS256 token for userID valid for ttl.
func GenerateToken(secret, userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "collab-service",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
