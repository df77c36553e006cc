package auth

import (
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials covers a wrong password and any unusable token.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDisabled is returned by Login when the API is not protected.
	ErrDisabled = errors.New("authentication disabled")
)

// Token is a bearer token issued at login.
type Token struct {
	Type      string    `json:"type"`  // "Bearer"
	Value     string    `json:"value"` // JWT string
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Password string `json:"password"`
}
