// Package auth guards the HTTP API with a single password. A successful
// login exchanges the password for a short-lived HS256 JWT.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/loykin/lokcaldev/internal/config"
)

const (
	issuer  = "lokcaldev"
	subject = "operator"
)

// Claims are the JWT claims of an issued token.
type Claims struct {
	jwt.RegisteredClaims
}

// Service checks passwords against a bcrypt hash and issues tokens.
// A nil *Service allows every request.
type Service struct {
	hash   []byte
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New returns nil when auth is disabled in cfg.
func New(cfg config.AuthConfig) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
		return nil, fmt.Errorf("server.auth.password_hash: %w", err)
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = config.DefaultTokenTTL
	}
	return &Service{
		hash:   []byte(cfg.PasswordHash),
		secret: []byte(cfg.JWTSecret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// HashPassword returns the bcrypt hash to put in server.auth.password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Enabled reports whether requests must authenticate.
func (s *Service) Enabled() bool { return s != nil }

// CheckPassword compares password with the configured hash.
func (s *Service) CheckPassword(password string) error {
	if s == nil {
		return nil
	}
	if password == "" || bcrypt.CompareHashAndPassword(s.hash, []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Login exchanges the password for a token.
func (s *Service) Login(password string) (*Token, error) {
	if s == nil {
		return nil, ErrDisabled
	}
	if err := s.CheckPassword(password); err != nil {
		return nil, err
	}
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{Type: "Bearer", Value: signed, ExpiresAt: expiresAt}, nil
}

// Verify validates a token issued by Login.
func (s *Service) Verify(token string) (*Claims, error) {
	if s == nil {
		return &Claims{}, nil
	}
	if token == "" {
		return nil, ErrInvalidCredentials
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}
