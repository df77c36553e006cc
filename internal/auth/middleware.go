package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ClaimsKey holds the verified *Claims in the gin context.
const ClaimsKey = "auth_claims"

// GinAuth rejects requests without valid credentials. It accepts, in order,
// a bearer token, HTTP basic auth carrying the password, and an
// access_token query parameter for websocket clients that cannot set
// headers. A nil service lets everything through.
func (s *Service) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s == nil {
			c.Next()
			return
		}
		claims, err := s.authenticate(c.Request)
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer realm="lokcaldev"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

func (s *Service) authenticate(r *http.Request) (*Claims, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "bearer") {
			return s.Verify(strings.TrimSpace(tok))
		}
	}
	if _, password, ok := r.BasicAuth(); ok {
		if err := s.CheckPassword(password); err != nil {
			return nil, err
		}
		return &Claims{}, nil
	}
	if tok := r.URL.Query().Get("access_token"); tok != "" {
		return s.Verify(tok)
	}
	return nil, ErrInvalidCredentials
}
