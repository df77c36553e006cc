package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/loykin/lokcaldev/internal/config"
)

const secret = "0123456789abcdef0123"

func newService(t *testing.T, password string) *Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	s, err := New(config.AuthConfig{Enabled: true, PasswordHash: string(hash), JWTSecret: secret, TokenTTL: time.Hour})
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func TestNewDisabled(t *testing.T) {
	s, err := New(config.AuthConfig{})
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.False(t, s.Enabled())
	assert.NoError(t, s.CheckPassword("anything"))
	_, err = s.Login("x")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestNewRejectsBadHash(t *testing.T) {
	_, err := New(config.AuthConfig{Enabled: true, PasswordHash: "plain", JWTSecret: secret})
	assert.ErrorContains(t, err, "password_hash")
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("s3cret")))
	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestLoginAndVerify(t *testing.T) {
	s := newService(t, "s3cret")

	_, err := s.Login("wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	tok, err := s.Login("s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.Type)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, 5*time.Second)

	claims, err := s.Verify(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, subject, claims.Subject)
	assert.NotEmpty(t, claims.ID)

	_, err = s.Verify(tok.Value + "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	other := newService(t, "s3cret")
	other.secret = []byte("another-secret-of-length")
	_, err = other.Verify(tok.Value)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyExpired(t *testing.T) {
	s := newService(t, "pw")
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := s.Login("pw")
	require.NoError(t, err)
	s.now = time.Now
	_, err = s.Verify(tok.Value)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGinAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newService(t, "pw")
	tok, err := s.Login("pw")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/x", s.GinAuth(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := []struct {
		name string
		req  func(*http.Request)
		want int
	}{
		{"none", func(*http.Request) {}, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok.Value) }, http.StatusNoContent},
		{"bad bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"basic", func(r *http.Request) { r.SetBasicAuth("any", "pw") }, http.StatusNoContent},
		{"bad basic", func(r *http.Request) { r.SetBasicAuth("any", "nope") }, http.StatusUnauthorized},
		{"query", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("access_token", tok.Value)
			r.URL.RawQuery = q.Encode()
		}, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			tc.req(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}

	var open *Service
	r2 := gin.New()
	r2.GET("/x", open.GinAuth(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	w := httptest.NewRecorder()
	r2.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
