package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/loykin/lokcaldev/internal/history"
	mng "github.com/loykin/lokcaldev/internal/manager"
	"github.com/loykin/lokcaldev/internal/service"
)

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, sanitizeBase(c.in), c.in)
	}
}

func TestIsSafeName(t *testing.T) {
	for _, s := range []string{"nginx", "php-fpm-8.3", "A1._-"} {
		assert.True(t, isSafeName(s), s)
	}
	for _, s := range []string{"", "..", "php-fpm-..", "a/b", `a\b`, "hello*", "unicode한글"} {
		assert.False(t, isSafeName(s), s)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		service.Errorf(service.OpGet, "x", service.ErrNotFound, "x"):                  http.StatusNotFound,
		service.Errorf(service.OpStart, "x", service.ErrNotInstalled, "x"):            http.StatusConflict,
		service.Errorf(service.OpTail, "", service.ErrInvalidArgument, "x"):           http.StatusBadRequest,
		service.Errorf(service.OpStart, "x", service.ErrProcessSpawnFailed, "x"):      http.StatusInternalServerError,
		service.Errorf(service.OpStart, "x", service.ErrPrivilegeElevationFailed, ""): http.StatusInternalServerError,
		history.ErrNoQuerier: http.StatusNotImplemented,
		mng.ErrShutdown:      http.StatusServiceUnavailable,
		errors.New("boom"):   http.StatusInternalServerError,
	}
	for err, code := range cases {
		assert.Equal(t, code, statusFor(err), err.Error())
	}
}

func TestWriteJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { writeJSON(c, 201, map[string]any{"a": 1}) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	assert.Equal(t, 201, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
