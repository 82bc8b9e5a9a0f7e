package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/letter-workflow-api/pkg/config"
)

func newCORSRouter(cfg config.CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(cfg))
	r.GET("/api/v1/letters", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestCORSAllowedOrigin(t *testing.T) {
	r := newCORSRouter(config.CORSConfig{AllowedOrigins: []string{"https://portal.faculty.test/"}, MaxAge: 10 * time.Minute})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/letters", nil)
	req.Header.Set("Origin", "https://Portal.Faculty.test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://Portal.Faculty.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
}

func TestCORSRejectsUnknownOriginPreflight(t *testing.T) {
	r := newCORSRouter(config.CORSConfig{AllowedOrigins: []string{"https://portal.faculty.test"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/letters", nil)
	req.Header.Set("Origin", "https://evil.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightAllowAll(t *testing.T) {
	r := newCORSRouter(config.CORSConfig{MaxAge: 10 * time.Minute})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/letters", nil)
	req.Header.Set("Origin", "https://any.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://any.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
}

func TestCORSNoOriginPassesThrough(t *testing.T) {
	r := newCORSRouter(config.CORSConfig{AllowedOrigins: []string{"https://portal.faculty.test"}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/letters", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
