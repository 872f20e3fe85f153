package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	policy := NewOriginPolicy([]string{" http://localhost:5173 ", ""})
	assert.True(t, policy.Allows("http://localhost:5173"))
	assert.False(t, policy.Allows("http://evil.example"))
	assert.False(t, policy.Allows(""))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, policy.CheckOrigin(req), "non-browser clients send no origin")
	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, policy.CheckOrigin(req))

	wildcard := NewOriginPolicy([]string{"*"})
	assert.True(t, wildcard.CheckOrigin(req))
}

func TestCORSWildcardPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(CORS(NewOriginPolicy([]string{"*"})))
	engine.GET("/api/rooms/:roomId", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/rooms/r1", nil)
	req.Header.Set("Origin", "http://anywhere.example")
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, recorder.Header().Get("Vary"))
}
