package research

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	service "stockwatch/internal/service/research"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewResearchHandler(service.NewResearchService(service.Config{}, nil, zap.NewNop()), zap.NewNop())

	r := gin.New()
	r.GET("/api/news", h.News)
	r.GET("/api/overview/:symbol", h.Overview)
	r.POST("/api/chat", h.Chat)
	return r
}

func TestSampleResponses(t *testing.T) {
	r := newRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/news?q=chips", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sample":true`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/overview/aapl", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"symbol":"AAPL"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/overview/a;b", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatValidation(t *testing.T) {
	r := newRouter()

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := post(`{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"assistant"`)

	assert.Equal(t, http.StatusBadRequest, post(`{"messages":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"messages":[{"role":"robot","content":"hi"}]}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`not json`).Code)
}
