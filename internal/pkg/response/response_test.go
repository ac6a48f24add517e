package response

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "stockwatch/internal/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONWithETag(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/q", func(c *gin.Context) { JSONWithETag(c, gin.H{"price": 10}) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/q", nil))
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.JSONEq(t, `{"price":10}`, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/q", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestFromError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		code int
		body string
	}{
		{xerrors.ErrNotFound, http.StatusNotFound, `{"message":"m","error":"resource not found"}`},
		{xerrors.ErrConflict, http.StatusConflict, ""},
		{xerrors.ErrRateLimited, http.StatusTooManyRequests, ""},
		{fmt.Errorf("x: %w", xerrors.ErrInvalidSymbol), http.StatusBadRequest, `{"error":"x: invalid symbol"}`},
		{fmt.Errorf("%w: exit 1", xerrors.ErrProviderFailed), http.StatusBadGateway, ""},
		{xerrors.ErrSessionExpired, http.StatusUnauthorized, ""},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		FromError(c, "m", tc.err)
		assert.Equal(t, tc.code, w.Code, tc.err.Error())
		if tc.body != "" {
			assert.JSONEq(t, tc.body, w.Body.String())
		}
	}
}
