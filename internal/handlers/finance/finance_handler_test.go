package finance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	xerrors "stockwatch/internal/pkg/errors"
	service "stockwatch/internal/service/finance"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type cannedRunner map[string]string

func (r cannedRunner) Run(_ context.Context, args ...string) ([]byte, error) {
	if out, ok := r[strings.Join(args, " ")]; ok {
		return []byte(out), nil
	}
	return nil, fmt.Errorf("%w: exit status 1", xerrors.ErrProviderFailed)
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewFinanceService(cannedRunner{
		"quote AAPL":          `{"symbol":"AAPL","price":212.5,"changePercent":1.1,"timestamp":"2026-03-02T15:00:00Z"}`,
		"history AAPL 5d 15m": `{"symbol":"AAPL","period":"5d","interval":"15m","data":[]}`,
		"history AAPL 1mo 1d": `{"symbol":"AAPL","period":"1mo","interval":"1d","data":[]}`,
	}, 2, zap.NewNop())
	h := NewFinanceHandler(svc, zap.NewNop())

	r := gin.New()
	r.GET("/api/quote/:symbol", h.Quote)
	r.GET("/api/historical/:symbol", h.Historical)
	r.GET("/api/market-indices", h.MarketIndices)
	r.GET("/api/top-movers", h.TopMovers)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestQuoteEndpoint(t *testing.T) {
	r := newRouter()

	w := get(r, "/api/quote/AAPL")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"price":212.5`)
	assert.NotEmpty(t, w.Header().Get("ETag"))

	w = get(r, "/api/quote/"+strings.Repeat("X", 21))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"error":`)
	assert.NotContains(t, w.Body.String(), `"message":`)

	w = get(r, "/api/quote/MSFT")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHistoricalEndpoint(t *testing.T) {
	r := newRouter()

	assert.Equal(t, http.StatusOK, get(r, "/api/historical/AAPL").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/historical/AAPL?period=5d&interval=15m").Code)

	w := get(r, "/api/historical/AAPL?period=forever")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid period")

	w = get(r, "/api/historical/AAPL?interval=2h")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid interval")
}

func TestAggregatesFailWhenProviderIsDown(t *testing.T) {
	r := newRouter()

	assert.Equal(t, http.StatusBadGateway, get(r, "/api/market-indices").Code)

	w := get(r, "/api/top-movers")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"gainers":[{"symbol":"AAPL","price":212.5,"change":0,"changePercent":1.1,"previousClose":0,"open":0,"dayHigh":0,"dayLow":0,"volume":0,"timestamp":"2026-03-02T15:00:00Z"}],"losers":[]}`, w.Body.String())
}
