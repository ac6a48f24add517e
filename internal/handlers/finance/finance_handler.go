// internal/handlers/finance/finance_handler.go
package finance

import (
	"context"

	"stockwatch/internal/domain/market"
	"stockwatch/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FinanceService is the market data use case behind the handler.
type FinanceService interface {
	Quote(ctx context.Context, symbol string) (*market.Quote, error)
	History(ctx context.Context, symbol, period, interval string) (*market.History, error)
	MarketIndices(ctx context.Context) ([]market.IndexQuote, error)
	TopMovers(ctx context.Context) (*market.Movers, error)
}

type FinanceHandler struct {
	finance FinanceService
	logger  *zap.Logger
}

func NewFinanceHandler(finance FinanceService, logger *zap.Logger) *FinanceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FinanceHandler{finance: finance, logger: logger}
}

// Quote handles GET /api/quote/:symbol
func (h *FinanceHandler) Quote(c *gin.Context) {
	q, err := h.finance.Quote(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		h.fail(c, "failed to get quote", err)
		return
	}
	response.JSONWithETag(c, q)
}

// Historical handles GET /api/historical/:symbol?period=&interval=
func (h *FinanceHandler) Historical(c *gin.Context) {
	period := c.DefaultQuery("period", "1mo")
	interval := c.DefaultQuery("interval", "1d")

	hist, err := h.finance.History(c.Request.Context(), c.Param("symbol"), period, interval)
	if err != nil {
		h.fail(c, "failed to get historical data", err)
		return
	}
	response.JSONWithETag(c, hist)
}

func (h *FinanceHandler) MarketIndices(c *gin.Context) {
	indices, err := h.finance.MarketIndices(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to get market indices", err)
		return
	}
	response.JSONWithETag(c, indices)
}

func (h *FinanceHandler) TopMovers(c *gin.Context) {
	movers, err := h.finance.TopMovers(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to get top movers", err)
		return
	}
	response.JSONWithETag(c, movers)
}

func (h *FinanceHandler) fail(c *gin.Context, message string, err error) {
	h.logger.Warn(message,
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	response.FromError(c, message, err)
}
