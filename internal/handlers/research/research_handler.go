// internal/handlers/research/research_handler.go
package research

import (
	"context"
	"net/http"

	"stockwatch/internal/domain/market"
	"stockwatch/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ResearchService interface {
	News(ctx context.Context, query string) (*market.NewsResponse, error)
	Overview(ctx context.Context, symbol string) (*market.Overview, error)
	Chat(ctx context.Context, req *market.ChatRequest) (*market.ChatResponse, error)
}

type ResearchHandler struct {
	research ResearchService
	logger   *zap.Logger
}

func NewResearchHandler(research ResearchService, logger *zap.Logger) *ResearchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchHandler{research: research, logger: logger}
}

// News handles GET /api/news?q=
func (h *ResearchHandler) News(c *gin.Context) {
	news, err := h.research.News(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.logger.Warn("news lookup failed", zap.String("query", c.Query("q")), zap.Error(err))
		response.FromError(c, "failed to get news", err)
		return
	}
	response.JSONWithETag(c, news)
}

// Overview handles GET /api/overview/:symbol
func (h *ResearchHandler) Overview(c *gin.Context) {
	overview, err := h.research.Overview(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		h.logger.Warn("overview lookup failed", zap.String("symbol", c.Param("symbol")), zap.Error(err))
		response.FromError(c, "failed to get company overview", err)
		return
	}
	response.JSONWithETag(c, overview)
}

// Chat handles POST /api/chat
func (h *ResearchHandler) Chat(c *gin.Context) {
	var req market.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err)
		return
	}

	resp, err := h.research.Chat(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("chat failed", zap.Error(err))
		response.FromError(c, "chat failed", err)
		return
	}
	response.JSON(c, http.StatusOK, resp)
}
