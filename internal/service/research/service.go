// internal/service/research/service.go
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stockwatch/internal/domain/market"
	xerrors "stockwatch/internal/pkg/errors"

	"go.uber.org/zap"
)

const (
	defaultNewsURL         = "https://newsapi.org/v2/everything"
	defaultAlphaVantageURL = "https://www.alphavantage.co/query"
	defaultNewsQuery       = "stock market"
	defaultCacheTTL        = 15 * time.Minute
	maxNewsArticles        = 20
)

type Config struct {
	NewsAPIKey      string
	NewsURL         string
	AlphaVantageKey string
	AlphaVantageURL string
	ChatKey         string
	ChatURL         string
	ChatModel       string
	CacheTTL        time.Duration
}

// ResearchService fronts the news, fundamentals and chat APIs. Each feature
// answers with sample data flagged Sample when its key is not configured.
type ResearchService struct {
	cfg        Config
	httpClient *http.Client
	cache      Cache
	logger     *zap.Logger
}

func NewResearchService(cfg Config, cache Cache, logger *zap.Logger) *ResearchService {
	if cfg.NewsURL == "" {
		cfg.NewsURL = defaultNewsURL
	}
	if cfg.AlphaVantageURL == "" {
		cfg.AlphaVantageURL = defaultAlphaVantageURL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cache == nil {
		cache = noCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
		logger:     logger.With(zap.String("component", "research")),
	}
}

// ========== News ==========

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		URL         string    `json:"url"`
		URLToImage  string    `json:"urlToImage"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

func (s *ResearchService) News(ctx context.Context, query string) (*market.NewsResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		query = defaultNewsQuery
	}
	if s.cfg.NewsAPIKey == "" {
		return sampleNews(query), nil
	}

	cacheKey := "news:" + strings.ToLower(query)
	var cached market.NewsResponse
	if s.cachedJSON(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("sortBy", "publishedAt")
	params.Set("language", "en")
	params.Set("pageSize", strconv.Itoa(maxNewsArticles))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.NewsURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", s.cfg.NewsAPIKey)

	var body newsAPIResponse
	if err := s.do(req, &body); err != nil {
		return nil, err
	}
	if body.Status != "" && body.Status != "ok" {
		return nil, fmt.Errorf("%w: news: %s", xerrors.ErrProviderFailed, body.Message)
	}

	resp := &market.NewsResponse{Articles: make([]market.Article, 0, len(body.Articles))}
	for _, a := range body.Articles {
		if a.Title == "" || a.URL == "" {
			continue
		}
		resp.Articles = append(resp.Articles, market.Article{
			Title:       a.Title,
			Description: a.Description,
			URL:         a.URL,
			Source:      a.Source.Name,
			PublishedAt: a.PublishedAt,
			ImageURL:    a.URLToImage,
		})
	}

	s.storeJSON(ctx, cacheKey, resp)
	return resp, nil
}

// ========== Company overview ==========

// Alpha Vantage returns every field as a string, "None" when unknown.
type alphaVantageOverview struct {
	Symbol        string `json:"Symbol"`
	Name          string `json:"Name"`
	Description   string `json:"Description"`
	Exchange      string `json:"Exchange"`
	Sector        string `json:"Sector"`
	Industry      string `json:"Industry"`
	MarketCap     string `json:"MarketCapitalization"`
	PERatio       string `json:"PERatio"`
	EPS           string `json:"EPS"`
	DividendYield string `json:"DividendYield"`
	Week52High    string `json:"52WeekHigh"`
	Week52Low     string `json:"52WeekLow"`
	Note          string `json:"Note"`
	Information   string `json:"Information"`
}

func (s *ResearchService) Overview(ctx context.Context, symbol string) (*market.Overview, error) {
	if err := market.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)
	if s.cfg.AlphaVantageKey == "" {
		return sampleOverview(symbol), nil
	}

	cacheKey := "overview:" + symbol
	var cached market.Overview
	if s.cachedJSON(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	params := url.Values{}
	params.Set("function", "OVERVIEW")
	params.Set("symbol", symbol)
	params.Set("apikey", s.cfg.AlphaVantageKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.AlphaVantageURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var body alphaVantageOverview
	if err := s.do(req, &body); err != nil {
		return nil, err
	}
	if msg := body.Note + body.Information; msg != "" {
		return nil, fmt.Errorf("%w: overview: %s", xerrors.ErrProviderFailed, msg)
	}
	if body.Symbol == "" {
		return nil, xerrors.Wrap(xerrors.ErrNotFound, "no overview for "+symbol)
	}

	o := &market.Overview{
		Symbol:        body.Symbol,
		Name:          body.Name,
		Description:   body.Description,
		Exchange:      body.Exchange,
		Sector:        body.Sector,
		Industry:      body.Industry,
		MarketCap:     parseFloat(body.MarketCap),
		PERatio:       parseFloat(body.PERatio),
		EPS:           parseFloat(body.EPS),
		DividendYield: parseFloat(body.DividendYield),
		Week52High:    parseFloat(body.Week52High),
		Week52Low:     parseFloat(body.Week52Low),
	}
	s.storeJSON(ctx, cacheKey, o)
	return o, nil
}

// ========== Chat ==========

type chatCompletionRequest struct {
	Model    string               `json:"model"`
	Messages []market.ChatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message market.ChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat forwards the conversation to an OpenAI-compatible completion endpoint.
// Replies are never cached.
func (s *ResearchService) Chat(ctx context.Context, req *market.ChatRequest) (*market.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "messages are required")
	}
	if s.cfg.ChatKey == "" {
		return sampleChat(req.Messages), nil
	}

	payload, err := json.Marshal(chatCompletionRequest{Model: s.cfg.ChatModel, Messages: req.Messages})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.ChatURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.ChatKey)

	var body chatCompletionResponse
	if err := s.do(httpReq, &body); err != nil {
		return nil, err
	}
	if body.Error != nil {
		return nil, fmt.Errorf("%w: chat: %s", xerrors.ErrProviderFailed, body.Error.Message)
	}
	if len(body.Choices) == 0 {
		return nil, fmt.Errorf("%w: chat: empty completion", xerrors.ErrProviderFailed)
	}

	msg := body.Choices[0].Message
	if msg.Role == "" {
		msg.Role = "assistant"
	}
	return &market.ChatResponse{Message: msg}, nil
}

// ========== HTTP ==========

func (s *ResearchService) do(req *http.Request, dst any) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("upstream request failed", zap.String("host", req.URL.Host), zap.Error(err))
		return fmt.Errorf("%w: %v", xerrors.ErrProviderFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrProviderFailed, err)
	}
	if resp.StatusCode >= 300 {
		s.logger.Warn("upstream returned error status",
			zap.String("host", req.URL.Host),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: upstream status %d", xerrors.ErrProviderFailed, resp.StatusCode)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: malformed upstream response: %v", xerrors.ErrProviderFailed, err)
	}
	return nil
}

func (s *ResearchService) cachedJSON(ctx context.Context, key string, dst any) bool {
	data, ok := s.cache.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Warn("dropping unreadable cache entry", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *ResearchService) storeJSON(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.cache.Set(ctx, key, data, s.cfg.CacheTTL)
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
