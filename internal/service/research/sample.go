package research

import (
	"fmt"
	"time"

	"stockwatch/internal/domain/market"
)

func sampleNews(query string) *market.NewsResponse {
	now := time.Now().UTC().Truncate(time.Hour)
	return &market.NewsResponse{
		Sample: true,
		Articles: []market.Article{
			{
				Title:       "Markets steady ahead of central bank decision",
				Description: fmt.Sprintf("Sample headline for %q. Set NEWS_API_KEY for live news.", query),
				URL:         "https://example.com/news/markets-steady",
				Source:      "Stockwatch Sample",
				PublishedAt: now,
			},
			{
				Title:       "Tech shares lead early gains",
				Description: "Large caps rose in early trading as chipmakers rallied.",
				URL:         "https://example.com/news/tech-gains",
				Source:      "Stockwatch Sample",
				PublishedAt: now.Add(-2 * time.Hour),
			},
			{
				Title:       "Energy stocks slip as crude falls",
				Description: "Oil producers trailed the broader market.",
				URL:         "https://example.com/news/energy-slip",
				Source:      "Stockwatch Sample",
				PublishedAt: now.Add(-5 * time.Hour),
			},
		},
	}
}

func sampleOverview(symbol string) *market.Overview {
	return &market.Overview{
		Symbol:      symbol,
		Name:        symbol + " Inc.",
		Description: "Sample company overview. Set ALPHA_VANTAGE_API_KEY for live fundamentals.",
		Exchange:    "NASDAQ",
		Sector:      "Technology",
		Industry:    "Software",
		MarketCap:   1.5e12,
		PERatio:     28.4,
		EPS:         6.1,
		Week52High:  250,
		Week52Low:   160,
		Sample:      true,
	}
}

func sampleChat(messages []market.ChatMessage) *market.ChatResponse {
	question := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			question = messages[i].Content
			break
		}
	}
	return &market.ChatResponse{
		Sample: true,
		Message: market.ChatMessage{
			Role: "assistant",
			Content: fmt.Sprintf("Research chat is running in sample mode. Set AI_CHAT_API_KEY to get live answers. You asked: %q",
				question),
		},
	}
}
