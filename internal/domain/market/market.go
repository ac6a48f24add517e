// internal/domain/market/market.go
package market

import (
	"regexp"
	"slices"
	"strings"

	xerrors "stockwatch/internal/pkg/errors"
)

var symbolPattern = regexp.MustCompile(`^[a-zA-Z0-9.\-^]{1,20}$`)

var (
	Periods   = []string{"1d", "5d", "1mo", "3mo", "6mo", "1y", "2y", "5y", "10y", "ytd", "max"}
	Intervals = []string{"1m", "2m", "5m", "15m", "30m", "60m", "90m", "1h", "1d", "5d", "1wk", "1mo", "3mo"}
)

// Index symbols shown on the market overview.
var Indices = []Index{
	{Symbol: "^GSPC", Name: "S&P 500"},
	{Symbol: "^DJI", Name: "Dow Jones"},
	{Symbol: "^IXIC", Name: "NASDAQ"},
	{Symbol: "^RUT", Name: "Russell 2000"},
	{Symbol: "^VIX", Name: "VIX"},
}

// MoversUniverse is the fixed set of large caps ranked for top movers.
var MoversUniverse = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "BRK-B", "JPM", "V",
	"JNJ", "WMT", "PG", "MA", "UNH", "HD", "DIS", "BAC", "XOM", "NFLX",
	"ADBE", "CRM", "PFE", "KO", "PEP", "INTC", "CSCO", "AMD", "ORCL", "NKE",
}

func ValidateSymbol(symbol string) error {
	if !symbolPattern.MatchString(symbol) {
		return xerrors.Wrap(xerrors.ErrInvalidSymbol, "symbol must be 1-20 characters of letters, digits, '.', '-' or '^'")
	}
	return nil
}

func ValidatePeriod(period string) error {
	if !slices.Contains(Periods, period) {
		return xerrors.Wrap(xerrors.ErrInvalidPeriod, "period must be one of "+strings.Join(Periods, ", "))
	}
	return nil
}

func ValidateInterval(interval string) error {
	if !slices.Contains(Intervals, interval) {
		return xerrors.Wrap(xerrors.ErrInvalidInterval, "interval must be one of "+strings.Join(Intervals, ", "))
	}
	return nil
}
