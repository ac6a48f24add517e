// internal/service/finance/service.go
package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"stockwatch/internal/domain/market"
	xerrors "stockwatch/internal/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const moversPerSide = 5

// FinanceService validates requests and composes provider results.
type FinanceService struct {
	runner  Runner
	workers int
	group   singleflight.Group
	logger  *zap.Logger
}

func NewFinanceService(runner Runner, workers int, logger *zap.Logger) *FinanceService {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FinanceService{runner: runner, workers: workers, logger: logger}
}

// Quote returns the latest quote. Concurrent calls for one symbol share a
// single provider run, which outlives any one caller's cancellation.
func (s *FinanceService) Quote(ctx context.Context, symbol string) (*market.Quote, error) {
	if err := market.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)

	runCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan("quote:"+symbol, func() (interface{}, error) {
		var q market.Quote
		if err := s.call(runCtx, &q, "quote", symbol); err != nil {
			return nil, err
		}
		return &q, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		q := *res.Val.(*market.Quote)
		return &q, nil
	}
}

func (s *FinanceService) History(ctx context.Context, symbol, period, interval string) (*market.History, error) {
	if err := market.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	if err := market.ValidatePeriod(period); err != nil {
		return nil, err
	}
	if err := market.ValidateInterval(interval); err != nil {
		return nil, err
	}

	var h market.History
	if err := s.call(ctx, &h, "history", strings.ToUpper(symbol), period, interval); err != nil {
		return nil, err
	}
	if h.Data == nil {
		h.Data = []market.Bar{}
	}
	return &h, nil
}

// MarketIndices quotes the overview indices. Indices that fail are left out;
// the call fails only when none could be loaded.
func (s *FinanceService) MarketIndices(ctx context.Context) ([]market.IndexQuote, error) {
	quotes := s.quoteAll(ctx, indexSymbols())

	out := make([]market.IndexQuote, 0, len(market.Indices))
	for _, idx := range market.Indices {
		q, ok := quotes[idx.Symbol]
		if !ok {
			continue
		}
		out = append(out, market.IndexQuote{
			Index:         idx,
			Price:         q.Price,
			Change:        q.Change,
			ChangePercent: q.ChangePercent,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no index quotes available", xerrors.ErrProviderFailed)
	}
	return out, nil
}

// TopMovers ranks the movers universe by daily change.
func (s *FinanceService) TopMovers(ctx context.Context) (*market.Movers, error) {
	quotes := s.quoteAll(ctx, market.MoversUniverse)
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: no quotes available", xerrors.ErrProviderFailed)
	}

	ranked := make([]market.Quote, 0, len(quotes))
	for _, q := range quotes {
		ranked = append(ranked, *q)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].ChangePercent == ranked[j].ChangePercent {
			return ranked[i].Symbol < ranked[j].Symbol
		}
		return ranked[i].ChangePercent > ranked[j].ChangePercent
	})

	movers := &market.Movers{Gainers: []market.Quote{}, Losers: []market.Quote{}}
	for _, q := range ranked {
		if q.ChangePercent <= 0 || len(movers.Gainers) == moversPerSide {
			break
		}
		movers.Gainers = append(movers.Gainers, q)
	}
	for i := len(ranked) - 1; i >= 0; i-- {
		q := ranked[i]
		if q.ChangePercent >= 0 || len(movers.Losers) == moversPerSide {
			break
		}
		movers.Losers = append(movers.Losers, q)
	}
	return movers, nil
}

func (s *FinanceService) quoteAll(ctx context.Context, symbols []string) map[string]*market.Quote {
	var (
		mu     sync.Mutex
		quotes = make(map[string]*market.Quote, len(symbols))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, symbol := range symbols {
		g.Go(func() error {
			q, err := s.Quote(gctx, symbol)
			if err != nil {
				s.logger.Warn("quote skipped", zap.String("symbol", symbol), zap.Error(err))
				return nil
			}
			mu.Lock()
			quotes[symbol] = q
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return quotes
}

func (s *FinanceService) call(ctx context.Context, dst any, args ...string) error {
	out, err := s.runner.Run(ctx, args...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(out, dst); err != nil {
		return fmt.Errorf("%w: malformed provider output: %v", xerrors.ErrProviderFailed, err)
	}
	return nil
}

func indexSymbols() []string {
	out := make([]string, len(market.Indices))
	for i, idx := range market.Indices {
		out[i] = idx.Symbol
	}
	return out
}
