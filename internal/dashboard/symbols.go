package dashboard

import (
	"context"
	"fmt"
	"sort"

	"trading-dashboard/internal/model"
)

// Symbols searches the tradable symbol list. The list is fetched once per
// cache TTL. Markets without a feed return an empty result.
func (s *Service) Symbols(ctx context.Context, query, market string) ([]model.Symbol, error) {
	if market == "" {
		market = model.MarketCrypto
	}
	if market != model.MarketCrypto {
		return []model.Symbol{}, nil
	}

	all, ok := s.symbols.Get(market)
	s.observeCache("symbols", ok)
	if !ok {
		fetched, err := s.src.FetchSymbols(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch symbols: %w", err)
		}
		sort.Slice(fetched, func(i, j int) bool { return fetched[i].Symbol < fetched[j].Symbol })
		s.symbols.Set(market, fetched)
		all = fetched
	}

	out := make([]model.Symbol, 0, min(len(all), maxSymbolHits))
	for i := range all {
		if all[i].Matches(query) {
			out = append(out, all[i])
			if len(out) == maxSymbolHits {
				break
			}
		}
	}
	return out, nil
}
