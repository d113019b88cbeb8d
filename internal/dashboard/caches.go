package dashboard

import "trading-dashboard/internal/model"

// CacheStats reports the bar and symbol caches.
func (s *Service) CacheStats() map[string]model.CacheStats {
	bh, bm := s.bars.Stats()
	sh, sm := s.symbols.Stats()
	return map[string]model.CacheStats{
		"bars":    {Entries: s.bars.Len(), Live: len(s.bars.Keys()), Hits: bh, Misses: bm},
		"symbols": {Entries: s.symbols.Len(), Live: len(s.symbols.Keys()), Hits: sh, Misses: sm},
	}
}

// PurgeCaches drops expired entries and returns how many were removed.
func (s *Service) PurgeCaches() int {
	n := s.bars.Purge() + s.symbols.Purge()
	if n > 0 {
		s.log.Debug("purged expired cache entries", "count", n)
	}
	return n
}

// ClearCaches drops every cached entry, so the next refresh and symbol
// search go to the feed. Computed indicators are kept.
func (s *Service) ClearCaches() int {
	n := s.bars.Clear() + s.symbols.Clear()
	s.log.Info("cleared caches", "count", n)
	return n
}
