package model

// CacheStats describes one in-process cache.
type CacheStats struct {
	Entries int    `json:"entries"` // stored, including expired ones not yet purged
	Live    int    `json:"live"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}
