package gateway

import (
	"context"
	"log"

	"trading-dashboard/internal/model"
)

// RelayTriggers pushes entries arriving from another process (e.g. a Redis
// Pub/Sub subscription) to local clients. Entries this hub already pushed
// are dropped. Blocks until ctx is cancelled or in is closed.
func (h *Hub) RelayTriggers(ctx context.Context, in <-chan model.AlertHistoryEntry) {
	relayed := 0
	defer func() {
		log.Printf("[gateway] trigger relay stopped after %d entries", relayed)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-in:
			if !ok {
				return
			}
			if h.PushAlert(e) {
				relayed++
			}
		}
	}
}
