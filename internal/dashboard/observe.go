package dashboard

import (
	"context"
	"time"

	"trading-dashboard/internal/notification"
)

func (s *Service) observeRefresh(result string) {
	if s.metrics != nil {
		s.metrics.RefreshTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) observeCache(name string, hit bool) {
	if s.metrics == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	s.metrics.CacheLookups.WithLabelValues(name, result).Inc()
}

func (s *Service) observeWrite(start time.Time) {
	if s.metrics == nil {
		return
	}
	backend := "unknown"
	if s.health != nil {
		backend = s.health.StoreBackend
	}
	s.metrics.StoreWriteDur.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}

func (s *Service) observeRules() {
	if s.metrics != nil {
		s.metrics.AlertRules.Set(float64(len(s.book.Rules())))
	}
}

// BrowserNotifier delivers alerts to connected dashboard clients.
func BrowserNotifier(p Pusher) notification.Notifier {
	return notification.NotifierFunc(func(ctx context.Context, a notification.Alert) error {
		p.PushAlert(a.Entry)
		return nil
	})
}
