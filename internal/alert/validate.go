package alert

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"trading-dashboard/internal/model"
)

var (
	// ErrNotFound is returned when a rule or history entry ID is unknown.
	ErrNotFound = errors.New("alert: not found")
	// ErrInvalidRule wraps every validation failure.
	ErrInvalidRule = errors.New("alert: invalid rule")
)

// DefaultNotificationMethods is used when a rule names none.
var DefaultNotificationMethods = []string{"browser"}

// Validate checks that a rule is well-formed enough to be evaluated.
func Validate(r model.AlertRule) error {
	if strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidRule)
	}
	if strings.TrimSpace(r.Market) == "" {
		return fmt.Errorf("%w: market is required", ErrInvalidRule)
	}
	switch r.Type {
	case model.AlertPrice, model.AlertVolume, model.AlertPortfolio:
	case model.AlertIndicator:
		if r.Indicator == "" {
			return fmt.Errorf("%w: indicator name is required for indicator alerts", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRule, r.Type)
	}
	switch r.Condition {
	case model.CondAbove, model.CondBelow, model.CondEquals, model.CondCrossesUp, model.CondCrossesDown:
	default:
		return fmt.Errorf("%w: unknown condition %q", ErrInvalidRule, r.Condition)
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("%w: value must be a finite number", ErrInvalidRule)
	}
	return nil
}

// normalize upper-cases the symbol, lower-cases market and methods and drops
// duplicate methods.
func normalize(r model.AlertRule) model.AlertRule {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	r.Market = strings.ToLower(strings.TrimSpace(r.Market))
	r.Indicator = strings.TrimSpace(r.Indicator)

	seen := make(map[string]bool, len(r.NotificationMethods))
	methods := make([]string, 0, len(r.NotificationMethods))
	for _, m := range r.NotificationMethods {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		methods = append(methods, m)
	}
	if len(methods) == 0 {
		methods = append(methods, DefaultNotificationMethods...)
	}
	r.NotificationMethods = methods
	return r
}
