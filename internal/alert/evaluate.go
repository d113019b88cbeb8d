// Package alert evaluates user-defined alert rules against the latest market
// snapshot and tracks their trigger state and history.
package alert

import (
	"fmt"
	"math"
	"time"

	"trading-dashboard/internal/model"

	"github.com/shopspring/decimal"
)

// EqualsTolerance is the relative band used by the "equals" condition.
const EqualsTolerance = 0.01

// Snapshot is the latest observation for one symbol. Only the latest value of
// each indicator line is carried. Prev, when set, is the observation before
// this one and enables the crosses_up / crosses_down conditions.
type Snapshot struct {
	Symbol       string
	Market       string
	Price        float64
	Volume       float64
	HasVolume    bool
	Portfolio    float64
	HasPortfolio bool
	Indicators   map[string]float64
	At           time.Time
	Prev         *Snapshot
}

// Trigger is a rule that satisfied its condition on an evaluation pass.
type Trigger struct {
	Rule     model.AlertRule
	Observed float64
	Message  string
}

// Evaluate returns the rules that newly satisfy their condition on snap.
// A rule is considered only when it is enabled, not already triggered, and
// its symbol and market match the snapshot. Rules whose subject is absent
// from the snapshot are skipped. Evaluate does not mutate rules.
func Evaluate(snap Snapshot, rules []model.AlertRule) []Trigger {
	var out []Trigger
	for _, r := range rules {
		if !r.IsEnabled || r.IsTriggered {
			continue
		}
		if r.Symbol != snap.Symbol || r.Market != snap.Market {
			continue
		}
		cur, ok := observe(snap, r)
		if !ok {
			continue
		}
		if !matches(r, cur, snap.Prev) {
			continue
		}
		out = append(out, Trigger{Rule: r, Observed: cur, Message: message(r, cur)})
	}
	return out
}

// observe returns the value a rule compares against, if the snapshot has it.
func observe(snap Snapshot, r model.AlertRule) (float64, bool) {
	var v float64
	switch r.Type {
	case model.AlertPrice:
		v = snap.Price
	case model.AlertIndicator:
		iv, ok := snap.Indicators[r.Indicator]
		if !ok {
			return 0, false
		}
		v = iv
	case model.AlertVolume:
		if !snap.HasVolume {
			return 0, false
		}
		v = snap.Volume
	case model.AlertPortfolio:
		if !snap.HasPortfolio {
			return 0, false
		}
		v = snap.Portfolio
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func matches(r model.AlertRule, cur float64, prev *Snapshot) bool {
	switch r.Condition {
	case model.CondAbove:
		return cur > r.Value
	case model.CondBelow:
		return cur < r.Value
	case model.CondEquals:
		return math.Abs(cur-r.Value) <= EqualsTolerance*math.Abs(r.Value)
	case model.CondCrossesUp, model.CondCrossesDown:
		if prev == nil {
			return false
		}
		before, ok := observe(*prev, r)
		if !ok {
			return false
		}
		if r.Condition == model.CondCrossesUp {
			return before <= r.Value && cur > r.Value
		}
		return before >= r.Value && cur < r.Value
	default:
		return false
	}
}

func message(r model.AlertRule, cur float64) string {
	subject := string(r.Type)
	switch r.Type {
	case model.AlertIndicator:
		subject = r.Indicator
	case model.AlertPortfolio:
		subject = "portfolio value"
	}

	verb := "is " + string(r.Condition)
	switch r.Condition {
	case model.CondEquals:
		verb = "is within 1% of"
	case model.CondCrossesUp:
		verb = "crossed above"
	case model.CondCrossesDown:
		verb = "crossed below"
	}
	return fmt.Sprintf("%s %s %s %s %s", r.Symbol, subject, formatNumber(cur), verb, formatNumber(r.Value))
}

// formatNumber renders a float without binary-float noise (0.1+0.2 → "0.3").
func formatNumber(v float64) string {
	return decimal.NewFromFloat(v).Round(8).String()
}
