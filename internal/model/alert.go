package model

import "time"

// AlertType selects which observed quantity a rule compares.
type AlertType string

const (
	AlertPrice     AlertType = "price"
	AlertIndicator AlertType = "indicator"
	AlertVolume    AlertType = "volume"
	AlertPortfolio AlertType = "portfolio"
)

// Condition is the comparison applied between the observed value and AlertRule.Value.
type Condition string

const (
	CondAbove       Condition = "above"
	CondBelow       Condition = "below"
	CondCrossesUp   Condition = "crosses_up"
	CondCrossesDown Condition = "crosses_down"
	CondEquals      Condition = "equals"
)

// AlertRule is a user-defined trigger condition on a symbol.
// IsTriggered flips to true at most once per arm cycle; Reset re-arms it.
type AlertRule struct {
	ID                  string     `json:"id"`
	Symbol              string     `json:"symbol"`
	Market              string     `json:"market"`
	Type                AlertType  `json:"type"`
	Condition           Condition  `json:"condition"`
	Value               float64    `json:"value"`
	Indicator           string     `json:"indicator,omitempty"`
	IsEnabled           bool       `json:"isEnabled"`
	IsTriggered         bool       `json:"isTriggered"`
	TriggeredAt         *time.Time `json:"triggeredAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	NotificationMethods []string   `json:"notificationMethods"`
	Note                string     `json:"note,omitempty"`
}

// Key returns "market:symbol" for the rule's instrument.
func (r *AlertRule) Key() string {
	return Key(r.Market, r.Symbol)
}

// AlertHistoryEntry is an immutable record of one trigger.
// Acknowledged is the only field that changes after creation.
type AlertHistoryEntry struct {
	ID           string    `json:"id"`
	AlertID      string    `json:"alertId"`
	Symbol       string    `json:"symbol"`
	Market       string    `json:"market"`
	Message      string    `json:"message"`
	TriggeredAt  time.Time `json:"triggeredAt"`
	Price        float64   `json:"price"`
	Acknowledged bool      `json:"acknowledged"`
}
