package indicator

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Kind identifies an indicator formula.
type Kind string

const (
	KindSMA        Kind = "SMA"
	KindEMA        Kind = "EMA"
	KindRSI        Kind = "RSI"
	KindMACD       Kind = "MACD"
	KindBollinger  Kind = "BB"
	KindStochastic Kind = "STOCH"
	KindADX        Kind = "ADX"
)

var defaultPeriods = map[Kind]int{
	KindSMA:        20,
	KindEMA:        20,
	KindRSI:        14,
	KindMACD:       26,
	KindBollinger:  20,
	KindStochastic: 14,
	KindADX:        14,
}

// Spec selects one indicator and its lookback period.
// A zero Period means the kind's default.
type Spec struct {
	Kind   Kind `json:"kind" yaml:"kind"`
	Period int  `json:"period,omitempty" yaml:"period,omitempty"`
}

// String renders the spec in the "TYPE:PERIOD" form accepted by ParseSpecs.
func (s Spec) String() string {
	return string(s.Kind) + ":" + strconv.Itoa(s.period())
}

func (s Spec) period() int {
	if s.Period > 0 {
		return s.Period
	}
	return defaultPeriods[s.Kind]
}

// DefaultSpecs is the dashboard's standard indicator panel.
func DefaultSpecs() []Spec {
	return []Spec{
		{Kind: KindSMA, Period: 20},
		{Kind: KindSMA, Period: 50},
		{Kind: KindEMA, Period: 20},
		{Kind: KindRSI, Period: 14},
		{Kind: KindMACD},
		{Kind: KindBollinger, Period: 20},
		{Kind: KindStochastic, Period: 14},
		{Kind: KindADX, Period: 14},
	}
}

// ParseSpecs parses "TYPE:PERIOD,TYPE,..." into specs.
// Example: "SMA:20,EMA:50,RSI:14,MACD,BB:20,STOCH:14,ADX:14".
// Invalid entries are skipped with a warning. Returns defaults if input is empty
// or nothing parsed.
func ParseSpecs(s string) []Spec {
	if strings.TrimSpace(s) == "" {
		return DefaultSpecs()
	}

	var specs []Spec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		spec, err := ParseSpec(part)
		if err != nil {
			slog.Warn("skipping invalid indicator spec", "spec", part, "error", err)
			continue
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		slog.Warn("no valid indicator specs parsed, using defaults")
		return DefaultSpecs()
	}
	return specs
}

// ParseSpec parses a single "TYPE" or "TYPE:PERIOD" entry.
func ParseSpec(part string) (Spec, error) {
	tokens := strings.SplitN(part, ":", 2)
	kind := Kind(strings.ToUpper(strings.TrimSpace(tokens[0])))
	if _, ok := defaultPeriods[kind]; !ok {
		return Spec{}, fmt.Errorf("unknown indicator %q", tokens[0])
	}
	spec := Spec{Kind: kind}
	if len(tokens) == 2 {
		period, err := strconv.Atoi(strings.TrimSpace(tokens[1]))
		if err != nil || period <= 0 {
			return Spec{}, fmt.Errorf("invalid period %q", tokens[1])
		}
		spec.Period = period
	}
	return spec, nil
}
