// Command indcalc computes indicators over price bars read from stdin.
//
//	indcalc -indicators SMA:20,RSI:14 < bars.json
//
// Input is a JSON array of {time,open,high,low,close,volume} bars, or a raw
// exchange klines response with -klines. The series format also carries the
// buy/sell signals derived from the computed lines.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"trading-dashboard/internal/feed"
	"trading-dashboard/internal/indicator"
	"trading-dashboard/internal/logger"
	"trading-dashboard/internal/model"
	"trading-dashboard/internal/signals"
)

// seriesOutput is the -format series document.
type seriesOutput struct {
	Times   []int64               `json:"times"`
	Series  model.IndicatorSeries `json:"series"`
	Latest  map[string]float64    `json:"latest"`
	Signals []signals.Signal      `json:"signals"`
}

func main() {
	log.SetFlags(0)

	specsStr := flag.String("indicators", "", "Indicator specs: TYPE:PERIOD,... (default: the dashboard panel)")
	macdSignal := flag.String("macd-signal", "simplified", "MACD signal line: simplified or smoothed")
	stochD := flag.String("stoch-d", "simplified", "Stochastic %D line: simplified or smoothed")
	format := flag.String("format", "series", "Output: series (aligned to input bars) or points")
	klines := flag.Bool("klines", false, "Input is a raw exchange klines array")
	pretty := flag.Bool("pretty", false, "Indent JSON output")
	flag.Parse()

	// Skipped-bar warnings go to stderr so stdout stays valid JSON.
	slog.SetDefault(logger.New(os.Stderr, "indcalc", slog.LevelWarn))

	in, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.Fatalf("[indcalc] read stdin: %v", err)
	}
	bars, err := decodeBars(in, *klines)
	if err != nil {
		log.Fatalf("[indcalc] %v", err)
	}

	specs := indicator.ParseSpecs(*specsStr)
	opts := indicator.Options{
		MACDSignal: indicator.ParseSignalMode(*macdSignal),
		StochD:     indicator.ParseSignalMode(*stochD),
	}

	var out any
	switch *format {
	case "series":
		out = computeSeries(bars, specs, opts)
	case "points":
		lines := indicator.Lines{}
		for _, spec := range specs {
			for name, pts := range indicator.Calculate(bars, spec, opts) {
				lines[name] = pts
			}
		}
		out = lines
	default:
		log.Fatalf("[indcalc] unknown format %q", *format)
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(out); err != nil {
		log.Fatalf("[indcalc] write: %v", err)
	}
}

func decodeBars(in []byte, klines bool) ([]model.PriceBar, error) {
	if klines {
		bars, err := feed.ParseKlines(in)
		if err != nil {
			return nil, fmt.Errorf("parse klines: %w", err)
		}
		return bars, nil
	}
	var bars []model.PriceBar
	if err := json.Unmarshal(in, &bars); err != nil {
		return nil, fmt.Errorf("parse bars: %w", err)
	}
	return bars, nil
}

func computeSeries(bars []model.PriceBar, specs []indicator.Spec, opts indicator.Options) seriesOutput {
	sorted := model.SortBars(bars)
	series := indicator.NewEngine(specs, opts).Compute(sorted)
	times := make([]int64, len(sorted))
	for i, b := range sorted {
		times[i] = b.Time
	}
	return seriesOutput{
		Times:   times,
		Series:  series,
		Latest:  series.Latest(),
		Signals: signals.Default().Scan(sorted, series),
	}
}
