package ta

import (
	"math"

	"prostocks-dashboard/internal/types"
)

// EMASeries is an exponentially weighted mean with span n, seeded from the
// first value (alpha = 2/(n+1)).
func EMASeries(vals []float64, n int) []float64 {
	out := make([]float64, len(vals))
	if len(vals) == 0 || n <= 0 {
		return out
	}
	alpha := 2.0 / (float64(n) + 1.0)
	out[0] = vals[0]
	for i := 1; i < len(vals); i++ {
		out[i] = alpha*vals[i] + (1-alpha)*out[i-1]
	}
	return out
}

// SMASeries is a rolling mean of window n. Positions with fewer than n
// samples, or any NaN inside the window, are NaN.
func SMASeries(vals []float64, n int) []float64 {
	out := make([]float64, len(vals))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 {
		return out
	}
	for i := n - 1; i < len(vals); i++ {
		sum := 0.0
		ok := true
		for j := i - n + 1; j <= i; j++ {
			if math.IsNaN(vals[j]) {
				ok = false
				break
			}
			sum += vals[j]
		}
		if ok {
			out[i] = sum / float64(n)
		}
	}
	return out
}

func ma(vals []float64, n int, method string) []float64 {
	if method == "SMA" {
		return SMASeries(vals, n)
	}
	return EMASeries(vals, n)
}

// MACDResult holds the three MACD output series, aligned with the input.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes MACD = fastMA - slowMA, a signal line over the MACD series
// and the histogram. maType selects EMA or SMA for both lines.
func MACD(src []float64, fast, slow, signal int, maType string) MACDResult {
	fastMA := ma(src, fast, maType)
	slowMA := ma(src, slow, maType)

	macd := make([]float64, len(src))
	for i := range src {
		macd[i] = fastMA[i] - slowMA[i]
	}

	sig := ma(macd, signal, maType)
	hist := make([]float64, len(src))
	for i := range src {
		hist[i] = macd[i] - sig[i]
	}

	return MACDResult{MACD: macd, Signal: sig, Histogram: hist}
}

// HeikinAshi rebuilds a candle series with the Heikin-Ashi transform:
// HAClose = (O+H+L+C)/4, HAOpen = midpoint of the previous HA candle.
func HeikinAshi(cs []types.Candle) []types.Candle {
	if len(cs) == 0 {
		return nil
	}

	out := make([]types.Candle, len(cs))
	for i, c := range cs {
		hc := (c.Open + c.High + c.Low + c.Close) / 4

		var ho float64
		if i == 0 {
			ho = (c.Open + c.Close) / 2
		} else {
			ho = (out[i-1].Open + out[i-1].Close) / 2
		}

		out[i] = types.Candle{
			Ts:    c.Ts,
			Open:  ho,
			High:  math.Max(c.High, math.Max(ho, hc)),
			Low:   math.Min(c.Low, math.Min(ho, hc)),
			Close: hc,
			Vol:   c.Vol,
		}
	}
	return out
}

// Source extracts one price series from a candle slice.
func Source(cs []types.Candle, field string) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		switch field {
		case "open":
			out[i] = c.Open
		case "high":
			out[i] = c.High
		case "low":
			out[i] = c.Low
		default:
			out[i] = c.Close
		}
	}
	return out
}
