package analysis

import (
	"math"
	"time"

	"go_signal_engine/services/bars"
)

// Indicator series are aligned with their input bars: position i holds the
// indicator value for bar i, or NaN while the rolling window is not yet full.
// Insufficient data is always an undefined value, never an error.

// Defined reports whether a series value is defined.
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

func undefinedSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA calculates the simple moving average of the last period values.
// Undefined for the first period-1 positions.
func SMA(values []float64, period int) []float64 {
	out := undefinedSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA calculates the exponentially weighted moving average with span period
// (multiplier 2/(period+1)), seeded with the SMA of the first period values.
func EMA(values []float64, period int) []float64 {
	out := undefinedSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	out[period-1] = ema

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out[i] = ema
	}
	return out
}

// RSI calculates Wilder's relative strength index. Defined values are always
// within [0, 100]. Undefined for the first period positions.
func RSI(closes []float64, period int) []float64 {
	out := undefinedSeries(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	gains := 0.0
	losses := 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		// Wilder smoothing
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	rsi := 100 - (100 / (1 + rs))
	if rsi < 0 {
		return 0
	}
	if rsi > 100 {
		return 100
	}
	return rsi
}

// ADX calculates Wilder's average directional index. Defined from position
// 2*period-1 onward.
func ADX(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := undefinedSeries(n)
	if period <= 0 || n < 2*period {
		return out
	}

	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		highRange := highs[i] - lows[i]
		highClose := math.Abs(highs[i] - closes[i-1])
		lowClose := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(highRange, math.Max(highClose, lowClose))

		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	var smTR, smPlus, smMinus float64
	for i := 1; i <= period; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}

	dx := make([]float64, n)
	dx[period] = dxValue(smPlus, smMinus, smTR)
	for i := period + 1; i < n; i++ {
		smTR = smTR - smTR/float64(period) + tr[i]
		smPlus = smPlus - smPlus/float64(period) + plusDM[i]
		smMinus = smMinus - smMinus/float64(period) + minusDM[i]
		dx[i] = dxValue(smPlus, smMinus, smTR)
	}

	// First ADX is the mean of the first period DX values, then Wilder smoothing.
	sum := 0.0
	for i := period; i < 2*period; i++ {
		sum += dx[i]
	}
	adx := sum / float64(period)
	out[2*period-1] = adx
	for i := 2 * period; i < n; i++ {
		adx = (adx*float64(period-1) + dx[i]) / float64(period)
		out[i] = adx
	}
	return out
}

func dxValue(smPlus, smMinus, smTR float64) float64 {
	if smTR == 0 {
		return 0
	}
	plusDI := 100 * smPlus / smTR
	minusDI := 100 * smMinus / smTR
	diSum := plusDI + minusDI
	if diSum == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / diSum
}

// RollingMax calculates the max over the trailing period values, including
// the current position.
func RollingMax(values []float64, period int) []float64 {
	out := undefinedSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		max := values[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			if values[j] > max {
				max = values[j]
			}
		}
		out[i] = max
	}
	return out
}

// RollingMin calculates the min over the trailing period values, including
// the current position.
func RollingMin(values []float64, period int) []float64 {
	out := undefinedSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		min := values[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			if values[j] < min {
				min = values[j]
			}
		}
		out[i] = min
	}
	return out
}

// Donchian calculates the upper (rolling max high) and lower (rolling min
// low) channel bands over the trailing period bars, current bar included.
// Wherever defined, upper >= lower, and upper >= the current close because
// close <= high <= max(high).
func Donchian(highs, lows []float64, period int) (upper, lower []float64) {
	return RollingMax(highs, period), RollingMin(lows, period)
}

// MACD calculates the MACD line (EMA12 - EMA26) and its signal line, a
// 9-period EMA of the MACD series itself.
func MACD(closes []float64) (macdLine, signalLine []float64) {
	n := len(closes)
	macdLine = undefinedSeries(n)
	signalLine = undefinedSeries(n)
	if n < 26 {
		return macdLine, signalLine
	}

	ema12 := EMA(closes, 12)
	ema26 := EMA(closes, 26)
	defined := make([]float64, 0, n-25)
	for i := 25; i < n; i++ {
		macdLine[i] = ema12[i] - ema26[i]
		defined = append(defined, macdLine[i])
	}

	sig := EMA(defined, 9)
	for i, v := range sig {
		signalLine[25+i] = v
	}
	return macdLine, signalLine
}

// Indicator window sizes.
const (
	DonchianPeriod = 20
	YearPeriod     = 252
)

// Row is one computed indicator row for a (symbol, date). Fields are NaN
// where the underlying window is not yet full.
type Row struct {
	Symbol            string
	Date              time.Time
	Close             float64
	SMA20             float64
	SMA50             float64
	SMA200            float64
	EMA20             float64
	EMA50             float64
	RSI14             float64
	ADX14             float64
	Donch20High       float64
	Donch20Low        float64
	High252           float64
	Low252            float64
	DistanceTo52wHigh float64
	MACD              float64
	MACDSignal        float64
	TrendScore        float64
	CombinedScore     float64
}

// Compute turns an ordered bar sequence into one aligned indicator row per
// bar. The input must be sorted ascending by date; Compute never mutates it.
func Compute(series []bars.Bar) []Row {
	n := len(series)
	rows := make([]Row, 0, n)
	if n == 0 {
		return rows
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, b := range series {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	sma20 := SMA(closes, 20)
	sma50 := SMA(closes, 50)
	sma200 := SMA(closes, 200)
	ema20 := EMA(closes, 20)
	ema50 := EMA(closes, 50)
	rsi14 := RSI(closes, 14)
	adx14 := ADX(highs, lows, closes, 14)
	donchHigh, donchLow := Donchian(highs, lows, DonchianPeriod)
	high252 := RollingMax(highs, YearPeriod)
	low252 := RollingMin(lows, YearPeriod)
	macd, macdSignal := MACD(closes)

	for i := 0; i < n; i++ {
		row := Row{
			Symbol:      series[i].Symbol,
			Date:        series[i].Date,
			Close:       closes[i],
			SMA20:       sma20[i],
			SMA50:       sma50[i],
			SMA200:      sma200[i],
			EMA20:       ema20[i],
			EMA50:       ema50[i],
			RSI14:       rsi14[i],
			ADX14:       adx14[i],
			Donch20High: donchHigh[i],
			Donch20Low:  donchLow[i],
			High252:     high252[i],
			Low252:      low252[i],
			MACD:        macd[i],
			MACDSignal:  macdSignal[i],
		}

		// close <= high <= high_252, so the distance never exceeds zero.
		if Defined(high252[i]) && high252[i] != 0 {
			row.DistanceTo52wHigh = closes[i]/high252[i] - 1
		} else {
			row.DistanceTo52wHigh = math.NaN()
		}

		row.TrendScore = trendScore(row)
		row.CombinedScore = combinedScore(row)
		rows = append(rows, row)
	}
	return rows
}

// trendScore is a 0-100 composite of trend conditions: price above its short
// average, averages stacked bullishly, momentum positive.
func trendScore(r Row) float64 {
	score := 0.0
	if Defined(r.SMA20) && r.Close > r.SMA20 {
		score += 20
	}
	if Defined(r.SMA20) && Defined(r.SMA50) && r.SMA20 > r.SMA50 {
		score += 20
	}
	if Defined(r.SMA50) && Defined(r.SMA200) && r.SMA50 > r.SMA200 {
		score += 20
	}
	if Defined(r.RSI14) && r.RSI14 > 50 {
		score += 20
	}
	if Defined(r.MACD) && Defined(r.MACDSignal) && r.MACD > r.MACDSignal {
		score += 20
	}
	return score
}

// combinedScore blends the trend score with proximity to the 52-week high.
func combinedScore(r Row) float64 {
	if !Defined(r.DistanceTo52wHigh) {
		return r.TrendScore
	}
	proximity := 1 + r.DistanceTo52wHigh // distance is <= 0
	if proximity < 0 {
		proximity = 0
	}
	return math.Round(0.6*r.TrendScore + 0.4*100*proximity)
}
