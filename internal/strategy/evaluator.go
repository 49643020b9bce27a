package strategy

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"livetrade/internal/errors"
	"livetrade/internal/schema"
	"livetrade/pkg/exception"
)

// Evaluator turns ticks into signals. Implementations keep per-symbol price
// history and are not safe for concurrent use.
type Evaluator interface {
	Evaluate(tick schema.Tick) schema.Signal
}

// New builds a fresh evaluator for def. Every live session gets its own.
func New(def Definition) (Evaluator, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	switch def.Type {
	case TypeSMA:
		short := int(def.Param("short_window", 10))
		long := int(def.Param("long_window", 20))
		if short >= long {
			return nil, errors.Wrapf(exception.ErrStrategyInvalid, "strategy %s: short_window %d must be < long_window %d", def.ID, short, long)
		}
		return &smaCross{short: short, long: long, history: newHistory(long + 1)}, nil
	case TypeRSI:
		period := int(def.Param("period", 14))
		oversold := def.Param("oversold", 30)
		overbought := def.Param("overbought", 70)
		if period < 2 {
			return nil, errors.Wrapf(exception.ErrStrategyInvalid, "strategy %s: period must be >= 2", def.ID)
		}
		if oversold >= overbought {
			return nil, errors.Wrapf(exception.ErrStrategyInvalid, "strategy %s: oversold must be < overbought", def.ID)
		}
		return &rsiThreshold{period: period, oversold: oversold, overbought: overbought, history: newHistory(period*4 + 2)}, nil
	case TypeMACD:
		fast := int(def.Param("fast_period", 12))
		slow := int(def.Param("slow_period", 26))
		signal := int(def.Param("signal_period", 9))
		if fast >= slow {
			return nil, errors.Wrapf(exception.ErrStrategyInvalid, "strategy %s: fast_period must be < slow_period", def.ID)
		}
		return &macdCross{fast: fast, slow: slow, signal: signal, history: newHistory((slow+signal)*3 + 1)}, nil
	default:
		return nil, errors.Wrapf(exception.ErrStrategyUnsupported, "strategy %s: type %s", def.ID, def.Type)
	}
}

// history keeps a bounded window of closes per symbol.
type history struct {
	limit  int
	closes map[string][]float64
}

func newHistory(limit int) history {
	return history{limit: limit, closes: make(map[string][]float64)}
}

func (h history) push(tick schema.Tick) []float64 {
	closes := append(h.closes[tick.Symbol], tick.Price.InexactFloat64())
	if len(closes) > h.limit {
		closes = closes[len(closes)-h.limit:]
	}
	h.closes[tick.Symbol] = closes
	return closes
}

type smaCross struct {
	short, long int
	history     history
}

func (s *smaCross) Evaluate(tick schema.Tick) schema.Signal {
	closes := s.history.push(tick)
	if len(closes) < s.long+1 {
		return schema.SignalHold
	}
	fast := talib.Sma(closes, s.short)
	slow := talib.Sma(closes, s.long)
	return crossover(fast, slow)
}

type rsiThreshold struct {
	period               int
	oversold, overbought float64
	history              history
}

func (s *rsiThreshold) Evaluate(tick schema.Tick) schema.Signal {
	closes := s.history.push(tick)
	if len(closes) < s.period+2 {
		return schema.SignalHold
	}
	rsi := talib.Rsi(closes, s.period)
	prev, curr := rsi[len(rsi)-2], rsi[len(rsi)-1]
	if math.IsNaN(prev) || math.IsNaN(curr) {
		return schema.SignalHold
	}
	switch {
	case prev >= s.oversold && curr < s.oversold:
		return schema.SignalBuy
	case prev <= s.overbought && curr > s.overbought:
		return schema.SignalSell
	default:
		return schema.SignalHold
	}
}

type macdCross struct {
	fast, slow, signal int
	history            history
}

func (s *macdCross) Evaluate(tick schema.Tick) schema.Signal {
	closes := s.history.push(tick)
	if len(closes) < s.slow+s.signal+1 {
		return schema.SignalHold
	}
	macd, signal, _ := talib.Macd(closes, s.fast, s.slow, s.signal)
	return crossover(macd, signal)
}

// crossEpsilon absorbs float noise between series that have converged.
const crossEpsilon = 1e-9

// crossover compares the last two points of two series.
func crossover(fast, slow []float64) schema.Signal {
	n := len(fast)
	if n < 2 || len(slow) != n {
		return schema.SignalHold
	}
	prevDiff := fast[n-2] - slow[n-2]
	currDiff := fast[n-1] - slow[n-1]
	switch {
	case prevDiff <= crossEpsilon && currDiff > crossEpsilon:
		return schema.SignalBuy
	case prevDiff >= -crossEpsilon && currDiff < -crossEpsilon:
		return schema.SignalSell
	default:
		return schema.SignalHold
	}
}
