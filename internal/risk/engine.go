package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"livetrade/internal/schema"
)

// Reason explains why an order was denied.
type Reason uint16

const (
	ReasonNone Reason = iota
	ReasonKillSwitch
	ReasonRateLimit
	ReasonMaxQty
	ReasonMaxNotional
	ReasonPositionLimit
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonKillSwitch:
		return "kill_switch"
	case ReasonRateLimit:
		return "rate_limit"
	case ReasonMaxQty:
		return "max_qty"
	case ReasonMaxNotional:
		return "max_notional"
	case ReasonPositionLimit:
		return "position_limit"
	default:
		return "unknown"
	}
}

// Config defines simple per-session risk limits. Zero values disable a check.
type Config struct {
	KillSwitch       bool            `json:"killSwitch"`
	MaxOrderQty      decimal.Decimal `json:"maxOrderQty"`
	MaxOrderNotional decimal.Decimal `json:"maxOrderNotional"`
	MaxPosition      decimal.Decimal `json:"maxPosition"`
	OrderRateLimit   int             `json:"orderRateLimit"`
	OrderRateWindow  time.Duration   `json:"orderRateWindow"`
}

// Enabled reports whether any limit is configured.
func (c Config) Enabled() bool {
	return c.KillSwitch ||
		c.MaxOrderQty.IsPositive() ||
		c.MaxOrderNotional.IsPositive() ||
		c.MaxPosition.IsPositive() ||
		(c.OrderRateLimit > 0 && c.OrderRateWindow > 0)
}

// Intent is a proposed simulated order.
type Intent struct {
	Symbol string
	Side   schema.Side
	Qty    decimal.Decimal
	Price  decimal.Decimal
}

// StateView provides the current signed position for the intent's symbol.
type StateView struct {
	Position decimal.Decimal
	Now      time.Time
}

// Decision is the result of a risk evaluation.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Engine evaluates risk decisions. It keeps rate-limit state and is not safe
// for concurrent use; each session owns one behind its lock.
type Engine struct {
	cfg             Config
	rateWindowStart time.Time
	rateCount       int
}

// NewEngine creates a risk engine with static limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate applies the configured checks to an order intent.
func (e *Engine) Evaluate(intent Intent, state StateView) Decision {
	if e == nil {
		return Decision{Allowed: true}
	}

	now := state.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if e.cfg.KillSwitch {
		return deny(ReasonKillSwitch)
	}

	if e.cfg.OrderRateLimit > 0 && e.cfg.OrderRateWindow > 0 {
		if e.rateWindowStart.IsZero() || now.Sub(e.rateWindowStart) >= e.cfg.OrderRateWindow {
			e.rateWindowStart = now
			e.rateCount = 0
		}
		e.rateCount++
		if e.rateCount > e.cfg.OrderRateLimit {
			return deny(ReasonRateLimit)
		}
	}

	if e.cfg.MaxOrderQty.IsPositive() && intent.Qty.GreaterThan(e.cfg.MaxOrderQty) {
		return deny(ReasonMaxQty)
	}

	if e.cfg.MaxOrderNotional.IsPositive() && intent.Price.Mul(intent.Qty).GreaterThan(e.cfg.MaxOrderNotional) {
		return deny(ReasonMaxNotional)
	}

	nextPos := applySide(state.Position, intent.Side, intent.Qty)
	if e.cfg.MaxPosition.IsPositive() && nextPos.Abs().GreaterThan(e.cfg.MaxPosition) {
		return deny(ReasonPositionLimit)
	}

	return Decision{Allowed: true}
}

func deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

func applySide(pos decimal.Decimal, side schema.Side, qty decimal.Decimal) decimal.Decimal {
	switch side {
	case schema.SideBuy:
		return pos.Add(qty)
	case schema.SideSell:
		return pos.Sub(qty)
	default:
		return pos
	}
}
