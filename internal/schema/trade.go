package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick is a single price observation for a symbol.
type Tick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Trade is an executed, simulated fill. It is never modified after creation.
type Trade struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	StrategyID  string          `json:"strategy_id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	RealizedPnl decimal.Decimal `json:"realized_pnl"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Notional returns price * quantity.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}
