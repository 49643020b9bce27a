// Package ledger holds the per-position arithmetic: average entry price,
// unrealized and realized P&L. Every operation returns a new Position and
// leaves its receiver untouched.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"livetrade/internal/errors"
	"livetrade/internal/schema"
	"livetrade/pkg/exception"
)

var hundred = decimal.NewFromInt(100)

// Position is an open holding of one symbol. Quantity is signed: positive is
// long, negative is short, zero means the position is closed.
type Position struct {
	Symbol            string          `json:"symbol"`
	Quantity          decimal.Decimal `json:"quantity"`
	AverageEntryPrice decimal.Decimal `json:"average_entry_price"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
	OpenedAt          time.Time       `json:"opened_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// OverReductionError reports an attempt to reduce more than is held.
type OverReductionError struct {
	Symbol    string
	Held      decimal.Decimal
	Requested decimal.Decimal
}

func (e *OverReductionError) Error() string {
	return fmt.Sprintf("over reduction: symbol=%s held=%s requested=%s", e.Symbol, e.Held, e.Requested)
}

func (e *OverReductionError) Is(target error) bool {
	return target == exception.ErrOverReduction
}

// Open creates a fresh position from an opening trade.
func Open(symbol string, side schema.Side, qty, price decimal.Decimal, ts time.Time) (Position, error) {
	if err := validate(qty, price); err != nil {
		return Position{}, err
	}
	signed := qty
	switch side {
	case schema.SideBuy:
	case schema.SideSell:
		signed = qty.Neg()
	default:
		return Position{}, errors.Wrapf(exception.ErrInvalidSignal, "open %s", symbol)
	}
	return Position{
		Symbol:            symbol,
		Quantity:          signed,
		AverageEntryPrice: price,
		CurrentPrice:      price,
		OpenedAt:          ts,
		UpdatedAt:         ts,
	}, nil
}

// AddQuantity grows the position in its current direction and recomputes the
// quantity-weighted average entry price. A flat position grows long.
func (p Position) AddQuantity(qty, price decimal.Decimal) (Position, error) {
	if err := validate(qty, price); err != nil {
		return p, err
	}
	held := p.Quantity.Abs()
	total := held.Add(qty)
	next := p
	next.AverageEntryPrice = held.Mul(p.AverageEntryPrice).Add(qty.Mul(price)).Div(total)
	if p.IsShort() {
		next.Quantity = total.Neg()
	} else {
		next.Quantity = total
	}
	return next, nil
}

// ReduceQuantity shrinks the position by qty at price and returns the realized
// P&L of the reduced portion. The average entry price is unchanged.
func (p Position) ReduceQuantity(qty, price decimal.Decimal) (Position, decimal.Decimal, error) {
	if err := validate(qty, price); err != nil {
		return p, decimal.Zero, err
	}
	held := p.Quantity.Abs()
	if qty.GreaterThan(held) {
		return p, decimal.Zero, &OverReductionError{Symbol: p.Symbol, Held: held, Requested: qty}
	}
	realized := price.Sub(p.AverageEntryPrice).Mul(qty)
	next := p
	if p.IsShort() {
		realized = realized.Neg()
		next.Quantity = p.Quantity.Add(qty)
	} else {
		next.Quantity = p.Quantity.Sub(qty)
	}
	return next, realized, nil
}

// UpdatePrice marks the position to a new market price.
func (p Position) UpdatePrice(price decimal.Decimal, ts time.Time) (Position, error) {
	if !price.IsPositive() {
		return p, errors.Wrapf(exception.ErrNonPositivePrice, "update %s price %s", p.Symbol, price)
	}
	next := p
	next.CurrentPrice = price
	next.UpdatedAt = ts
	return next, nil
}

// CalculatePnl returns the unrealized P&L. The sign of Quantity makes it
// correct for both long and short positions.
func (p Position) CalculatePnl() decimal.Decimal {
	return p.CurrentPrice.Sub(p.AverageEntryPrice).Mul(p.Quantity)
}

// CalculatePnlPercentage returns the price move relative to the entry price.
func (p Position) CalculatePnlPercentage() decimal.Decimal {
	if p.AverageEntryPrice.IsZero() {
		return decimal.Zero
	}
	return p.CurrentPrice.Sub(p.AverageEntryPrice).Div(p.AverageEntryPrice).Mul(hundred)
}

// MarketValue returns quantity * current price, negative for shorts.
func (p Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.CurrentPrice)
}

func (p Position) IsLong() bool  { return p.Quantity.IsPositive() }
func (p Position) IsShort() bool { return p.Quantity.IsNegative() }
func (p Position) IsFlat() bool  { return p.Quantity.IsZero() }

// Side returns the side that opened the position.
func (p Position) Side() schema.Side {
	switch {
	case p.IsLong():
		return schema.SideBuy
	case p.IsShort():
		return schema.SideSell
	default:
		return schema.SideUnknown
	}
}

// Grows reports whether a trade on side increases the position's size.
func (p Position) Grows(side schema.Side) bool {
	if p.IsFlat() {
		return true
	}
	return p.Side() == side
}

func validate(qty, price decimal.Decimal) error {
	if !qty.IsPositive() {
		return errors.Wrapf(exception.ErrNonPositiveQuantity, "quantity %s", qty)
	}
	if !price.IsPositive() {
		return errors.Wrapf(exception.ErrNonPositivePrice, "price %s", price)
	}
	return nil
}
