package session

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"livetrade/internal/errors"
	"livetrade/internal/ledger"
	"livetrade/internal/risk"
	"livetrade/internal/schema"
	"livetrade/pkg/exception"
)

// DefaultPositionSize is the quantity of every simulated fill unless a
// Sizer says otherwise.
var DefaultPositionSize = decimal.NewFromInt(100)

// SizeRequest is what a Sizer knows about the fill it sizes.
type SizeRequest struct {
	SessionID string
	Symbol    string
	Side      schema.Side
	Price     decimal.Decimal
	Position  ledger.Position
	Capital   decimal.Decimal
}

// Sizer decides the quantity of a simulated fill.
type Sizer interface {
	Size(req SizeRequest) decimal.Decimal
}

// FixedSize sizes every fill with the same quantity.
type FixedSize decimal.Decimal

func (f FixedSize) Size(SizeRequest) decimal.Decimal {
	return decimal.Decimal(f)
}

// SizerFunc adapts a function to Sizer.
type SizerFunc func(req SizeRequest) decimal.Decimal

func (f SizerFunc) Size(req SizeRequest) decimal.Decimal {
	return f(req)
}

// ExecuteSignal fills signal for symbol at price in the given session. HOLD
// is a no-op and reports executed=false.
func (r *Registry) ExecuteSignal(ctx context.Context, sessionID, symbol string, signal schema.Signal, price decimal.Decimal, ts time.Time) (schema.Trade, bool, error) {
	if err := ctx.Err(); err != nil {
		return schema.Trade{}, false, err
	}

	if !signal.Valid() {
		return schema.Trade{}, false, errors.Wrapf(exception.ErrInvalidSignal, "execute %s", signal)
	}

	s, err := r.lookup(sessionID)
	if err != nil {
		return schema.Trade{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != schema.StatusActive {
		return schema.Trade{}, false, errors.Wrapf(exception.ErrSessionStopped, "execute on %s", sessionID)
	}

	return r.execute(s, symbol, signal, price, ts)
}

// caller must hold s.mu
func (r *Registry) execute(s *Session, symbol string, signal schema.Signal, price decimal.Decimal, ts time.Time) (schema.Trade, bool, error) {
	side, actionable := signal.Side()
	if !actionable {
		return schema.Trade{}, false, nil
	}

	symbol = schema.NormalizeSymbol(symbol)
	if !s.symbols.Contains(symbol) {
		return schema.Trade{}, false, errors.Wrapf(exception.ErrSymbolNotMonitored, "session %s symbol %s", s.id, symbol)
	}

	if !price.IsPositive() {
		return schema.Trade{}, false, errors.Wrapf(exception.ErrNonPositivePrice, "session %s symbol %s price %s", s.id, symbol, price)
	}

	if ts.IsZero() {
		ts = r.cfg.Clock()
	}

	pos, held := s.positions[symbol]
	qty := r.cfg.Sizer.Size(SizeRequest{
		SessionID: s.id,
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Position:  pos,
		Capital:   s.currentCapital,
	})

	next, realized, err := transition(pos, held, symbol, side, qty, price, ts)
	if err != nil {
		return schema.Trade{}, false, errors.Wrapf(err, "session %s %s %s", s.id, side, symbol)
	}

	if s.risk != nil {
		decision := s.risk.Evaluate(risk.Intent{
			Symbol: symbol,
			Side:   side,
			Qty:    qty,
			Price:  price,
		}, risk.StateView{Position: pos.Quantity, Now: ts})
		if !decision.Allowed {
			r.cfg.Metrics.IncRiskRejection(decision.Reason)
			return schema.Trade{}, false, errors.Wrapf(exception.ErrRiskRejected, "session %s %s %s: %s", s.id, side, symbol, decision.Reason)
		}
	}

	return r.commit(s, side, next, qty, price, realized, ts), true, nil
}

// transition computes the position after a fill without touching the session.
func transition(pos ledger.Position, held bool, symbol string, side schema.Side, qty, price decimal.Decimal, ts time.Time) (ledger.Position, decimal.Decimal, error) {
	if !held {
		next, err := ledger.Open(symbol, side, qty, price, ts)
		return next, decimal.Zero, err
	}

	if pos.Grows(side) {
		next, err := pos.AddQuantity(qty, price)
		if err != nil {
			return pos, decimal.Zero, err
		}
		next.CurrentPrice = price
		next.UpdatedAt = ts
		return next, decimal.Zero, nil
	}

	next, realized, err := pos.ReduceQuantity(qty, price)
	if err != nil {
		return pos, decimal.Zero, err
	}
	next.CurrentPrice = price
	next.UpdatedAt = ts
	return next, realized, nil
}

// caller must hold s.mu
func (r *Registry) commit(s *Session, side schema.Side, next ledger.Position, qty, price, realized decimal.Decimal, ts time.Time) schema.Trade {
	trade := schema.Trade{
		ID:          r.cfg.NewID(),
		SessionID:   s.id,
		StrategyID:  s.strategyID,
		Symbol:      next.Symbol,
		Side:        side,
		Quantity:    qty,
		Price:       price,
		RealizedPnl: realized,
		Timestamp:   ts,
	}

	if next.IsFlat() {
		delete(s.positions, next.Symbol)
	} else {
		s.positions[next.Symbol] = next
	}
	s.currentCapital = s.currentCapital.Add(realized)
	s.trades = append(s.trades, trade)

	r.cfg.Metrics.IncTrades()
	s.publishTrade(trade, r.cfg.Metrics)
	s.publishPosition(next, r.cfg.Metrics)
	return trade
}

// Liquidate closes every open position of an active session at its last
// mark price and returns the closing trades.
func (r *Registry) Liquidate(ctx context.Context, sessionID string) ([]schema.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s, err := r.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != schema.StatusActive {
		return nil, errors.Wrapf(exception.ErrSessionStopped, "liquidate %s", sessionID)
	}
	return r.liquidate(s, r.cfg.Clock())
}

// liquidate closes every open position at its last mark price.
// caller must hold s.mu
func (r *Registry) liquidate(s *Session, ts time.Time) ([]schema.Trade, error) {
	var trades []schema.Trade
	for _, pos := range s.positionList() {
		side := pos.Side().Opposite()
		qty := pos.Quantity.Abs()
		next, realized, err := transition(pos, true, pos.Symbol, side, qty, pos.CurrentPrice, ts)
		if err != nil {
			return trades, errors.Wrapf(err, "liquidate %s", pos.Symbol)
		}
		trades = append(trades, r.commit(s, side, next, qty, pos.CurrentPrice, realized, ts))
	}
	return trades, nil
}
