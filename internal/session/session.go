/*
Session owns the live trading sessions: their capital, positions and trade
history.

# Module
  - registry: directory of active sessions, lifecycle ACTIVE -> STOPPED
  - router: applies price ticks, marks positions, asks the strategy for a signal
  - executor: turns a signal into a simulated fill and updates the ledger
  - notifier: per-session queue that delivers callbacks off the session lock

# Locking
  - one mutex per session serializes every mutation of that session
  - the directory lock is never held while a session lock is acquired
*/
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"livetrade/internal/bus"
	"livetrade/internal/ledger"
	"livetrade/internal/risk"
	"livetrade/internal/schema"
)

var hundred = decimal.NewFromInt(100)

// Session is the mutable state of one live trading session. It is owned by
// the Registry and never handed out; callers receive snapshots.
type Session struct {
	mu sync.Mutex

	id             string
	strategyID     string
	strategyName   string
	symbols        schema.SymbolSet
	initialCapital decimal.Decimal
	currentCapital decimal.Decimal
	positions      map[string]ledger.Position
	trades         []schema.Trade
	status         schema.Status
	startedAt      time.Time
	stoppedAt      time.Time

	strategy Strategy
	risk     *risk.Engine
	notify   *bus.Queue[notification]
	done     chan struct{}
}

// StatusSnapshot is a point-in-time copy of a session.
type StatusSnapshot struct {
	ID             string            `json:"id"`
	StrategyID     string            `json:"strategy_id"`
	StrategyName   string            `json:"strategy_name,omitempty"`
	Symbols        []string          `json:"symbols"`
	Status         schema.Status     `json:"status"`
	InitialCapital decimal.Decimal   `json:"initial_capital"`
	CurrentCapital decimal.Decimal   `json:"current_capital"`
	RealizedPnl    decimal.Decimal   `json:"realized_pnl"`
	UnrealizedPnl  decimal.Decimal   `json:"unrealized_pnl"`
	TotalTrades    int               `json:"total_trades"`
	OpenPositions  int               `json:"open_positions"`
	Positions      []ledger.Position `json:"positions"`
	StartedAt      time.Time         `json:"started_at"`
	StoppedAt      time.Time         `json:"stopped_at,omitzero"`
}

// Summary is the final report of a stopped session. TotalPnl is realized;
// UnrealizedPnl describes positions left open and is informational only.
type Summary struct {
	SessionID      string          `json:"session_id"`
	StrategyID     string          `json:"strategy_id"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalCapital   decimal.Decimal `json:"final_capital"`
	TotalPnl       decimal.Decimal `json:"total_pnl"`
	TotalReturnPct decimal.Decimal `json:"total_return_pct"`
	TotalTrades    int             `json:"total_trades"`
	OpenPositions  int             `json:"open_positions"`
	UnrealizedPnl  decimal.Decimal `json:"unrealized_pnl"`
	StartedAt      time.Time       `json:"started_at"`
	StoppedAt      time.Time       `json:"stopped_at"`
	Duration       time.Duration   `json:"duration"`
}

// TickResult describes what one tick did to a session.
type TickResult struct {
	SessionID string           `json:"session_id"`
	Symbol    string           `json:"symbol"`
	Signal    schema.Signal    `json:"signal"`
	Position  *ledger.Position `json:"position,omitempty"`
	Trade     *schema.Trade    `json:"trade,omitempty"`
}

// caller must hold s.mu
func (s *Session) snapshot() StatusSnapshot {
	return StatusSnapshot{
		ID:             s.id,
		StrategyID:     s.strategyID,
		StrategyName:   s.strategyName,
		Symbols:        s.symbols.Names(),
		Status:         s.status,
		InitialCapital: s.initialCapital,
		CurrentCapital: s.currentCapital,
		RealizedPnl:    s.currentCapital.Sub(s.initialCapital),
		UnrealizedPnl:  s.unrealizedPnl(),
		TotalTrades:    len(s.trades),
		OpenPositions:  len(s.positions),
		Positions:      s.positionList(),
		StartedAt:      s.startedAt,
		StoppedAt:      s.stoppedAt,
	}
}

// caller must hold s.mu
func (s *Session) summary() Summary {
	total := s.currentCapital.Sub(s.initialCapital)
	return Summary{
		SessionID:      s.id,
		StrategyID:     s.strategyID,
		InitialCapital: s.initialCapital,
		FinalCapital:   s.currentCapital,
		TotalPnl:       total,
		TotalReturnPct: total.Div(s.initialCapital).Mul(hundred),
		TotalTrades:    len(s.trades),
		OpenPositions:  len(s.positions),
		UnrealizedPnl:  s.unrealizedPnl(),
		StartedAt:      s.startedAt,
		StoppedAt:      s.stoppedAt,
		Duration:       s.stoppedAt.Sub(s.startedAt),
	}
}

// caller must hold s.mu
func (s *Session) positionList() []ledger.Position {
	out := make([]ledger.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// caller must hold s.mu
func (s *Session) tradeList() []schema.Trade {
	out := make([]schema.Trade, len(s.trades))
	copy(out, s.trades)
	return out
}

// caller must hold s.mu
func (s *Session) unrealizedPnl() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range s.positions {
		total = total.Add(pos.CalculatePnl())
	}
	return total
}
