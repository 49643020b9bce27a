package session

import (
	"context"
	"time"

	"livetrade/internal/errors"
	"livetrade/internal/schema"
	"livetrade/pkg/exception"
)

// Strategy produces a signal for every tick of a monitored symbol. Each
// session owns its own Strategy and calls it under the session lock.
type Strategy interface {
	Evaluate(tick schema.Tick) schema.Signal
}

// ProcessTick applies one price tick to a session: it marks the open
// position, evaluates the strategy, and executes a non-HOLD signal.
func (r *Registry) ProcessTick(ctx context.Context, sessionID string, tick schema.Tick) (TickResult, error) {
	start := time.Now()
	result, err := r.processTick(ctx, sessionID, tick)
	r.cfg.Metrics.IncTicks()
	if err != nil {
		r.cfg.Metrics.IncTickErrors()
	}
	r.cfg.Metrics.ObserveTick(time.Since(start))
	return result, err
}

func (r *Registry) processTick(ctx context.Context, sessionID string, tick schema.Tick) (TickResult, error) {
	if err := ctx.Err(); err != nil {
		return TickResult{}, err
	}

	s, err := r.lookup(sessionID)
	if err != nil {
		return TickResult{}, err
	}

	tick.Symbol = schema.NormalizeSymbol(tick.Symbol)
	if tick.Timestamp.IsZero() {
		tick.Timestamp = r.cfg.Clock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// lost the race with StopSession
	if s.status != schema.StatusActive {
		return TickResult{}, errors.Wrapf(exception.ErrSessionNotFound, "tick for %s", sessionID)
	}

	if !tick.Price.IsPositive() {
		return TickResult{}, errors.Wrapf(exception.ErrNonPositivePrice, "tick %s price %s", tick.Symbol, tick.Price)
	}

	if !s.symbols.Contains(tick.Symbol) {
		return TickResult{}, errors.Wrapf(exception.ErrSymbolNotMonitored, "session %s symbol %s", s.id, tick.Symbol)
	}

	result := TickResult{SessionID: s.id, Symbol: tick.Symbol, Signal: schema.SignalHold}

	if pos, ok := s.positions[tick.Symbol]; ok {
		marked, err := pos.UpdatePrice(tick.Price, tick.Timestamp)
		if err != nil {
			return result, err
		}
		s.positions[tick.Symbol] = marked
		s.publishPosition(marked, r.cfg.Metrics)
		result.Position = &marked
	}

	signal, err := s.evaluate(tick)
	if err != nil {
		return result, err
	}
	result.Signal = signal

	trade, executed, err := r.execute(s, tick.Symbol, signal, tick.Price, tick.Timestamp)
	if err != nil || !executed {
		return result, err
	}

	result.Trade = &trade
	result.Position = nil
	if pos, ok := s.positions[tick.Symbol]; ok {
		result.Position = &pos
	}
	return result, nil
}

// evaluate runs the strategy. A panic fails this tick only.
// caller must hold s.mu
func (s *Session) evaluate(tick schema.Tick) (signal schema.Signal, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			signal = schema.SignalHold
			err = errors.Wrapf(exception.ErrStrategyPanic, "session %s symbol %s: %v", s.id, tick.Symbol, rec)
		}
	}()

	signal = s.strategy.Evaluate(tick)
	if !signal.Valid() {
		return schema.SignalHold, errors.Wrapf(exception.ErrInvalidSignal, "session %s strategy %s returned %s", s.id, s.strategyID, signal)
	}
	return signal, nil
}
