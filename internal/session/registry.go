package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"livetrade/internal/bus"
	"livetrade/internal/errors"
	"livetrade/internal/ledger"
	"livetrade/internal/obs"
	"livetrade/internal/risk"
	"livetrade/internal/schema"
	"livetrade/internal/strategy"
	"livetrade/pkg/exception"
)

const (
	SpanStartSession = "start_live_trading_session"
	SpanStopSession  = "stop_live_trading_session"

	DefaultNotifyBuffer = 1024
)

// Metrics is the counter sink of the registry. *obs.Metrics implements it.
type Metrics interface {
	IncSessionsStarted()
	IncSessionsStopped()
	IncTrades()
	IncTicks()
	IncTickErrors()
	IncRiskRejection(reason risk.Reason)
	IncNotifyDrop()
	ObserveTick(d time.Duration)
}

// Tracer opens spans around session lifecycle operations. *obs.Tracer
// implements it.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, obs.Span)
}

// StrategyRepository resolves strategy definitions by ID.
type StrategyRepository interface {
	FindByID(ctx context.Context, id string) (strategy.Definition, error)
}

// StrategyBuilder instantiates the evaluator a new session will own.
type StrategyBuilder func(def strategy.Definition) (Strategy, error)

// Config controls a Registry. Zero values fall back to defaults.
type Config struct {
	// Sizer sizes every fill. Defaults to FixedSize(DefaultPositionSize).
	Sizer Sizer
	// Risk limits applied to every session. Disabled when empty.
	Risk risk.Config
	// NotifyBuffer is the per-session callback queue capacity.
	NotifyBuffer int
	// LiquidateOnStop closes open positions at their last mark price before
	// the stop summary is computed.
	LiquidateOnStop bool

	Builder StrategyBuilder
	Metrics Metrics
	Tracer  Tracer
	// Observer, when set, returns a listener attached to every new session
	// next to the one in StartRequest.
	Observer func(sessionID string) Listener
	Clock    func() time.Time
	NewID    func() string
}

func (c Config) withDefaults() Config {
	if c.Sizer == nil {
		c.Sizer = FixedSize(DefaultPositionSize)
	}
	if c.NotifyBuffer <= 0 {
		c.NotifyBuffer = DefaultNotifyBuffer
	}
	if c.Builder == nil {
		c.Builder = buildStrategy
	}
	if c.Metrics == nil {
		c.Metrics = obs.NewMetrics()
	}
	if c.Tracer == nil {
		c.Tracer = obs.NewTracer(64)
	}
	if c.Clock == nil {
		c.Clock = func() time.Time { return time.Now().UTC() }
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	return c
}

func buildStrategy(def strategy.Definition) (Strategy, error) {
	evaluator, err := strategy.New(def)
	if err != nil {
		return nil, err
	}
	return evaluator, nil
}

// StartRequest describes a session to start.
type StartRequest struct {
	StrategyID     string
	Symbols        []string
	InitialCapital decimal.Decimal
	Listener       Listener
}

// Registry is the directory of active sessions.
type Registry struct {
	repo StrategyRepository
	cfg  Config

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry creates an empty registry resolving strategies from repo.
func NewRegistry(repo StrategyRepository, cfg Config) (*Registry, error) {
	if repo == nil {
		return nil, exception.ErrStrategyRepositoryNil
	}
	return &Registry{
		repo:     repo,
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*Session),
	}, nil
}

// StartSession validates req, resolves its strategy and registers a new
// ACTIVE session. It returns the session ID.
func (r *Registry) StartSession(ctx context.Context, req StartRequest) (id string, err error) {
	ctx, span := r.cfg.Tracer.Start(ctx, SpanStartSession)
	defer func() { span.End(err) }()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if len(req.Symbols) == 0 {
		return "", exception.ErrEmptySymbols
	}

	symbols, err := schema.NewSymbolSet(req.Symbols)
	if err != nil {
		return "", err
	}

	if !req.InitialCapital.IsPositive() {
		return "", errors.Wrapf(exception.ErrNonPositiveCapital, "initial capital %s", req.InitialCapital)
	}

	def, err := r.repo.FindByID(ctx, req.StrategyID)
	if err != nil {
		return "", errors.Wrapf(err, "start session with strategy %s", req.StrategyID)
	}

	evaluator, err := r.cfg.Builder(def)
	if err != nil {
		return "", errors.Wrapf(err, "build strategy %s", def.ID)
	}

	s := &Session{
		id:             r.cfg.NewID(),
		strategyID:     def.ID,
		strategyName:   def.Name,
		symbols:        symbols,
		initialCapital: req.InitialCapital,
		currentCapital: req.InitialCapital,
		positions:      make(map[string]ledger.Position, symbols.Len()),
		status:         schema.StatusActive,
		startedAt:      r.cfg.Clock(),
		strategy:       evaluator,
	}

	if r.cfg.Risk.Enabled() {
		s.risk = risk.NewEngine(r.cfg.Risk)
	}

	var observer Listener
	if r.cfg.Observer != nil {
		observer = r.cfg.Observer(s.id)
	}
	if listener := combineListeners(req.Listener, observer); listener != nil {
		s.notify = bus.NewQueue[notification](r.cfg.NotifyBuffer)
		s.done = make(chan struct{})
		go s.runNotifier(listener)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		s.closeNotifier(ctx)
		return "", exception.ErrRegistryClosed
	}
	r.sessions[s.id] = s
	r.mu.Unlock()

	r.cfg.Metrics.IncSessionsStarted()
	logs.Infof("live trading session started. id: %s, strategy: %s, symbols: %v, capital: %s", s.id, s.strategyID, symbols.Names(), s.initialCapital)
	return s.id, nil
}

// StopSession moves a session to STOPPED, removes it from the directory and
// returns its summary. Stopping twice fails with ErrSessionNotFound.
func (r *Registry) StopSession(ctx context.Context, id string) (summary Summary, err error) {
	ctx, span := r.cfg.Tracer.Start(ctx, SpanStopSession)
	defer func() { span.End(err) }()

	s, err := r.lookup(id)
	if err != nil {
		return Summary{}, err
	}
	return r.stop(ctx, s)
}

func (r *Registry) stop(ctx context.Context, s *Session) (Summary, error) {
	s.mu.Lock()
	if s.status != schema.StatusActive {
		s.mu.Unlock()
		return Summary{}, errors.Wrapf(exception.ErrSessionNotFound, "stop %s", s.id)
	}

	now := r.cfg.Clock()
	if r.cfg.LiquidateOnStop {
		if _, err := r.liquidate(s, now); err != nil {
			logs.Errorf("liquidate session %s, err: %+v", s.id, err)
		}
	}
	s.status = schema.StatusStopped
	s.stoppedAt = now
	summary := s.summary()
	s.mu.Unlock()

	r.mu.Lock()
	if r.sessions[s.id] == s {
		delete(r.sessions, s.id)
	}
	r.mu.Unlock()

	s.closeNotifier(ctx)

	r.cfg.Metrics.IncSessionsStopped()
	logs.Infof("live trading session stopped. id: %s, pnl: %s, return: %s%%, trades: %d, open positions: %d",
		s.id, summary.TotalPnl, summary.TotalReturnPct.StringFixed(2), summary.TotalTrades, summary.OpenPositions)
	return summary, nil
}

// closeNotifier drains pending callbacks, giving up when ctx is done.
func (s *Session) closeNotifier(ctx context.Context) {
	if s.notify == nil {
		return
	}
	s.notify.Close()
	select {
	case <-s.done:
	case <-ctx.Done():
	}
}

// GetSessionStatus returns a snapshot of an active session.
func (r *Registry) GetSessionStatus(id string) (StatusSnapshot, error) {
	s, err := r.lookup(id)
	if err != nil {
		return StatusSnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != schema.StatusActive {
		return StatusSnapshot{}, errors.Wrapf(exception.ErrSessionNotFound, "status %s", id)
	}
	return s.snapshot(), nil
}

// ListActiveSessions returns snapshots of every active session ordered by
// start time, then ID.
func (r *Registry) ListActiveSessions() []StatusSnapshot {
	sessions := r.active()
	out := make([]StatusSnapshot, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		if s.status == schema.StatusActive {
			out = append(out, s.snapshot())
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Positions returns the open positions of a session ordered by symbol.
func (r *Registry) Positions(id string) ([]ledger.Position, error) {
	s, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != schema.StatusActive {
		return nil, errors.Wrapf(exception.ErrSessionNotFound, "positions %s", id)
	}
	return s.positionList(), nil
}

// Trades returns the trade history of a session in execution order.
func (r *Registry) Trades(id string) ([]schema.Trade, error) {
	s, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != schema.StatusActive {
		return nil, errors.Wrapf(exception.ErrSessionNotFound, "trades %s", id)
	}
	return s.tradeList(), nil
}

// Close stops every active session and rejects new ones.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	var firstErr error
	for _, s := range r.active() {
		if _, err := r.stop(ctx, s); err != nil && !errors.Is(err, exception.ErrSessionNotFound) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Registry) lookup(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(exception.ErrSessionNotFound, "lookup %s", id)
	}
	return s, nil
}

func (r *Registry) active() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
