package session

import (
	"context"

	"github.com/yanun0323/logs"

	"livetrade/internal/ledger"
	"livetrade/internal/schema"
)

// Listener receives session events. Calls for one session arrive in commit
// order on that session's notifier goroutine, never under the session lock.
type Listener interface {
	OnTrade(trade schema.Trade)
	OnPositionUpdate(pos ledger.Position)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Trade    func(trade schema.Trade)
	Position func(pos ledger.Position)
}

func (f ListenerFuncs) OnTrade(trade schema.Trade) {
	if f.Trade != nil {
		f.Trade(trade)
	}
}

func (f ListenerFuncs) OnPositionUpdate(pos ledger.Position) {
	if f.Position != nil {
		f.Position(pos)
	}
}

type multiListener []Listener

func (m multiListener) OnTrade(trade schema.Trade) {
	for _, l := range m {
		l.OnTrade(trade)
	}
}

func (m multiListener) OnPositionUpdate(pos ledger.Position) {
	for _, l := range m {
		l.OnPositionUpdate(pos)
	}
}

func combineListeners(ls ...Listener) Listener {
	out := make(multiListener, 0, len(ls))
	for _, l := range ls {
		if l != nil {
			out = append(out, l)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return out
	}
}

type notification struct {
	trade    *schema.Trade
	position *ledger.Position
}

// runNotifier delivers queued events until the queue is closed and drained.
func (s *Session) runNotifier(l Listener) {
	defer close(s.done)
	s.notify.Run(context.Background(), func(n notification) {
		deliver(s.id, l, n)
	})
}

func deliver(sessionID string, l Listener, n notification) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("session %s listener panicked, err: %+v", sessionID, r)
		}
	}()
	if n.trade != nil {
		l.OnTrade(*n.trade)
	}
	if n.position != nil {
		l.OnPositionUpdate(*n.position)
	}
}

// caller must hold s.mu
func (s *Session) publishTrade(trade schema.Trade, m Metrics) {
	s.publish(notification{trade: &trade}, m)
}

// caller must hold s.mu
func (s *Session) publishPosition(pos ledger.Position, m Metrics) {
	s.publish(notification{position: &pos}, m)
}

func (s *Session) publish(n notification, m Metrics) {
	if s.notify == nil {
		return
	}
	if err := s.notify.TryPublish(n); err != nil {
		m.IncNotifyDrop()
	}
}
