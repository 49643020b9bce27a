package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"livetrade/internal/errors"
	"livetrade/internal/ledger"
	"livetrade/internal/obs"
	"livetrade/internal/schema"
	"livetrade/internal/session"
	"livetrade/pkg/exception"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 5 * time.Second
)

type startSessionRequest struct {
	StrategyID     string          `json:"strategy_id"`
	Symbols        []string        `json:"symbols"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
}

type startSessionResponse struct {
	SessionID string `json:"session_id"`
}

type signalRequest struct {
	Symbol    string          `json:"symbol"`
	Signal    schema.Signal   `json:"signal"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

type signalResponse struct {
	Executed bool          `json:"executed"`
	Trade    *schema.Trade `json:"trade,omitempty"`
}

type healthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
	Subscribers    int    `json:"subscribers"`
}

type metricsResponse struct {
	obs.Snapshot
	Spans map[string]obs.LatencySnapshot `json:"spans"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		ActiveSessions: len(s.sessions.ListActiveSessions()),
		Subscribers:    s.hub.Subscribers(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metricsResponse{
		Snapshot: s.metrics.Snapshot(),
		Spans: map[string]obs.LatencySnapshot{
			session.SpanStartSession: s.tracer.Latency(session.SpanStartSession),
			session.SpanStopSession:  s.tracer.Latency(session.SpanStopSession),
		},
	})
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	if s.strategies == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	defs, err := s.strategies.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !decode(w, r, &req) {
		return
	}

	id, err := s.sessions.StartSession(r.Context(), session.StartRequest{
		StrategyID:     req.StrategyID,
		Symbols:        req.Symbols,
		InitialCapital: req.InitialCapital,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, startSessionResponse{SessionID: id})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.ListActiveSessions())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	status, err := s.sessions.GetSessionStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	summary, err := s.sessions.StopSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.sessions.Positions(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if positions == nil {
		positions = []ledger.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.sessions.Trades(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	var tick schema.Tick
	if !decode(w, r, &tick) {
		return
	}

	result, err := s.sessions.ProcessTick(r.Context(), chi.URLParam(r, "id"), tick)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if !decode(w, r, &req) {
		return
	}

	trade, executed, err := s.sessions.ExecuteSignal(r.Context(), chi.URLParam(r, "id"), req.Symbol, req.Signal, req.Price, req.Timestamp)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := signalResponse{Executed: executed}
	if executed {
		resp.Trade = &trade
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStream upgrades to a websocket and forwards hub events. The optional
// session_id query parameter filters events to one session.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("session_id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.hub.events.Subscribe(streamBuffer)
	defer s.hub.events.Unsubscribe(sub)

	// the reader only exists to notice the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-sub.ch:
			if !ok {
				return
			}
			if filter != "" && event.SessionID != filter {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid payload: %v", err)})
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, exception.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, exception.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, exception.ErrState),
		errors.Is(err, exception.ErrOverReduction),
		errors.Is(err, exception.ErrRiskRejected):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
