package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetrade/internal/errors"
	"livetrade/internal/ledger"
	"livetrade/internal/obs"
	"livetrade/internal/schema"
	"livetrade/internal/session"
	"livetrade/internal/strategy"
	"livetrade/pkg/exception"
)

type priceRule map[string]schema.Signal

func (p priceRule) Evaluate(tick schema.Tick) schema.Signal {
	return p[tick.Price.String()]
}

type fixture struct {
	srv     *httptest.Server
	hub     *Hub
	metrics *obs.Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo, err := strategy.NewMemoryRepository(strategy.Definition{ID: "cross", Name: "Price Cross", Type: strategy.TypeCustom, IsActive: true})
	require.NoError(t, err)

	hub := NewHub()
	metrics := obs.NewMetrics()
	tracer := obs.NewTracer(16)
	reg, err := session.NewRegistry(repo, session.Config{
		Builder: func(strategy.Definition) (session.Strategy, error) {
			return priceRule{"150": schema.SignalBuy, "160": schema.SignalSell}, nil
		},
		Metrics:  metrics,
		Tracer:   tracer,
		Observer: hub.Listener,
	})
	require.NoError(t, err)

	s, err := New(Config{Sessions: reg, Strategies: repo, Metrics: metrics, Tracer: tracer, Hub: hub})
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = reg.Close(context.Background())
	})
	return fixture{srv: srv, hub: hub, metrics: metrics}
}

func (f fixture) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f fixture) startSession(t *testing.T) string {
	t.Helper()
	var started startSessionResponse
	code := f.do(t, http.MethodPost, "/api/sessions", `{"strategy_id":"cross","symbols":["AAPL"],"initial_capital":"100000"}`, &started)
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, started.SessionID)
	return started.SessionID
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s but got %s", want, got)
}

func TestNewRequiresSessions(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrNilSessions)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	id := f.startSession(t)

	var health healthResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "", &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.ActiveSessions)

	var result session.TickResult
	code := f.do(t, http.MethodPost, "/api/sessions/"+id+"/ticks", `{"symbol":"AAPL","price":150}`, &result)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, schema.SignalBuy, result.Signal)
	require.NotNil(t, result.Trade)
	assert.Equal(t, schema.SideBuy, result.Trade.Side)

	var positions []ledger.Position
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/sessions/"+id+"/positions", "", &positions))
	require.Len(t, positions, 1)
	assertDecimal(t, "100", positions[0].Quantity)

	code = f.do(t, http.MethodPost, "/api/sessions/"+id+"/ticks", `{"symbol":"AAPL","price":"160"}`, &result)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, result.Trade)
	assertDecimal(t, "1000", result.Trade.RealizedPnl)

	var status session.StatusSnapshot
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/sessions/"+id, "", &status))
	assert.Equal(t, schema.StatusActive, status.Status)
	assertDecimal(t, "101000", status.CurrentCapital)
	assert.Equal(t, 2, status.TotalTrades)

	var list []session.StatusSnapshot
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/sessions", "", &list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	var trades []schema.Trade
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/sessions/"+id+"/trades", "", &trades))
	require.Len(t, trades, 2)
	assert.Equal(t, schema.SideSell, trades[1].Side)

	var summary session.Summary
	require.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/api/sessions/"+id, "", &summary))
	assertDecimal(t, "1000", summary.TotalPnl)
	assertDecimal(t, "1", summary.TotalReturnPct)
	assert.Equal(t, 2, summary.TotalTrades)

	var errResp errorResponse
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/sessions/"+id, "", &errResp))
	assert.NotEmpty(t, errResp.Error)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/sessions/"+id, "", &errResp))

	var metrics metricsResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", "", &metrics))
	assert.Equal(t, uint64(2), metrics.Counters[obs.TradesTotal])
	assert.Equal(t, uint64(1), metrics.Spans[session.SpanStopSession].Count)
}

func TestSignalEndpoint(t *testing.T) {
	f := newFixture(t)
	id := f.startSession(t)

	var resp signalResponse
	code := f.do(t, http.MethodPost, "/api/sessions/"+id+"/signals", `{"symbol":"AAPL","signal":"BUY","price":"120.5"}`, &resp)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Executed)
	require.NotNil(t, resp.Trade)
	assertDecimal(t, "120.5", resp.Trade.Price)

	resp = signalResponse{}
	code = f.do(t, http.MethodPost, "/api/sessions/"+id+"/signals", `{"symbol":"AAPL","signal":"HOLD","price":"120.5"}`, &resp)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, resp.Executed)
	assert.Nil(t, resp.Trade)
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)
	id := f.startSession(t)

	testCases := []struct {
		desc   string
		method string
		path   string
		body   string
		code   int
	}{
		{"malformed body", http.MethodPost, "/api/sessions", `{"symbols":`, http.StatusBadRequest},
		{"no symbols", http.MethodPost, "/api/sessions", `{"strategy_id":"cross","initial_capital":"10"}`, http.StatusBadRequest},
		{"zero capital", http.MethodPost, "/api/sessions", `{"strategy_id":"cross","symbols":["AAPL"],"initial_capital":"0"}`, http.StatusBadRequest},
		{"unknown strategy", http.MethodPost, "/api/sessions", `{"strategy_id":"nope","symbols":["AAPL"],"initial_capital":"10"}`, http.StatusNotFound},
		{"unknown session tick", http.MethodPost, "/api/sessions/nope/ticks", `{"symbol":"AAPL","price":"150"}`, http.StatusNotFound},
		{"unmonitored symbol", http.MethodPost, "/api/sessions/" + id + "/ticks", `{"symbol":"TSLA","price":"150"}`, http.StatusBadRequest},
		{"zero price", http.MethodPost, "/api/sessions/" + id + "/ticks", `{"symbol":"AAPL","price":"0"}`, http.StatusBadRequest},
		{"unknown signal", http.MethodPost, "/api/sessions/" + id + "/signals", `{"symbol":"AAPL","signal":"FLIP","price":"1"}`, http.StatusBadRequest},
		{"unknown session positions", http.MethodGet, "/api/sessions/nope/positions", "", http.StatusNotFound},
		{"unknown session trades", http.MethodGet, "/api/sessions/nope/trades", "", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			var resp errorResponse
			assert.Equal(t, tc.code, f.do(t, tc.method, tc.path, tc.body, &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestStatusFor(t *testing.T) {
	testCases := []struct {
		desc string
		err  error
		code int
	}{
		{"validation", errors.Wrap(exception.ErrNonPositivePrice, "tick"), http.StatusBadRequest},
		{"not found", errors.Wrap(exception.ErrSessionNotFound, "lookup"), http.StatusNotFound},
		{"strategy not found", exception.ErrStrategyNotFound, http.StatusNotFound},
		{"state", exception.ErrSessionStopped, http.StatusConflict},
		{"over reduction", &ledger.OverReductionError{Symbol: "AAPL"}, http.StatusConflict},
		{"risk", fmt.Errorf("gate: %w", exception.ErrRiskRejected), http.StatusConflict},
		{"panic", exception.ErrStrategyPanic, http.StatusInternalServerError},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.code, statusFor(tc.err))
		})
	}
}

func TestListStrategies(t *testing.T) {
	f := newFixture(t)
	var defs []strategy.Definition
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/strategies", "", &defs))
	require.Len(t, defs, 1)
	assert.Equal(t, "cross", defs[0].ID)
}

func TestStreamForwardsSessionEvents(t *testing.T) {
	f := newFixture(t)
	id := f.startSession(t)
	other := f.startSession(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/stream?session_id=" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/sessions/"+other+"/ticks", `{"symbol":"AAPL","price":"150"}`, nil))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/sessions/"+id+"/ticks", `{"symbol":"AAPL","price":"150"}`, nil))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first, second Event
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))

	assert.Equal(t, EventTrade, first.Type)
	assert.Equal(t, id, first.SessionID)
	data, ok := first.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "BUY", data["side"])
	assert.Equal(t, "AAPL", data["symbol"])

	assert.Equal(t, EventPosition, second.Type)
	assert.Equal(t, id, second.SessionID)

	conn.Close()
	require.Eventually(t, func() bool { return f.hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := newHub[int]()
	sub := h.Subscribe(1)
	h.Broadcast(1)
	h.Broadcast(2)
	assert.Equal(t, 1, <-sub.ch)
	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	_, ok := <-sub.ch
	assert.False(t, ok)
	assert.Zero(t, h.Len())
}
