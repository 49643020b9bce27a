package main

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetrade/internal/schema"
)

func TestReadTicks(t *testing.T) {
	ticks, err := readTicks(strings.NewReader(`symbol,price,timestamp
# comment
AAPL,150.25,2024-01-02T14:30:00Z
msft, 310,1704205800
AAPL,151,1704205800000
AAPL,152
`))
	require.NoError(t, err)
	require.Len(t, ticks, 4)

	assert.Equal(t, "AAPL", ticks[0].Symbol)
	assert.True(t, decimal.RequireFromString("150.25").Equal(ticks[0].Price))
	assert.Equal(t, time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC), ticks[0].Timestamp)
	assert.Equal(t, "msft", ticks[1].Symbol)
	assert.Equal(t, time.Unix(1704205800, 0).UTC(), ticks[1].Timestamp)
	assert.Equal(t, time.UnixMilli(1704205800000).UTC(), ticks[2].Timestamp)
	assert.True(t, ticks[3].Timestamp.IsZero())
}

func TestReadTicksErrors(t *testing.T) {
	testCases := []struct {
		desc string
		doc  string
	}{
		{"missing price", "AAPL\n"},
		{"bad price", "AAPL,abc\n"},
		{"bad timestamp", "AAPL,1,yesterday\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := readTicks(strings.NewReader(tc.doc))
			require.Error(t, err)
		})
	}
}

func crossingFeed() []schema.Tick {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "AAPL,10,%d\n", 1704205800+i)
	}
	b.WriteString("AAPL,20,1704205820\n")
	b.WriteString("AAPL,0,1704205821\n")
	ticks, _ := readTicks(strings.NewReader(b.String()))
	return ticks
}

func TestReplaySMACrossover(t *testing.T) {
	ticks := crossingFeed()
	require.Len(t, ticks, 22)

	res, err := replay(context.Background(), replayConfig{
		StrategyID:     "sma-crossover",
		InitialCapital: decimal.NewFromInt(100000),
		PositionSize:   decimal.NewFromInt(100),
	}, ticks)
	require.NoError(t, err)

	assert.Len(t, res.Results, 22)
	assert.Equal(t, 1, res.TickErrors)
	assert.Equal(t, schema.SignalBuy, res.Results[20].Signal)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, schema.SideBuy, res.Trades[0].Side)
	assert.True(t, decimal.NewFromInt(20).Equal(res.Trades[0].Price))
	assert.Equal(t, 1, res.Summary.TotalTrades)
	assert.Equal(t, 1, res.Summary.OpenPositions)
	assert.True(t, res.Summary.TotalPnl.IsZero())
}

func TestReplayLiquidates(t *testing.T) {
	res, err := replay(context.Background(), replayConfig{
		StrategyID:      "sma-crossover",
		InitialCapital:  decimal.NewFromInt(100000),
		PositionSize:    decimal.NewFromInt(5),
		LiquidateOnStop: true,
	}, crossingFeed())
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)
	assert.Equal(t, schema.SideSell, res.Trades[1].Side)
	assert.Equal(t, 0, res.Summary.OpenPositions)
	assert.True(t, decimal.NewFromInt(5).Equal(res.Trades[1].Quantity))
}

func TestReplayRejectsBadInput(t *testing.T) {
	_, err := replay(context.Background(), replayConfig{
		StrategyID:     "sma-crossover",
		InitialCapital: decimal.NewFromInt(100000),
	}, crossingFeed())
	require.Error(t, err)

	_, err = replay(context.Background(), replayConfig{
		StrategyID:     "unknown",
		InitialCapital: decimal.NewFromInt(100000),
		PositionSize:   decimal.NewFromInt(1),
	}, crossingFeed())
	require.Error(t, err)
}

func TestReplayReportsEveryTrade(t *testing.T) {
	var b strings.Builder
	ts := 1704205800
	for cycle := 0; cycle < 40; cycle++ {
		for _, price := range []int{10, 20, 5} {
			for i := 0; i < 25; i++ {
				fmt.Fprintf(&b, "AAPL,%d,%d\n", price, ts)
				ts++
			}
		}
	}
	ticks, err := readTicks(strings.NewReader(b.String()))
	require.NoError(t, err)

	res, err := replay(context.Background(), replayConfig{
		StrategyID:      "sma-crossover",
		InitialCapital:  decimal.NewFromInt(100000),
		PositionSize:    decimal.NewFromInt(1),
		LiquidateOnStop: true,
	}, ticks)
	require.NoError(t, err)

	assert.Zero(t, res.TickErrors)
	assert.Greater(t, len(res.Trades), 40)
	assert.Len(t, res.Trades, res.Summary.TotalTrades)
	assert.Equal(t, 0, res.Summary.OpenPositions)
}
