package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignal(t *testing.T) {
	testCases := []struct {
		desc     string
		input    string
		expected Signal
		wantErr  bool
	}{
		{"buy", "BUY", SignalBuy, false},
		{"lower sell", "sell", SignalSell, false},
		{"padded hold", "  hold ", SignalHold, false},
		{"empty is hold", "", SignalHold, false},
		{"unknown", "SHORT", SignalHold, true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := ParseSignal(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestSignalJSON(t *testing.T) {
	var s Signal
	require.NoError(t, json.Unmarshal([]byte(`"buy"`), &s))
	assert.Equal(t, SignalBuy, s)

	data, err := json.Marshal(SignalSell)
	require.NoError(t, err)
	assert.Equal(t, `"SELL"`, string(data))

	require.Error(t, json.Unmarshal([]byte(`"flip"`), &s))
}

func TestSignalSide(t *testing.T) {
	side, ok := SignalBuy.Side()
	assert.True(t, ok)
	assert.Equal(t, SideBuy, side)

	_, ok = SignalHold.Side()
	assert.False(t, ok)
	assert.Equal(t, SideSell, SideBuy.Opposite())
}

func TestSymbolSet(t *testing.T) {
	set, err := NewSymbolSet([]string{"aapl", " MSFT", "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"AAPL", "MSFT"}, set.Names())
	assert.True(t, set.Contains("msft "))
	assert.False(t, set.Contains("TSLA"))

	_, err = NewSymbolSet([]string{"AAPL", " "})
	require.Error(t, err)
}

func TestStatus(t *testing.T) {
	assert.False(t, StatusActive.IsTerminal())
	assert.True(t, StatusStopped.IsTerminal())
	assert.Equal(t, "STOPPED", StatusStopped.String())
}

func TestTickPriceAcceptsNumberAndString(t *testing.T) {
	testCases := []struct {
		desc  string
		input string
	}{
		{"number", `{"symbol":"AAPL","price":150.25}`},
		{"string", `{"symbol":"AAPL","price":"150.25"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			var tick Tick
			require.NoError(t, json.Unmarshal([]byte(tc.input), &tick))
			assert.Equal(t, "AAPL", tick.Symbol)
			assert.Equal(t, "150.25", tick.Price.String())
		})
	}
}
