package hyperliquid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atrade/schema"
)

func TestParseTradesSideDerivation(t *testing.T) {
	buy := []byte(`[{"coin":"BTC","px":"50000","sz":"0.1","side":"B","time":1704110400000}]`)
	sell := []byte(`[{"coin":"BTC","px":"50000","sz":"0.1","side":"A","time":1704110400000}]`)

	ev, ok := parseTrades(buy)
	require.True(t, ok)
	lt := ev.Payload.(schema.LargeTrade)
	assert.Equal(t, schema.SideBuy, lt.Side)
	assert.False(t, lt.IsBuyerMaker)

	ev, ok = parseTrades(sell)
	require.True(t, ok)
	lt = ev.Payload.(schema.LargeTrade)
	assert.Equal(t, schema.SideSell, lt.Side)
	assert.True(t, lt.IsBuyerMaker)
}

func TestParseCandleUsesCoinSymbol(t *testing.T) {
	raw := []byte(`{"t":1704110400000,"s":"BTC","i":"1m","o":"50000","h":"50100","l":"49900","c":"50050","v":"1.0","n":3}`)
	ev, ok := parseCandle(raw)
	require.True(t, ok)
	candle := ev.Payload.(schema.Candle)
	assert.Equal(t, "BTC", candle.Symbol)
	assert.Equal(t, "hyperliquid", candle.Exchange)
}

func TestNewCandleMultiNormalizesPairsToCoins(t *testing.T) {
	c := NewCandleMulti([]string{"BTCUSDT", "ETH"}, "1m", 30)
	assert.Equal(t, []string{"BTC", "ETH"}, c.coins)
}
