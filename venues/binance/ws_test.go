package binance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atrade/schema"
)

// TestParseKlineNormalization verifies a raw Binance kline frame normalizes
// into the shared Candle schema with the correct exchange tag, interval,
// UTC timestamp, and OHLCV fields.
func TestParseKlineNormalization(t *testing.T) {
	raw := []byte(`{"e":"kline","k":{"t":1704110400000,"s":"BTCUSDT","i":"1m","o":"50000","h":"50100","l":"49900","c":"50050","v":"1.0","q":"50025","n":3,"x":false}}`)

	ev, ok := parseKline(raw)
	require.True(t, ok)
	assert.Equal(t, "ohlc", ev.Type)

	candle, ok := ev.Payload.(schema.Candle)
	require.True(t, ok)
	assert.Equal(t, "binance", candle.Exchange)
	assert.Equal(t, "BTCUSDT", candle.Symbol)
	assert.Equal(t, "1m", candle.Interval)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), candle.Timestamp)
	assert.InDelta(t, 50000, candle.Open, 1e-9)
	assert.InDelta(t, 50100, candle.High, 1e-9)
	assert.InDelta(t, 49900, candle.Low, 1e-9)
	assert.InDelta(t, 50050, candle.Close, 1e-9)
	assert.InDelta(t, 1.0, candle.Volume, 1e-9)
	assert.InDelta(t, 50025, candle.QuoteVolume, 1e-9)
	assert.EqualValues(t, 3, candle.TradesCount)
	assert.False(t, candle.IsClosed)
	require.NoError(t, candle.Validate())
}

// TestParseAggTradeSideAndValue verifies aggTrade side derivation and
// value computation. Threshold filtering itself lives in the aggregator
// package and is covered there.
func TestParseAggTradeSideAndValue(t *testing.T) {
	dropped := []byte(`{"e":"aggTrade","s":"BTCUSDT","p":"50000","q":"0.5","T":1704110400000,"m":false}`)
	emitted := []byte(`{"e":"aggTrade","s":"BTCUSDT","p":"50000","q":"100","T":1704110400000,"m":false}`)

	ev, ok := parseAggTrade(dropped)
	require.True(t, ok)
	lt := ev.Payload.(schema.LargeTrade)
	assert.InDelta(t, 25_000, lt.Value, 1e-6)
	assert.Equal(t, schema.SideBuy, lt.Side)
	assert.False(t, lt.IsBuyerMaker)

	ev, ok = parseAggTrade(emitted)
	require.True(t, ok)
	lt = ev.Payload.(schema.LargeTrade)
	assert.InDelta(t, 5_000_000, lt.Value, 1e-6)
	assert.Equal(t, schema.SideBuy, lt.Side)
	assert.False(t, lt.IsBuyerMaker)
}

func TestParseForceOrderHandlesWrappedAndBareFrames(t *testing.T) {
	wrapped := []byte(`{"data":{"e":"forceOrder","o":{"s":"ETHUSDT","S":"SELL","p":"3000","q":"2","T":1704110400000}}}`)
	bare := []byte(`{"e":"forceOrder","o":{"s":"ETHUSDT","S":"BUY","p":"3000","q":"2","T":1704110400000}}`)

	ev, ok := parseForceOrder(wrapped)
	require.True(t, ok)
	liq := ev.Payload.(schema.Liquidation)
	assert.Equal(t, schema.SideSell, liq.Side)
	assert.InDelta(t, 6000, liq.Value, 1e-6)

	ev, ok = parseForceOrder(bare)
	require.True(t, ok)
	liq = ev.Payload.(schema.Liquidation)
	assert.Equal(t, schema.SideBuy, liq.Side)
}
