package bybit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atrade/schema"
)

func TestParseKlineTopic(t *testing.T) {
	raw := []byte(`{"topic":"kline.1.BTCUSDT","type":"snapshot","data":[{"start":1704110400000,"interval":"1","open":"50000","high":"50100","low":"49900","close":"50050","volume":"1.0","turnover":"50025","confirm":false}]}`)
	ev, ok := parse(KindKline, raw)
	require.True(t, ok)
	candle := ev.Payload.(schema.Candle)
	assert.Equal(t, "BTCUSDT", candle.Symbol)
	assert.Equal(t, "bybit", candle.Exchange)
	require.NoError(t, candle.Validate())
}

func TestParseTradesAlwaysReportsNonMaker(t *testing.T) {
	raw := []byte(`{"topic":"publicTrade.BTCUSDT","type":"snapshot","data":[{"T":1704110400000,"S":"Sell","v":"0.2","p":"50000"}]}`)
	ev, ok := parse(KindPublicTrade, raw)
	require.True(t, ok)
	lt := ev.Payload.(schema.LargeTrade)
	assert.Equal(t, schema.SideSell, lt.Side)
	assert.False(t, lt.IsBuyerMaker)
}

func TestNewTopicsForSymbolsBuildsUppercaseTopics(t *testing.T) {
	topics := newTopicsForSymbols(KindLiquidation, []string{"btcusdt", "ethusdt"}, "")
	assert.Equal(t, []string{"allLiquidation.BTCUSDT", "allLiquidation.ETHUSDT"}, topics)
}

func TestWithTopicsReplacesInPlace(t *testing.T) {
	c := NewLiquidationBatch(nil, 30)
	c.WithTopics([]string{"solusdt"}, "")
	assert.Equal(t, []string{"allLiquidation.SOLUSDT"}, c.topics)
}
