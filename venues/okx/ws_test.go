package okx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atrade/schema"
)

func TestParseLiquidationStripsInstIdHyphens(t *testing.T) {
	raw := []byte(`{"arg":{"channel":"liquidation-orders","instType":"SWAP"},"data":[{"instId":"BTC-USDT-SWAP","details":[{"side":"sell","sz":"2","bkPx":"50000","ts":"1704110400000"}]}]}`)
	events, ok := parse(raw)
	require.True(t, ok)
	require.Len(t, events, 1)

	liq := events[0].Payload.(schema.Liquidation)
	assert.Equal(t, "BTCUSDT", liq.Symbol)
	assert.Equal(t, schema.SideSell, liq.Side)
	assert.InDelta(t, 100_000, liq.Value, 1e-6)
	require.NoError(t, liq.Validate())
}
