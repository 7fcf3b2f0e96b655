package symbols

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToCoin(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT": "BTC",
		"ETH":     "ETH",
		"FOOUSDC": "FOO",
		"WEIRD":   "WEIRD",
	}
	for in, want := range cases {
		assert.Equal(t, want, ToCoin(in), in)
	}
}

func TestToCoinIdempotent(t *testing.T) {
	for _, in := range []string{"BTCUSDT", "ETH", "FOOUSDC", "WEIRD", "BTCBUSD"} {
		once := ToCoin(in)
		twice := ToCoin(once)
		assert.Equal(t, once, twice, "ToCoin should be idempotent for %s", in)
	}
}

func TestNormalizeTimestampRoundTrip(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	seconds := now.Unix()
	millis := now.UnixMilli()

	assert.True(t, NormalizeTimestamp(seconds).Equal(now))
	assert.True(t, NormalizeTimestamp(millis).Equal(now))
}

func TestBybitIntervalRoundTrip(t *testing.T) {
	for _, canonical := range []string{"1m", "5m", "1h", "1d"} {
		bybit := ToBybitInterval(canonical)
		assert.Equal(t, canonical, FromBybitInterval(bybit))
	}
}

func TestUnknownIntervalDegradesToDefault(t *testing.T) {
	assert.Equal(t, "1m", ToBinanceInterval("9x"))
	assert.Equal(t, bybitIntervalMap["1m"], ToBybitInterval("9x"))
	assert.Equal(t, "1m", ToHyperliquidInterval("9x"))
}
