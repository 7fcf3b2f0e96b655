package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandleValidate(t *testing.T) {
	cases := []struct {
		name    string
		candle  Candle
		wantErr bool
	}{
		{
			name: "valid in-progress candle",
			candle: Candle{
				Base:   Base{Exchange: "binance", Symbol: "BTCUSDT", Timestamp: time.Unix(1704110400, 0).UTC()},
				Interval: "1m", Open: 50000, High: 50100, Low: 49900, Close: 50050,
				Volume: 1.0, QuoteVolume: 50025, TradesCount: 3, IsClosed: false,
			},
			wantErr: false,
		},
		{
			name: "low above min(open,close)",
			candle: Candle{
				Base:   Base{Exchange: "binance", Symbol: "BTCUSDT"},
				Open: 100, Close: 110, Low: 105, High: 120,
			},
			wantErr: true,
		},
		{
			name: "high below max(open,close)",
			candle: Candle{
				Base:   Base{Exchange: "binance", Symbol: "BTCUSDT"},
				Open: 100, Close: 110, Low: 90, High: 105,
			},
			wantErr: true,
		},
		{
			name: "negative volume",
			candle: Candle{
				Base:   Base{Exchange: "binance", Symbol: "BTCUSDT"},
				Open: 1, Close: 1, Low: 1, High: 1, Volume: -1,
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.candle.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLargeTradeValueTolerance(t *testing.T) {
	lt := LargeTrade{
		Base:     Base{Exchange: "binance", Symbol: "BTCUSDT"},
		Side:     SideBuy,
		Price:    50000,
		Quantity: 100,
		Value:    5_000_000,
	}
	require.NoError(t, lt.Validate())

	bad := lt
	bad.Value = 1 // grossly diverges from price*quantity
	require.Error(t, bad.Validate())
}

func TestLiquidationInvalidSide(t *testing.T) {
	l := Liquidation{
		Base:  Base{Exchange: "okx", Symbol: "BTCUSDT"},
		Side:  "unknown",
		Price: 1, Quantity: 1, Value: 1,
	}
	require.Error(t, l.Validate())
}

func TestEventEnvelopeMergesType(t *testing.T) {
	ev := Event{
		Type: "liquidation",
		Payload: Liquidation{
			Base:  Base{Exchange: "binance", Symbol: "BTCUSDT", Timestamp: time.Unix(1, 0).UTC()},
			Side:  SideSell,
			Price: 100, Quantity: 2, Value: 200,
		},
	}
	m := ev.Envelope()
	assert.Equal(t, "liquidation", m["type"])
	assert.Equal(t, "binance", m["exchange"])
	assert.Equal(t, "BTCUSDT", m["symbol"])
}
