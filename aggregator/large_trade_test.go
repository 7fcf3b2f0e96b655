package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"atrade/bus"
	"atrade/schema"
)

// TestLargeTradeThresholdFilter verifies that a 25,000 USD trade is dropped
// and a 5,000,000 USD trade is emitted with side=buy, is_buyer_maker=false,
// given a 100,000 USD threshold.
func TestLargeTradeThresholdFilter(t *testing.T) {
	b := bus.New(10)
	sub := b.Subscribe(topicLargeTrade)
	defer b.Unsubscribe(sub)

	agg := NewLargeTradeAggregator(b, LargeTradeConfig{ThresholdUSD: 100_000})

	dropped := schema.LargeTrade{
		Base:     schema.Base{Exchange: "binance", Symbol: "BTCUSDT", Timestamp: time.Now()},
		Side:     schema.SideBuy,
		Price:    50_000,
		Quantity: 0.5,
		Value:    25_000,
	}
	emitted := schema.LargeTrade{
		Base:         schema.Base{Exchange: "binance", Symbol: "BTCUSDT", Timestamp: time.Now()},
		Side:         schema.SideBuy,
		Price:        50_000,
		Quantity:     100,
		Value:        5_000_000,
		IsBuyerMaker: false,
	}

	agg.publish("binance", dropped)
	agg.publish("binance", emitted)

	select {
	case ev := <-sub.Events():
		lt, ok := ev.Payload.(schema.LargeTrade)
		require.True(t, ok)
		require.Equal(t, emitted.Value, lt.Value)
		require.Equal(t, schema.SideBuy, lt.Side)
		require.False(t, lt.IsBuyerMaker)
	case <-time.After(time.Second):
		t.Fatal("expected one emitted event")
	}

	select {
	case ev := <-sub.Events():
		t.Fatalf("expected no second event, got %+v", ev)
	default:
	}
}

// TestLiquidationServiceThresholdIsLowerBound verifies that every emitted
// record on the liquidation topic has value >= the configured service
// threshold.
func TestLiquidationServiceThresholdIsLowerBound(t *testing.T) {
	b := bus.New(10)
	sub := b.Subscribe(topicLiquidation)
	defer b.Unsubscribe(sub)

	agg := NewLiquidationAggregator(b, LiquidationConfig{MinValueUSD: 50_000}, nil)

	below := schema.Liquidation{
		Base: schema.Base{Exchange: "okx", Symbol: "ETHUSDT"},
		Side: schema.SideSell, Price: 1000, Quantity: 10, Value: 10_000,
	}
	above := schema.Liquidation{
		Base: schema.Base{Exchange: "okx", Symbol: "ETHUSDT"},
		Side: schema.SideSell, Price: 1000, Quantity: 100, Value: 100_000,
	}

	agg.publish("okx", below)
	agg.publish("okx", above)

	select {
	case ev := <-sub.Events():
		liq := ev.Payload.(schema.Liquidation)
		require.GreaterOrEqual(t, liq.Value, 50_000.0)
	case <-time.After(time.Second):
		t.Fatal("expected one emitted event")
	}
}
