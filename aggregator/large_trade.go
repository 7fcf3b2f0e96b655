package aggregator

import (
	"context"

	"atrade/bus"
	"atrade/logger"
	"atrade/metrics"
	"atrade/schema"
	"atrade/venues/binance"
	"atrade/venues/bybit"
	"atrade/venues/hyperliquid"
)

const topicLargeTrade = "large_trade"

var largeTradeLog = logger.With("aggregator.large_trade")

// LargeTradeConfig 是大单聚合服务的可调参数。
type LargeTradeConfig struct {
	ThresholdUSD      float64
	MaxBackoffSeconds int
	Symbols           []string // 交易对形式，如 BTCUSDT
}

// LargeTradeAggregator 聚合 Binance（每交易对一条连接）、Bybit（多主题批量）
// 与 Hyperliquid（多币种单连接）的大单成交流。
type LargeTradeAggregator struct {
	bus *bus.Bus
	cfg LargeTradeConfig
}

// NewLargeTradeAggregator 构造大单聚合服务。
func NewLargeTradeAggregator(b *bus.Bus, cfg LargeTradeConfig) *LargeTradeAggregator {
	if cfg.ThresholdUSD <= 0 {
		cfg.ThresholdUSD = 100_000
	}
	if cfg.MaxBackoffSeconds <= 0 {
		cfg.MaxBackoffSeconds = 30
	}
	return &LargeTradeAggregator{bus: b, cfg: cfg}
}

// Start 启动每交易所的大单采集任务。
func (a *LargeTradeAggregator) Start(ctx context.Context) {
	for _, sym := range a.cfg.Symbols {
		go a.runBinanceSymbol(ctx, sym)
	}
	go a.runBybit(ctx)
	go a.runHyperliquid(ctx)
}

func (a *LargeTradeAggregator) publish(exchange string, lt schema.LargeTrade) {
	if lt.Value < a.cfg.ThresholdUSD {
		return
	}
	a.bus.Publish(topicLargeTrade, schema.Event{Type: "large_trade", Payload: lt})
	metrics.AggregatorEventsTotal.WithLabelValues("large_trade", exchange).Inc()
}

func (a *LargeTradeAggregator) runBinanceSymbol(ctx context.Context, symbol string) {
	client := binance.NewAggTradeStream(symbol, a.cfg.MaxBackoffSeconds)
	events, err := client.Stream(ctx)
	if err != nil {
		largeTradeLog.Warn().Err(err).Str("symbol", symbol).Msg("binance 大单流启动失败")
		return
	}
	for ev := range events {
		if lt, ok := ev.Payload.(schema.LargeTrade); ok {
			a.publish("binance", lt)
		}
	}
}

func (a *LargeTradeAggregator) runBybit(ctx context.Context) {
	client := bybit.NewTradeBatch(a.cfg.Symbols, a.cfg.MaxBackoffSeconds)
	events, err := client.Stream(ctx)
	if err != nil {
		largeTradeLog.Warn().Err(err).Msg("bybit 大单流启动失败")
		return
	}
	for ev := range events {
		if lt, ok := ev.Payload.(schema.LargeTrade); ok {
			a.publish("bybit", lt)
		}
	}
}

func (a *LargeTradeAggregator) runHyperliquid(ctx context.Context) {
	client := hyperliquid.NewTradesMulti(a.cfg.Symbols, a.cfg.MaxBackoffSeconds)
	events, err := client.Stream(ctx)
	if err != nil {
		largeTradeLog.Warn().Err(err).Msg("hyperliquid 大单流启动失败")
		return
	}
	for ev := range events {
		if lt, ok := ev.Payload.(schema.LargeTrade); ok {
			a.publish("hyperliquid", lt)
		}
	}
}
