// Package aggregator 实现多交易所聚合服务：强平、大单与持仓量/成交量异动监控，
// 各自把归一化事件发布到共享的事件总线上。
package aggregator

import (
	"context"
	"net/http"
	"time"

	"atrade/bus"
	"atrade/logger"
	"atrade/metrics"
	"atrade/schema"
	"atrade/venues/binance"
	"atrade/venues/bybit"
	"atrade/venues/okx"
)

const topicLiquidation = "liquidation"

// LiquidationConfig 是强平聚合服务的可调参数。
type LiquidationConfig struct {
	MinValueUSD       float64
	MaxBackoffSeconds int
}

// LiquidationAggregator 聚合 Binance 全市场、OKX 全市场与 Bybit 按交易对的强平流。
type LiquidationAggregator struct {
	bus  *bus.Bus
	cfg  LiquidationConfig
	http *http.Client
}

var liqLog = logger.With("aggregator.liquidation")

// NewLiquidationAggregator 构造强平聚合服务。
func NewLiquidationAggregator(b *bus.Bus, cfg LiquidationConfig, httpClient *http.Client) *LiquidationAggregator {
	if cfg.MinValueUSD <= 0 {
		cfg.MinValueUSD = 50_000
	}
	if cfg.MaxBackoffSeconds <= 0 {
		cfg.MaxBackoffSeconds = 30
	}
	return &LiquidationAggregator{bus: b, cfg: cfg, http: httpClient}
}

// Start 启动三个独立的按交易所任务；任一交易所的持续失败不影响其他交易所。
func (a *LiquidationAggregator) Start(ctx context.Context) {
	go a.runBinance(ctx)
	go a.runOKX(ctx)
	go a.runBybit(ctx)
}

func (a *LiquidationAggregator) publish(exchange string, liq schema.Liquidation) {
	if liq.Value < a.cfg.MinValueUSD {
		return
	}
	a.bus.Publish(topicLiquidation, schema.Event{Type: "liquidation", Payload: liq})
	metrics.AggregatorEventsTotal.WithLabelValues("liquidation", exchange).Inc()
}

func (a *LiquidationAggregator) runBinance(ctx context.Context) {
	client := binance.NewForceOrderAllStream(a.cfg.MaxBackoffSeconds)
	events, err := client.Stream(ctx)
	if err != nil {
		liqLog.Warn().Err(err).Msg("binance 强平流启动失败")
		return
	}
	for ev := range events {
		if liq, ok := ev.Payload.(schema.Liquidation); ok {
			a.publish("binance", liq)
		}
	}
}

func (a *LiquidationAggregator) runOKX(ctx context.Context) {
	client := okx.NewLiquidationClient(a.cfg.MaxBackoffSeconds)
	events, err := client.Stream(ctx)
	if err != nil {
		liqLog.Warn().Err(err).Msg("okx 强平流启动失败")
		return
	}
	for ev := range events {
		if liq, ok := ev.Payload.(schema.Liquidation); ok {
			a.publish("okx", liq)
		}
	}
}

func (a *LiquidationAggregator) runBybit(ctx context.Context) {
	rest := bybit.NewRESTClient(a.http)
	out := make(chan schema.Event, bus.DefaultCapacity)

	go func() {
		for ev := range out {
			if liq, ok := ev.Payload.(schema.Liquidation); ok {
				a.publish("bybit", liq)
			}
		}
	}()

	client := bybit.NewLiquidationBatch(nil, a.cfg.MaxBackoffSeconds)
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			close(out)
			return
		default:
		}

		syms, err := rest.ListLinearSymbols(ctx)
		if err != nil || len(syms) == 0 {
			liqLog.Warn().Err(err).Msg("bybit 交易对发现为空，30秒后重试")
			if !sleepCtx(ctx, 30*time.Second) {
				close(out)
				return
			}
			continue
		}

		client.WithTopics(syms, "")
		if err := client.RunOnce(ctx, out); err != nil {
			attempt++
			liqLog.Warn().Err(err).Int("attempt", attempt).Msg("bybit 强平流断开，重新发现交易对后重连")
		} else {
			attempt = 0
		}

		select {
		case <-ctx.Done():
			close(out)
			return
		default:
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
