package aggregator

import (
	"context"
	"sync"
	"time"

	"atrade/bus"
	"atrade/logger"
	"atrade/metrics"
	"atrade/schema"
	"atrade/venues/binance"
)

const topicOIVol = "oi_spike"

var spikeLog = logger.With("aggregator.spike_monitor")

// TimeframeRule 是单个时间窗口的阈值与最小流动性地板。
type TimeframeRule struct {
	ZThreshold float64
	MinOIUSD   float64
	MinVolUSD  float64
}

// SpikeConfig 是持仓量/成交量异动监控的可调参数。
type SpikeConfig struct {
	Timeframes   []string
	Rules        map[string]TimeframeRule
	CycleSeconds int
	SymbolsLimit int
}

// SpikeMonitor 检测 Binance USDT 永续合约在多个时间窗口上持仓量与成交量的
// 并发异常上升，产出 oi_spike 事件。
type SpikeMonitor struct {
	bus  *bus.Bus
	rest *binance.RESTClient
	cfg  SpikeConfig

	mu      sync.Mutex
	windows map[string]map[string]*symbolWindows // symbol -> timeframe -> windows
}

type symbolWindows struct {
	oi  window
	vol window
}

// NewSpikeMonitor 构造持仓量/成交量异动监控服务。
func NewSpikeMonitor(b *bus.Bus, rest *binance.RESTClient, cfg SpikeConfig) *SpikeMonitor {
	if cfg.CycleSeconds <= 0 {
		cfg.CycleSeconds = 300
	}
	if cfg.SymbolsLimit <= 0 {
		cfg.SymbolsLimit = 80
	}
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = []string{"5m", "15m", "1h"}
	}
	return &SpikeMonitor{
		bus:     b,
		rest:    rest,
		cfg:     cfg,
		windows: make(map[string]map[string]*symbolWindows),
	}
}

// Start 启动周期性扫描循环。
func (m *SpikeMonitor) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *SpikeMonitor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cycleStart := time.Now()
		symbols, err := m.rest.ListUSDTPerpetuals(ctx, m.cfg.SymbolsLimit)
		if err != nil {
			spikeLog.Warn().Err(err).Msg("获取永续合约列表失败，本轮跳过")
		} else {
			m.scanAll(ctx, symbols)
		}

		elapsed := time.Since(cycleStart)
		metrics.AggregatorCycleDuration.WithLabelValues("oi_vol_monitor").Observe(elapsed.Seconds())
		spikeLog.Info().Dur("elapsed", elapsed).Int("symbols", len(symbols)).Msg("完成一轮异动扫描")

		sleepFor := time.Duration(m.cfg.CycleSeconds)*time.Second - elapsed
		if sleepFor < 0 {
			sleepFor = 0
		}
		if !sleepCtx(ctx, sleepFor) {
			return
		}
	}
}

func (m *SpikeMonitor) scanAll(ctx context.Context, symbols []string) {
	for _, symbol := range symbols {
		select {
		case <-ctx.Done():
			return
		default:
		}
		for _, tf := range m.cfg.Timeframes {
			m.scanOne(ctx, symbol, tf)
		}
		// 轮询间隔小憩，尊重交易所限流。
		sleepCtx(ctx, 200*time.Millisecond)
	}
}

func (m *SpikeMonitor) scanOne(ctx context.Context, symbol, timeframe string) {
	oiHist, err := m.rest.GetOpenInterestHistory(ctx, symbol, timeframe, 50)
	if err != nil {
		return
	}
	candles, err := m.rest.GetOHLC(ctx, symbol, timeframe, 50)
	if err != nil {
		return
	}
	volHist := make([]float64, 0, len(candles))
	for _, c := range candles {
		volHist = append(volHist, c.QuoteVolume)
	}
	if len(oiHist) == 0 || len(volHist) == 0 {
		return
	}

	w := m.windowFor(symbol, timeframe)
	m.mu.Lock()
	w.oi.append(oiHist...)
	w.vol.append(volHist...)
	oiValues := append([]float64(nil), w.oi.values...)
	volValues := append([]float64(nil), w.vol.values...)
	m.mu.Unlock()

	rule, ok := m.cfg.Rules[timeframe]
	if !ok {
		return
	}

	lastOI := oiValues[len(oiValues)-1]
	lastVol := volValues[len(volValues)-1]
	if lastOI < rule.MinOIUSD || lastVol < rule.MinVolUSD {
		return
	}

	zOI := zScore(oiValues)
	zVol := zScore(volValues)
	if zOI < rule.ZThreshold && zVol < rule.ZThreshold {
		return
	}

	alert := schema.SpikeAlert{
		Base: schema.Base{
			Exchange:  "binance",
			Symbol:    symbol,
			Timestamp: time.Now().UTC(),
		},
		Timeframe: timeframe,
		ZOI:       zOI,
		ZVolume:   zVol,
		Confirmed: zOI >= rule.ZThreshold && zVol >= rule.ZThreshold,
	}
	m.bus.Publish(topicOIVol, schema.Event{Type: "oi_spike", Payload: alert})
	metrics.AggregatorEventsTotal.WithLabelValues("oi_spike", "binance").Inc()
}

func (m *SpikeMonitor) windowFor(symbol, timeframe string) *symbolWindows {
	m.mu.Lock()
	defer m.mu.Unlock()
	bySymbol, ok := m.windows[symbol]
	if !ok {
		bySymbol = make(map[string]*symbolWindows)
		m.windows[symbol] = bySymbol
	}
	w, ok := bySymbol[timeframe]
	if !ok {
		w = &symbolWindows{}
		bySymbol[timeframe] = w
	}
	return w
}
