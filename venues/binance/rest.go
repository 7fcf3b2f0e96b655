package binance

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"atrade/metrics"
	"atrade/schema"
	"atrade/symbols"
)

// RESTClient 包装 go-binance/v2 的合约客户端，供历史回补与OI/成交量异动监控共享。
// 公共行情接口不需要密钥，传空字符串即可。
type RESTClient struct {
	cli *futures.Client

	frMu    sync.Mutex
	frCache map[string]frCacheEntry
	frTTL   time.Duration
}

type frCacheEntry struct {
	funding schema.Funding
	at      time.Time
}

// NewRESTClient 构造一个共享的Binance合约REST客户端。
func NewRESTClient(apiKey, apiSecret string) *RESTClient {
	return &RESTClient{
		cli:     futures.NewClient(apiKey, apiSecret),
		frCache: make(map[string]frCacheEntry),
		frTTL:   30 * time.Second,
	}
}

// GetOHLC 拉取最近 limit 根 K 线REST快照，供历史回补与异动监控复用。
func (r *RESTClient) GetOHLC(ctx context.Context, symbol, interval string, limit int) ([]schema.Candle, error) {
	start := time.Now()
	klines, err := r.cli.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	r.observe("klines", err, start)
	if err != nil {
		return nil, err
	}

	out := make([]schema.Candle, 0, len(klines))
	for _, k := range klines {
		out = append(out, schema.Candle{
			Base: schema.Base{
				Exchange:  "binance",
				Symbol:    symbol,
				Timestamp: time.UnixMilli(k.OpenTime).UTC(),
			},
			Interval:    interval,
			Open:        parseFloat(k.Open),
			High:        parseFloat(k.High),
			Low:         parseFloat(k.Low),
			Close:       parseFloat(k.Close),
			Volume:      parseFloat(k.Volume),
			QuoteVolume: parseFloat(k.QuoteAssetVolume),
			TradesCount: k.TradeNum,
			IsClosed:    true,
		})
	}
	return out, nil
}

// GetOpenInterestHistory 拉取持仓量历史（period 为 Binance 周期编码，如 5m/15m/1h）。
func (r *RESTClient) GetOpenInterestHistory(ctx context.Context, sym, period string, limit int) ([]float64, error) {
	start := time.Now()
	hist, err := r.cli.NewOpenInterestStatisticsService().
		Symbol(sym).
		Period(period).
		Limit(limit).
		Do(ctx)
	r.observe("openInterestHist", err, start)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(hist))
	for _, h := range hist {
		out = append(out, parseFloat(h.SumOpenInterestValue))
	}
	return out, nil
}

// GetFundingRate 拉取最近一次资金费率，带短TTL缓存以避免对同一交易对的突发重复请求。
func (r *RESTClient) GetFundingRate(ctx context.Context, symbol string) (schema.Funding, error) {
	r.frMu.Lock()
	if e, ok := r.frCache[symbol]; ok && time.Since(e.at) < r.frTTL {
		r.frMu.Unlock()
		return e.funding, nil
	}
	r.frMu.Unlock()

	start := time.Now()
	rates, err := r.cli.NewFundingRateService().Symbol(symbol).Limit(1).Do(ctx)
	r.observe("fundingRate", err, start)
	if err != nil || len(rates) == 0 {
		return schema.Funding{}, err
	}
	last := rates[len(rates)-1]
	f := schema.Funding{
		Base: schema.Base{
			Exchange:  "binance",
			Symbol:    symbol,
			Timestamp: time.UnixMilli(last.FundingTime).UTC(),
		},
		FundingRate: parseFloat(last.FundingRate),
		FundingTime: time.UnixMilli(last.FundingTime).UTC(),
	}

	r.frMu.Lock()
	r.frCache[symbol] = frCacheEntry{funding: f, at: time.Now()}
	r.frMu.Unlock()
	return f, nil
}

// ListUSDTPerpetuals 返回当前 TRADING 状态下、USDT 计价的永续合约交易对列表，
// 供OI/成交量异动监控挑选扫描对象使用。
func (r *RESTClient) ListUSDTPerpetuals(ctx context.Context, limit int) ([]string, error) {
	start := time.Now()
	info, err := r.cli.NewExchangeInfoService().Do(ctx)
	r.observe("exchangeInfo", err, start)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, limit)
	for _, s := range info.Symbols {
		if s.ContractType != "PERPETUAL" || s.Status != "TRADING" {
			continue
		}
		if symbols.ToCoin(s.Symbol) == s.Symbol {
			continue // 没有识别到 USDT/USDC 等报价后缀，跳过
		}
		if len(s.Symbol) < 4 || s.Symbol[len(s.Symbol)-4:] != "USDT" {
			continue
		}
		out = append(out, s.Symbol)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *RESTClient) observe(endpoint string, err error, start time.Time) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.ExchangeAPIRequestsTotal.WithLabelValues("binance", endpoint, status).Inc()
	metrics.ExchangeAPIRequestDuration.WithLabelValues("binance", endpoint).Observe(time.Since(start).Seconds())
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
