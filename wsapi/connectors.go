// Package wsapi 实现网关对外的 WebSocket 端点：按交易对直连、全市场聚合
// 防洪水口，以及多交易对K线多路复用控制协议。
package wsapi

import (
	"fmt"
	"strings"

	"atrade/registry"
	"atrade/schema"
	"atrade/symbols"
	"atrade/venues"
	"atrade/venues/binance"
	"atrade/venues/bybit"
	"atrade/venues/hyperliquid"
	"atrade/venues/okx"
)

// Stream 是按交易对直连端点路径模板里的 {stream} 段。
type Stream string

const (
	StreamOHLC         Stream = "ohlc"
	StreamLargeTrades  Stream = "large_trades"
	StreamLiquidations Stream = "liquidations"
)

func parseStream(s string) (Stream, bool) {
	switch Stream(s) {
	case StreamOHLC, StreamLargeTrades, StreamLiquidations:
		return Stream(s), true
	default:
		return "", false
	}
}

// requiredCapability 把 {stream} 段映射到注册表能力标签。
func requiredCapability(s Stream) registry.Capability {
	switch s {
	case StreamOHLC:
		return registry.CapOHLC
	case StreamLargeTrades:
		return registry.CapLargeTrades
	case StreamLiquidations:
		return registry.CapLiquidations
	}
	return ""
}

// buildConnector 为 {exchange}/{symbol}/{stream} 构造专属该连接生命周期的
// 上游流式客户端。liquidations 在 Binance/OKX 上是全市场流，这里返回的客户端
// 不按交易对过滤——调用方负责丢弃不匹配的记录。
func buildConnector(exchange, symbol string, stream Stream, interval string, maxBackoff int) (venues.FeedClient, error) {
	ex := strings.ToLower(exchange)
	sym := strings.ToUpper(symbol)

	switch ex {
	case "binance":
		switch stream {
		case StreamOHLC:
			if interval == "" {
				return nil, fmt.Errorf("ohlc 需要 interval 参数")
			}
			return binance.NewKlineStream(sym, interval, maxBackoff), nil
		case StreamLargeTrades:
			return binance.NewAggTradeStream(sym, maxBackoff), nil
		case StreamLiquidations:
			return binance.NewForceOrderAllStream(maxBackoff), nil
		}
	case "bybit":
		switch stream {
		case StreamOHLC:
			if interval == "" {
				return nil, fmt.Errorf("ohlc 需要 interval 参数")
			}
			return bybit.NewKlineBatch([]string{sym}, symbols.ToBybitInterval(interval), maxBackoff), nil
		case StreamLargeTrades:
			return bybit.NewTradeBatch([]string{sym}, maxBackoff), nil
		case StreamLiquidations:
			return bybit.NewLiquidationBatch([]string{sym}, maxBackoff), nil
		}
	case "hyperliquid":
		coin := symbols.ToCoin(sym)
		switch stream {
		case StreamOHLC:
			if interval == "" {
				return nil, fmt.Errorf("ohlc 需要 interval 参数")
			}
			return hyperliquid.NewCandleMulti([]string{coin}, interval, maxBackoff), nil
		case StreamLargeTrades:
			return hyperliquid.NewTradesMulti([]string{coin}, maxBackoff), nil
		}
	case "okx":
		if stream == StreamLiquidations {
			return okx.NewLiquidationClient(maxBackoff), nil
		}
	}
	return nil, fmt.Errorf("交易所 %s 不支持 %s 流", exchange, stream)
}

// eventSymbol 从已归一化事件中取出交易对标签，用于 okx/binance 全市场流的
// 按交易对过滤。
func eventSymbol(ev schema.Event) string {
	switch p := ev.Payload.(type) {
	case schema.Candle:
		return p.Symbol
	case schema.LargeTrade:
		return p.Symbol
	case schema.Liquidation:
		return p.Symbol
	}
	return ""
}
