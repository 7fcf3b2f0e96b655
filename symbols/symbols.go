// Package symbols 提供交易对/周期/时间戳在各交易所表示法之间的归一化工具。
package symbols

import (
	"strings"
	"time"
)

// quoteSuffixes 是识别的报价币后缀，按长度降序匹配以避免歧义前缀覆盖。
var quoteSuffixes = []string{"BUSD", "USDT", "USDC", "TUSD", "USDP", "DAI"}

// ToCoin 将交易对形式（如 BTCUSDT）转换为币种形式（如 BTC）。
// 未识别的报价后缀原样返回。该函数是幂等的：ToCoin(ToCoin(x)) == ToCoin(x)。
func ToCoin(pair string) string {
	upper := strings.ToUpper(pair)
	for _, suf := range quoteSuffixes {
		if strings.HasSuffix(upper, suf) && len(upper) > len(suf) {
			return upper[:len(upper)-len(suf)]
		}
	}
	return upper
}

// msThreshold 是区分秒级/毫秒级时间戳的阈值（1e12），与原始实现一致。
const msThreshold = 1_000_000_000_000

// NormalizeTimestamp 把可能是秒或毫秒的时间戳转换为 UTC 时刻。
func NormalizeTimestamp(v int64) time.Time {
	if v > msThreshold {
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}

// defaultInterval 是未知周期标记退化到的默认值。
const defaultInterval = "1m"

// canonicalIntervals 是网关对外使用的规范周期集合。
var canonicalIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "12h": true,
	"1d": true, "1w": true, "1M": true,
}

// IsCanonicalInterval 判断给定周期是否属于网关支持的规范集合。
func IsCanonicalInterval(interval string) bool {
	return canonicalIntervals[interval]
}

// ToBinanceInterval: Binance 使用与规范形式一致的字母编码，规范周期直接透传，
// 未知周期退化到默认值 1m。
func ToBinanceInterval(canonical string) string {
	if !IsCanonicalInterval(canonical) {
		return defaultInterval
	}
	return canonical
}

// bybitIntervalMap 把规范周期映射到 Bybit 的数字/字母编码。
var bybitIntervalMap = map[string]string{
	"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "120", "4h": "240", "6h": "360", "12h": "720",
	"1d": "D", "1w": "W", "1M": "M",
}

var bybitIntervalReverse = reverseMap(bybitIntervalMap)

// ToBybitInterval 把规范周期映射到 Bybit 的 topic 周期编码。
func ToBybitInterval(canonical string) string {
	if v, ok := bybitIntervalMap[canonical]; ok {
		return v
	}
	return bybitIntervalMap[defaultInterval]
}

// FromBybitInterval 把 Bybit 的周期编码还原为规范周期。
func FromBybitInterval(bybit string) string {
	if v, ok := bybitIntervalReverse[bybit]; ok {
		return v
	}
	return defaultInterval
}

// hyperliquidIntervalMap 把规范周期映射到 Hyperliquid 的字母编码。
// Hyperliquid 不支持 3m/6h/12h，缺失时退化到最接近的受支持周期。
var hyperliquidIntervalMap = map[string]string{
	"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
	"1h": "1h", "2h": "2h", "4h": "4h",
	"1d": "1d", "1w": "1w", "1M": "1M",
}

// ToHyperliquidInterval 把规范周期映射到 Hyperliquid 订阅所需的周期字符串。
func ToHyperliquidInterval(canonical string) string {
	if v, ok := hyperliquidIntervalMap[canonical]; ok {
		return v
	}
	return defaultInterval
}

func reverseMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}
