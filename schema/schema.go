// Package schema 定义网关对外暴露的归一化行情事件类型。
package schema

import (
	"fmt"
	"math"
	"time"
)

// Base 是所有归一化记录共享的字段：交易所、交易对、事件时间。
type Base struct {
	Exchange  string    `json:"exchange"` // 小写标签，如 "binance"
	Symbol    string    `json:"symbol"`   // 大写标签，如 "BTCUSDT"
	Timestamp time.Time `json:"timestamp"`
}

// valueTolerance 是 value≈price*quantity 校验允许的相对误差。
const valueTolerance = 1e-6

// Candle 是单个周期的K线归一化记录。
type Candle struct {
	Base
	Interval     string  `json:"interval"`
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Close        float64 `json:"close"`
	Volume       float64 `json:"volume"`
	QuoteVolume  float64 `json:"quote_volume"`
	TradesCount  int64   `json:"trades_count"`
	IsClosed     bool    `json:"is_closed"`
}

// Validate 校验K线记录是否满足 OHLC 不变式。
func (c Candle) Validate() error {
	if c.Open < 0 || c.High < 0 || c.Low < 0 || c.Close < 0 {
		return fmt.Errorf("candle %s/%s: negative price field", c.Exchange, c.Symbol)
	}
	if c.Volume < 0 || c.QuoteVolume < 0 {
		return fmt.Errorf("candle %s/%s: negative volume field", c.Exchange, c.Symbol)
	}
	if c.TradesCount < 0 {
		return fmt.Errorf("candle %s/%s: negative trades_count", c.Exchange, c.Symbol)
	}
	minOC := math.Min(c.Open, c.Close)
	maxOC := math.Max(c.Open, c.Close)
	if c.Low > minOC {
		return fmt.Errorf("candle %s/%s: low %v > min(open,close) %v", c.Exchange, c.Symbol, c.Low, minOC)
	}
	if c.High < maxOC {
		return fmt.Errorf("candle %s/%s: high %v < max(open,close) %v", c.Exchange, c.Symbol, c.High, maxOC)
	}
	if c.High < c.Low {
		return fmt.Errorf("candle %s/%s: high %v < low %v", c.Exchange, c.Symbol, c.High, c.Low)
	}
	return nil
}

// OpenInterest 是持仓量快照。
type OpenInterest struct {
	Base
	OpenInterest      float64  `json:"open_interest"`
	OpenInterestValue *float64 `json:"open_interest_value,omitempty"` // 以美元计价，可选
}

// Validate 校验持仓量字段均为非负。
func (o OpenInterest) Validate() error {
	if o.OpenInterest < 0 {
		return fmt.Errorf("open_interest %s/%s: negative", o.Exchange, o.Symbol)
	}
	if o.OpenInterestValue != nil && *o.OpenInterestValue < 0 {
		return fmt.Errorf("open_interest_value %s/%s: negative", o.Exchange, o.Symbol)
	}
	return nil
}

// Funding 是资金费率记录。
type Funding struct {
	Base
	FundingRate     float64    `json:"funding_rate"` // 可正可负
	FundingTime     time.Time  `json:"funding_time"`
	NextFundingRate *float64   `json:"next_funding_rate,omitempty"`
	NextFundingTime *time.Time `json:"next_funding_time,omitempty"`
}

// Side 表示成交/强平方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Liquidation 是强平事件归一化记录。
type Liquidation struct {
	Base
	Side     Side    `json:"side"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Value    float64 `json:"value"`
}

// Validate 校验强平记录的价值约等于 price*quantity 且均非负。
func (l Liquidation) Validate() error {
	return validateTradeLike(l.Exchange, l.Symbol, l.Side, l.Price, l.Quantity, l.Value)
}

// LargeTrade 是大单成交归一化记录。
type LargeTrade struct {
	Base
	Side         Side    `json:"side"`
	Price        float64 `json:"price"`
	Quantity     float64 `json:"quantity"`
	Value        float64 `json:"value"`
	IsBuyerMaker bool    `json:"is_buyer_maker"`
}

// Validate 校验大单记录的价值约等于 price*quantity 且均非负。
func (t LargeTrade) Validate() error {
	return validateTradeLike(t.Exchange, t.Symbol, t.Side, t.Price, t.Quantity, t.Value)
}

func validateTradeLike(exchange, symbol string, side Side, price, qty, value float64) error {
	if side != SideBuy && side != SideSell {
		return fmt.Errorf("%s/%s: invalid side %q", exchange, symbol, side)
	}
	if price < 0 || qty < 0 || value < 0 {
		return fmt.Errorf("%s/%s: negative price/quantity/value", exchange, symbol)
	}
	expected := price * qty
	if expected == 0 {
		if value != 0 {
			return fmt.Errorf("%s/%s: value %v should be ~0", exchange, symbol, value)
		}
		return nil
	}
	if math.Abs(value-expected)/math.Max(expected, 1e-12) > valueTolerance {
		return fmt.Errorf("%s/%s: value %v diverges from price*quantity %v", exchange, symbol, value, expected)
	}
	return nil
}

// SpikeAlert 是持仓量/成交量异动信号。
type SpikeAlert struct {
	Base
	Timeframe string  `json:"timeframe"`
	ZOI       float64 `json:"z_oi"`
	ZVolume   float64 `json:"z_vol"`
	Confirmed bool    `json:"confirmed"`
}

// Ticker 是最优买卖价快照；目前模块内没有代码构造或使用它（健康检查不经由它）。
type Ticker struct {
	Base
	BidPrice float64 `json:"bid_price"`
	AskPrice float64 `json:"ask_price"`
	LastPrice float64 `json:"last_price"`
}

// Event 是可发布到事件总线的载荷，携带一个 type 标签以便下游区分记录种类。
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"-"`
}

// Envelope 按照下游端点的线协议把 Payload 和 Type 平铺到同一个JSON对象中。
// 所有WebSocket端点均以 {"type": "...", ...fields} 的形式下发。
func (e Event) Envelope() map[string]interface{} {
	m := toMap(e.Payload)
	m["type"] = e.Type
	return m
}
