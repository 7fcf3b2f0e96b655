// Package binance 实现 Binance USD-M 合约的上游流式客户端与REST快照调用。
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"atrade/logger"
	"atrade/metrics"
	"atrade/schema"
	"atrade/venues"
)

const wsBase = "wss://fstream.binance.com/ws/"
const forceOrderAllURL = wsBase + "!forceOrder@arr"

var log = logger.With("venue.binance")

// streamKind 标识一条连接承载的流语义。
type streamKind string

const (
	kindKline       streamKind = "kline"
	kindForceOrder  streamKind = "forceOrder"
	kindAggTrade    streamKind = "aggTrade"
)

// conn 是单个 (stream-kind, symbol) 的长连接客户端，实现 venues.FeedClient。
type conn struct {
	kind       streamKind
	symbol     string // 小写形式，为空表示全市场流（forceOrder@arr）
	interval   string
	maxBackoff int

	closed chan struct{}
}

// NewKlineStream 构造一条Binance K线流客户端：wss://fstream.binance.com/ws/{symbol}@kline_{interval}
func NewKlineStream(symbol, interval string, maxBackoffSeconds int) venues.FeedClient {
	return &conn{kind: kindKline, symbol: strings.ToLower(symbol), interval: interval, maxBackoff: maxBackoffSeconds, closed: make(chan struct{})}
}

// NewForceOrderAllStream 构造全市场强平流客户端：wss://fstream.binance.com/ws/!forceOrder@arr
func NewForceOrderAllStream(maxBackoffSeconds int) venues.FeedClient {
	return &conn{kind: kindForceOrder, maxBackoff: maxBackoffSeconds, closed: make(chan struct{})}
}

// NewAggTradeStream 构造单交易对归集成交流客户端：{symbol}@aggTrade
func NewAggTradeStream(symbol string, maxBackoffSeconds int) venues.FeedClient {
	return &conn{kind: kindAggTrade, symbol: strings.ToLower(symbol), maxBackoff: maxBackoffSeconds, closed: make(chan struct{})}
}

func (c *conn) url() string {
	switch c.kind {
	case kindForceOrder:
		return forceOrderAllURL
	case kindKline:
		return fmt.Sprintf("%s%s@kline_%s", wsBase, c.symbol, c.interval)
	case kindAggTrade:
		return fmt.Sprintf("%s%s@aggTrade", wsBase, c.symbol)
	default:
		return wsBase
	}
}

func (c *conn) metricType() string {
	return "binance." + string(c.kind)
}

func (c *conn) Stream(ctx context.Context) (<-chan schema.Event, error) {
	out := make(chan schema.Event, venues.DefaultCapacity)
	go c.run(ctx, out)
	return out, nil
}

func (c *conn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func (c *conn) run(ctx context.Context, out chan<- schema.Event) {
	defer close(out)
	attempt := 0
	rec := metrics.NewWSMetricsRecorder(c.metricType())

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		default:
		}

		wsConn, _, err := websocket.DefaultDialer.Dial(c.url(), nil)
		if err != nil {
			attempt++
			rec.RecordConnection(false)
			log.Warn().Err(err).Int("attempt", attempt).Str("url", c.url()).Msg("连接失败，进入退避")
			if attempt > 3 {
				metrics.RecordFeedDegraded("binance", string(c.kind))
			}
			venues.SleepBackoff(ctx, attempt, c.maxBackoff)
			continue
		}

		rec.RecordConnection(true)
		attempt = 0
		log.Info().Str("url", c.url()).Msg("已连接")

		c.readLoop(ctx, wsConn, out, rec)

		wsConn.Close()
		rec.RecordDisconnect("closed")

		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		default:
		}
		attempt++
		rec.RecordReconnect()
		venues.SleepBackoff(ctx, attempt, c.maxBackoff)
	}
}

func (c *conn) readLoop(ctx context.Context, wsConn *websocket.Conn, out chan<- schema.Event, rec *metrics.WSMetricsRecorder) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-c.closed:
		case <-done:
			return
		}
		wsConn.Close()
	}()
	defer close(done)

	wsConn.SetReadDeadline(time.Now().Add(venues.HeartbeatInterval))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(venues.HeartbeatInterval))
		return nil
	})

	for {
		_, raw, err := wsConn.ReadMessage()
		if err != nil {
			return
		}
		wsConn.SetReadDeadline(time.Now().Add(venues.HeartbeatInterval))
		rec.RecordMessage()

		ev, ok := c.parse(raw)
		if !ok {
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

func (c *conn) parse(raw []byte) (schema.Event, bool) {
	switch c.kind {
	case kindKline:
		return parseKline(raw)
	case kindForceOrder:
		return parseForceOrder(raw)
	case kindAggTrade:
		return parseAggTrade(raw)
	}
	return schema.Event{}, false
}

type klineFrame struct {
	E string `json:"e"`
	K struct {
		T int64  `json:"t"`
		S string `json:"s"`
		I string `json:"i"`
		O string `json:"o"`
		H string `json:"h"`
		L string `json:"l"`
		C string `json:"c"`
		V string `json:"v"`
		Q string `json:"q"`
		N int64  `json:"n"`
		X bool   `json:"x"`
	} `json:"k"`
}

func parseKline(raw []byte) (schema.Event, bool) {
	var f klineFrame
	if err := json.Unmarshal(raw, &f); err != nil || f.E != "kline" {
		return schema.Event{}, false
	}
	candle := schema.Candle{
		Base: schema.Base{
			Exchange:  "binance",
			Symbol:    strings.ToUpper(f.K.S),
			Timestamp: time.UnixMilli(f.K.T).UTC(),
		},
		Interval:    f.K.I,
		Open:        atof(f.K.O),
		High:        atof(f.K.H),
		Low:         atof(f.K.L),
		Close:       atof(f.K.C),
		Volume:      atof(f.K.V),
		QuoteVolume: atof(f.K.Q),
		TradesCount: f.K.N,
		IsClosed:    f.K.X,
	}
	return schema.Event{Type: "ohlc", Payload: candle}, true
}

// forceOrderFrame 兼容 !forceOrder@arr（包裹在 data 字段）与单交易对
// forceOrder 流（无包裹）两种帧形状。
type forceOrderFrame struct {
	Data *forceOrderPayload `json:"data"`
	forceOrderPayload
}

type forceOrderPayload struct {
	E string `json:"e"`
	O struct {
		S string `json:"s"`
		Side string `json:"S"`
		P    string `json:"p"`
		Q    string `json:"q"`
		T    int64  `json:"T"`
	} `json:"o"`
}

func parseForceOrder(raw []byte) (schema.Event, bool) {
	var f forceOrderFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return schema.Event{}, false
	}
	p := f.forceOrderPayload
	if f.Data != nil {
		p = *f.Data
	}
	if p.E != "forceOrder" {
		return schema.Event{}, false
	}
	side := schema.SideSell
	if strings.EqualFold(p.O.Side, "SELL") {
		// 强平卖单意味着原持仓为多头被平，行情语义上归为 sell 方向
		side = schema.SideSell
	} else if strings.EqualFold(p.O.Side, "BUY") {
		side = schema.SideBuy
	}
	price := atof(p.O.P)
	qty := atof(p.O.Q)
	liq := schema.Liquidation{
		Base: schema.Base{
			Exchange:  "binance",
			Symbol:    strings.ToUpper(p.O.S),
			Timestamp: time.UnixMilli(p.O.T).UTC(),
		},
		Side:     side,
		Price:    price,
		Quantity: qty,
		Value:    price * qty,
	}
	return schema.Event{Type: "liquidation", Payload: liq}, true
}

type aggTradeFrame struct {
	E string `json:"e"`
	S string `json:"s"`
	P string `json:"p"`
	Q string `json:"q"`
	T int64  `json:"T"`
	M bool   `json:"m"` // is_buyer_maker
}

func parseAggTrade(raw []byte) (schema.Event, bool) {
	var f aggTradeFrame
	if err := json.Unmarshal(raw, &f); err != nil || f.E != "aggTrade" {
		return schema.Event{}, false
	}
	side := schema.SideBuy
	if f.M {
		side = schema.SideSell
	}
	price := atof(f.P)
	qty := atof(f.Q)
	lt := schema.LargeTrade{
		Base: schema.Base{
			Exchange:  "binance",
			Symbol:    strings.ToUpper(f.S),
			Timestamp: time.UnixMilli(f.T).UTC(),
		},
		Side:         side,
		Price:        price,
		Quantity:     qty,
		Value:        price * qty,
		IsBuyerMaker: f.M,
	}
	return schema.Event{Type: "large_trade", Payload: lt}, true
}

func atof(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
