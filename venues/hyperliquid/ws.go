// Package hyperliquid 实现 Hyperliquid 的上游流式客户端与REST快照调用。
package hyperliquid

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"atrade/logger"
	"atrade/metrics"
	"atrade/schema"
	"atrade/symbols"
	"atrade/venues"
)

const wsURL = "wss://api.hyperliquid.xyz/ws"

var log = logger.With("venue.hyperliquid")

// SubKind 标识 Hyperliquid 的订阅类型。
type SubKind string

const (
	SubCandle SubKind = "candle"
	SubTrades SubKind = "trades"
)

// MultiClient 在单条连接上维护一组 (type, coin[, interval]) 订阅，
// 供大单聚合服务与按交易对直连端点使用。币种集合在构造时确定，构造后不能增删。
type MultiClient struct {
	kind       SubKind
	coins      []string
	interval   string // 仅 candle 使用
	maxBackoff int
	closed     chan struct{}
}

// NewCandleMulti 构造多币种K线订阅客户端。
func NewCandleMulti(pairs []string, canonicalInterval string, maxBackoffSeconds int) *MultiClient {
	coins := make([]string, 0, len(pairs))
	for _, p := range pairs {
		coins = append(coins, symbols.ToCoin(p))
	}
	return &MultiClient{
		kind: SubCandle, coins: coins,
		interval:   symbols.ToHyperliquidInterval(canonicalInterval),
		maxBackoff: maxBackoffSeconds, closed: make(chan struct{}),
	}
}

// NewTradesMulti 构造多币种成交订阅客户端。
func NewTradesMulti(pairs []string, maxBackoffSeconds int) *MultiClient {
	coins := make([]string, 0, len(pairs))
	for _, p := range pairs {
		coins = append(coins, symbols.ToCoin(p))
	}
	return &MultiClient{kind: SubTrades, coins: coins, maxBackoff: maxBackoffSeconds, closed: make(chan struct{})}
}

func (c *MultiClient) metricType() string { return "hyperliquid." + string(c.kind) }

func (c *MultiClient) Stream(ctx context.Context) (<-chan schema.Event, error) {
	out := make(chan schema.Event, venues.DefaultCapacity)
	go c.run(ctx, out)
	return out, nil
}

func (c *MultiClient) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

type subscribeMsg struct {
	Method       string           `json:"method"`
	Subscription subscriptionSpec `json:"subscription"`
}

type subscriptionSpec struct {
	Type     string `json:"type"`
	Coin     string `json:"coin"`
	Interval string `json:"interval,omitempty"`
}

func (c *MultiClient) run(ctx context.Context, out chan<- schema.Event) {
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

		wsConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			attempt++
			rec.RecordConnection(false)
			log.Warn().Err(err).Int("attempt", attempt).Msg("连接失败，进入退避")
			venues.SleepBackoff(ctx, attempt, c.maxBackoff)
			continue
		}
		rec.RecordConnection(true)

		if err := c.subscribeAll(wsConn); err != nil {
			log.Warn().Err(err).Msg("订阅失败")
			wsConn.Close()
			attempt++
			venues.SleepBackoff(ctx, attempt, c.maxBackoff)
			continue
		}

		attempt = 0
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

func (c *MultiClient) subscribeAll(wsConn *websocket.Conn) error {
	for _, coin := range c.coins {
		spec := subscriptionSpec{Type: string(c.kind), Coin: coin}
		if c.kind == SubCandle {
			spec.Interval = c.interval
		}
		if err := wsConn.WriteJSON(subscribeMsg{Method: "subscribe", Subscription: spec}); err != nil {
			return err
		}
	}
	return nil
}

func (c *MultiClient) readLoop(ctx context.Context, wsConn *websocket.Conn, out chan<- schema.Event, rec *metrics.WSMetricsRecorder) {
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

type wsFrame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

func (c *MultiClient) parse(raw []byte) (schema.Event, bool) {
	var f wsFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return schema.Event{}, false
	}
	switch f.Channel {
	case "candle":
		return parseCandle(f.Data)
	case "trades":
		return parseTrades(f.Data)
	default:
		return schema.Event{}, false
	}
}

type candleData struct {
	T int64  `json:"t"`
	S string `json:"s"`
	I string `json:"i"`
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
	V string `json:"v"`
	N int64  `json:"n"`
}

func parseCandle(data json.RawMessage) (schema.Event, bool) {
	var d candleData
	if err := json.Unmarshal(data, &d); err != nil {
		return schema.Event{}, false
	}
	candle := schema.Candle{
		Base: schema.Base{
			Exchange:  "hyperliquid",
			Symbol:    strings.ToUpper(d.S),
			Timestamp: time.UnixMilli(d.T).UTC(),
		},
		Interval:    d.I,
		Open:        atof(d.O),
		High:        atof(d.H),
		Low:         atof(d.L),
		Close:       atof(d.C),
		Volume:      atof(d.V),
		TradesCount: d.N,
		IsClosed:    false,
	}
	return schema.Event{Type: "ohlc", Payload: candle}, true
}

type tradeData struct {
	Coin string `json:"coin"`
	Px   string `json:"px"`
	Sz   string `json:"sz"`
	Side string `json:"side"` // "B" or "A"
	Time int64  `json:"time"`
}

func parseTrades(data json.RawMessage) (schema.Event, bool) {
	var items []tradeData
	if err := json.Unmarshal(data, &items); err != nil || len(items) == 0 {
		return schema.Event{}, false
	}
	t := items[len(items)-1]

	// "B" -> buy, "A" -> sell; is_buyer_maker = (raw == "A")
	side := schema.SideBuy
	isBuyerMaker := false
	if strings.EqualFold(t.Side, "A") {
		side = schema.SideSell
		isBuyerMaker = true
	}

	price := atof(t.Px)
	qty := atof(t.Sz)
	lt := schema.LargeTrade{
		Base: schema.Base{
			Exchange:  "hyperliquid",
			Symbol:    strings.ToUpper(t.Coin),
			Timestamp: time.UnixMilli(t.Time).UTC(),
		},
		Side:         side,
		Price:        price,
		Quantity:     qty,
		Value:        price * qty,
		IsBuyerMaker: isBuyerMaker,
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
