// Package bybit 实现 Bybit 线性永续合约的批量主题订阅客户端与REST快照调用。
package bybit

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

// newTopicsForSymbols rebuilds a topic list for a fresh symbol set, used by
// RunOnce callers that rediscover symbols on each reconnect.
func newTopicsForSymbols(kind TopicKind, syms []string, bybitInterval string) []string {
	topics := make([]string, 0, len(syms))
	for _, s := range syms {
		switch kind {
		case KindKline:
			topics = append(topics, fmt.Sprintf("kline.%s.%s", bybitInterval, strings.ToUpper(s)))
		case KindPublicTrade:
			topics = append(topics, "publicTrade."+strings.ToUpper(s))
		case KindLiquidation:
			topics = append(topics, "allLiquidation."+strings.ToUpper(s))
		}
	}
	return topics
}

// WithTopics replaces the client's topic set in place — used to rebuild the
// subscription list with freshly discovered symbols before each RunOnce call.
func (c *BatchClient) WithTopics(syms []string, bybitInterval string) *BatchClient {
	c.topics = newTopicsForSymbols(c.kind, syms, bybitInterval)
	return c
}

const wsURL = "wss://stream.bybit.com/v5/public/linear"

const batchSize = 100
const batchPacing = 50 * time.Millisecond

var log = logger.With("venue.bybit")

// TopicKind 标识一个 Bybit topic 前缀对应的归一化语义。
type TopicKind string

const (
	KindKline       TopicKind = "kline"
	KindPublicTrade TopicKind = "publicTrade"
	KindLiquidation TopicKind = "allLiquidation"
)

// BatchClient 订阅一组同类 topic（按 ≤100 个一批、带短暂间隔发送订阅帧），
// 适用于需要对多交易对批量订阅的大单/强平聚合服务。
type BatchClient struct {
	kind       TopicKind
	topics     []string
	maxBackoff int
	closed     chan struct{}
}

// NewKlineBatch 构造 kline.{interval}.{SYMBOL} 批量K线订阅客户端。
func NewKlineBatch(symbols []string, bybitInterval string, maxBackoffSeconds int) *BatchClient {
	topics := make([]string, 0, len(symbols))
	for _, s := range symbols {
		topics = append(topics, fmt.Sprintf("kline.%s.%s", bybitInterval, strings.ToUpper(s)))
	}
	return &BatchClient{kind: KindKline, topics: topics, maxBackoff: maxBackoffSeconds, closed: make(chan struct{})}
}

// NewTradeBatch 构造 publicTrade.{SYMBOL} 批量成交订阅客户端。
func NewTradeBatch(symbols []string, maxBackoffSeconds int) *BatchClient {
	topics := make([]string, 0, len(symbols))
	for _, s := range symbols {
		topics = append(topics, "publicTrade."+strings.ToUpper(s))
	}
	return &BatchClient{kind: KindPublicTrade, topics: topics, maxBackoff: maxBackoffSeconds, closed: make(chan struct{})}
}

// NewLiquidationBatch 构造 allLiquidation.{SYMBOL} 批量强平订阅客户端。
func NewLiquidationBatch(symbols []string, maxBackoffSeconds int) *BatchClient {
	topics := make([]string, 0, len(symbols))
	for _, s := range symbols {
		topics = append(topics, "allLiquidation."+strings.ToUpper(s))
	}
	return &BatchClient{kind: KindLiquidation, topics: topics, maxBackoff: maxBackoffSeconds, closed: make(chan struct{})}
}

func (c *BatchClient) metricType() string {
	return "bybit." + string(c.kind)
}

func (c *BatchClient) Stream(ctx context.Context) (<-chan schema.Event, error) {
	out := make(chan schema.Event, venues.DefaultCapacity)
	go c.run(ctx, out)
	return out, nil
}

func (c *BatchClient) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

type subscribeFrame struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// RunOnce 建立一次连接、订阅并读取直至断开或取消，不做内部重连。
// 供需要在每次重连后重新发现交易对的调用方（如强平聚合服务）控制外层循环。
func (c *BatchClient) RunOnce(ctx context.Context, out chan<- schema.Event) error {
	rec := metrics.NewWSMetricsRecorder(c.metricType())
	if len(c.topics) == 0 {
		return fmt.Errorf("bybit: empty topic set")
	}

	wsConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		rec.RecordConnection(false)
		return err
	}
	rec.RecordConnection(true)
	defer func() {
		wsConn.Close()
		rec.RecordDisconnect("closed")
	}()

	if err := c.subscribeAll(wsConn); err != nil {
		return err
	}
	c.readLoop(ctx, wsConn, out, rec)
	return nil
}

func (c *BatchClient) run(ctx context.Context, out chan<- schema.Event) {
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

		if len(c.topics) == 0 {
			venues.SleepBackoff(ctx, 5, c.maxBackoff) // 无主题可订阅时等待下一轮，等待 symbol 列表刷新
			continue
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
			log.Warn().Err(err).Msg("批量订阅失败")
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

func (c *BatchClient) subscribeAll(wsConn *websocket.Conn) error {
	for i := 0; i < len(c.topics); i += batchSize {
		end := i + batchSize
		if end > len(c.topics) {
			end = len(c.topics)
		}
		frame := subscribeFrame{Op: "subscribe", Args: c.topics[i:end]}
		if err := wsConn.WriteJSON(frame); err != nil {
			return err
		}
		time.Sleep(batchPacing)
	}
	return nil
}

func (c *BatchClient) readLoop(ctx context.Context, wsConn *websocket.Conn, out chan<- schema.Event, rec *metrics.WSMetricsRecorder) {
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

		ev, ok := parse(c.kind, raw)
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

type topicFrame struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func parse(kind TopicKind, raw []byte) (schema.Event, bool) {
	var f topicFrame
	if err := json.Unmarshal(raw, &f); err != nil || f.Topic == "" {
		return schema.Event{}, false
	}

	parts := strings.SplitN(f.Topic, ".", 3)
	if len(parts) < 2 {
		return schema.Event{}, false
	}
	symbol := parts[len(parts)-1]

	switch kind {
	case KindKline:
		return parseKline(symbol, f.Data)
	case KindPublicTrade:
		return parseTrades(symbol, f.Data)
	case KindLiquidation:
		return parseLiquidations(symbol, f.Data)
	}
	return schema.Event{}, false
}

type klineItem struct {
	Start     int64  `json:"start"`
	Interval  string `json:"interval"`
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
	Turnover  string `json:"turnover"`
	Confirm   bool   `json:"confirm"`
}

func parseKline(symbol string, data json.RawMessage) (schema.Event, bool) {
	var items []klineItem
	if err := json.Unmarshal(data, &items); err != nil || len(items) == 0 {
		return schema.Event{}, false
	}
	k := items[0]
	candle := schema.Candle{
		Base: schema.Base{
			Exchange:  "bybit",
			Symbol:    strings.ToUpper(symbol),
			Timestamp: time.UnixMilli(k.Start).UTC(),
		},
		Interval:    k.Interval,
		Open:        atof(k.Open),
		High:        atof(k.High),
		Low:         atof(k.Low),
		Close:       atof(k.Close),
		Volume:      atof(k.Volume),
		QuoteVolume: atof(k.Turnover),
		IsClosed:    k.Confirm,
	}
	return schema.Event{Type: "ohlc", Payload: candle}, true
}

type tradeItem struct {
	T    int64  `json:"T"`
	S    string `json:"S"` // Buy/Sell
	V    string `json:"v"`
	P    string `json:"p"`
}

func parseTrades(symbol string, data json.RawMessage) (schema.Event, bool) {
	var items []tradeItem
	if err := json.Unmarshal(data, &items); err != nil || len(items) == 0 {
		return schema.Event{}, false
	}
	t := items[len(items)-1]
	side := schema.SideBuy
	if strings.EqualFold(t.S, "Sell") {
		side = schema.SideSell
	}
	price := atof(t.P)
	qty := atof(t.V)
	lt := schema.LargeTrade{
		Base: schema.Base{
			Exchange:  "bybit",
			Symbol:    strings.ToUpper(symbol),
			Timestamp: time.UnixMilli(t.T).UTC(),
		},
		Side:     side,
		Price:    price,
		Quantity: qty,
		Value:    price * qty,
		// Bybit 不可靠地暴露 is_buyer_maker 位，固定为 false（与原始实现一致的已知限制）。
		IsBuyerMaker: false,
	}
	return schema.Event{Type: "large_trade", Payload: lt}, true
}

type liquidationItem struct {
	S string `json:"s"`
	Side string `json:"S"`
	V string `json:"v"`
	P string `json:"p"`
	T int64  `json:"T"`
}

func parseLiquidations(symbol string, data json.RawMessage) (schema.Event, bool) {
	var items []liquidationItem
	if err := json.Unmarshal(data, &items); err != nil {
		var single liquidationItem
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return schema.Event{}, false
		}
		items = []liquidationItem{single}
	}
	if len(items) == 0 {
		return schema.Event{}, false
	}
	it := items[len(items)-1]
	side := schema.SideBuy
	if strings.EqualFold(it.Side, "Sell") {
		side = schema.SideSell
	}
	price := atof(it.P)
	qty := atof(it.V)
	liq := schema.Liquidation{
		Base: schema.Base{
			Exchange:  "bybit",
			Symbol:    strings.ToUpper(symbol),
			Timestamp: time.UnixMilli(it.T).UTC(),
		},
		Side:     side,
		Price:    price,
		Quantity: qty,
		Value:    price * qty,
	}
	return schema.Event{Type: "liquidation", Payload: liq}, true
}

func atof(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
