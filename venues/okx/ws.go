// Package okx 实现 OKX 全市场强平流的上游客户端。
package okx

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
	"atrade/venues"
)

const wsURL = "wss://ws.okx.com:8443/ws/v5/public"

var log = logger.With("venue.okx")

// LiquidationClient 订阅 OKX 的全市场永续合约强平事件流。
type LiquidationClient struct {
	maxBackoff int
	closed     chan struct{}
}

// NewLiquidationClient 构造OKX强平流客户端。
func NewLiquidationClient(maxBackoffSeconds int) *LiquidationClient {
	return &LiquidationClient{maxBackoff: maxBackoffSeconds, closed: make(chan struct{})}
}

func (c *LiquidationClient) Stream(ctx context.Context) (<-chan schema.Event, error) {
	out := make(chan schema.Event, venues.DefaultCapacity)
	go c.run(ctx, out)
	return out, nil
}

func (c *LiquidationClient) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

type subscribeArg struct {
	Channel  string `json:"channel"`
	InstType string `json:"instType"`
}

type subscribeFrame struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

func (c *LiquidationClient) run(ctx context.Context, out chan<- schema.Event) {
	defer close(out)
	attempt := 0
	rec := metrics.NewWSMetricsRecorder("okx.liquidation")

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

		frame := subscribeFrame{Op: "subscribe", Args: []subscribeArg{{Channel: "liquidation-orders", InstType: "SWAP"}}}
		if err := wsConn.WriteJSON(frame); err != nil {
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

func (c *LiquidationClient) readLoop(ctx context.Context, wsConn *websocket.Conn, out chan<- schema.Event, rec *metrics.WSMetricsRecorder) {
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

		evs, ok := parse(raw)
		if !ok {
			continue
		}
		for _, ev := range evs {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			case <-c.closed:
				return
			}
		}
	}
}

type okxFrame struct {
	Arg  subscribeArg `json:"arg"`
	Data []struct {
		InstID  string `json:"instId"`
		Details []struct {
			Side string `json:"side"`
			Sz   string `json:"sz"`
			BkPx string `json:"bkPx"`
			Ts   string `json:"ts"`
		} `json:"details"`
	} `json:"data"`
}

func parse(raw []byte) ([]schema.Event, bool) {
	var f okxFrame
	if err := json.Unmarshal(raw, &f); err != nil || len(f.Data) == 0 {
		return nil, false
	}

	events := make([]schema.Event, 0, len(f.Data))
	for _, d := range f.Data {
		symbol := strings.ReplaceAll(strings.TrimSuffix(d.InstID, "-SWAP"), "-", "")
		for _, det := range d.Details {
			side := schema.SideBuy
			if strings.EqualFold(det.Side, "sell") {
				side = schema.SideSell
			}
			price := atof(det.BkPx)
			qty := atof(det.Sz)
			ts, _ := strconv.ParseInt(det.Ts, 10, 64)
			events = append(events, schema.Event{
				Type: "liquidation",
				Payload: schema.Liquidation{
					Base: schema.Base{
						Exchange:  "okx",
						Symbol:    strings.ToUpper(symbol),
						Timestamp: time.UnixMilli(ts).UTC(),
					},
					Side:     side,
					Price:    price,
					Quantity: qty,
					Value:    price * qty,
				},
			})
		}
	}
	if len(events) == 0 {
		return nil, false
	}
	return events, true
}

func atof(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
