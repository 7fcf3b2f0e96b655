package wsapi

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"atrade/bus"
	"atrade/schema"
)

// sharedBus 由 cmd/gateway 在启动时注入；全市场聚合端点只读总线，不
// 直接持有交易所连接。
var sharedBus *bus.Bus

// SetBus 注入共享事件总线，供全市场聚合端点订阅。
func SetBus(b *bus.Bus) { sharedBus = b }

// handleFirehoseLiquidations 处理 /ws/all/liquidations：全市场强平事件防洪水口。
func (s *Server) handleFirehoseLiquidations(c *gin.Context) {
	minValue := queryFloat(c, "min_value_usd", 0)
	s.runFirehose(c, "liquidation", func(ev schema.Event) bool {
		liq, ok := ev.Payload.(schema.Liquidation)
		return ok && liq.Value >= minValue
	})
}

// handleFirehoseLargeTrades 处理 /ws/all/large_trades：全市场大单成交防洪水口。
func (s *Server) handleFirehoseLargeTrades(c *gin.Context) {
	minValue := queryFloat(c, "min_value_usd", 0)
	s.runFirehose(c, "large_trade", func(ev schema.Event) bool {
		lt, ok := ev.Payload.(schema.LargeTrade)
		return ok && lt.Value >= minValue
	})
}

// handleOIVol 处理 /ws/oi-vol：持仓量/成交量异动防洪水口，按 timeframes 白名单过滤。
func (s *Server) handleOIVol(c *gin.Context) {
	allowed := splitCSV(c.Query("timeframes"))
	s.runFirehose(c, "oi_spike", func(ev schema.Event) bool {
		alert, ok := ev.Payload.(schema.SpikeAlert)
		if !ok {
			return false
		}
		if len(allowed) == 0 {
			return true
		}
		for _, tf := range allowed {
			if tf == alert.Timeframe {
				return true
			}
		}
		return false
	})
}

// runFirehose 订阅给定主题，按 filter 转发到客户端；客户端断开或写失败时
// 取消订阅并关闭连接。三个全市场防洪水口端点共用这一套循环。
func (s *Server) runFirehose(c *gin.Context, topic string, filter func(schema.Event) bool) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("升级失败")
		return
	}
	defer conn.Close()

	if sharedBus == nil {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(1011, "bus not initialized"))
		return
	}

	sub := sharedBus.Subscribe(topic)
	defer sharedBus.Unsubscribe(sub)

	ctx, cancel := contextFromRequest(c)
	defer cancel()
	go watchClientClose(conn, cancel)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if !filter(ev) {
				continue
			}
			if err := conn.WriteJSON(ev.Envelope()); err != nil {
				return
			}
		}
	}
}

func contextFromRequest(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(c.Request.Context())
}

func queryFloat(c *gin.Context, key string, def float64) float64 {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
