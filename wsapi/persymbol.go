package wsapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"atrade/logger"
	"atrade/registry"
)

var log = logger.With("wsapi")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server 持有网关对外 WS/HTTP 端点所需的共享依赖。
type Server struct {
	reg        *registry.Registry
	maxBackoff int
	maxSymbols int
}

// NewServer 构造一个共享的下游端点服务器。
func NewServer(reg *registry.Registry, maxBackoffSeconds, maxSymbolsPerConnection int) *Server {
	return &Server{reg: reg, maxBackoff: maxBackoffSeconds, maxSymbols: maxSymbolsPerConnection}
}

// Register 把所有下游路由挂载到 gin 引擎上。
func (s *Server) Register(r *gin.Engine) {
	r.GET("/ws/:exchange/:symbol/:stream", s.handlePerSymbol)
	r.GET("/ws/all/liquidations", s.handleFirehoseLiquidations)
	r.GET("/ws/all/large_trades", s.handleFirehoseLargeTrades)
	r.GET("/ws/oi-vol", s.handleOIVol)
	r.GET("/ws/binance/multi/ohlc", s.handleMultiplex)
}

// handlePerSymbol 解析交易所与能力、为单个交易对建立专属上游连接、逐条转发。
func (s *Server) handlePerSymbol(c *gin.Context) {
	exchange := c.Param("exchange")
	symbol := c.Param("symbol")
	streamParam := c.Param("stream")
	interval := c.Query("interval")

	stream, ok := parseStream(streamParam)
	if !ok {
		s.closePolicy(c, "unknown stream "+streamParam)
		return
	}

	entry, ok := s.reg.Get(exchange)
	if !ok {
		s.closePolicy(c, "unknown exchange "+exchange)
		return
	}
	if !entry.HasCapability(requiredCapability(stream)) {
		s.closePolicy(c, exchange+" does not support "+string(stream))
		return
	}

	client, err := buildConnector(exchange, symbol, stream, interval, s.maxBackoff)
	if err != nil {
		s.closePolicy(c, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("升级失败")
		return
	}
	defer conn.Close()

	ctx, cancel := contextFromRequest(c)
	defer cancel()

	events, err := client.Stream(ctx)
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(1011, err.Error()))
		return
	}

	targetSymbol := strings.ToUpper(symbol)
	go watchClientClose(conn, cancel)

	for ev := range events {
		if sym := eventSymbol(ev); sym != "" && sym != targetSymbol {
			continue
		}
		if err := conn.WriteJSON(ev.Envelope()); err != nil {
			client.Close()
			return
		}
	}
}

func (s *Server) closePolicy(c *gin.Context, reason string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(1008, reason))
}

// watchClientClose 在读取到客户端断开（或发生读错误）时取消上下文，从而
// 终止对应的上游转发任务。
func watchClientClose(conn *websocket.Conn, cancel func()) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeErrorEnvelope(conn *websocket.Conn, code, message, symbol string) error {
	env := map[string]interface{}{"type": "error", "code": code, "message": message}
	if symbol != "" {
		env["symbol"] = symbol
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}
